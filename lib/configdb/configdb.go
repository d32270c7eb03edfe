package configdb

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Struct describes where the cache database lives. Either a local sqlite
// file (or ":memory:") or a remote libsql url with an optional auth token.
type Struct struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (config Struct) OpenDB() (*sql.DB, error) {
	if config.Url == "" {
		if config.File == "" {
			return nil, fmt.Errorf("database config: neither file nor url set")
		}
		if config.File == ":memory:" {
			return sql.Open("sqlite", ":memory:")
		}
		return sql.Open("sqlite", fmt.Sprintf("file:%s", config.File))
	}

	connUrl, err := url.Parse(config.Url)
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	if config.AuthToken != "" {
		query := connUrl.Query()
		query.Set("authToken", config.AuthToken)
		connUrl.RawQuery = query.Encode()
	}
	return sql.Open("libsql", connUrl.String())
}
