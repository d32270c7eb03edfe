package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// Cookie is one entry of the serialized authentication state blob. The
// field layout matches what the capture flow exports, the core only ever
// reads it.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// AuthState is the opaque session blob produced by the manual capture flow.
type AuthState []Cookie

// LoadAuthState reads an auth state blob from disk. A missing path or file
// is an error so callers can decide whether authentication is mandatory.
func LoadAuthState(path string) (AuthState, error) {
	if path == "" {
		return nil, fmt.Errorf("no auth state file configured")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state AuthState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("malformed auth state %q: %w", path, err)
	}
	if len(state) == 0 {
		return nil, fmt.Errorf("auth state %q holds no cookies", path)
	}
	return state, nil
}

// SaveAuthState serializes the blob, used only by the capture flow.
func SaveAuthState(path string, state AuthState) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}

// ExportAuthState reads the live browser cookies out of a session, used
// only by the capture flow after a manual login.
func ExportAuthState(ctx context.Context) (AuthState, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	state := make(AuthState, 0, len(cookies))
	for _, c := range cookies {
		state = append(state, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return state, nil
}

func installStealth() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
		return err
	})
}

func installCookies(state AuthState) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		params := make([]*network.CookieParam, 0, len(state))
		for _, c := range state {
			param := &network.CookieParam{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				HTTPOnly: c.HTTPOnly,
				Secure:   c.Secure,
			}
			if c.SameSite != "" {
				param.SameSite = network.CookieSameSite(c.SameSite)
			}
			if c.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				param.Expires = &expires
			}
			params = append(params, param)
		}
		return network.SetCookies(params).Do(ctx)
	})
}
