package cmd

import (
	"fmt"
	"os"
	"time"

	"mapsentiment-backend/lib/browser"
	"mapsentiment-backend/lib/configdb"
	"mapsentiment-backend/lib/configutil"
	"mapsentiment-backend/lib/locator"
	"mapsentiment-backend/lib/scrapers/gmaps"
	"mapsentiment-backend/lib/sentiment"
	"mapsentiment-backend/services/analysis"
	"mapsentiment-backend/services/analysis/db"

	"github.com/spf13/cobra"
)

var configPath string

type ScraperConfig struct {
	StallBound        int `json:"stall_bound"`
	NavTimeoutSeconds int `json:"nav_timeout_seconds"`
}

type LocatorConfig struct {
	TimeoutSeconds int  `json:"timeout_seconds"`
	MaxRedirects   int  `json:"max_redirects"`
	AntiBotHeaders bool `json:"anti_bot_headers"`
}

type Config struct {
	Database  configdb.Struct        `json:"database"`
	Browser   browser.Config         `json:"browser"`
	Scraper   ScraperConfig          `json:"scraper"`
	Locator   LocatorConfig          `json:"locator"`
	Inference sentiment.RemoteConfig `json:"inference"`
	Service   analysis.Config        `json:"service"`
}

func (c Config) LocatorOptions() locator.Options {
	return locator.Options{
		Timeout:        time.Duration(c.Locator.TimeoutSeconds) * time.Second,
		MaxRedirects:   c.Locator.MaxRedirects,
		AntiBotHeaders: c.Locator.AntiBotHeaders,
	}
}

var rootCmd = &cobra.Command{
	Use:   "mapsentiment-cli",
	Short: "mapsentiment-cli runs the review sentiment pipeline from the terminal.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json5", "Path to the pipeline config file.")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func readConfig() (Config, error) {
	return configutil.ReadConfig[Config](configPath)
}

func buildService(cfg Config) (analysis.Service, error) {
	database, err := cfg.Database.OpenDB()
	if err != nil {
		return analysis.Service{}, err
	}
	_, err = database.Exec(db.Schema)
	if err != nil {
		return analysis.Service{}, err
	}

	return analysis.NewService(
		locator.NewResolver(cfg.LocatorOptions()),
		analysis.BrowserSessions(browser.NewManager(cfg.Browser)),
		analysis.GmapsScraper(gmaps.New(gmaps.Options{
			StallBound: cfg.Scraper.StallBound,
			NavTimeout: time.Duration(cfg.Scraper.NavTimeoutSeconds) * time.Second,
		})),
		sentiment.NewRemoteClassifier(cfg.Inference),
		database,
		cfg.Service,
	), nil
}
