package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"mapsentiment-backend/lib/browser"
	"mapsentiment-backend/lib/configdb"
	"mapsentiment-backend/lib/locator"
	"mapsentiment-backend/lib/scrapers/gmaps"
	"mapsentiment-backend/lib/sentiment"
	"mapsentiment-backend/services/analysis"
	"mapsentiment-backend/services/analysis/db"
)

type ScraperConfig struct {
	StallBound        int `json:"stall_bound"`
	NavTimeoutSeconds int `json:"nav_timeout_seconds"`
}

type LocatorConfig struct {
	TimeoutSeconds int  `json:"timeout_seconds"`
	MaxRedirects   int  `json:"max_redirects"`
	AntiBotHeaders bool `json:"anti_bot_headers"`
}

type AnalysisConfig struct {
	Database  configdb.Struct        `json:"database"`
	Browser   browser.Config         `json:"browser"`
	Scraper   ScraperConfig          `json:"scraper"`
	Locator   LocatorConfig          `json:"locator"`
	Inference sentiment.RemoteConfig `json:"inference"`
	Service   analysis.Config        `json:"service"`
}

func InitAnalysis(mux *http.ServeMux, cfg AnalysisConfig) error {
	database, err := cfg.Database.OpenDB()
	if err != nil {
		return err
	}
	_, err = database.Exec(db.Schema)
	if err != nil {
		return err
	}

	svc := analysis.NewService(
		locator.NewResolver(locator.Options{
			Timeout:        time.Duration(cfg.Locator.TimeoutSeconds) * time.Second,
			MaxRedirects:   cfg.Locator.MaxRedirects,
			AntiBotHeaders: cfg.Locator.AntiBotHeaders,
		}),
		analysis.BrowserSessions(browser.NewManager(cfg.Browser)),
		analysis.GmapsScraper(gmaps.New(gmaps.Options{
			StallBound: cfg.Scraper.StallBound,
			NavTimeout: time.Duration(cfg.Scraper.NavTimeoutSeconds) * time.Second,
		})),
		sentiment.NewRemoteClassifier(cfg.Inference),
		database,
		cfg.Service,
	)

	mux.HandleFunc("POST /analyze", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			LocationURL string `json:"location_url"`
			Limit       int    `json:"limit"`
			ForceUpdate bool   `json:"force_update"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		result, err := svc.Analyze(r.Context(), analysis.AnalyzeRequest{
			LocationURL: req.LocationURL,
			Limit:       req.Limit,
			ForceUpdate: req.ForceUpdate,
		})
		if err != nil {
			slog.WarnContext(r.Context(), "analyze failed", "url", req.LocationURL, "err", err)
			writeError(w, statusFor(err), err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	})

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, analysis.ErrInvalidLimit),
		errors.Is(err, analysis.ErrResolution):
		return http.StatusBadRequest
	case errors.Is(err, analysis.ErrAuthenticationRequired):
		return http.StatusUnauthorized
	case errors.Is(err, analysis.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, analysis.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
