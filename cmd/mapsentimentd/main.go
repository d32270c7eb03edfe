package main

import (
	"flag"
	"net/http"

	"mapsentiment-backend/lib/configutil"
	"mapsentiment-backend/lib/serviceutil"

	"github.com/joho/godotenv"
)

type Config struct {
	Analysis AnalysisConfig `json:"analysis"`
	Port     int            `json:"port"`
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	flag.Parse()

	godotenv.Load()

	ctx := serviceutil.SignalContext()

	InitTelemetry(ctx, *verbose)

	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}

	mux := http.NewServeMux()

	err = InitAnalysis(mux, cfg.Analysis)
	if err != nil {
		serviceutil.Fatal("init analysis", err)
	}

	go serviceutil.StartHttpServer(cfg.Port, mux)
	<-ctx.Done()
}
