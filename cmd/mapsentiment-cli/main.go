package main

import (
	"mapsentiment-backend/cmd/mapsentiment-cli/cmd"
	"mapsentiment-backend/lib/telemetry"
)

func main() {
	telemetry.InitSlog(true)
	cmd.Execute()
}
