// OpenMaw — the plugin engine behind the dictation app.
//
// The daemon matches dictated transcripts against installed plugins and
// executes the winner: scripts, HTTP calls, system shortcuts, AI prompts,
// and pipelines composing them.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
