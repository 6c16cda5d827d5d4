// Package logging initialises the global zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init points the global logger at path (JSON lines, appended) or, when
// path is empty, at a console writer on stderr.
func Init(level zerolog.Level, path string) error {
	var w io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w = f
	}

	log.Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()

	if level == zerolog.DebugLevel {
		log.Debug().Msg("Log level set to DEBUG")
	}
	return nil
}
