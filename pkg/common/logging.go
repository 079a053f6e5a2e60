package common

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConfigureLogging sets the global zerolog level and writer
func ConfigureLogging(debug, pretty bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug || pretty {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
}
