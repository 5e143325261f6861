package logging

import (
	"os"

	"github.com/phuslu/log"
)

// Setup configures the process-wide logger. Level accepts the usual
// names (debug, info, warning, error) in any case; anything else
// falls back to info. Console output gets colors and short timestamps,
// piped output stays machine-readable JSON.
func Setup(level string) {
	lvl := log.ParseLevel(normalize(level))
	if log.IsTerminal(os.Stderr.Fd()) {
		log.DefaultLogger = log.Logger{
			Level:      lvl,
			TimeFormat: "15:04:05",
			Writer: &log.ConsoleWriter{
				ColorOutput:    true,
				EndWithMessage: true,
			},
		}
		return
	}
	log.DefaultLogger.Level = lvl
}

func normalize(level string) string {
	switch level {
	case "DEBUG", "debug":
		return "debug"
	case "WARNING", "WARN", "warning", "warn":
		return "warn"
	case "ERROR", "error":
		return "error"
	case "TRACE", "trace":
		return "trace"
	default:
		return "info"
	}
}
