package simfile

import (
	"strings"

	"github.com/Scusemua/go-utils/logger"
)

// ApplyOverrides applies command-line "key=value" parameter overrides to the
// file-sourced parameters, in argument order, so that later duplicates win.
//
// A malformed token (one with no "=") is warned about and skipped; it never
// aborts the run. The map is mutated in place and also returned for
// convenience.
func ApplyOverrides(parameters map[string]string, overrides []string, log logger.Logger) map[string]string {
	for _, token := range overrides {
		eq := strings.Index(token, "=")
		if eq < 0 {
			log.Warn("Malformed parameter setting \"%s\"", token)
			continue
		}

		key := token[:eq]
		value := token[eq+1:]
		log.Info("Setting simulation parameter \"%s\" = \"%s\"", key, value)
		parameters[key] = value
	}

	return parameters
}
