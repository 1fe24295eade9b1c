package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
)

// SetupLogging installs the apex/log handler for the given format ("text"
// or "json") and sets the level.
func SetupLogging(level, format string) error {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("bad log level %q: %w", level, err)
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		log.SetHandler(text.New(os.Stderr))
	case "json":
		log.SetHandler(json.New(os.Stderr))
	default:
		return fmt.Errorf("bad log format %q, expecting text or json", format)
	}
	log.SetLevel(lvl)
	return nil
}
