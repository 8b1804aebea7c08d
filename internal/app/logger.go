package app

import (
	"strings"

	"github.com/envault/envault/pkg/logger"
)

// ConfigureLogging installs the process logger at the configured level; a
// blank level means info.
func ConfigureLogging(level string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}
	return logger.Init(level)
}
