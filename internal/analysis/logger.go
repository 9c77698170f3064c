// Package analysis wires capture, classification, event delivery and
// alerting into runnable pipelines for the command line entry points.
package analysis

import (
	"github.com/tphakala/withu/internal/logger"
)

// GetLogger returns the analysis module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}
