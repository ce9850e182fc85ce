package lifecycle

import "github.com/btcsuite/btclog/v2"

// log is the package-level logger, disabled until the application wires a
// backend via UseLogger.
var log = btclog.Disabled

// UseLogger sets the package logger.
func UseLogger(logger btclog.Logger) {
	log = logger
}
