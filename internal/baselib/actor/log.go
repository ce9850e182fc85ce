package actor

import "github.com/btcsuite/btclog/v2"

// log is the package-level logger, disabled by default so the runtime emits
// nothing until the application wires a backend.
var log = btclog.Disabled

// UseLogger sets the package logger. Called during application setup, before
// any actors are spawned.
func UseLogger(logger btclog.Logger) {
	log = logger
}
