package build

import (
	"io"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// Subsystem tags used across the engine. Keeping them in one place makes the
// console output grep-able and avoids tag collisions between packages.
const (
	// SubRMDR tags the delivery engine: scheduler, background context
	// and wiring.
	SubRMDR = "RMDR"

	// SubRCRD tags the delivery-record store.
	SubRCRD = "RCRD"

	// SubPLCY tags the notification policy store.
	SubPLCY = "PLCY"

	// SubPLAT tags platform detection and strategy selection.
	SubPLAT = "PLAT"

	// SubPUSH tags the push transport.
	SubPUSH = "PUSH"

	// SubLFCY tags the lifecycle tracker.
	SubLFCY = "LFCY"

	// SubDB tags the durable store.
	SubDB = "DBXX"

	// SubACTR tags the actor runtime.
	SubACTR = "ACTR"
)

// NewRootHandler creates the root handler writing human-readable records to
// w. Additional handlers may be fanned in for tests or file capture.
func NewRootHandler(w io.Writer, extra ...btclogv2.Handler) *HandlerSet {
	handlers := append(
		[]btclogv2.Handler{btclogv2.NewDefaultHandler(w)}, extra...,
	)

	return NewHandlerSet(handlers...)
}

// NewSubLogger mints a logger for the given subsystem tag backed by the root
// handler.
func NewSubLogger(root btclogv2.Handler, tag string) btclogv2.Logger {
	return btclogv2.NewSLogger(root.SubSystem(tag))
}

// SetLogLevels applies the same level to the root handler (and therefore to
// every sublogger minted from it).
func SetLogLevels(root *HandlerSet, level btclog.Level) {
	root.SetLevel(level)
}
