package handlers

import "github.com/btcsuite/btclog"

// log is this package's subsystem logger, set by UseLogger; it does nothing
// until the driver installs a real backend.
var log = btclog.Disabled

// UseLogger installs l as this package's logger.
func UseLogger(l btclog.Logger) {
	log = l
}
