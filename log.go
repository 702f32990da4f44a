package main

import (
	"os"

	"github.com/btcsuite/btclog"

	"github.com/lightninglabs/onchaind/classify"
	"github.com/lightninglabs/onchaind/feerate"
	"github.com/lightninglabs/onchaind/handlers"
	"github.com/lightninglabs/onchaind/resolution"
)

// log is the driver subsystem's own logger, set up by setupLogging.
var log = btclog.Disabled

// backendLog is the single logging backend every subsystem logger writes
// through. Fd 0 carries the parent protocol and fd 1 is left unused, so the
// backend writes to stderr exclusively.
var backendLog = btclog.NewBackend(os.Stderr)

// setupLogging installs a subsystem logger in every package that exposes a
// UseLogger hook, then points the driver's own logger at the same backend.
func setupLogging() {
	log = backendLog.Logger("ONCD")
	classify.UseLogger(backendLog.Logger("CLSS"))
	handlers.UseLogger(backendLog.Logger("HNDL"))
	feerate.UseLogger(backendLog.Logger("FEER"))
	resolution.UseLogger(backendLog.Logger("RSLV"))
}
