package main

import (
	"fmt"
	"io"
	"os"

	"github.com/lightninglabs/onchaind/errkind"
	"github.com/lightninglabs/onchaind/wire"
)

// version is reported by --version (§10.3); there is no other configuration
// surface.
const version = "0.1.0"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Println("onchaind", version)
		return
	}

	setupLogging()

	// The parent duplexes a single pipe on fd 0; fd 1 is reserved and
	// unused here (stderr carries all logging, see log.go).
	if err := run(os.Stdin, os.Stdin); err != nil {
		reportFatal(os.Stdin, err)
		os.Exit(1)
	}
}

// reportFatal logs the failing error's stack trace and gives the parent a
// structured reason before the process exits non-zero (§7, §12.6).
func reportFatal(out io.Writer, err error) {
	kindErr := errkind.Wrap(errkind.InternalError, err)

	log.Errorf("onchaind: fatal: %s", kindErr.Error())
	log.Debugf("onchaind: %s", kindErr.Stack())

	status := &wire.OnchainStatusFailed{
		Kind:    uint8(kindErr.Kind),
		Message: kindErr.Error(),
	}
	if writeErr := wire.WriteMessage(out, status); writeErr != nil {
		log.Errorf("onchaind: failed to report status to parent: %v", writeErr)
	}
}
