package main

import (
	"errors"
	"fmt"
	"os"
)

// exitRestartRequested is returned by `backups restore` on success: the
// caller's process must restart to pick up the replaced local store file
// (spec §6: "exit codes ... 42 restart-requested (after restore)").
const exitRestartRequested = 42

var errRestartRequested = errors.New("restart required after restore")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errRestartRequested) {
			os.Exit(exitRestartRequested)
		}

		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
