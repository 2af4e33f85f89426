// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/davidgumberg/bitcoin/internal/version"
)

// appName is the name of the application derived from the executable name
// with any extension removed.
var appName = strings.TrimSuffix(filepath.Base(os.Args[0]),
	filepath.Ext(os.Args[0]))

// nodeMain is the real main function for the node.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is called.
func nodeMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	tcfg, _, err := loadConfig(appName)
	if err != nil {
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a context that will be canceled when a shutdown signal has been
	// triggered from an OS signal such as SIGINT (Ctrl+C).
	ctx := shutdownListener()
	defer mainLog.Info("Shutdown complete")

	// Show version at startup.
	mainLog.Infof("Version %s (Go version %s %s/%s)", version.String(),
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
	mainLog.Infof("Home dir: %s", cfg.HomeDir)

	// Return now if a shutdown signal was triggered during startup.
	if shutdownRequested(ctx) {
		return nil
	}

	// Create server and start it.
	svr, err := newServer(cfg.Listeners, cfg.DataDir, cfg.params)
	if err != nil {
		mainLog.Errorf("Unable to start server: %v", err)
		return err
	}
	svr.Run(ctx)

	return nil
}

func main() {
	// Up some limits.
	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		runtime.GOMAXPROCS(runtime.NumCPU())
	}

	// Work around defer not working after os.Exit()
	if err := nodeMain(); err != nil {
		os.Exit(1)
	}
}
