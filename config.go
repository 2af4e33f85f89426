// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/davidgumberg/bitcoin/internal/version"

	"github.com/decred/go-socks/socks"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "bitcoin.conf"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "bitcoin.log"
	defaultLogLevel       = "info"
	defaultMaxPeers       = 125
	defaultDialTimeout    = time.Second * 30

	// defaultSeedFallbackWindow is the default number of seconds to wait
	// for a successful connection to a peer from the address database
	// before adding the configured seed nodes to the connection pipeline.
	defaultSeedFallbackWindow = 10
)

var (
	defaultHomeDir    = appDataDir("bitcoin")
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)

	// cfg is the active configuration for the process.  It is set once
	// during startup and treated as immutable afterwards.
	cfg *config
)

// config defines the configuration options for the node.
//
// See loadConfig for details on the configuration load process.
type config struct {
	HomeDir            string        `short:"A" long:"appdata" description:"Path to application home directory"`
	ShowVersion        bool          `short:"V" long:"version" description:"Display version information and exit"`
	ConfigFile         string        `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir            string        `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir             string        `long:"logdir" description:"Directory to log output"`
	NoFileLogging      bool          `long:"nofilelogging" description:"Disable file logging"`
	AddPeers           []string      `short:"a" long:"addpeer" description:"Add a peer to connect with at startup"`
	ConnectPeers       []string      `long:"connect" description:"Connect only to the specified peers at startup"`
	DisableListen      bool          `long:"nolisten" description:"Disable listening for incoming connections"`
	Listeners          []string      `long:"listen" description:"Add an interface/port to listen for connections (default all interfaces port: 8333, testnet: 18333)"`
	MaxPeers           int           `long:"maxpeers" description:"Max number of inbound and outbound peers"`
	DisableDNSSeed     bool          `long:"nodnsseed" description:"Disable DNS seeding for peers"`
	SeedNodes          []string      `long:"seednode" description:"Seed node to bootstrap connectivity from when the address database is empty or unproductive (may be repeated)"`
	SeedFallbackWindow uint          `long:"seedfallbackwindow" description:"Number of seconds without a successful connection to a peer from the address database before the configured seed nodes are added to the connection pipeline"`
	DialTimeout        time.Duration `long:"dialtimeout" description:"How long to wait for TCP connection completion.  Valid time units are {s, m, h}.  Minimum 1 second"`
	Proxy              string        `long:"proxy" description:"Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)"`
	ProxyUser          string        `long:"proxyuser" description:"Username for proxy server"`
	ProxyPass          string        `long:"proxypass" default-mask:"-" description:"Password for proxy server"`
	TestNet            bool          `long:"testnet" description:"Use the test network"`
	SimNet             bool          `long:"simnet" description:"Use the simulation test network"`
	DebugLevel         string        `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	// The following options are set in loadConfig and are not settable
	// directly from the command line or config file.
	params *params
	lookup func(string) ([]net.IP, error)
	dial   func(context.Context, string, string) (net.Conn, error)
}

// errSuppressUsage signifies that an error that happened during the initial
// configuration phase should suppress the usage output since it was not
// caused by the user.
type errSuppressUsage string

// Error implements the error interface.
func (e errSuppressUsage) Error() string {
	return string(e)
}

// appDataDir returns an operating system specific directory to be used for
// storing application data for the application with the provided name.
func appDataDir(appName string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "."
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = filepath.Join(homeDir, "AppData", "Local")
		}
		return filepath.Join(appData, strings.ToUpper(appName[:1])+appName[1:])

	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support",
			strings.ToUpper(appName[:1])+appName[1:])

	default:
		return filepath.Join(homeDir, "."+appName)
	}
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Nothing to do when the path is empty.
	if path == "" {
		return path
	}

	// Expand initial ~ to the current user's home directory.
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err == nil && homeDir != "" {
			path = strings.Replace(path, "~", homeDir, 1)
		}
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// normalizeAddress returns addr with the passed default port appended if
// there is not already a port specified.
func normalizeAddress(addr, defaultPort string) string {
	_, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.JoinHostPort(addr, defaultPort)
	}
	return addr
}

// normalizeAddresses returns a new slice with all the passed peer addresses
// normalized with the given default port, and all duplicates removed.
func normalizeAddresses(addrs []string, defaultPort string) []string {
	result := make([]string, 0, len(addrs))
	seen := map[string]struct{}{}
	for _, addr := range addrs {
		addr = normalizeAddress(addr, defaultPort)
		if _, ok := seen[addr]; !ok {
			result = append(result, addr)
			seen[addr] = struct{}{}
		}
	}
	return result
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in daemon functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig(appName string) (*config, []string, error) {
	// Default config.
	cfg := config{
		HomeDir:            defaultHomeDir,
		ConfigFile:         defaultConfigFile,
		DataDir:            defaultDataDir,
		LogDir:             defaultLogDir,
		MaxPeers:           defaultMaxPeers,
		SeedFallbackWindow: defaultSeedFallbackWindow,
		DialTimeout:        defaultDialTimeout,
		DebugLevel:         defaultLogLevel,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s %s/%s)\n", appName,
			version.String(), runtime.Version(), runtime.GOOS,
			runtime.GOARCH)
		os.Exit(0)
	}

	// Update the home directory if specified.  Since the home directory is
	// updated, other variables need to be updated to reflect the new
	// location.
	if preCfg.HomeDir != defaultHomeDir {
		homeDir := cleanAndExpandPath(preCfg.HomeDir)

		if preCfg.ConfigFile == defaultConfigFile {
			preCfg.ConfigFile = filepath.Join(homeDir, defaultConfigFilename)
		}
		if preCfg.DataDir == defaultDataDir {
			preCfg.DataDir = filepath.Join(homeDir, defaultDataDirname)
		}
		if preCfg.LogDir == defaultLogDir {
			preCfg.LogDir = filepath.Join(homeDir, defaultLogDirname)
		}
		cfg = preCfg
		cfg.HomeDir = homeDir
	}

	// Load additional config from file.
	parser := flags.NewParser(&cfg, flags.Default)
	configFile := cleanAndExpandPath(preCfg.ConfigFile)
	err = flags.NewIniParser(parser).ParseFile(configFile)
	if err != nil {
		var e *os.PathError
		if !errors.As(err, &e) {
			return nil, nil, errSuppressUsage(fmt.Sprintf("error parsing "+
				"config file: %v", err))
		}
		// A missing config file at the default location is fine, but a
		// missing config file that was explicitly specified is not.
		if preCfg.ConfigFile != defaultConfigFile {
			return nil, nil, fmt.Errorf("config file %q does not exist",
				configFile)
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
		return nil, nil, err
	}

	// Multiple networks can't be selected simultaneously.
	numNets := 0
	if cfg.TestNet {
		numNets++
	}
	if cfg.SimNet {
		numNets++
	}
	if numNets > 1 {
		return nil, nil, fmt.Errorf("the testnet and simnet params can't " +
			"be used together -- choose one of the two")
	}
	cfg.params = &mainNetParams
	switch {
	case cfg.TestNet:
		cfg.params = &testNetParams
	case cfg.SimNet:
		cfg.params = &simNetParams
	}

	// Append the network type to the data and log directories so they are
	// "namespaced" per network.
	cfg.DataDir = filepath.Join(cleanAndExpandPath(cfg.DataDir),
		cfg.params.Name)
	cfg.LogDir = filepath.Join(cleanAndExpandPath(cfg.LogDir),
		cfg.params.Name)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After the log rotation has been initialized,
	// the logger variables may be used.
	if !cfg.NoFileLogging {
		initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename))
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", "loadConfig", err)
	}

	// The fallback window must be a positive number of seconds.
	if cfg.SeedFallbackWindow == 0 {
		return nil, nil, fmt.Errorf("the seed fallback window must be a " +
			"positive number of seconds")
	}

	// Validate dial timeout.
	if cfg.DialTimeout < time.Second {
		return nil, nil, fmt.Errorf("the dialtimeout option may not be "+
			"less than 1s -- parsed [%v]", cfg.DialTimeout)
	}

	// --addpeer and --connect do not mix.
	if len(cfg.AddPeers) > 0 && len(cfg.ConnectPeers) > 0 {
		return nil, nil, fmt.Errorf("the addpeer and connect options can " +
			"not be mixed")
	}

	// Connect-only mode implies no listening and no DNS seeding.
	if len(cfg.ConnectPeers) > 0 {
		cfg.DisableListen = true
		cfg.DisableDNSSeed = true
	}

	// Add the default listener if none were specified.  The default
	// listener is all addresses on the listen port for the network we are
	// to connect to.
	if len(cfg.Listeners) == 0 {
		cfg.Listeners = []string{
			net.JoinHostPort("", cfg.params.DefaultPort),
		}
	}

	// Add default port to all listener, peer, and seed node addresses if
	// needed and remove duplicate addresses.  Seed nodes intentionally keep
	// their configured form for logging; normalization to a dialable
	// address happens when a connection is attempted.
	cfg.Listeners = normalizeAddresses(cfg.Listeners, cfg.params.DefaultPort)
	cfg.AddPeers = normalizeAddresses(cfg.AddPeers, cfg.params.DefaultPort)
	cfg.ConnectPeers = normalizeAddresses(cfg.ConnectPeers,
		cfg.params.DefaultPort)

	// Setup dial and DNS resolution (lookup) functions depending on the
	// specified options.  The default is to use the standard net.Dial
	// function as well as the system DNS resolver.  When a proxy is
	// specified, the dial function is set to the proxy specific dial
	// function.
	var dialer net.Dialer
	cfg.dial = dialer.DialContext
	cfg.lookup = net.LookupIP
	if cfg.Proxy != "" {
		_, _, err := net.SplitHostPort(cfg.Proxy)
		if err != nil {
			return nil, nil, fmt.Errorf("proxy address %q is invalid: %w",
				cfg.Proxy, err)
		}

		proxy := &socks.Proxy{
			Addr:     cfg.Proxy,
			Username: cfg.ProxyUser,
			Password: cfg.ProxyPass,
		}
		cfg.dial = proxy.DialContext
	}

	return &cfg, remainingArgs, nil
}
