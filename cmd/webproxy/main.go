package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/proxylab/webproxy"
	"github.com/proxylab/webproxy/cache"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	configFilenameFlag string
	providerFlag       string
	dbFilenameFlag     string
	managementFlag     string
	verbosityTraceFlag bool
	logFilenameFlag    string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&providerFlag, "provider", "memory", "Cache provider to use (memory or sqlite)")
	flag.StringVar(&dbFilenameFlag, "db", "cache.db", "Cache DB file name for the sqlite provider")
	flag.StringVar(&managementFlag, "management", "", "Address for the management API (disabled if empty)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] <port>\n", os.Args[0])
	os.Exit(1)
}

func main() {
	flag.Parse()

	// The listen port is the one positional argument.
	if flag.NArg() != 1 {
		usage()
	}
	port, err := strconv.Atoi(flag.Arg(0))
	if err != nil {
		usage()
	}

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter)

	provider := providerFlag
	dbFilename := dbFilenameFlag
	managementAddr := managementFlag

	if configFilenameFlag != "" {
		config, err := webproxy.LoadConfig(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Cannot read config file")
		}
		if config.Provider != "" {
			provider = config.Provider
		}
		if config.DBFilename != "" {
			dbFilename = config.DBFilename
		}
		if config.ManagementAddr != "" {
			managementAddr = config.ManagementAddr
		}
	}

	// use configured provider
	var store cache.Store
	switch provider {
	case "memory":
		store = cache.NewLRU()
	case "sqlite":
		sqliteStore, err := cache.NewSQLite(dbFilename)
		if err != nil {
			log.Fatal().Err(err).Msg("Cannot open cache db")
		}
		store = sqliteStore
	default:
		log.Fatal().Msgf("Unsupported cache provider: %s", provider)
	}

	proxy := webproxy.New(webproxy.Config{
		Port:           port,
		Store:          store,
		ManagementAddr: managementAddr,
		Logger:         &log.Logger,
	})

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info().Msg("Shutting down")
		proxy.Close()
	}()

	if err := proxy.Run(); err != nil {
		log.Fatal().Err(err).Msg("Proxy failed")
	}
}
