package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/srcf/warden/internal/common"
	"github.com/srcf/warden/internal/mail"
	"github.com/srcf/warden/internal/plumbing"
	"github.com/srcf/warden/internal/plumbing/mysql"
	"github.com/srcf/warden/internal/plumbing/pgsql"
	"github.com/srcf/warden/internal/runner"
	"github.com/srcf/warden/internal/storage/postgres"
	"github.com/srcf/warden/internal/tasks"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Warden version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Auto-discover config when not specified: current directory, then
	// the system location.
	if len(configFiles) == 0 {
		if _, err := os.Stat("warden.toml"); err == nil {
			configFiles = append(configFiles, "warden.toml")
		} else if _, err := os.Stat("/etc/warden/warden.toml"); err == nil {
			configFiles = append(configFiles, "/etc/warden/warden.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	plumbing.SetHosts(config.Hosts.User, config.Hosts.List, config.Hosts.Web)
	plumbing.SetHostname(config.Server.Hostname)

	logger.Info().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Str("log_level", config.Logging.Level).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, config.Database.DSN, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the job database")
		os.Exit(1)
	}
	defer store.Close()

	mysqlClient, err := mysql.Connect(config.MySQL.DefaultsFile, config.MySQL.Host, config.MySQL.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to MySQL")
		os.Exit(1)
	}
	defer mysqlClient.Close()

	pgsqlClient, err := pgsql.Connect(ctx, config.Database.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to user PostgreSQL")
		os.Exit(1)
	}
	defer pgsqlClient.Close()

	notifier, err := mail.NewNotifier(config.Mail, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialise the mail notifier")
		os.Exit(1)
	}

	deps := &tasks.Deps{
		Store:    store,
		Notifier: notifier,
		MySQL:    mysqlClient,
		PgSQL:    pgsqlClient,
		Logger:   logger,
		NISWait:  config.Runner.NISWait,
	}

	r := runner.New(store, deps, config, logger)
	if err := r.AcquireLock(ctx, config.Database.DSN); err != nil {
		if errors.Is(err, runner.ErrDatabaseLocked) {
			logger.Fatal().Msg("Another runner already holds the job lock")
		} else {
			logger.Fatal().Err(err).Msg("Failed to acquire the job lock")
		}
		os.Exit(1)
	}

	logger.Info().
		Str("environment", config.Environment).
		Dur("wake_interval", config.Runner.WakeInterval).
		Msg("Runner started - Press Ctrl+C to stop")

	runErr := r.Run(ctx)

	// Release the lock session with a fresh context; ctx is already
	// cancelled on the shutdown path.
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r.Close(closeCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Fatal().Err(runErr).Msg("Runner stopped with an error")
		os.Exit(1)
	}
	logger.Info().Msg("Runner stopped")
}
