package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/md-rashed-zaman/bookingsync/libs/runtime"
	"github.com/md-rashed-zaman/bookingsync/services/reception-client/internal/localstore"
	"github.com/md-rashed-zaman/bookingsync/services/reception-client/internal/orchestrator"
	"github.com/md-rashed-zaman/bookingsync/services/reception-client/internal/syncclient"
)

// app is what every subcommand works against. It is built lazily by the
// root command once flags and config are resolved.
type app struct {
	v      *viper.Viper
	out    io.Writer
	logger *slog.Logger
	loc    *time.Location
	store  *localstore.Store
	client *syncclient.Client
	orch   *orchestrator.Orchestrator
	closer []func()
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out}
	var cfgFile string

	root := &cobra.Command{
		Use:           "reception",
		Short:         "Front-desk booking client that keeps working offline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.loadConfig(cmd, cfgFile); err != nil {
				return err
			}
			return a.open()
		},
		PersistentPostRun: func(*cobra.Command, []string) { a.close() },
	}

	f := root.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default reception.yaml in . or $HOME/.config/reception)")
	f.String("server", "http://localhost:8083", "booking service base URL")
	f.String("token", "", "bearer token for the sync API")
	f.String("grpc-addr", "", "booking service gRPC address used for health probes")
	f.String("db", defaultDBPath(), "local database file; empty keeps data in memory")
	f.String("timezone", "UTC", "business timezone used to group appointments by day")
	f.Duration("interval", 30*time.Second, "sync interval in watch mode")
	f.Int("pull-days", 14, "days of appointments to pull")
	f.String("log-file", "", "write logs to this file with rotation instead of stderr")
	f.String("log-level", "info", "debug, info, warn or error")

	root.AddCommand(
		newSyncCmd(a),
		newBookCmd(a),
		newRescheduleCmd(a),
		newCancelCmd(a),
		newQueueCmd(a),
		newConflictsCmd(a),
		newAppointmentsCmd(a),
	)
	return root
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "reception.db"
	}
	return dir + "/reception/reception.db"
}

func (a *app) loadConfig(cmd *cobra.Command, cfgFile string) error {
	v := a.v
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	v.SetEnvPrefix("RECEPTION")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("reception")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(dir + "/reception")
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func (a *app) open() error {
	var w io.Writer = os.Stderr
	if path := a.v.GetString("log-file"); path != "" {
		lj := &lumberjack.Logger{Filename: path, MaxSize: 10, MaxBackups: 3, MaxAge: 28, Compress: true}
		a.closer = append(a.closer, func() { _ = lj.Close() })
		w = lj
	}
	a.logger = runtime.NewLoggerTo("reception-client", w, a.v.GetString("log-level"))

	loc, err := time.LoadLocation(a.v.GetString("timezone"))
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	a.loc = loc

	a.store = localstore.New(a.backend(), loc)
	a.closer = append(a.closer, func() { _ = a.store.Close() })
	a.client = syncclient.New(a.v.GetString("server"), a.v.GetString("token"), nil)
	a.orch = orchestrator.New(a.store, a.client, a.logger, orchestrator.Options{
		Interval: a.v.GetDuration("interval"),
		PullDays: a.v.GetInt("pull-days"),
	})
	return nil
}

// backend returns nil when the device database cannot be opened; the
// store then runs unavailable and every command is a no-op.
func (a *app) backend() localstore.Backend {
	path := a.v.GetString("db")
	if path == "" {
		a.logger.Warn("no database path configured; local data will not survive this process")
		return localstore.NewMemoryBackend()
	}
	b, err := localstore.OpenSQLite(path)
	if err != nil {
		a.logger.Error("local database unavailable", "path", path, "err", err)
		return nil
	}
	return b
}

func (a *app) close() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		a.closer[i]()
	}
	a.closer = nil
}

func (a *app) requireStore() error {
	if !a.store.Available() {
		return errors.New("local database is unavailable; see the log for details")
	}
	return nil
}
