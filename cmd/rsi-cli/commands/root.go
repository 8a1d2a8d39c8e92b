package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorsi/lib/configutil"
	"gorsi/lib/rsi"
	"gorsi/lib/rsi/session"
	"gorsi/lib/rsi/shipmatrix"
	"gorsi/lib/snapshot"
	"gorsi/lib/telemetry"
	"gorsi/lib/util/restyutil"

	"github.com/spf13/cobra"
)

type Config struct {
	BaseUrl           string          `json:"base_url"`
	SessionFile       string          `json:"session_file"`
	Username          string          `json:"username"`
	Password          string          `json:"password"`
	TwoFactorDuration string          `json:"two_factor_duration"`
	DeviceName        string          `json:"device_name"`
	RequestsPerSecond float64         `json:"requests_per_second"`
	Snapshot          snapshot.Config `json:"snapshot"`
	// SnapshotMaxAge is a duration string like "24h".
	SnapshotMaxAge string `json:"snapshot_max_age"`
}

func (c *Config) Validate() error {
	if c.SnapshotMaxAge == "" {
		return nil
	}
	_, err := time.ParseDuration(c.SnapshotMaxAge)
	return err
}

var (
	configFile string
	debug      bool
	dumpDir    string
)

var rootCmd = &cobra.Command{
	Use:   "rsi-cli",
	Short: "rsi-cli reads citizens, organizations, ships and more from robertsspaceindustries.com.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(debug)

		cfg, err := configutil.ReadConfig[Config](configFile)
		if err != nil && !os.IsNotExist(err) {
			return err
		}

		site, closer, err := newSite(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		cmd.SetContext(setGlobals(cmd.Context(), &globals{
			Config: cfg,
			Site:   site,
			close:  closer,
		}))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		getGlobals(cmd.Context()).Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "rsi.json5", "The config file to read, overridden by <name>.local.json5.")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log debug output.")
	rootCmd.PersistentFlags().StringVar(&dumpDir, "dump-http", "", "Write every request and response to this directory.")
}

func newSite(ctx context.Context, cfg Config) (*rsi.Site, func(), error) {
	sessionCfg := session.DefaultConfig()
	sessionCfg.BaseUrl = cfg.BaseUrl
	sessionCfg.SessionFile = cfg.SessionFile
	sessionCfg.TwoFactorDuration = session.Duration(cfg.TwoFactorDuration)
	sessionCfg.DeviceName = cfg.DeviceName
	sessionCfg.RequestsPerSecond = cfg.RequestsPerSecond
	sessionCfg.TwoFactorPrompt = session.ReaderPrompt(stdin, os.Stderr)
	if dumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(dumpDir)
		if err != nil {
			return nil, nil, fmt.Errorf("create http dump directory: %w", err)
		}
		sessionCfg.HttpDump = output
	}

	opts := rsi.Options{Session: sessionCfg}
	closer := func() {}
	if cfg.Snapshot.File != "" || cfg.Snapshot.Url != "" {
		store, err := snapshot.Open(ctx, cfg.Snapshot)
		if err != nil {
			return nil, nil, fmt.Errorf("open snapshot store: %w", err)
		}
		maxAge, _ := time.ParseDuration(cfg.SnapshotMaxAge)
		opts.ShipMatrix = shipmatrix.Options{
			Snapshot:       &store,
			SnapshotMaxAge: maxAge,
		}
		closer = func() { store.Close() }
	}

	site, err := rsi.New(opts)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return site, closer, nil
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
