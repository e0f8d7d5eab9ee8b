package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"larpx402/internal/config"
	"larpx402/internal/observability"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "larpx",
		Short: "Launch tokens named after fake malware",
		Long: `larpx runs the LarpX402 launch pipeline: it publishes token metadata,
negotiates the fee split, signs and lands the launch transaction and records
the confirmed launch for the gallery.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.CompletionOptions.HiddenDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (yaml, toml or json)")
	pf.String("network", "", "Solana cluster: mainnet-beta or devnet")
	pf.String("rpc-endpoint", "", "Solana RPC HTTP endpoint (defaults per network)")
	pf.String("ws-endpoint", "", "Solana WebSocket endpoint (defaults per network)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: json or console")
	bindFlags(a.v, pf, map[string]string{
		"network":      "network",
		"rpc-endpoint": "rpc_endpoint",
		"ws-endpoint":  "ws_endpoint",
		"log-level":    "log.level",
		"log-format":   "log.format",
	})

	root.AddCommand(
		newServeCmd(a),
		newLaunchCmd(a),
		newMigrateCmd(a),
		newThreatsCmd(a),
	)
	return root
}

// bindFlags maps flag names to config keys.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}

func (a *app) setup(*cobra.Command) error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.logger.Debug("configuration loaded",
		zap.String("network", string(cfg.Network)),
		zap.String("storage", cfg.StorageBackend))
	return nil
}
