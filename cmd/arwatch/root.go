package main

import (
	"fmt"

	"github.com/FranksOps/arwatch/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootOptions carries state shared by every subcommand.
type rootOptions struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: config.New()}

	cmd := &cobra.Command{
		Use:           "arwatch",
		Short:         "Analyst coverage discovery and social monitoring",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.cfgFile, "config", "", "config file (default ./config.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("storage-driver", "sqlite", "storage backend: sqlite or postgres")
	pf.String("dsn", "file:arwatch.db", "storage data source name")
	pf.String("redis-addr", "", "redis address for the seen-URL tracker (empty disables it)")
	pf.Int("metrics-port", 0, "serve Prometheus metrics on this port (0 disables)")

	for key, flag := range map[string]string{
		"log.level":      "log-level",
		"log.format":     "log-format",
		"storage.driver": "storage-driver",
		"storage.dsn":    "dsn",
		"redis.addr":     "redis-addr",
		"metrics.port":   "metrics-port",
	} {
		if err := opts.v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind %s: %v", flag, err))
		}
	}

	cmd.AddCommand(
		newDiscoverCmd(opts),
		newMonitorCmd(opts),
		newScheduleCmd(opts),
		newAnalyzeCmd(opts),
		newSubjectsCmd(opts),
		newDigestCmd(opts),
	)
	return cmd
}

// bindFlag binds one command-local flag onto a config key.
func bindFlag(opts *rootOptions, cmd *cobra.Command, key, flag string) {
	if err := opts.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind %s: %v", flag, err))
	}
}
