// Program vertminer is the miner's entrypoint: a cobra root command that
// loads configuration with viper, starts a Miner, and reloads it whenever
// the config file changes on disk. Grounded on cmd/gominer/main.go's
// init()/mine() split, moved onto the config.Loader seam so this binary
// has no package-level viper state of its own.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AGPFMiner/vertminer/config"
	"github.com/AGPFMiner/vertminer/miner"
)

const version = "0.1.0"

var mainCmd = &cobra.Command{
	Use:   "vertminer",
	Short: "Verthash miner with a donation-cycling pool-connection core",
	Long:  `Verthash miner with a donation-cycling pool-connection core`,
	Run: func(cmd *cobra.Command, args []string) {
		run()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	mainCmd.AddCommand(versionCmd)
}

func main() {
	if err := mainCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	loader := config.NewLoader("vertminer", []string{"/opt/vertminer/etc", "."}, logger)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	m, err := miner.NewMiner(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build miner", zap.Error(err))
	}
	if err := m.Start(); err != nil {
		logger.Fatal("failed to start miner", zap.Error(err))
	}

	loader.Watch(func(cfg *config.Config) {
		if err := m.Reload(cfg); err != nil {
			logger.Error("failed to reload miner with new configuration", zap.Error(err))
		}
	})

	select {}
}
