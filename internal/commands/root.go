// Package commands wires the dapbridge CLI: catalog listing, binary
// resolution and full session launches, sharing one adapter registry and one
// settings layer.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ashpool37/dapbridge/internal/adapter"
	"github.com/ashpool37/dapbridge/internal/adapters"
	"github.com/ashpool37/dapbridge/internal/config"
	"github.com/ashpool37/dapbridge/pkg/logger"
)

func NewRootCmd() (*cobra.Command, error) {
	log := logger.New("dapbridge")

	rootCmd := &cobra.Command{
		Use:   "dapbridge",
		Short: "Locates, provisions and launches debug adapters",
		Long: `dapbridge manages Debug Adapter Protocol adapters: it finds or downloads
the adapter binary for a debugger, translates a generic task description
into the adapter's launch configuration, and supervises the adapter process
until it is ready to accept DAP requests.`,
		SilenceUsage: true,
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			log.Flush()
		},
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	logger.AddVerbosityFlag(rootCmd.PersistentFlags(), log)

	registry := adapter.NewRegistry()
	if err := adapters.RegisterAll(registry, nil, log.Logger); err != nil {
		return nil, fmt.Errorf("could not set up the adapter catalog: %w", err)
	}

	rootCmd.AddCommand(NewAdaptersCommand(registry))
	rootCmd.AddCommand(NewResolveCommand(registry))
	rootCmd.AddCommand(NewLaunchCommand(registry, log))
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd, nil
}

// settingsFlags are the flags every resolution-touching command shares, with
// the settings file supplying defaults and the flags overriding it.
type settingsFlags struct {
	configPath string
	cacheRoot  string
	offline    bool
}

func (f *settingsFlags) addTo(flags *pflag.FlagSet) {
	flags.StringVar(&f.configPath, "config", "", "Path to the dapbridge settings file")
	flags.StringVar(&f.cacheRoot, "cache-root", "", "Directory for provisioned adapter binaries")
	flags.BoolVar(&f.offline, "offline", false, "Never download adapter binaries")
}

func (f *settingsFlags) load(flags *pflag.FlagSet) (config.Settings, error) {
	settings, err := config.Load(f.configPath)
	if err != nil {
		return config.Settings{}, err
	}
	if flags.Changed("cache-root") {
		settings.CacheRoot = f.cacheRoot
	}
	if flags.Changed("offline") {
		settings.Network.Offline = f.offline
	}
	return settings, nil
}
