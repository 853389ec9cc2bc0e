package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashpool37/dapbridge/internal/adapter"
)

func NewResolveCommand(registry *adapter.Registry) *cobra.Command {
	var flags settingsFlags
	var version string

	resolveCmd := &cobra.Command{
		Use:   "resolve <adapter>",
		Short: "Resolves the binary for a debug adapter",
		Long: `Resolves the binary for a debug adapter: an explicit override from the
settings file wins, then the local cache, then (unless --offline) the
adapter's release source.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := adapter.ID(args[0])
			impl, err := registry.Resolve(id)
			if err != nil {
				return err
			}

			settings, err := flags.load(cmd.Flags())
			if err != nil {
				return err
			}

			spec := settings.VersionSpec(id)
			if cmd.Flags().Changed("adapter-version") {
				switch version {
				case "", "latest":
					spec = adapter.Latest()
				case "installed":
					spec = adapter.Installed()
				default:
					spec = adapter.Pinned(version)
				}
			}

			bin, err := impl.ResolveBinary(cmd.Context(), spec, settings.ResolveOptions(id))
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(bin, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	flags.addTo(resolveCmd.Flags())
	resolveCmd.Flags().StringVar(&version, "adapter-version", "", "Adapter binary version: latest, installed, or an exact version")

	return resolveCmd
}
