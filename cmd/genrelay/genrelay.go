// Package genrelaycmder
package genrelaycmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/genrelay/cmd/genrelay/config"
	initcmder "github.com/papercomputeco/genrelay/cmd/genrelay/init"
	servecmder "github.com/papercomputeco/genrelay/cmd/genrelay/serve"
	versioncmder "github.com/papercomputeco/genrelay/cmd/version"
)

const genrelayLongDesc string = `genrelay relays streaming generation requests to an OpenAI-compatible
upstream and re-emits the upstream stream as normalized progress, result and
error events.

Run the relay using:
  genrelay serve           Run the relay server
  genrelay init            Create a local .genrelay/ directory with a config
  genrelay config list     Show the persistent configuration`

const genrelayShortDesc string = "genrelay - streaming generation relay"

func NewGenrelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "genrelay",
		Short:         genrelayShortDesc,
		Long:          genrelayLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .genrelay/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
