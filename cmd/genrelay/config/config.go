// Package configcmder provides the config command for managing persistent
// genrelay configuration stored in the .genrelay/ directory.
package configcmder

import (
	"strings"

	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent genrelay configuration.

Configuration is stored as config.toml in the .genrelay/ directory and provides
default values for command flags. CLI flags and GENRELAY_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  relay.listen, relay.mode,
  upstream.url, upstream.path, upstream.api_key, upstream.model,
  auth.header, auth.secret,
  session.max_duration, session.idle_timeout, session.keep_alive,
  session.max_frame_bytes,
  eventstream.provider, eventstream.brokers, eventstream.topic

Use subcommands to get, set, or list configuration values:
  genrelay config set <key> <value>    Set a configuration value
  genrelay config get <key>            Get a configuration value
  genrelay config list                 List all configuration values

Examples:
  genrelay config set upstream.url https://openrouter.ai
  genrelay config set session.idle_timeout 90s
  genrelay config get relay.mode
  genrelay config list`

const configShortDesc string = "Manage persistent genrelay configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// sensitiveKeys are masked when displayed.
var sensitiveKeys = map[string]struct{}{
	"upstream.api_key": {},
	"auth.secret":      {},
}

// displayValue masks sensitive values, keeping only the last four characters.
func displayValue(key, value string) string {
	if _, ok := sensitiveKeys[key]; !ok || value == "" {
		return value
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", 8) + value[len(value)-4:]
}
