// Package initcmder provides the init command for initializing a local
// .genrelay directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/genrelay/pkg/cliui"
	"github.com/papercomputeco/genrelay/pkg/config"
	"github.com/papercomputeco/genrelay/pkg/dotdir"
)

const initLongDesc string = `Initialize a new .genrelay/ directory in the current working directory.

Creates a local .genrelay/ directory holding a config.toml. A local directory
takes precedence over the default ~/.genrelay/ directory.

The --preset flag selects the upstream the config points at. It accepts a
preset name (openai, openrouter, local) or an http(s) URL serving a
config.toml.

Examples:
  genrelay init
  genrelay init --preset openrouter
  genrelay init --preset https://example.com/genrelay/config.toml`

const initShortDesc string = "Initialize a local .genrelay/ directory"

const (
	configFile          = "config.toml"
	remotePresetLimit   = 1 << 20
	remotePresetTimeout = 30 * time.Second
)

type initCommander struct {
	preset string
	out    io.Writer
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "", "Preset name or URL of a config.toml to start from")

	return cmd
}

func (c *initCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := c.resolvePreset(ctx)
	if err != nil {
		return err
	}

	dir, err := dotdir.NewManager().Init("")
	if err != nil {
		return err
	}

	path := filepath.Join(dir, configFile)
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(c.out, "Already initialized: %s\n", dir)
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config file: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "  %s Initialized %s\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
	return nil
}

func (c *initCommander) resolvePreset(ctx context.Context) (*config.Config, error) {
	switch {
	case c.preset == "":
		return config.NewDefaultConfig(), nil

	case strings.HasPrefix(c.preset, "http://"), strings.HasPrefix(c.preset, "https://"):
		var cfg *config.Config
		err := cliui.Step(c.out, "Fetching "+c.preset, func() error {
			var err error
			cfg, err = fetchPreset(ctx, c.preset)
			return err
		})
		return cfg, err

	default:
		return config.PresetConfig(c.preset)
	}
}

func fetchPreset(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, remotePresetTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating preset request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching preset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching preset: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, remotePresetLimit))
	if err != nil {
		return nil, fmt.Errorf("reading preset: %w", err)
	}

	return config.ParseConfigTOML(data)
}
