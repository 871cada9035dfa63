// Package servecmder provides the serve command that runs the relay server.
package servecmder

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/genrelay/pkg/auth"
	"github.com/papercomputeco/genrelay/pkg/config"
	"github.com/papercomputeco/genrelay/pkg/eventstream"
	"github.com/papercomputeco/genrelay/pkg/eventstream/kafka"
	"github.com/papercomputeco/genrelay/pkg/eventstream/nop"
	"github.com/papercomputeco/genrelay/pkg/logger"
	"github.com/papercomputeco/genrelay/pkg/upstream"
	"github.com/papercomputeco/genrelay/pkg/utils"
	"github.com/papercomputeco/genrelay/relay"
)

type serveCommander struct {
	listen        string
	mode          string
	upstream      string
	upstreamPath  string
	model         string
	authHeader    string
	maxDuration   string
	idleTimeout   string
	keepAlive     string
	maxFrameBytes uint

	eventStreamProvider string
	eventStreamBrokers  string
	eventStreamTopic    string

	debug      bool
	jsonLogs   bool
	prettyLogs bool
	logFile    string

	viper  *viper.Viper
	logger *slog.Logger
}

// serveFlagKeys are the registry keys bound to viper for "genrelay serve".
var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagMode,
	config.FlagUpstream,
	config.FlagUpstreamPath,
	config.FlagModel,
	config.FlagAuthHeader,
	config.FlagMaxDuration,
	config.FlagIdleTimeout,
	config.FlagKeepAlive,
	config.FlagMaxFrameBytes,
	config.FlagEventStreamProvider,
	config.FlagEventStreamBrokers,
	config.FlagEventStreamTopic,
}

const serveLongDesc string = `Run the relay server.

The relay accepts POST /v1/generate requests, forwards them to the configured
OpenAI-compatible upstream as streaming chat completions and re-emits the
upstream stream to the caller.

Modes:
  translate     normalized "progress", "result" and "error" events (default)
  passthrough   the upstream status, headers and bytes, unchanged
  buffered      one JSON document once the session has finished

Configuration precedence: flags, then GENRELAY_* environment variables, then
config.toml, then defaults. The upstream API key and the relay shared secret
are read from config.toml or from GENRELAY_UPSTREAM_API_KEY and
GENRELAY_AUTH_SECRET; the shared secret is reloaded when config.toml changes.`

const serveShortDesc string = "Run the relay server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.ServeFlags, serveFlagKeys)
			cmder.viper = v
			return cmder.resolve()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.ServeFlags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagMode, &cmder.mode)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagUpstreamPath, &cmder.upstreamPath)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAuthHeader, &cmder.authHeader)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagMaxDuration, &cmder.maxDuration)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagIdleTimeout, &cmder.idleTimeout)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagKeepAlive, &cmder.keepAlive)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagMaxFrameBytes, &cmder.maxFrameBytes)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventStreamProvider, &cmder.eventStreamProvider)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventStreamBrokers, &cmder.eventStreamBrokers)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventStreamTopic, &cmder.eventStreamTopic)
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Write structured JSON logs")
	cmd.Flags().BoolVar(&cmder.prettyLogs, "pretty-logs", false, "Write colorized human-friendly logs")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")

	return cmd
}

// resolve reads the effective values from viper so that config.toml and
// environment values apply to flags the user did not set.
func (c *serveCommander) resolve() error {
	v := c.viper

	c.listen = v.GetString("relay.listen")
	c.mode = v.GetString("relay.mode")
	c.upstream = v.GetString("upstream.url")
	c.upstreamPath = v.GetString("upstream.path")
	c.model = v.GetString("upstream.model")
	c.authHeader = v.GetString("auth.header")
	c.maxDuration = v.GetString("session.max_duration")
	c.idleTimeout = v.GetString("session.idle_timeout")
	c.keepAlive = v.GetString("session.keep_alive")
	c.maxFrameBytes = v.GetUint("session.max_frame_bytes")
	c.eventStreamProvider = v.GetString("eventstream.provider")
	c.eventStreamBrokers = v.GetString("eventstream.brokers")
	c.eventStreamTopic = v.GetString("eventstream.topic")

	if c.upstream == "" {
		return errors.New("upstream URL is required (--upstream or upstream.url)")
	}
	return nil
}

func (c *serveCommander) run() error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(c.jsonLogs),
		logger.WithPretty(c.prettyLogs),
		logger.WithOTel("github.com/papercomputeco/genrelay"),
	)

	if c.logFile != "" {
		f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()

		c.logger = logger.Multi(c.logger, logger.New(
			logger.WithDebug(c.debug),
			logger.WithJSON(true),
			logger.WithWriter(f),
		))
	}

	relayConfig, err := c.relayConfig()
	if err != nil {
		return err
	}

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}
	defer publisher.Close()
	relayConfig.Publisher = publisher

	secret := auth.NewSharedSecret(c.viper.GetString("auth.secret"))
	relayConfig.Authorizer = secret
	if config.WatchSecret(c.viper, c.logger, secret.Set) {
		c.logger.Info("watching config file for auth secret changes", "file", c.viper.ConfigFileUsed())
	}
	if !secret.Enabled() {
		c.logger.Warn("auth.secret is empty, relay accepts unauthenticated requests")
	}

	client, err := upstream.NewClient(upstream.Config{
		BaseURL: c.upstream,
		Path:    c.upstreamPath,
		APIKey:  c.viper.GetString("upstream.api_key"),
		Model:   c.model,
		Logger:  c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating upstream client: %w", err)
	}

	r, err := relay.New(relayConfig, client, c.logger)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- r.Run()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return r.Close()
	case err := <-errChan:
		_ = r.Close()
		return err
	}
}

func (c *serveCommander) relayConfig() (relay.Config, error) {
	mode, err := relay.ParseMode(c.mode)
	if err != nil {
		return relay.Config{}, err
	}

	maxDuration, err := time.ParseDuration(c.maxDuration)
	if err != nil {
		return relay.Config{}, fmt.Errorf("invalid session max duration %q: %w", c.maxDuration, err)
	}

	idleTimeout, err := time.ParseDuration(c.idleTimeout)
	if err != nil {
		return relay.Config{}, fmt.Errorf("invalid session idle timeout %q: %w", c.idleTimeout, err)
	}

	keepAlive, err := time.ParseDuration(c.keepAlive)
	if err != nil {
		return relay.Config{}, fmt.Errorf("invalid session keep-alive interval %q: %w", c.keepAlive, err)
	}

	return relay.Config{
		ListenAddr:    c.listen,
		Mode:          mode,
		AuthHeader:    c.authHeader,
		MaxDuration:   maxDuration,
		IdleTimeout:   idleTimeout,
		KeepAlive:     keepAlive,
		MaxFrameBytes: int(c.maxFrameBytes),
		Version:       utils.Version,
	}, nil
}

func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	switch c.eventStreamProvider {
	case "", "nop":
		return nop.NewPublisher(), nil

	case "kafka":
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: config.SplitList(c.eventStreamBrokers),
			Topic:   c.eventStreamTopic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		c.logger.Info("publishing session summaries to kafka",
			"brokers", c.eventStreamBrokers,
			"topic", c.eventStreamTopic,
		)
		return p, nil

	default:
		return nil, fmt.Errorf("unknown eventstream provider %q (available: nop, kafka)", c.eventStreamProvider)
	}
}
