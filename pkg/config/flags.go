package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline.
type Flag struct {
	// Name is the long flag name (e.g. "upstream").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "upstream.url").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen              = "listen"
	FlagMode                = "mode"
	FlagUpstream            = "upstream"
	FlagUpstreamPath        = "upstream-path"
	FlagModel               = "model"
	FlagAuthHeader          = "auth-header"
	FlagMaxDuration         = "max-duration"
	FlagIdleTimeout         = "idle-timeout"
	FlagKeepAlive           = "keep-alive"
	FlagMaxFrameBytes       = "max-frame-bytes"
	FlagEventStreamProvider = "eventstream-provider"
	FlagEventStreamBrokers  = "eventstream-brokers"
	FlagEventStreamTopic    = "eventstream-topic"
)

// ServeFlags is the registry used by "genrelay serve".
var ServeFlags = FlagSet{
	FlagListen:              {Name: "listen", Shorthand: "l", ViperKey: "relay.listen", Description: "Address for the relay to listen on"},
	FlagMode:                {Name: "mode", Shorthand: "m", ViperKey: "relay.mode", Description: "Default relay mode (translate, passthrough, buffered)"},
	FlagUpstream:            {Name: "upstream", Shorthand: "u", ViperKey: "upstream.url", Description: "Upstream chat completion base URL"},
	FlagUpstreamPath:        {Name: "upstream-path", ViperKey: "upstream.path", Description: "Chat completion path appended to the upstream URL"},
	FlagModel:               {Name: "model", ViperKey: "upstream.model", Description: "Default upstream model"},
	FlagAuthHeader:          {Name: "auth-header", ViperKey: "auth.header", Description: "Request header carrying the shared secret"},
	FlagMaxDuration:         {Name: "max-duration", ViperKey: "session.max_duration", Description: "Maximum duration of one relay session"},
	FlagIdleTimeout:         {Name: "idle-timeout", ViperKey: "session.idle_timeout", Description: "Maximum gap between upstream chunks"},
	FlagKeepAlive:           {Name: "keep-alive", ViperKey: "session.keep_alive", Description: "Interval between keep-alive comments on translated streams"},
	FlagMaxFrameBytes:       {Name: "max-frame-bytes", ViperKey: "session.max_frame_bytes", Description: "Maximum size of one upstream frame in bytes"},
	FlagEventStreamProvider: {Name: "eventstream-provider", ViperKey: "eventstream.provider", Description: "Session summary publisher (nop, kafka)"},
	FlagEventStreamBrokers:  {Name: "eventstream-brokers", ViperKey: "eventstream.brokers", Description: "Comma separated Kafka brokers"},
	FlagEventStreamTopic:    {Name: "eventstream-topic", ViperKey: "eventstream.topic", Description: "Kafka topic for session summaries"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
