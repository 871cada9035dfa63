package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WatchSecret watches the config file read by v and calls fn with the
// resolved auth.secret after every write. It returns false when v was not
// loaded from a file, in which case nothing is watched.
//
// Environment and flag values still take precedence over the file, so a
// secret pinned through GENRELAY_AUTH_SECRET never changes on reload.
func WatchSecret(v *viper.Viper, log *slog.Logger, fn func(secret string)) bool {
	if v.ConfigFileUsed() == "" {
		return false
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		log.Info("config file changed, reloading auth secret", "file", e.Name)
		fn(v.GetString("auth.secret"))
	})
	v.WatchConfig()

	return true
}
