package policy

import (
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const configKey = "policy"

// SetDefaults registers the default policy under the "policy" key.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(configKey+".open_hour", d.OpenHour)
	v.SetDefault(configKey+".close_hour", d.CloseHour)
	v.SetDefault(configKey+".min_notice_days", d.MinNoticeDays)
	v.SetDefault(configKey+".min_duration_minutes", d.MinDurationMinutes)
	v.SetDefault(configKey+".max_duration_minutes", d.MaxDurationMinutes)
	v.SetDefault(configKey+".tz", d.TZ)
}

// Load reads and validates the policy section of v. Keys are read one by one
// so that defaults fill whatever the file or environment leaves out.
func Load(v *viper.Viper) (*Snapshot, error) {
	cfg := Config{
		OpenHour:           v.GetInt(configKey + ".open_hour"),
		CloseHour:          v.GetInt(configKey + ".close_hour"),
		MinNoticeDays:      v.GetInt(configKey + ".min_notice_days"),
		MinDurationMinutes: v.GetInt(configKey + ".min_duration_minutes"),
		MaxDurationMinutes: v.GetInt(configKey + ".max_duration_minutes"),
		TZ:                 v.GetString(configKey + ".tz"),
	}
	snap, err := New(cfg)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	return snap, nil
}

// Watch reloads the policy whenever the config file changes. Invalid
// configurations are logged and the previous snapshot stays in place.
func Watch(v *viper.Viper, h *Holder, logger *slog.Logger) {
	v.OnConfigChange(func(e fsnotify.Event) {
		snap, err := Load(v)
		if err != nil {
			logger.Error("policy reload rejected", "file", e.Name, "error", err)
			return
		}
		h.Store(snap)
		logger.Info("policy reloaded", "file", e.Name, "policy", snap.Config())
	})
	v.WatchConfig()
}
