// Package config adapts Viper to the plugin.Config interface and loads the
// AIMS server configuration from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/aims/pkg/plugin"
	"github.com/spf13/viper"
)

// Compile-time interface guard.
var _ plugin.Config = (*ViperConfig)(nil)

// ViperConfig implements plugin.Config over a *viper.Viper.
type ViperConfig struct {
	v *viper.Viper
}

// New wraps v. A nil v behaves as an empty configuration.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

func (c *ViperConfig) GetString(key string) string          { return c.v.GetString(key) }
func (c *ViperConfig) GetInt(key string) int                { return c.v.GetInt(key) }
func (c *ViperConfig) GetFloat64(key string) float64        { return c.v.GetFloat64(key) }
func (c *ViperConfig) GetBool(key string) bool              { return c.v.GetBool(key) }
func (c *ViperConfig) GetDuration(key string) time.Duration { return c.v.GetDuration(key) }
func (c *ViperConfig) IsSet(key string) bool                { return c.v.IsSet(key) }

// Sub returns the subtree rooted at key. Missing subtrees yield an empty
// Config, never nil.
func (c *ViperConfig) Sub(key string) plugin.Config {
	sub := c.v.Sub(key)
	if sub == nil {
		sub = viper.New()
	}
	return &ViperConfig{v: sub}
}

// Unmarshal decodes the configuration into target using mapstructure tags.
func (c *ViperConfig) Unmarshal(target any) error {
	return c.v.Unmarshal(target)
}

// Viper exposes the wrapped instance.
func (c *ViperConfig) Viper() *viper.Viper {
	return c.v
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("database.path", "aims.db")
	v.SetDefault("log.development", false)

	v.SetDefault("auth.token_ttl", "12h")
	v.SetDefault("auth.login_rate", 1.0)
	v.SetDefault("auth.login_burst", 5)
	v.SetDefault("auth.bootstrap_user", "admin")

	v.SetDefault("plugins.auth.enabled", true)
	v.SetDefault("plugins.inventory.enabled", true)
	v.SetDefault("plugins.inventory.import_workers", 4)
	v.SetDefault("plugins.directory.enabled", true)
	v.SetDefault("plugins.history.enabled", true)
	v.SetDefault("plugins.settings.enabled", true)
	v.SetDefault("plugins.scheduler.enabled", true)
	v.SetDefault("plugins.scheduler.resync_cron", "@daily")
}

// Load reads the configuration file at path (optional), then overlays
// AIMS_-prefixed environment variables. Nested keys map to underscores,
// e.g. AIMS_AUTH_JWT_SECRET sets auth.jwt_secret.
func Load(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("AIMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigName("aims")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/aims")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}
