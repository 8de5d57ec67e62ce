package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every client environment override, e.g. IMGBATCH_SERVER_URL.
const EnvPrefix = "IMGBATCH"

// Client holds the configuration of the imgbatch command line client.
type Client struct {
	Server    ClientServer `mapstructure:"server"`
	Quota     ClientQuota  `mapstructure:"quota"`
	History   History      `mapstructure:"history"`
	Export    Export       `mapstructure:"export"`
	State     State        `mapstructure:"state"`
	Processor Processing   `mapstructure:"processing"`
	Log       Log          `mapstructure:"log"`
}

// ClientServer points the client at the backend. An empty URL runs offline:
// registered features and usage reporting are disabled.
type ClientServer struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ClientQuota holds the locally enforced anonymous allowance.
type ClientQuota struct {
	AnonymousDailyLimit int    `mapstructure:"anonymous_daily_limit"`
	Timezone            string `mapstructure:"timezone"`
}

// Location resolves the reporting timezone, falling back to local time.
func (q ClientQuota) Location() (*time.Location, error) {
	if q.Timezone == "" || strings.EqualFold(q.Timezone, "local") {
		return time.Local, nil
	}

	return time.LoadLocation(q.Timezone)
}

// History bounds the undo stack.
type History struct {
	Limit int `mapstructure:"limit"`
}

// Export holds download settings.
type Export struct {
	Dir                string `mapstructure:"dir"`
	BatchDownloadLimit int    `mapstructure:"batch_download_limit"`
}

// State locates the client's on-disk state.
type State struct {
	Path      string `mapstructure:"path"`      // anonymous quota and id
	Workspace string `mapstructure:"workspace"` // originals, previews and results
}

// Processing holds the default options applied to new sessions.
type Processing struct {
	Width           int     `mapstructure:"width"`
	Height          int     `mapstructure:"height"`
	KeepAspectRatio bool    `mapstructure:"keep_aspect_ratio"`
	Format          string  `mapstructure:"format"`
	Quality         float64 `mapstructure:"quality"`
	Compression     float64 `mapstructure:"compression"`
}

// Log holds client log settings.
type Log struct {
	Level string `mapstructure:"level"`
}

func setClientDefaults(v *viper.Viper, home string) {
	base := filepath.Join(home, ".imgbatch")

	v.SetDefault("server.url", "")
	v.SetDefault("server.token", "")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("quota.anonymous_daily_limit", 5)
	v.SetDefault("quota.timezone", "local")
	v.SetDefault("history.limit", 20)
	v.SetDefault("export.dir", ".")
	v.SetDefault("export.batch_download_limit", 50)
	v.SetDefault("state.path", filepath.Join(base, "state.json"))
	v.SetDefault("state.workspace", filepath.Join(base, "workspace"))
	v.SetDefault("processing.width", 1920)
	v.SetDefault("processing.height", 1080)
	v.SetDefault("processing.keep_aspect_ratio", true)
	v.SetDefault("processing.format", "jpeg")
	v.SetDefault("processing.quality", 0.9)
	v.SetDefault("processing.compression", 1.0)
	v.SetDefault("log.level", "info")
}

// LoadClient reads the client configuration. path may be empty, in which case
// ~/.imgbatch/config.yaml is used when present. Environment variables with the
// IMGBATCH_ prefix override both.
func LoadClient(path string) (*Client, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v := viper.New()
	setClientDefaults(v, home)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(home, ".imgbatch"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Client
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
