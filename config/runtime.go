package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Runtime holds the evaluation core's tunables: the divergence cap and the
// queue's drain behavior. Defaults match §4.6/§4.7 exactly; callers only
// need viper when they want to override them via file or environment.
type Runtime struct {
	MaxRounds      int    `mapstructure:"max_rounds"`
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	QueueBuffer    int    `mapstructure:"queue_buffer"`
	SnapshotPath   string `mapstructure:"snapshot_path"`
	RedisAddr      string `mapstructure:"redis_addr"`
}

// DefaultRuntime matches the spec's fixed MAX_ROUNDS=300 and a text logger
// to stderr; everything else is opt-in.
func DefaultRuntime() Runtime {
	return Runtime{
		MaxRounds:   300,
		LogLevel:    "info",
		LogFormat:   "text",
		QueueBuffer: 1,
	}
}

// LoadRuntime reads an optional config file (YAML/JSON/TOML, same search
// order as the corpus's CLI: explicit path, then $HOME, then ".") layered
// over environment variables prefixed EVE_, layered over DefaultRuntime.
func LoadRuntime(cfgFile string) (Runtime, error) {
	rt := DefaultRuntime()

	v := viper.New()
	v.SetEnvPrefix("EVE")
	v.AutomaticEnv()

	v.SetDefault("max_rounds", rt.MaxRounds)
	v.SetDefault("log_level", rt.LogLevel)
	v.SetDefault("log_format", rt.LogFormat)
	v.SetDefault("queue_buffer", rt.QueueBuffer)
	v.SetDefault("snapshot_path", rt.SnapshotPath)
	v.SetDefault("redis_addr", rt.RedisAddr)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".eve")
	}

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if cfgFile != "" || !notFound {
			return rt, err
		}
	}

	if err := v.Unmarshal(&rt); err != nil {
		return rt, err
	}
	return rt, nil
}

// resolvePath joins a snapshot filename against a configured base
// directory, defaulting to the current directory.
func resolvePath(base, name string) string {
	if base == "" {
		return name
	}
	return filepath.Join(base, name)
}
