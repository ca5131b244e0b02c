package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultHost = "localhost"
	defaultPort = 11211

	envPrefix = "MEMCLI"
)

// config is resolved from flags, MEMCLI_* environment variables, the config
// file and the defaults, in that order.
type config struct {
	Host         string        `mapstructure:"host"`
	Port         uint16        `mapstructure:"port"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Log          logConfig     `mapstructure:"log"`
}

type logConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", defaultHost)
	v.SetDefault("port", defaultPort)
	v.SetDefault("dial_timeout", 5*time.Second)
	v.SetDefault("read_timeout", 200*time.Millisecond)
	v.SetDefault("write_timeout", 5*time.Second)

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.compress", false)
	v.SetDefault("debug", false)
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"host":          "host",
	"port":          "port",
	"dial-timeout":  "dial_timeout",
	"read-timeout":  "read_timeout",
	"write-timeout": "write_timeout",
	"log-level":     "log.level",
	"log-file":      "log.file",
	"debug":         "debug",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}

		if err := v.BindPFlag(key, flag); err != nil {
			return errors.Wrapf(err, "bind flag %s", name)
		}
	}

	return nil
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".memcli")
}

// loadConfig reads the config file at path, or config.yaml in ~/.memcli when
// path is empty. Only an explicitly given file has to exist.
func loadConfig(v *viper.Viper, path string) (*config, error) {
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir := defaultConfigDir(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if v.GetBool("debug") {
		cfg.Log.Level = "debug"
	}

	return &cfg, nil
}
