package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the database connection settings linkctl needs. Resolved
// from flags, environment (COLOURSTREAM_*), and an optional YAML file.
type Config struct {
	DBHost     string `mapstructure:"db_host"`
	DBPort     int    `mapstructure:"db_port"`
	DBUser     string `mapstructure:"db_user"`
	DBPassword string `mapstructure:"db_password"`
	DBName     string `mapstructure:"db_name"`
	DBSSLMode  string `mapstructure:"db_sslmode"`
}

const (
	envPrefix  = "COLOURSTREAM"
	configName = "linkctl"
)

// LoadConfig creates a Config with its own viper instance, no global
// state.
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	} else {
		for _, name := range []string{configName + ".yaml", configName + ".yml", "." + configName + ".yaml"} {
			if _, err := os.Stat(name); err == nil {
				v.SetConfigFile(name)
				if err := v.ReadInConfig(); err == nil {
					break
				}
			}
		}
	}

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_user", "colourstream")
	v.SetDefault("db_password", "password")
	v.SetDefault("db_name", "colourstream")
	v.SetDefault("db_sslmode", "disable")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}
