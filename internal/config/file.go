package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Env                string `yaml:"env"`
	ServerPort         string `yaml:"server_port"`
	DBDriver           string `yaml:"db_driver"`
	DBDSN              string `yaml:"db_dsn"`
	JWTSecret          string `yaml:"jwt_secret"`
	RedisURL           string `yaml:"redis_url"`
	UnmutePollInterval string `yaml:"unmute_poll_interval"`
	MessageFetchLimit  int    `yaml:"message_fetch_limit"`
}

// overlayFile applies the non-empty values of a YAML file on top of c.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	setIf(&c.Env, f.Env)
	setIf(&c.ServerPort, f.ServerPort)
	setIf(&c.DBDriver, f.DBDriver)
	setIf(&c.DBDSN, f.DBDSN)
	setIf(&c.JWTSecret, f.JWTSecret)
	setIf(&c.RedisURL, f.RedisURL)
	if f.UnmutePollInterval != "" {
		d, err := time.ParseDuration(f.UnmutePollInterval)
		if err != nil {
			return fmt.Errorf("invalid unmute_poll_interval %q: %w", f.UnmutePollInterval, err)
		}
		c.UnmutePollInterval = d
	}
	if f.MessageFetchLimit > 0 {
		c.MessageFetchLimit = f.MessageFetchLimit
	}
	return nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
