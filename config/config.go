package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "TRADESHM"

type Config struct {
	Region  RegionConfig  `mapstructure:"region"`
	Poll    PollConfig    `mapstructure:"poll"`
	Latency LatencyConfig `mapstructure:"latency"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	OAuth   OAuthConfig   `mapstructure:"oauth"`
	DB      DBConfig      `mapstructure:"db"`
	Log     LogConfig     `mapstructure:"log"`
}

type RegionConfig struct {
	Path    string   `mapstructure:"path"`
	Symbols []string `mapstructure:"symbols"` // slot order, must match the writer
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"` // 0 = tight loop
}

type LatencyConfig struct {
	Window         int           `mapstructure:"window"` // samples kept per symbol
	ReportInterval time.Duration `mapstructure:"report_interval"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Domain       string `mapstructure:"domain"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Load reads configuration from an optional YAML file, a .env file and
// TRADESHM_* environment variables, in increasing priority.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v,
		"region.path", "region.symbols",
		"poll.interval",
		"latency.window", "latency.report_interval",
		"http.addr",
		"oauth.client_id", "oauth.client_secret", "oauth.domain",
		"db.path",
		"log.level", "log.file",
	)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("region.path", "/dev/shm/binance_trades")
	v.SetDefault("region.symbols", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("poll.interval", time.Millisecond)
	v.SetDefault("latency.window", 65536)
	v.SetDefault("latency.report_interval", 10*time.Second)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("oauth.client_id", "000000")
	v.SetDefault("oauth.client_secret", "999999")
	v.SetDefault("oauth.domain", "http://localhost")
	v.SetDefault("db.path", "latency.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		// BindEnv only fails without a key
		_ = v.BindEnv(key)
	}
}

func (c *Config) Validate() error {
	if c.Region.Path == "" {
		return errors.New("region.path must be set")
	}
	if len(c.Region.Symbols) == 0 {
		return errors.New("region.symbols must not be empty")
	}
	seen := make(map[string]struct{}, len(c.Region.Symbols))
	for _, s := range c.Region.Symbols {
		if s == "" || len(s) > 32 {
			return fmt.Errorf("invalid symbol %q", s)
		}
		if _, dup := seen[s]; dup {
			return fmt.Errorf("duplicate symbol %s", s)
		}
		seen[s] = struct{}{}
	}
	if c.Poll.Interval < 0 {
		return fmt.Errorf("invalid poll interval: %s", c.Poll.Interval)
	}
	if c.Latency.Window <= 0 {
		return fmt.Errorf("invalid latency window: %d", c.Latency.Window)
	}
	if c.Latency.ReportInterval <= 0 {
		return fmt.Errorf("invalid latency report interval: %s", c.Latency.ReportInterval)
	}
	return nil
}

// String omits the OAuth secret.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Region{Path:%s, Symbols:%d}, Poll{Interval:%s}, Latency{Window:%d, Report:%s}, HTTP{Addr:%s}, DB{Path:%s}",
		c.Region.Path, len(c.Region.Symbols), c.Poll.Interval,
		c.Latency.Window, c.Latency.ReportInterval, c.HTTP.Addr, c.DB.Path,
	)
}
