package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full service configuration. Values come from a YAML file
// with environment variable overrides.
type Config struct {
	Env        string `yaml:"env" env:"AEGIS_ENV" env-default:"local"`
	HTTPServer `yaml:"http_server"`
	Redis      `yaml:"redis"`
	Auth       `yaml:"auth"`
}

type HTTPServer struct {
	Address      string        `yaml:"address" env:"AEGIS_HTTP_ADDRESS" env-default:":8080"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env-default:"10s"`
}

// Redis configures the credential store and the event stream. An empty URL
// selects the in-memory store, which is only meant for local runs.
type Redis struct {
	URL string `yaml:"url" env:"AEGIS_REDIS_URL" env-default:""`
}

type Auth struct {
	// SigningKeyFile points at a PEM-encoded ECDSA P-256 private key. When
	// empty an ephemeral key is generated, which invalidates all tokens on
	// restart.
	SigningKeyFile  string        `yaml:"signing_key_file" env:"AEGIS_SIGNING_KEY_FILE" env-default:""`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env-default:"168h"`
	VerifyTokenTTL  time.Duration `yaml:"verify_token_ttl" env-default:"24h"`
	ResetTokenTTL   time.Duration `yaml:"reset_token_ttl" env-default:"1h"`
}

// MustLoad reads the config file at path and panics on failure. Startup
// cannot proceed without a valid configuration.
func MustLoad(path string) *Config {
	if _, err := os.Stat(path); err != nil {
		panic(fmt.Sprintf("config file not found: %s", path))
	}

	config, err := load(path)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return config
}

func load(path string) (*Config, error) {
	var config Config
	if err := cleanenv.ReadConfig(path, &config); err != nil {
		return nil, err
	}
	return &config, nil
}
