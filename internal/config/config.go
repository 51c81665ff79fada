package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

type Config struct {
	LogLevel          string    `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort          string    `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	Storage           Storage   `yaml:"storage"`
	Redis             Redis     `yaml:"redis"`
	SQLiteStoragePath string    `yaml:"sqlite-storage-path" env:"SQLITE_STORAGE_PATH" env-default:"tictactoe.db"`
	Telemetry         Telemetry `yaml:"telemetry"`
}

type Storage struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"redis"`
}

type Redis struct {
	Host string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	DB   int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Telemetry struct {
	Enabled      bool   `yaml:"enabled" env:"TELEMETRY_ENABLED" env-default:"false"`
	OTLPEndpoint string `yaml:"otlp-endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4317"`
	ServiceName  string `yaml:"service-name" env:"OTEL_SERVICE_NAME" env-default:"tictactoe-program"`
}

var ErrUnknownDriver = errors.New("unknown storage driver")

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

// Load - reads path, or only the environment when path does not exist.
func Load(path string) (*Config, error) {
	config := &Config{}

	_, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		err = cleanenv.ReadEnv(config)
	case err == nil:
		err = cleanenv.ReadConfig(path, config)
	}

	if err != nil {
		return nil, err
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (that *Config) Validate() error {
	switch that.Storage.Driver {
	case DriverRedis, DriverSQLite:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, that.Storage.Driver)
	}
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
