package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Auth     AuthConfig     `toml:"auth"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Port int `toml:"port"`
}

// DatabaseConfig holds the database configuration
type DatabaseConfig struct {
	Driver   string `toml:"driver"` // "postgres" or "sqlite"
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	DBName   string `toml:"dbname"`
	SSLMode  string `toml:"sslmode"`
	Path     string `toml:"path"` // SQLite database file
}

// AuthConfig holds the authentication configuration
type AuthConfig struct {
	JWTSecret string        `toml:"jwt_secret"`
	TokenTTL  time.Duration `toml:"token_ttl"`
}

// LedgerConfig holds the consumption ledger settings
type LedgerConfig struct {
	MealPrepCreditStep         int `toml:"meal_prep_credit_step"`
	LegacyIngredientCreditStep int `toml:"legacy_ingredient_credit_step"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Env string `toml:"env"` // "production" selects JSON output
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == DriverSQLite {
		return c.Path + "?_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.DBName, c.SSLMode,
	)
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver:   DriverPostgres,
			Host:     "localhost",
			Port:     5432,
			Username: "postgres",
			Password: "password",
			DBName:   "household",
			SSLMode:  "disable",
			Path:     "household.db",
		},
		Auth: AuthConfig{
			JWTSecret: "your-secret-key-here",
			TokenTTL:  24 * time.Hour,
		},
		Ledger: LedgerConfig{
			MealPrepCreditStep:         10,
			LegacyIngredientCreditStep: 10,
		},
		Log: LogConfig{
			Env: "development",
		},
	}
}

// LoadConfig builds the configuration from the defaults, the optional TOML
// file at path, a .env file in the working directory and the process
// environment, in increasing order of priority.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that the server cannot start without.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("jwt secret must not be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("token ttl must be positive")
	}
	if c.Ledger.MealPrepCreditStep < 0 || c.Ledger.LegacyIngredientCreditStep < 0 {
		return errors.New("ledger credit steps must not be negative")
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvAsInt("SERVER_PORT", cfg.Server.Port)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvAsInt("DB_PORT", cfg.Database.Port)
	cfg.Database.Username = getEnv("DB_USERNAME", cfg.Database.Username)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.Path = getEnv("DB_PATH", cfg.Database.Path)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.TokenTTL = getEnvAsDuration("JWT_TTL", cfg.Auth.TokenTTL)

	cfg.Ledger.MealPrepCreditStep = getEnvAsInt("LEDGER_MEAL_PREP_CREDIT_STEP", cfg.Ledger.MealPrepCreditStep)
	cfg.Ledger.LegacyIngredientCreditStep = getEnvAsInt("LEDGER_LEGACY_INGREDIENT_CREDIT_STEP", cfg.Ledger.LegacyIngredientCreditStep)

	cfg.Log.Env = getEnv("LOG_ENV", cfg.Log.Env)
}

// Helper functions to read environment variables
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
