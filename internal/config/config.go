package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"

	"github.com/jakechorley/shelter-shifts/pkg/core/calendar"
	"github.com/jakechorley/shelter-shifts/pkg/core/model"
)

const (
	EnvTest = "test"

	// testJWTSecret signs tokens in the test environment when JWT_SECRET is unset
	testJWTSecret = "shelter-shifts-test-secret"
)

// ShiftOverride changes capacity or closes the slots on the dates an rrule produces
type ShiftOverride struct {
	RRule    string `yaml:"rrule" validate:"required"`
	Period   string `yaml:"period,omitempty" validate:"omitempty,oneof=M T"`
	Capacity *int   `yaml:"capacity,omitempty" validate:"omitempty,min=1"`
	Closed   bool   `yaml:"closed,omitempty"`
}

// Config represents the application configuration
type Config struct {
	CapacityThreshold    int             `yaml:"capacityThreshold" validate:"min=1"`
	NotificationDuration time.Duration   `yaml:"notificationDuration" validate:"min=0"`
	Timezone             string          `yaml:"timezone" validate:"required,timezone"`
	CalendarDays         int             `yaml:"calendarDays" validate:"min=1,max=366"`
	DefaultCountryCode   string          `yaml:"defaultCountryCode" validate:"required,numeric,max=3"`
	ShiftOverrides       []ShiftOverride `yaml:"shiftOverrides,omitempty" validate:"dive"`
	AttendanceSheetID    string          `yaml:"attendanceSheetID,omitempty"`
	MailSender           string          `yaml:"mailSender,omitempty" validate:"omitempty,email"`
	SessionTTL           time.Duration   `yaml:"sessionTTL" validate:"min=1m"`
	CacheTTL             time.Duration   `yaml:"cacheTTL" validate:"min=0"`
	AMQPQueue            string          `yaml:"amqpQueue" validate:"required"`
	HTTPAddr             string          `yaml:"httpAddr" validate:"required"`

	// Set from the environment (or .env files), never from YAML
	Env                   string `yaml:"-"`
	DatabaseURL           string `yaml:"-"`
	RedisAddr             string `yaml:"-"`
	RedisPassword         string `yaml:"-"`
	AMQPURL               string `yaml:"-"`
	JWTSecret             string `yaml:"-"`
	GoogleCredentialsFile string `yaml:"-"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Default returns a config with every optional field populated
func Default() *Config {
	return &Config{
		CapacityThreshold:    3,
		NotificationDuration: 4 * time.Second,
		Timezone:             "Europe/Madrid",
		CalendarDays:         14,
		DefaultCountryCode:   "34",
		SessionTTL:           12 * time.Hour,
		CacheTTL:             5 * time.Minute,
		AMQPQueue:            "shift.assignments",
		HTTPAddr:             ":8080",
	}
}

// Load loads .env files, then the YAML config for env, then secrets from the environment.
// It looks for shelter_config.{env}.yaml in the current directory first, then in the user's home directory.
func Load(env string) (*Config, error) {
	if err := loadDotEnv(env); err != nil {
		return nil, err
	}

	configPath, err := findConfigFile(env)
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		return nil, err
	}

	cfg.Env = env
	cfg.ApplyEnvironment()
	if err := cfg.ValidateSecrets(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromPath loads and validates the configuration from a specific path.
// Missing fields take their Default values.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration struct and checks rrule syntax
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	for i, override := range cfg.ShiftOverrides {
		if _, err := rrule.StrToRRule(override.RRule); err != nil {
			return fmt.Errorf("invalid rrule in shiftOverrides[%d]: %w", i, err)
		}
	}

	return nil
}

// ApplyEnvironment copies connection strings and secrets from the process environment
func (c *Config) ApplyEnvironment() {
	c.DatabaseURL = os.Getenv("DATABASE_URL")
	c.RedisAddr = os.Getenv("REDIS_ADDR")
	c.RedisPassword = os.Getenv("REDIS_PASSWORD")
	c.AMQPURL = os.Getenv("AMQP_URL")
	c.JWTSecret = os.Getenv("JWT_SECRET")
	c.GoogleCredentialsFile = os.Getenv("GOOGLE_CREDENTIALS_FILE")
}

// ValidateSecrets checks the environment-provided settings. The test
// environment may run without a database and with a fixed signing secret.
func (c *Config) ValidateSecrets() error {
	if c.JWTSecret == "" && c.Env == EnvTest {
		c.JWTSecret = testJWTSecret
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be set to at least 16 characters")
	}
	if c.DatabaseURL == "" && c.Env != EnvTest {
		return errors.New("DATABASE_URL must be set outside the test environment")
	}
	return nil
}

// IsTest reports whether test-only operations such as data reset are allowed
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// Location returns the shelter time zone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", c.Timezone, err)
	}
	return loc, nil
}

// CalendarOverrides converts the YAML overrides into calendar overrides
func (c *Config) CalendarOverrides() []calendar.Override {
	overrides := make([]calendar.Override, len(c.ShiftOverrides))
	for i, o := range c.ShiftOverrides {
		overrides[i] = calendar.Override{
			RRule:    o.RRule,
			Period:   model.Period(o.Period),
			Capacity: o.Capacity,
			Closed:   o.Closed,
		}
	}
	return overrides
}

// loadDotEnv loads .env and .env.{env} when present. Variables already set win.
func loadDotEnv(env string) error {
	for _, name := range []string{".env." + env, ".env"} {
		err := godotenv.Load(name)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
	}
	return nil
}

// findConfigFile searches for shelter_config.{env}.yaml in current directory and home directory
func findConfigFile(env string) (string, error) {
	configFileName := fmt.Sprintf("shelter_config.%s.yaml", env)

	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, configFileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("%s not found in current directory or home directory", configFileName)
}
