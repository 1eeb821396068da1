// Package config reads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Lllllllleong/balanceconfirmflow/internal/services"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

// Config is the full runtime configuration shared by every entry point.
type Config struct {
	ProjectID   string `env:"PROJECT_ID"`
	DatabaseID  string `env:"FIRESTORE_DATABASE_ID"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`
	CompanyName string `env:"COMPANY_NAME"`

	StoreBackend         string `env:"STORE_BACKEND" envDefault:"firestore"`
	SQLitePath           string `env:"SQLITE_PATH" envDefault:"data/balance-confirmations.db"`
	NumberingDatabaseURL string `env:"NUMBERING_DATABASE_URL"`

	ArchiveBucket string `env:"ARCHIVE_BUCKET"`
	ArchivePrefix string `env:"ARCHIVE_PREFIX" envDefault:"registrations"`

	TemplatesDir    string        `env:"TEMPLATES_DIR" envDefault:"templates"`
	TemplateCatalog string        `env:"TEMPLATE_CATALOG"`
	RendererCommand string        `env:"RENDERER_COMMAND" envDefault:"python3"`
	RendererScript  string        `env:"RENDERER_SCRIPT"`
	RendererDBPath  string        `env:"RENDERER_DB_PATH"`
	RendererTimeout time.Duration `env:"RENDERER_TIMEOUT" envDefault:"60s"`

	BlockUnsignedFiles bool `env:"BLOCK_UNSIGNED_PDF_FILES" envDefault:"true"`
	AllowUnsignedInDev bool `env:"ALLOW_UNSIGNED_IN_DEV"`

	MailCollection string `env:"MAIL_COLLECTION" envDefault:"mail"`
	MailFrom       string `env:"MAIL_FROM"`

	WorkflowLocation string `env:"WORKFLOW_LOCATION"`
	WorkflowID       string `env:"WORKFLOW_ID"`

	ReminderCheckInterval time.Duration `env:"REMINDER_CHECK_INTERVAL" envDefault:"1h"`
	ReminderDaysBefore    int           `env:"REMINDER_DAYS_BEFORE" envDefault:"7"`
	ReminderIntervalDays  int           `env:"REMINDER_INTERVAL_DAYS" envDefault:"3"`
	ReminderMax           int           `env:"REMINDER_MAX" envDefault:"3"`
	ReminderConcurrency   int           `env:"REMINDER_CONCURRENCY" envDefault:"4"`
}

// Load parses and validates the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.StoreBackend {
	case BackendMemory, BackendSQLite:
	case BackendFirestore:
		if c.ProjectID == "" {
			errs = append(errs, errors.New("PROJECT_ID is required for the firestore backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}
	if c.StoreBackend == BackendSQLite && c.SQLitePath == "" {
		errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
	}
	if (c.WorkflowLocation == "") != (c.WorkflowID == "") {
		errs = append(errs, errors.New("WORKFLOW_LOCATION and WORKFLOW_ID must be set together"))
	}
	if c.ReminderMax < 0 || c.ReminderDaysBefore < 0 || c.ReminderIntervalDays < 0 {
		errs = append(errs, errors.New("reminder settings must not be negative"))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether APP_ENV names a development environment.
func (c *Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	}
	return false
}

// Policy builds the security policy. The unsigned override only takes
// effect in development.
func (c *Config) Policy() services.SecurityPolicy {
	return services.SecurityPolicy{
		BlockUnsignedFiles:    c.BlockUnsignedFiles,
		AllowUnsignedOverride: c.AllowUnsignedInDev && c.IsDevelopment(),
	}
}

func (c *Config) Reminders() services.ReminderSettings {
	s := services.DefaultReminderSettings()
	if c.ReminderCheckInterval > 0 {
		s.CheckInterval = c.ReminderCheckInterval
	}
	s.DaysBeforeReminder = c.ReminderDaysBefore
	s.ReminderIntervalDays = c.ReminderIntervalDays
	s.MaxReminders = c.ReminderMax
	if c.ReminderConcurrency > 0 {
		s.Concurrency = c.ReminderConcurrency
	}
	return s
}

// LoadTemplateCatalog returns the default catalog overlaid with the YAML
// file at path. An empty path yields the defaults.
func LoadTemplateCatalog(path string) (services.TemplateCatalog, error) {
	catalog := services.DefaultTemplateCatalog()
	if path == "" {
		return catalog, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return catalog, fmt.Errorf("failed to read template catalog %s: %w", path, err)
	}
	var override services.TemplateCatalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return catalog, fmt.Errorf("failed to parse template catalog %s: %w", path, err)
	}
	for k, v := range override.Documents {
		catalog.Documents[k] = v
	}
	return catalog, nil
}
