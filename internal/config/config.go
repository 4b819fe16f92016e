package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Name         string          `yaml:"name"`
	Email        string          `yaml:"email"`
	Password     string          `yaml:"password"`
	Categories   []string        `yaml:"categories"`
	KeywordsFile string          `yaml:"keywords_file"`
	AuthorsFile  string          `yaml:"authors_file"`
	Schedule     string          `yaml:"schedule"`
	Fetcher      FetcherConfig   `yaml:"fetcher"`
	Publisher    PublisherConfig `yaml:"publisher"`
	Store        StoreConfig     `yaml:"store"`
}

type FetcherConfig struct {
	BaseURL              string        `yaml:"base_url"`
	Timeout              time.Duration `yaml:"timeout"`
	MaxRetries           int           `yaml:"max_retries"`
	SkipFailedCategories bool          `yaml:"skip_failed_categories"`
}

type PublisherConfig struct {
	Type  string      `yaml:"type"`
	Email EmailConfig `yaml:"email"`
	Web   WebConfig   `yaml:"web"`
}

type EmailConfig struct {
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
}

type WebConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig selects the sinks a run is persisted to. Empty paths disable
// the corresponding sink.
type StoreConfig struct {
	RecordsCSV string `yaml:"records_csv"`
	LabelsCSV  string `yaml:"labels_csv"`
	SQLitePath string `yaml:"sqlite_path"`
}

const (
	PublisherAuto   = "auto"
	PublisherStdout = "stdout"
	PublisherEmail  = "email"
	PublisherWeb    = "web"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func setDefaults(cfg *Config) {
	if cfg.KeywordsFile == "" {
		cfg.KeywordsFile = "keywords.txt"
	}
	if cfg.AuthorsFile == "" {
		cfg.AuthorsFile = "keyauthors.txt"
	}
	if cfg.Fetcher.BaseURL == "" {
		cfg.Fetcher.BaseURL = "https://export.arxiv.org/oai2"
	}
	if cfg.Fetcher.Timeout == 0 {
		cfg.Fetcher.Timeout = 60 * time.Second
	}
	if cfg.Publisher.Type == "" {
		cfg.Publisher.Type = PublisherAuto
	}
	if cfg.Publisher.Email.SMTPHost == "" {
		cfg.Publisher.Email.SMTPHost = "smtp.gmail.com"
	}
	if cfg.Publisher.Email.SMTPPort == 0 {
		cfg.Publisher.Email.SMTPPort = 465
	}
	if cfg.Publisher.Web.Addr == "" {
		cfg.Publisher.Web.Addr = ":8080"
	}
}

// normalize drops placeholders that did not resolve, so a missing
// ${ARXIV_PASSWORD} behaves like no stored password at all.
func normalize(cfg *Config) {
	if envVarRegex.MatchString(cfg.Password) {
		cfg.Password = ""
	}
	if envVarRegex.MatchString(cfg.Email) {
		cfg.Email = ""
	}
	cats := cfg.Categories[:0]
	for _, c := range cfg.Categories {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, c)
		}
	}
	cfg.Categories = cats
}

func validate(cfg *Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("config: name is required")
	}
	if len(cfg.Categories) == 0 {
		return fmt.Errorf("config: at least one category is required")
	}
	if cfg.Fetcher.MaxRetries < 0 {
		return fmt.Errorf("config: fetcher.max_retries must not be negative")
	}
	switch cfg.Publisher.Type {
	case PublisherAuto, PublisherStdout, PublisherEmail, PublisherWeb:
	default:
		return fmt.Errorf("config: unsupported publisher type %q (supported: auto, stdout, email, web)", cfg.Publisher.Type)
	}
	if cfg.Publisher.Type == PublisherEmail && cfg.Email == "" {
		return fmt.Errorf("config: email is required for email publisher")
	}
	if (cfg.Store.RecordsCSV == "") != (cfg.Store.LabelsCSV == "") {
		return fmt.Errorf("config: store.records_csv and store.labels_csv must be set together")
	}
	return nil
}

// Load reads the config file, expands environment variables, applies defaults,
// and validates the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	setDefaults(&cfg)
	normalize(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Delivery resolves the auto publisher type: without an email address the
// report goes to stdout, otherwise it is mailed.
func (c *Config) Delivery() string {
	if c.Publisher.Type != PublisherAuto {
		return c.Publisher.Type
	}
	if c.Email == "" {
		return PublisherStdout
	}
	return PublisherEmail
}
