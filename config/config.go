package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// DefaultFile is read when no config path is given. It is optional.
const DefaultFile = ".env"

// GitHubConfig configures the repository fetcher.
type GitHubConfig struct {
	Token           string
	APIURL          string
	Timeout         time.Duration
	BranchesPerPage int
	CommitsPerPage  int
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s port=%s host=%s sslmode=%s",
		d.User, d.Password, d.Name, d.Port, d.Host, d.SSLMode,
	)
}

// URL returns the connection string in URL form, as used by migrations.
func (d DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// CaptionConfig configures the caption generator.
type CaptionConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Config holds all configuration for the application
type Config struct {
	GitHub   GitHubConfig
	Database DatabaseConfig
	Caption  CaptionConfig

	HTTPAddr   string
	UserHeader string
	LogLevel   string
	LogFormat  string

	RescoreSchedule   string
	RescoreStaleAfter time.Duration
}

// NewConfig creates a new Config instance
func NewConfig() *Config {
	return &Config{}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("GITHUB_API_URL", "https://api.github.com/")
	v.SetDefault("FETCH_TIMEOUT", "30s")
	v.SetDefault("BRANCHES_PER_PAGE", 100)
	v.SetDefault("COMMITS_PER_PAGE", 50)

	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_DB", "reposcore")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 25)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "5m")

	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("CAPTION_MODEL", "gpt-4o-mini")
	v.SetDefault("CAPTION_TIMEOUT", "30s")

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("USER_HEADER", "X-User-ID")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("RESCORE_STALE_AFTER", "24h")
}

// Load loads configuration from the file at path (when present) and then
// from environment variables, which take precedence.
func (c *Config) Load(path string) error {
	return c.load(viper.New(), path)
}

func (c *Config) load(v *viper.Viper, path string) error {
	setDefaults(v)
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if explicit || !missing {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var err error
	c.GitHub = GitHubConfig{
		Token:           v.GetString("GITHUB_TOKEN"),
		APIURL:          v.GetString("GITHUB_API_URL"),
		BranchesPerPage: v.GetInt("BRANCHES_PER_PAGE"),
		CommitsPerPage:  v.GetInt("COMMITS_PER_PAGE"),
	}
	if c.GitHub.Timeout, err = duration(v, "FETCH_TIMEOUT"); err != nil {
		return err
	}
	if c.GitHub.BranchesPerPage < 1 || c.GitHub.BranchesPerPage > 100 {
		return fmt.Errorf("BRANCHES_PER_PAGE must be between 1 and 100, got %d", c.GitHub.BranchesPerPage)
	}
	if c.GitHub.CommitsPerPage < 1 || c.GitHub.CommitsPerPage > 100 {
		return fmt.Errorf("COMMITS_PER_PAGE must be between 1 and 100, got %d", c.GitHub.CommitsPerPage)
	}

	c.Database = DatabaseConfig{
		Host:         v.GetString("POSTGRES_HOST"),
		Port:         v.GetString("POSTGRES_PORT"),
		User:         v.GetString("POSTGRES_USER"),
		Password:     v.GetString("POSTGRES_PASSWORD"),
		Name:         v.GetString("POSTGRES_DB"),
		SSLMode:      v.GetString("POSTGRES_SSLMODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}
	if c.Database.ConnMaxLifetime, err = duration(v, "DB_CONN_MAX_LIFETIME"); err != nil {
		return err
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive, got %d", c.Database.MaxOpenConns)
	}

	c.Caption = CaptionConfig{
		APIKey:  v.GetString("OPENAI_API_KEY"),
		BaseURL: v.GetString("OPENAI_BASE_URL"),
		Model:   v.GetString("CAPTION_MODEL"),
	}
	if c.Caption.Timeout, err = duration(v, "CAPTION_TIMEOUT"); err != nil {
		return err
	}

	c.HTTPAddr = v.GetString("HTTP_ADDR")
	c.UserHeader = v.GetString("USER_HEADER")
	if c.UserHeader == "" {
		return fmt.Errorf("USER_HEADER cannot be empty")
	}
	c.LogLevel = v.GetString("LOG_LEVEL")
	c.LogFormat = v.GetString("LOG_FORMAT")

	c.RescoreSchedule = v.GetString("RESCORE_SCHEDULE")
	if c.RescoreStaleAfter, err = duration(v, "RESCORE_STALE_AFTER"); err != nil {
		return err
	}

	return nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
