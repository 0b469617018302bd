package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"atbb-scraper/utils"
)

// Browser kinds accepted by the driver factory.
const (
	BrowserChrome = "chrome"
	BrowserEdge   = "edge"
)

// Database drivers accepted by the run store.
const (
	DriverNone     = "none"
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Config holds all runtime configuration for the gallery capture run.
type Config struct {
	// Portal
	PortalURL     string `yaml:"portal_url"`
	LoginID       string `yaml:"login_id"`
	LoginPassword string `yaml:"login_password"`
	KeywordFile   string `yaml:"keyword_file"`
	OutputDir     string `yaml:"output_dir"`

	// Browser
	Browser      string `yaml:"browser"`
	ExecPath     string `yaml:"exec_path"`
	RemoteURL    string `yaml:"remote_url"`
	Headless     bool   `yaml:"headless"`
	WindowWidth  int    `yaml:"window_width"`
	WindowHeight int    `yaml:"window_height"`
	KeepOpen     bool   `yaml:"keep_open"`

	// CloseEntryTab closes the member-site tab left behind by the entrance
	// logout instead of just switching away from it.
	CloseEntryTab bool `yaml:"close_entry_tab"`

	// Timing
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	PageTimeout    time.Duration `yaml:"page_timeout"`
	ShortTimeout   time.Duration `yaml:"short_timeout"`
	NewTabTimeout  time.Duration `yaml:"new_tab_timeout"`
	StepDelay      time.Duration `yaml:"step_delay"`
	GlobalTimeout  time.Duration `yaml:"global_timeout"`

	LogLevel string `yaml:"log_level"`

	// Run history
	DBDriver   string `yaml:"db_driver"`
	DBDSN      string `yaml:"db_dsn"`
	DBPath     string `yaml:"db_path"`
	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	DBSSLMode  string `yaml:"db_sslmode"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		KeywordFile: filepath.Join("config", "input.txt"),
		OutputDir:   "output",

		Browser:      BrowserChrome,
		Headless:     false,
		WindowWidth:  1280,
		WindowHeight: 900,
		KeepOpen:     true,

		DefaultTimeout: 10 * time.Second,
		PageTimeout:    20 * time.Second,
		ShortTimeout:   3 * time.Second,
		NewTabTimeout:  5 * time.Second,
		StepDelay:      500 * time.Millisecond,
		GlobalTimeout:  30 * time.Minute,

		LogLevel: "info",

		DBDriver:   DriverSQLite,
		DBPath:     filepath.Join("output", "runs.db"),
		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "atbb",
		DBPassword: "atbb",
		DBName:     "atbb_scraper",
		DBSSLMode:  "disable",
	}
}

// Load builds a Config from defaults, an optional YAML file, an optional
// dotenv file and the process environment, in that order. Relative paths in
// the YAML file are taken relative to the file.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		var set map[string]any
		if err := yaml.Unmarshal(raw, &set); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.resolveFrom(filepath.Dir(path), set)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// resolveFrom makes the paths a config file sets relative to that file.
// set holds the keys the file contains.
func (c *Config) resolveFrom(dir string, set map[string]any) {
	for key, field := range map[string]*string{
		"keyword_file": &c.KeywordFile,
		"output_dir":   &c.OutputDir,
		"db_path":      &c.DBPath,
		"exec_path":    &c.ExecPath,
	} {
		if _, ok := set[key]; !ok {
			continue
		}
		// A bare executable name is looked up on PATH.
		if key == "exec_path" && filepath.Base(*field) == *field {
			continue
		}
		*field = utils.ProjectPath(dir, *field)
	}
}

func (c *Config) applyEnv() {
	c.PortalURL = getEnv("ATBB_URL", c.PortalURL)
	c.LoginID = getEnv("ATBB_LOGIN_ID", c.LoginID)
	c.LoginPassword = getEnv("ATBB_LOGIN_PASSWORD", c.LoginPassword)
	c.KeywordFile = getEnv("ATBB_KEYWORD_FILE", c.KeywordFile)
	c.OutputDir = getEnv("ATBB_OUTPUT_DIR", c.OutputDir)

	c.Browser = strings.ToLower(getEnv("ATBB_BROWSER", c.Browser))
	c.ExecPath = getEnv("ATBB_EXEC_PATH", c.ExecPath)
	c.RemoteURL = getEnv("ATBB_REMOTE_URL", c.RemoteURL)
	c.Headless = getEnvBool("ATBB_HEADLESS", c.Headless)
	c.KeepOpen = getEnvBool("ATBB_KEEP_OPEN", c.KeepOpen)
	c.CloseEntryTab = getEnvBool("ATBB_CLOSE_ENTRY_TAB", c.CloseEntryTab)

	c.DefaultTimeout = getEnvDuration("ATBB_TIMEOUT", c.DefaultTimeout)
	c.PageTimeout = getEnvDuration("ATBB_PAGE_TIMEOUT", c.PageTimeout)
	c.GlobalTimeout = getEnvDuration("ATBB_GLOBAL_TIMEOUT", c.GlobalTimeout)
	c.LogLevel = getEnv("ATBB_LOG_LEVEL", c.LogLevel)

	c.DBDriver = getEnv("DB_DRIVER", c.DBDriver)
	c.DBDSN = getEnv("DB_DSN", c.DBDSN)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.DBHost = getEnv("DB_HOST", c.DBHost)
	c.DBPort = getEnvInt("DB_PORT", c.DBPort)
	c.DBUser = getEnv("DB_USER", c.DBUser)
	c.DBPassword = getEnv("DB_PASSWORD", c.DBPassword)
	c.DBName = getEnv("DB_NAME", c.DBName)
	c.DBSSLMode = getEnv("DB_SSLMODE", c.DBSSLMode)
}

// Validate reports the first problem that would make a run impossible.
func (c Config) Validate() error {
	switch {
	case c.PortalURL == "":
		return errors.New("portal url is not set (ATBB_URL)")
	case c.LoginID == "" || c.LoginPassword == "":
		return errors.New("login credentials are not set (ATBB_LOGIN_ID / ATBB_LOGIN_PASSWORD)")
	case c.DefaultTimeout <= 0 || c.PageTimeout <= 0 || c.ShortTimeout <= 0 ||
		c.NewTabTimeout <= 0 || c.GlobalTimeout <= 0:
		return errors.New("timeouts must be positive")
	case c.StepDelay < 0:
		return fmt.Errorf("step delay %s is negative", c.StepDelay)
	case c.WindowWidth <= 0 || c.WindowHeight <= 0:
		return fmt.Errorf("invalid window size %dx%d", c.WindowWidth, c.WindowHeight)
	}

	switch c.Browser {
	case BrowserChrome, BrowserEdge:
	default:
		return fmt.Errorf("unknown browser %q", c.Browser)
	}

	switch c.DBDriver {
	case DriverNone, DriverPostgres, DriverSQLite, "":
	default:
		return fmt.Errorf("unknown db driver %q", c.DBDriver)
	}
	return nil
}

// PostgresDSN returns DBDSN when set, otherwise a key/value DSN built from
// the individual DB fields.
func (c Config) PostgresDSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost,
		c.DBPort,
		c.DBUser,
		c.DBPassword,
		c.DBName,
		c.DBSSLMode,
	)
}

// ImageDir is where gallery screenshots are written.
func (c Config) ImageDir() string {
	return filepath.Join(c.OutputDir, "image")
}

// ManifestPath is where the JSON manifest of a run is written.
func (c Config) ManifestPath() string {
	return filepath.Join(c.OutputDir, "manifest.json")
}

func getEnv(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
