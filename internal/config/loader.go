package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config captures the configuration values of the cart scheduler service.
type Config struct {
	HTTPPort    int
	SQLitePath  string
	FrontendURL string
	CORSOrigins []string
	Timezone    string

	JWTSecret  string
	JWTIssuer  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	InviteTTL  time.Duration

	LoginRatePerMinute int
	LoginBurst         int

	HousekeepingSchedule string

	LogLevel  string
	LogFormat string

	BootstrapAdmin BootstrapAdmin
}

// BootstrapAdmin describes the administrator created on an empty database.
// It is ignored unless Username and Password are both set.
type BootstrapAdmin struct {
	Username  string `yaml:"username"`
	Email     string `yaml:"email"`
	Password  string `yaml:"password"`
	FirstName string `yaml:"firstname"`
	LastName  string `yaml:"lastname"`
}

// Enabled reports whether a bootstrap administrator is configured.
func (b BootstrapAdmin) Enabled() bool {
	return b.Username != "" && b.Password != ""
}

// Defaults returns the configuration used when nothing overrides a value.
func Defaults() Config {
	return Config{
		HTTPPort:             8080,
		SQLitePath:           "scheduler.db",
		FrontendURL:          "http://localhost:5173",
		CORSOrigins:          []string{"http://localhost:5173"},
		Timezone:             "Europe/Madrid",
		JWTIssuer:            "cart-scheduler",
		AccessTTL:            30 * time.Minute,
		RefreshTTL:           14 * 24 * time.Hour,
		InviteTTL:            72 * time.Hour,
		LoginRatePerMinute:   10,
		LoginBurst:           5,
		HousekeepingSchedule: "@hourly",
		LogLevel:             "info",
		LogFormat:            "json",
	}
}

type fileConfig struct {
	HTTPPort    int      `yaml:"http_port"`
	SQLitePath  string   `yaml:"sqlite_path"`
	FrontendURL string   `yaml:"frontend_url"`
	CORSOrigins []string `yaml:"cors_origins"`
	Timezone    string   `yaml:"timezone"`
	JWT         struct {
		Secret     string `yaml:"secret"`
		Issuer     string `yaml:"issuer"`
		AccessTTL  string `yaml:"access_ttl"`
		RefreshTTL string `yaml:"refresh_ttl"`
	} `yaml:"jwt"`
	InviteTTL string `yaml:"invite_ttl"`
	Login     struct {
		RatePerMinute int `yaml:"rate_per_minute"`
		Burst         int `yaml:"burst"`
	} `yaml:"login"`
	HousekeepingSchedule string `yaml:"housekeeping_schedule"`
	Log                  struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	BootstrapAdmin BootstrapAdmin `yaml:"bootstrap_admin"`
}

// Load reads .env (when present), the YAML file named by
// SCHEDULER_CONFIG_FILE (when set) and finally SCHEDULER_* variables, each
// layer overriding the previous one.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Defaults()

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if path := strings.TrimSpace(getenv("SCHEDULER_CONFIG_FILE")); path != "" {
		bad, err := applyFile(&cfg, path)
		if err != nil {
			return Config{}, err
		}
		invalid = append(invalid, bad...)
	}

	env := envReader{getenv: getenv}
	env.int("SCHEDULER_HTTP_PORT", &cfg.HTTPPort, 1, &invalid)
	env.string("SCHEDULER_SQLITE_PATH", &cfg.SQLitePath)
	env.string("SCHEDULER_FRONTEND_URL", &cfg.FrontendURL)
	env.list("SCHEDULER_CORS_ORIGINS", &cfg.CORSOrigins)
	env.string("SCHEDULER_TIMEZONE", &cfg.Timezone)
	env.string("SCHEDULER_JWT_SECRET", &cfg.JWTSecret)
	env.string("SCHEDULER_JWT_ISSUER", &cfg.JWTIssuer)
	env.duration("SCHEDULER_ACCESS_TTL", &cfg.AccessTTL, &invalid)
	env.duration("SCHEDULER_REFRESH_TTL", &cfg.RefreshTTL, &invalid)
	env.duration("SCHEDULER_INVITE_TTL", &cfg.InviteTTL, &invalid)
	env.int("SCHEDULER_LOGIN_RATE_PER_MINUTE", &cfg.LoginRatePerMinute, 1, &invalid)
	env.int("SCHEDULER_LOGIN_BURST", &cfg.LoginBurst, 1, &invalid)
	env.string("SCHEDULER_HOUSEKEEPING_SCHEDULE", &cfg.HousekeepingSchedule)
	env.string("SCHEDULER_LOG_LEVEL", &cfg.LogLevel)
	env.string("SCHEDULER_LOG_FORMAT", &cfg.LogFormat)
	env.string("SCHEDULER_ADMIN_USERNAME", &cfg.BootstrapAdmin.Username)
	env.string("SCHEDULER_ADMIN_EMAIL", &cfg.BootstrapAdmin.Email)
	env.string("SCHEDULER_ADMIN_PASSWORD", &cfg.BootstrapAdmin.Password)
	env.string("SCHEDULER_ADMIN_FIRSTNAME", &cfg.BootstrapAdmin.FirstName)
	env.string("SCHEDULER_ADMIN_LASTNAME", &cfg.BootstrapAdmin.LastName)

	if cfg.JWTSecret == "" {
		missing = append(missing, "SCHEDULER_JWT_SECRET")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		invalid = append(invalid, "SCHEDULER_TIMEZONE")
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		invalid = append(invalid, "SCHEDULER_LOG_FORMAT")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	var invalid []string
	setDuration := func(key, value string, dst *time.Duration) {
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			invalid = append(invalid, key)
			return
		}
		*dst = d
	}

	if file.HTTPPort > 0 {
		cfg.HTTPPort = file.HTTPPort
	}
	setString(&cfg.SQLitePath, file.SQLitePath)
	setString(&cfg.FrontendURL, file.FrontendURL)
	if len(file.CORSOrigins) > 0 {
		cfg.CORSOrigins = file.CORSOrigins
	}
	setString(&cfg.Timezone, file.Timezone)
	setString(&cfg.JWTSecret, file.JWT.Secret)
	setString(&cfg.JWTIssuer, file.JWT.Issuer)
	setDuration("jwt.access_ttl", file.JWT.AccessTTL, &cfg.AccessTTL)
	setDuration("jwt.refresh_ttl", file.JWT.RefreshTTL, &cfg.RefreshTTL)
	setDuration("invite_ttl", file.InviteTTL, &cfg.InviteTTL)
	if file.Login.RatePerMinute > 0 {
		cfg.LoginRatePerMinute = file.Login.RatePerMinute
	}
	if file.Login.Burst > 0 {
		cfg.LoginBurst = file.Login.Burst
	}
	setString(&cfg.HousekeepingSchedule, file.HousekeepingSchedule)
	setString(&cfg.LogLevel, file.Log.Level)
	setString(&cfg.LogFormat, file.Log.Format)
	if file.BootstrapAdmin != (BootstrapAdmin{}) {
		cfg.BootstrapAdmin = file.BootstrapAdmin
	}
	return invalid, nil
}

func setString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

type envReader struct {
	getenv func(string) string
}

func (e envReader) value(key string) string {
	return strings.TrimSpace(e.getenv(key))
}

func (e envReader) string(key string, dst *string) {
	setString(dst, e.value(key))
}

func (e envReader) list(key string, dst *[]string) {
	raw := e.value(key)
	if raw == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e envReader) int(key string, dst *int, minimum int, invalid *[]string) {
	raw := e.value(key)
	if raw == "" {
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < minimum {
		*invalid = append(*invalid, key)
		return
	}
	*dst = n
}

func (e envReader) duration(key string, dst *time.Duration, invalid *[]string) {
	raw := e.value(key)
	if raw == "" {
		return
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		*invalid = append(*invalid, key)
		return
	}
	*dst = d
}
