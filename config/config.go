package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	HTTPHost        string
	HTTPPort        string
	GRPCHost        string
	GRPCPort        string
	MySQLDSN        string
	FrontendURL     string
	DefaultRole     string
	InternalAPIKeys []string
	JWT             JWTConfig
	Password        PasswordConfig
	NATS            NATSConfig
	SMTP            SMTPConfig
	Cleanup         CleanupConfig
	Log             LogConfig
}

type JWTConfig struct {
	AccessSecret      string
	RefreshSecret     string
	EmailVerifySecret string
	Algorithm         string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	EmailVerifyTTL    time.Duration
}

type PasswordConfig struct {
	Policy   PasswordPolicy
	HashCost int
}

type NATSConfig struct {
	URL                string
	UserEventsSubject  string
	EmailEventsSubject string
	QueueGroup         string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type CleanupConfig struct {
	Interval  time.Duration
	BatchSize int
}

type LogConfig struct {
	Level  string
	Format string
}

type PasswordPolicy struct {
	MinLength        int
	MaxLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return fmt.Errorf("password must be at least %d characters long", p.MinLength)
	}
	if p.MaxLength > 0 && len(password) > p.MaxLength {
		return fmt.Errorf("password must be at most %d characters long", p.MaxLength)
	}
	if strings.ContainsFunc(password, unicode.IsSpace) {
		return errors.New("password must not contain spaces")
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasNumber = true
		case unicode.IsPunct(ch) || unicode.IsSymbol(ch):
			hasSpecial = true
		}
	}

	var missing []string
	if p.RequireUppercase && !hasUpper {
		missing = append(missing, "uppercase letter")
	}
	if p.RequireLowercase && !hasLower {
		missing = append(missing, "lowercase letter")
	}
	if p.RequireNumber && !hasNumber {
		missing = append(missing, "number")
	}
	if p.RequireSpecial && !hasSpecial {
		missing = append(missing, "special character")
	}

	if len(missing) > 0 {
		return fmt.Errorf("password must contain at least one: %s", strings.Join(missing, ", "))
	}

	return nil
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignores error if not found)
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	jwtCfg, err := loadJWTConfig()
	if err != nil {
		return nil, err
	}

	cleanup := CleanupConfig{
		Interval:  getDurationEnv("TOKEN_CLEANUP_INTERVAL", 10*time.Minute),
		BatchSize: getIntEnv("TOKEN_CLEANUP_BATCH", 500),
	}
	if cleanup.Interval <= 0 {
		return nil, errors.New("TOKEN_CLEANUP_INTERVAL must be a positive number of minutes")
	}
	if cleanup.BatchSize <= 0 {
		return nil, errors.New("TOKEN_CLEANUP_BATCH must be positive")
	}

	return &Config{
		HTTPHost:        getEnv("HTTP_HOST", "0.0.0.0"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		GRPCHost:        getEnv("GRPC_HOST", "0.0.0.0"),
		GRPCPort:        getEnv("GRPC_PORT", "9090"),
		MySQLDSN:        mysqlDSN,
		FrontendURL:     strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		DefaultRole:     getEnv("DEFAULT_ROLE", "user"),
		InternalAPIKeys: getListEnv("INTERNAL_API_KEYS"),
		JWT:             jwtCfg,
		Password: PasswordConfig{
			Policy:   loadPasswordPolicy(),
			HashCost: getIntEnv("PASSWORD_HASH_COST", bcrypt.DefaultCost),
		},
		NATS: NATSConfig{
			URL:                getEnv("NATS_URL", "nats://localhost:4222"),
			UserEventsSubject:  getEnv("NATS_USER_EVENTS_SUBJECT", "user_events"),
			EmailEventsSubject: getEnv("NATS_EMAIL_EVENTS_SUBJECT", "email_events"),
			QueueGroup:         getEnv("NATS_QUEUE_GROUP", "auth-worker"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getIntEnv("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_SENDER_EMAIL", "no-reply@localhost"),
		},
		Cleanup: cleanup,
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}, nil
}

// DSN returns the MySQL DSN with parseTime enabled and UTC as the session location.
func (c *Config) DSN() string {
	dsn, err := mysql.ParseDSN(c.MySQLDSN)
	if err != nil {
		return c.MySQLDSN
	}
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	return dsn.FormatDSN()
}

func loadJWTConfig() (JWTConfig, error) {
	cfg := JWTConfig{
		AccessSecret:      os.Getenv("ACCESS_TOKEN_SECRET_KEY"),
		RefreshSecret:     os.Getenv("REFRESH_TOKEN_SECRET_KEY"),
		EmailVerifySecret: os.Getenv("EMAIL_VERIFY_SECRET_KEY"),
		Algorithm:         strings.ToUpper(getEnv("JWT_ALGORITHM", "HS256")),
		AccessTokenTTL:    time.Duration(getIntEnv("ACCESS_TOKEN_EXPIRE_HOURS", 24)) * time.Hour,
		RefreshTokenTTL:   time.Duration(getIntEnv("REFRESH_TOKEN_EXPIRE_DAYS", 7)) * 24 * time.Hour,
		EmailVerifyTTL:    time.Duration(getIntEnv("EMAIL_VERIFY_EXPIRE_HOURS", 1)) * time.Hour,
	}

	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" || cfg.EmailVerifySecret == "" {
		return JWTConfig{}, errors.New("ACCESS_TOKEN_SECRET_KEY, REFRESH_TOKEN_SECRET_KEY and EMAIL_VERIFY_SECRET_KEY are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret || cfg.AccessSecret == cfg.EmailVerifySecret || cfg.RefreshSecret == cfg.EmailVerifySecret {
		return JWTConfig{}, errors.New("token secrets must be distinct")
	}

	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 || cfg.EmailVerifyTTL <= 0 {
		return JWTConfig{}, errors.New("ACCESS_TOKEN_EXPIRE_HOURS, REFRESH_TOKEN_EXPIRE_DAYS and EMAIL_VERIFY_EXPIRE_HOURS must be positive")
	}

	switch cfg.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return JWTConfig{}, fmt.Errorf("unsupported JWT_ALGORITHM %q", cfg.Algorithm)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var values []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

func loadPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        getIntEnv("PASSWORD_MIN_LENGTH", 8),
		MaxLength:        getIntEnv("PASSWORD_MAX_LENGTH", 16),
		RequireUppercase: getBoolEnv("PASSWORD_REQUIRE_UPPERCASE", true),
		RequireLowercase: getBoolEnv("PASSWORD_REQUIRE_LOWERCASE", true),
		RequireNumber:    getBoolEnv("PASSWORD_REQUIRE_NUMBER", true),
		RequireSpecial:   getBoolEnv("PASSWORD_REQUIRE_SPECIAL", true),
	}
}
