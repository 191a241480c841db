package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/auth?parseTime=true&loc=UTC")
	t.Setenv("ACCESS_TOKEN_SECRET_KEY", "access-secret")
	t.Setenv("REFRESH_TOKEN_SECRET_KEY", "refresh-secret")
	t.Setenv("EMAIL_VERIFY_SECRET_KEY", "verify-secret")
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd failed: %v", err)
	}
	tmp := t.TempDir()
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(origDir)
	})
	return tmp
}

func TestPasswordPolicyValidate(t *testing.T) {
	policy := PasswordPolicy{
		MinLength:        8,
		MaxLength:        16,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumber:    true,
		RequireSpecial:   true,
	}

	if err := policy.Validate("short"); err == nil {
		t.Fatalf("expected error for short password")
	}
	if err := policy.Validate("WayTooLongPassword1!"); err == nil {
		t.Fatalf("expected error for long password")
	}
	if err := policy.Validate("Has Space1!"); err == nil {
		t.Fatalf("expected error for password with spaces")
	}
	if err := policy.Validate("lowercase1!"); err == nil {
		t.Fatalf("expected error for missing uppercase")
	}
	if err := policy.Validate("UPPERCASE1!"); err == nil {
		t.Fatalf("expected error for missing lowercase")
	}
	if err := policy.Validate("NoNumber!"); err == nil {
		t.Fatalf("expected error for missing number")
	}
	if err := policy.Validate("NoSpecial1"); err == nil {
		t.Fatalf("expected error for missing special")
	}
	if err := policy.Validate("Abc12345!"); err != nil {
		t.Fatalf("expected valid password, got %v", err)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "value")
	if got := getEnv("TEST_STRING", "default"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
	if got := getEnv("MISSING_STRING", "default"); got != "default" {
		t.Fatalf("expected default, got %q", got)
	}

	t.Setenv("TEST_DURATION", "30")
	if got := getDurationEnv("TEST_DURATION", 5*time.Minute); got != 30*time.Minute {
		t.Fatalf("expected 30m, got %v", got)
	}
	t.Setenv("TEST_DURATION", "invalid")
	if got := getDurationEnv("TEST_DURATION", 5*time.Minute); got != 5*time.Minute {
		t.Fatalf("expected default duration, got %v", got)
	}

	t.Setenv("TEST_BOOL", "true")
	if got := getBoolEnv("TEST_BOOL", false); got != true {
		t.Fatalf("expected true, got %v", got)
	}
	t.Setenv("TEST_BOOL", "invalid")
	if got := getBoolEnv("TEST_BOOL", true); got != true {
		t.Fatalf("expected default bool, got %v", got)
	}

	t.Setenv("TEST_INT", "42")
	if got := getIntEnv("TEST_INT", 5); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	t.Setenv("TEST_INT", "invalid")
	if got := getIntEnv("TEST_INT", 5); got != 5 {
		t.Fatalf("expected default int, got %d", got)
	}

	t.Setenv("TEST_LIST", " a, ,b ,c")
	got := getListEnv("TEST_LIST")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected list: %v", got)
	}
	if got := getListEnv("MISSING_LIST"); len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
}

func TestLoadRequiresMySQLDSN(t *testing.T) {
	chdirTemp(t)
	setRequiredEnv(t)
	t.Setenv("MYSQL_DSN", "")
	if cfg, err := Load(); err == nil || cfg != nil {
		t.Fatalf("expected error when MYSQL_DSN is missing")
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	chdirTemp(t)
	setRequiredEnv(t)
	t.Setenv("REFRESH_TOKEN_SECRET_KEY", "")
	if cfg, err := Load(); err == nil || cfg != nil {
		t.Fatalf("expected error when a secret is missing")
	}
}

func TestLoadRejectsSharedSecrets(t *testing.T) {
	chdirTemp(t)
	setRequiredEnv(t)
	t.Setenv("EMAIL_VERIFY_SECRET_KEY", "access-secret")
	if cfg, err := Load(); err == nil || cfg != nil {
		t.Fatalf("expected error when secrets are shared")
	}
}

func TestLoadRejectsUnknownAlgorithm(t *testing.T) {
	chdirTemp(t)
	setRequiredEnv(t)
	t.Setenv("JWT_ALGORITHM", "RS256")
	if cfg, err := Load(); err == nil || cfg != nil {
		t.Fatalf("expected error for unsupported algorithm")
	}
}

func TestLoadRejectsNonPositiveDurations(t *testing.T) {
	cases := map[string]string{
		"ACCESS_TOKEN_EXPIRE_HOURS": "-1",
		"REFRESH_TOKEN_EXPIRE_DAYS": "0",
		"EMAIL_VERIFY_EXPIRE_HOURS": "0",
		"TOKEN_CLEANUP_INTERVAL":    "0",
		"TOKEN_CLEANUP_BATCH":       "-5",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			chdirTemp(t)
			setRequiredEnv(t)
			t.Setenv(key, value)
			if cfg, err := Load(); err == nil || cfg != nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLoadSuccess(t *testing.T) {
	chdirTemp(t)
	setRequiredEnv(t)
	t.Setenv("HTTP_PORT", "8081")
	t.Setenv("GRPC_PORT", "9091")
	t.Setenv("JWT_ALGORITHM", "hs512")
	t.Setenv("ACCESS_TOKEN_EXPIRE_HOURS", "2")
	t.Setenv("REFRESH_TOKEN_EXPIRE_DAYS", "3")
	t.Setenv("EMAIL_VERIFY_EXPIRE_HOURS", "4")
	t.Setenv("PASSWORD_MIN_LENGTH", "10")
	t.Setenv("PASSWORD_REQUIRE_UPPERCASE", "false")
	t.Setenv("PASSWORD_REQUIRE_NUMBER", "false")
	t.Setenv("PASSWORD_HASH_COST", "4")
	t.Setenv("FRONTEND_URL", "https://market.example.com/")
	t.Setenv("INTERNAL_API_KEYS", "k1,k2")
	t.Setenv("TOKEN_CLEANUP_INTERVAL", "5")
	t.Setenv("TOKEN_CLEANUP_BATCH", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTPPort != "8081" || cfg.GRPCPort != "9091" {
		t.Fatalf("unexpected ports: %s %s", cfg.HTTPPort, cfg.GRPCPort)
	}
	if cfg.JWT.Algorithm != "HS512" {
		t.Fatalf("unexpected algorithm: %s", cfg.JWT.Algorithm)
	}
	if cfg.JWT.AccessTokenTTL != 2*time.Hour ||
		cfg.JWT.RefreshTokenTTL != 72*time.Hour ||
		cfg.JWT.EmailVerifyTTL != 4*time.Hour {
		t.Fatalf("unexpected ttl: %+v", cfg.JWT)
	}
	if cfg.Password.Policy.MinLength != 10 ||
		cfg.Password.Policy.RequireUppercase != false ||
		cfg.Password.Policy.RequireLowercase != true ||
		cfg.Password.Policy.RequireNumber != false ||
		cfg.Password.Policy.RequireSpecial != true {
		t.Fatalf("unexpected password policy: %+v", cfg.Password.Policy)
	}
	if cfg.Password.HashCost != 4 {
		t.Fatalf("unexpected hash cost: %d", cfg.Password.HashCost)
	}
	if cfg.FrontendURL != "https://market.example.com" {
		t.Fatalf("unexpected frontend url: %s", cfg.FrontendURL)
	}
	if len(cfg.InternalAPIKeys) != 2 {
		t.Fatalf("unexpected api keys: %v", cfg.InternalAPIKeys)
	}
	if cfg.Cleanup.Interval != 5*time.Minute || cfg.Cleanup.BatchSize != 50 {
		t.Fatalf("unexpected cleanup config: %+v", cfg.Cleanup)
	}
}

func TestLoadUsesDefaults(t *testing.T) {
	chdirTemp(t)
	setRequiredEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.JWT.AccessTokenTTL != 24*time.Hour || cfg.JWT.RefreshTokenTTL != 7*24*time.Hour || cfg.JWT.EmailVerifyTTL != time.Hour {
		t.Fatalf("unexpected default ttl: %+v", cfg.JWT)
	}
	if cfg.DefaultRole != "user" {
		t.Fatalf("unexpected default role: %s", cfg.DefaultRole)
	}
	if cfg.NATS.UserEventsSubject != "user_events" || cfg.NATS.EmailEventsSubject != "email_events" {
		t.Fatalf("unexpected nats subjects: %+v", cfg.NATS)
	}
	if cfg.Cleanup.Interval != 10*time.Minute || cfg.Cleanup.BatchSize != 500 {
		t.Fatalf("unexpected cleanup defaults: %+v", cfg.Cleanup)
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{MySQLDSN: "user:pass@tcp(localhost:3306)/auth"}

	parsed, err := mysql.ParseDSN(cfg.DSN())
	if err != nil {
		t.Fatalf("DSN() returned an unparsable dsn: %v", err)
	}
	if !parsed.ParseTime || parsed.Loc != time.UTC {
		t.Fatalf("expected parseTime and UTC, got parseTime=%v loc=%v", parsed.ParseTime, parsed.Loc)
	}
	if parsed.DBName != "auth" || parsed.Addr != "localhost:3306" || parsed.User != "user" {
		t.Fatalf("unexpected dsn fields: %+v", parsed)
	}
}

func TestDSNKeepsUnparsableValue(t *testing.T) {
	cfg := &Config{MySQLDSN: "not a dsn"}
	if got := cfg.DSN(); got != cfg.MySQLDSN {
		t.Fatalf("expected %q, got %q", cfg.MySQLDSN, got)
	}
}

func TestLoadRespectsEnvFileLocation(t *testing.T) {
	tmp := chdirTemp(t)
	for _, key := range []string{"MYSQL_DSN", "ACCESS_TOKEN_SECRET_KEY", "REFRESH_TOKEN_SECRET_KEY", "EMAIL_VERIFY_SECRET_KEY", "HTTP_PORT"} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}

	envPath := filepath.Join(tmp, ".env")
	content := "MYSQL_DSN=user:pass@tcp(localhost:3306)/auth?parseTime=true\n" +
		"ACCESS_TOKEN_SECRET_KEY=envfile-access\n" +
		"REFRESH_TOKEN_SECRET_KEY=envfile-refresh\n" +
		"EMAIL_VERIFY_SECRET_KEY=envfile-verify\n" +
		"HTTP_PORT=9099\n"
	if err := os.WriteFile(envPath, []byte(content), 0600); err != nil {
		t.Fatalf("write .env failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.JWT.AccessSecret != "envfile-access" || cfg.HTTPPort != "9099" {
		t.Fatalf("expected env file values, got %s %s", cfg.JWT.AccessSecret, cfg.HTTPPort)
	}
}
