package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.JWTIssuer != "medianest-auth" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "medianest-auth")
	}
	if cfg.JWTAudience != "medianest-api" {
		t.Errorf("JWTAudience = %q, want %q", cfg.JWTAudience, "medianest-api")
	}
	if cfg.SessionTTL != "24h" {
		t.Errorf("SessionTTL = %q, want %q", cfg.SessionTTL, "24h")
	}
	if cfg.RememberTokenTTL != "2160h" {
		t.Errorf("RememberTokenTTL = %q, want %q", cfg.RememberTokenTTL, "2160h")
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.PinTTL != "5m" {
		t.Errorf("PinTTL = %q, want %q", cfg.PinTTL, "5m")
	}
	if cfg.PinPollCeiling != 30 {
		t.Errorf("PinPollCeiling = %d, want 30", cfg.PinPollCeiling)
	}
	if cfg.BreakerFailureThreshold != 5 {
		t.Errorf("BreakerFailureThreshold = %d, want 5", cfg.BreakerFailureThreshold)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("RetryMaxAttempts = %d, want 3", cfg.RetryMaxAttempts)
	}
	if cfg.PlexBaseURL != "https://plex.tv" {
		t.Errorf("PlexBaseURL = %q, want default", cfg.PlexBaseURL)
	}
	if cfg.TelemetryKafkaTopic != "medianest-events" {
		t.Errorf("TelemetryKafkaTopic = %q, want %q", cfg.TelemetryKafkaTopic, "medianest-events")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("BCRYPT_COST", "14")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.JWTIssuer != "custom-issuer" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "custom-issuer")
	}
	if cfg.BcryptCost != 14 {
		t.Errorf("BcryptCost = %d, want 14", cfg.BcryptCost)
	}
}

func TestLoad_BCRYPT_COSTRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"valid middle", "12", 12, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero", "0", 12, false}, // defaults to 12
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv("BCRYPT_COST", tc.value)

			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tc.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tc.want)
			}
		})
	}
}

func TestLoad_PinPollCeilingMustBePositive(t *testing.T) {
	os.Clearenv()
	os.Setenv("PIN_POLL_CEILING", "0")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should return error when PIN_POLL_CEILING is zero")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
}

func TestLoad_RateLimitWindowMustParse(t *testing.T) {
	os.Clearenv()
	os.Setenv("RATE_LIMIT_AUTH_WINDOW", "not-a-duration")

	if _, err := Load(); err == nil {
		t.Fatal("Load should return error for an unparseable rate limit window")
	}
}

func TestSessionTTLDuration_ValidDuration(t *testing.T) {
	os.Clearenv()
	os.Setenv("SESSION_TTL", "12h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ttl := cfg.SessionTTLDuration(); ttl != 12*time.Hour {
		t.Errorf("SessionTTLDuration = %v, want %v", ttl, 12*time.Hour)
	}
}

func TestSessionTTLDuration_InvalidDuration(t *testing.T) {
	os.Clearenv()
	os.Setenv("SESSION_TTL", "invalid")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ttl := cfg.SessionTTLDuration(); ttl != 24*time.Hour {
		t.Errorf("SessionTTLDuration = %v, want %v (default)", ttl, 24*time.Hour)
	}
}

func TestRememberTokenTTLDuration_NegativeDuration(t *testing.T) {
	os.Clearenv()
	os.Setenv("REMEMBER_TOKEN_TTL", "-1h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ttl := cfg.RememberTokenTTLDuration(); ttl != 2160*time.Hour {
		t.Errorf("RememberTokenTTLDuration = %v, want %v (default)", ttl, 2160*time.Hour)
	}
}

func TestDependencyTimeoutFor_Override(t *testing.T) {
	os.Clearenv()
	os.Setenv("DEPENDENCY_TIMEOUT", "5s")
	os.Setenv("PLEX_TIMEOUT", "2s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d := cfg.DependencyTimeoutFor("plex"); d != 2*time.Second {
		t.Errorf("DependencyTimeoutFor(plex) = %v, want %v", d, 2*time.Second)
	}
	if d := cfg.DependencyTimeoutFor("mediabroker"); d != 5*time.Second {
		t.Errorf("DependencyTimeoutFor(mediabroker) = %v, want %v", d, 5*time.Second)
	}
	if d := cfg.DependencyTimeoutFor("unknown"); d != 5*time.Second {
		t.Errorf("DependencyTimeoutFor(unknown) = %v, want %v", d, 5*time.Second)
	}
}

func TestBreakerSettingsFor_Override(t *testing.T) {
	os.Clearenv()
	os.Setenv("BREAKER_FAILURE_THRESHOLD", "5")
	os.Setenv("BREAKER_RESET_TIMEOUT", "30s")
	os.Setenv("PLEX_BREAKER_FAILURE_THRESHOLD", "2")
	os.Setenv("MEDIA_BROKER_BREAKER_RESET_TIMEOUT", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n := cfg.BreakerFailureThresholdFor("plex"); n != 2 {
		t.Errorf("BreakerFailureThresholdFor(plex) = %d, want 2", n)
	}
	if n := cfg.BreakerFailureThresholdFor("mediabroker"); n != 5 {
		t.Errorf("BreakerFailureThresholdFor(mediabroker) = %d, want 5", n)
	}
	if n := cfg.BreakerFailureThresholdFor("unknown"); n != 5 {
		t.Errorf("BreakerFailureThresholdFor(unknown) = %d, want 5", n)
	}
	if d := cfg.BreakerResetTimeoutFor("mediabroker"); d != 90*time.Second {
		t.Errorf("BreakerResetTimeoutFor(mediabroker) = %v, want 90s", d)
	}
	if d := cfg.BreakerResetTimeoutFor("plex"); d != 30*time.Second {
		t.Errorf("BreakerResetTimeoutFor(plex) = %v, want 30s", d)
	}
	if d := cfg.BreakerResetTimeoutFor("uptime"); d != 30*time.Second {
		t.Errorf("BreakerResetTimeoutFor(uptime) = %v, want 30s", d)
	}
}

func TestRateLimitRules(t *testing.T) {
	os.Clearenv()
	os.Setenv("RATE_LIMIT_AUTH", "7")
	os.Setenv("RATE_LIMIT_AUTH_WINDOW", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rules := cfg.RateLimitRules()
	if r := rules[EndpointClassAuth]; r.Limit != 7 || r.Window != 30*time.Second {
		t.Errorf("auth rule = %+v, want limit 7 window 30s", r)
	}
	if r := rules[EndpointClassGeneral]; r.Limit != 100 || r.Window != 60*time.Second {
		t.Errorf("general rule = %+v, want limit 100 window 60s", r)
	}
	if r := rules[EndpointClassExternal]; r.Limit != 20 || r.Window != 60*time.Second {
		t.Errorf("external rule = %+v, want limit 20 window 60s", r)
	}
}

func TestTelemetryKafkaBrokersList(t *testing.T) {
	os.Clearenv()
	os.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092 ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	brokers := cfg.TelemetryKafkaBrokersList()
	if len(brokers) != 2 || brokers[0] != "b1:9092" || brokers[1] != "b2:9092" {
		t.Errorf("TelemetryKafkaBrokersList = %v, want [b1:9092 b2:9092]", brokers)
	}
}
