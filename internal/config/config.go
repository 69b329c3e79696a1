package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Token issuance and verification.
	JWTSigningSecret    string `mapstructure:"JWT_SIGNING_SECRET"`
	ServiceIssuer       string `mapstructure:"SERVICE_ISSUER"`
	AppleJWKSURL        string `mapstructure:"APPLE_JWKS_URL"`
	AppleIssuer         string `mapstructure:"APPLE_ISSUER"`
	AppleWebClientID    string `mapstructure:"APPLE_WEB_CLIENT_ID"`
	AppleMobileClientID string `mapstructure:"APPLE_MOBILE_CLIENT_ID"`

	// External services.
	EMRFHIRURL          string `mapstructure:"EMR_FHIR_URL"`
	MetriportAPIURL     string `mapstructure:"METRIPORT_API_URL"`
	MetriportAPISecret  string `mapstructure:"METRIPORT_API_SECRET"`
	MetriportWebhookKey string `mapstructure:"METRIPORT_WEBHOOK_KEY"`
	MetriportKeyHeader  string `mapstructure:"METRIPORT_KEY_HEADER"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("APPLE_JWKS_URL", "https://appleid.apple.com/auth/keys")
	v.SetDefault("APPLE_ISSUER", "https://appleid.apple.com")
	v.SetDefault("METRIPORT_API_URL", "https://api.metriport.com")
	v.SetDefault("METRIPORT_KEY_HEADER", "x-api-key")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("JWT_SIGNING_SECRET")
	v.BindEnv("SERVICE_ISSUER")
	v.BindEnv("APPLE_JWKS_URL")
	v.BindEnv("APPLE_ISSUER")
	v.BindEnv("APPLE_WEB_CLIENT_ID")
	v.BindEnv("APPLE_MOBILE_CLIENT_ID")
	v.BindEnv("EMR_FHIR_URL")
	v.BindEnv("METRIPORT_API_URL")
	v.BindEnv("METRIPORT_API_SECRET")
	v.BindEnv("METRIPORT_WEBHOOK_KEY")
	v.BindEnv("METRIPORT_KEY_HEADER")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// AppleAudiences lists the client ids accepted in token audience claims. Both
// the web and the mobile client exchange Apple tokens against this service.
func (c *Config) AppleAudiences() []string {
	var audiences []string
	if c.AppleWebClientID != "" {
		audiences = append(audiences, c.AppleWebClientID)
	}
	if c.AppleMobileClientID != "" {
		audiences = append(audiences, c.AppleMobileClientID)
	}
	return audiences
}

// Validate checks that the configuration is safe to run. Outside development
// every secret-bearing setting must be present so the server never starts
// with an auth path silently disabled.
func (c *Config) Validate() error {
	if c.IsDev() {
		return nil
	}
	if c.JWTSigningSecret == "" {
		return fmt.Errorf("JWT_SIGNING_SECRET is required outside development")
	}
	if c.ServiceIssuer == "" {
		return fmt.Errorf("SERVICE_ISSUER is required outside development")
	}
	if len(c.AppleAudiences()) == 0 {
		return fmt.Errorf("at least one of APPLE_WEB_CLIENT_ID and APPLE_MOBILE_CLIENT_ID is required outside development")
	}
	if c.EMRFHIRURL == "" {
		return fmt.Errorf("EMR_FHIR_URL is required outside development")
	}
	if c.MetriportAPISecret == "" {
		return fmt.Errorf("METRIPORT_API_SECRET is required outside development")
	}
	if c.MetriportWebhookKey == "" {
		return fmt.Errorf("METRIPORT_WEBHOOK_KEY is required outside development")
	}
	return nil
}
