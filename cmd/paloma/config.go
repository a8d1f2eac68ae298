package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/paloma-health/paloma-server/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8080"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the paloma server will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key
	// Symmetric key used to sign JWT access tokens
	SecretKey string

	// Environment
	Environment string

	// Origins the browser test harness may call from
	CORSAllowedOrigins []string

	// Token lifetimes, zero means service defaults
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Per-IP requests per minute, zero means middleware defaults
	// Credential endpoints have their own stricter bucket
	RateLimitRPM     int
	AuthRateLimitRPM int
}

func NewConfig() *Config {
	return &Config{
		LogLevel:    defaultLoggingLevel,
		ListenAddr:  defaultListenAddr,
		Environment: defaultEnvironment,
	}
}

// Load variables from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setStrings := func(o *[]string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = strings.Split(value, ",")
			}
		}
	}
	setDuration := func(o *time.Duration) func(value string) {
		return func(value string) {
			if d, err := time.ParseDuration(value); err == nil {
				*o = d
			}
		}
	}
	setInt := func(o *int) func(value string) {
		return func(value string) {
			if n, err := strconv.Atoi(value); err == nil {
				*o = n
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":          setString(&c.ListenAddr),
		"DATABASE_URI":         setString(&c.DatabaseDSN),
		"SECRET_KEY":           setString(&c.SecretKey),
		"LOG_LEVEL":            setString(&c.LogLevel),
		"ENVIRONMENT":          setString(&c.Environment),
		"CORS_ALLOWED_ORIGINS": setStrings(&c.CORSAllowedOrigins),
		"ACCESS_TOKEN_TTL":     setDuration(&c.AccessTokenTTL),
		"REFRESH_TOKEN_TTL":    setDuration(&c.RefreshTokenTTL),
		"RATE_LIMIT_RPM":       setInt(&c.RateLimitRPM),
		"AUTH_RATE_LIMIT_RPM":  setInt(&c.AuthRateLimitRPM),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("paloma", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringSliceVar(&c.CORSAllowedOrigins, "cors-origins", c.CORSAllowedOrigins, "Allowed CORS origins")
	fs.DurationVar(&c.AccessTokenTTL, "access-ttl", c.AccessTokenTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTokenTTL, "refresh-ttl", c.RefreshTokenTTL, "Refresh token lifetime")
	fs.IntVar(&c.RateLimitRPM, "rate-limit", c.RateLimitRPM, "Per-IP requests per minute, 0 uses built-in default")
	fs.IntVar(&c.AuthRateLimitRPM, "auth-rate-limit", c.AuthRateLimitRPM, "Per-IP requests per minute on credential endpoints, 0 uses built-in default")

	return fs.Parse(args)
}
