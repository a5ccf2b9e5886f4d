// Package config loads application configuration from environment
// variables.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.  Each field
// corresponds to an environment variable: strings for identifiers and
// secrets, durations for anything time-based.
type Config struct {
	Env          string // application environment (e.g. "dev", "prod")
	Port         string // HTTP port to listen on
	DBUser       string // database username
	DBPass       string // database password (optional)
	DBHost       string // database host address
	DBPort       string // database port number
	DBName       string // database name
	JWTSecret    string // secret used to sign JWTs
	AccessTTLMin int    // access token time-to-live in minutes
	BcryptCost   int    // bcrypt cost for password hashing

	HoldTTL       time.Duration // how long a seat hold lives
	HoldSweep     time.Duration // interval between hold sweeps
	PaymentSweep  time.Duration // interval between payment sweeps
	TicketSweep   time.Duration // interval between ticket sweeps
	TicketMaxAge  time.Duration // age after which a PENDING ticket is stale
	MockpaySecret string        // webhook secret of the mockpay gateway
	HMACPayClient string        // client id for the hmacpay gateway
	HMACPaySecret string        // shared secret for the hmacpay gateway
}

// Load reads configuration values from environment variables.
// Required variables are enforced by must(); missing values cause the
// program to exit with a fatal log message.  Sweep and TTL settings
// have sensible defaults and are only overridden when set.
func Load() Config {
	return Config{
		Env:          must("APP_ENV"),
		Port:         must("APP_PORT"),
		DBUser:       must("DB_USER"),
		DBPass:       os.Getenv("DB_PASS"),
		DBHost:       must("DB_HOST"),
		DBPort:       must("DB_PORT"),
		DBName:       must("DB_NAME"),
		JWTSecret:    must("JWT_SECRET"),
		AccessTTLMin: mustInt("ACCESS_TOKEN_TTL_MIN"),
		BcryptCost:   mustInt("BCRYPT_COST"),

		HoldTTL:       envDur("HOLD_TTL", 10*time.Minute),
		HoldSweep:     envDur("SWEEP_HOLD_INTERVAL", 30*time.Second),
		PaymentSweep:  envDur("SWEEP_PAYMENT_INTERVAL", time.Minute),
		TicketSweep:   envDur("SWEEP_TICKET_INTERVAL", 30*time.Second),
		TicketMaxAge:  envDur("TICKET_MAX_AGE", 10*time.Minute),
		MockpaySecret: envStr("MOCKPAY_SECRET", "mockpay-dev-secret"),
		HMACPayClient: os.Getenv("HMACPAY_CLIENT_ID"),
		HMACPaySecret: os.Getenv("HMACPAY_SECRET"),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and
// exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the value into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
