package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "time"    // time parses interval values
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  Durations are given as Go duration
// strings (e.g. "5m", "48h") so operators can tune intervals without a
// rebuild.
type Config struct {
    Env              string        // application environment (e.g. "dev", "prod")
    Port             string        // HTTP port to listen on
    DBUser           string        // database username
    DBPass           string        // database password (optional)
    DBHost           string        // database host address
    DBPort           string        // database port number
    DBName           string        // database name
    TokenSecret      string        // secret used to sign session transport tokens
    SessionTTLDays   int           // absolute session lifetime in days
    ReservationTTL   time.Duration // how long a primary hold lasts before the sweep expires it
    SweepInterval    time.Duration // how often the expiry sweeper runs
    AdminKeyHash     string        // bcrypt hash of the key required to mint admin sessions
    SessionCookie    string        // name of the cookie carrying the transport token
    PrefTTLDays      int           // lifetime of the persisted preference entries
}

// Load reads configuration values from environment variables and returns
// a Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
    return Config{
        Env:            must("APP_ENV"),
        Port:           must("APP_PORT"),
        DBUser:         must("DB_USER"),
        DBPass:         os.Getenv("DB_PASS"), // empty allowed
        DBHost:         must("DB_HOST"),
        DBPort:         must("DB_PORT"),
        DBName:         must("DB_NAME"),
        TokenSecret:    must("SESSION_TOKEN_SECRET"),
        SessionTTLDays: intOr("SESSION_TTL_DAYS", 30),
        ReservationTTL: durOr("RESERVATION_TTL", 48*time.Hour),
        SweepInterval:  durOr("SWEEP_INTERVAL", time.Minute),
        AdminKeyHash:   os.Getenv("ADMIN_KEY_HASH"), // empty disables admin session minting
        SessionCookie:  envOr("SESSION_COOKIE_NAME", "session_id"),
        PrefTTLDays:    intOr("PREF_TTL_DAYS", 365),
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// envOr returns the variable's value or the given default when unset.
func envOr(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

// intOr converts the variable to an integer, falling back to def when
// unset.  An unparsable value is fatal rather than silently defaulted.
func intOr(key string, def int) int {
    s := os.Getenv(key)
    if s == "" {
        return def
    }
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}

// durOr converts the variable to a time.Duration, falling back to def
// when unset.
func durOr(key string, def time.Duration) time.Duration {
    s := os.Getenv(key)
    if s == "" {
        return def
    }
    d, err := time.ParseDuration(s)
    if err != nil {
        log.Fatalf("invalid duration for %s: %q", key, s)
    }
    return d
}
