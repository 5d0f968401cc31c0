package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	platformstrings "fintech-id/pkg/platform/strings"
)

// Config is the process-wide configuration. Build it once in main with
// FromEnv and pass sections to the components that need them.
type Config struct {
	Server   Server
	Token    Token
	OTP      OTP
	Postgres Postgres
	Redis    RedisConfig
	AMQP     AMQP
	Kafka    Kafka
	Gateway  Gateway
	LogLevel string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

// Token configures signing and lifetimes of access and refresh tokens.
type Token struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	CookieName string
}

// OTP configures one-time code issuance and verification.
type OTP struct {
	TTL         time.Duration
	MaxAttempts int
	CodeLength  int
}

// Postgres configures the credential store.
type Postgres struct {
	URL            string
	MaxOpenConns   int
	TxTimeout      time.Duration
	MigrateOnStart bool
}

// RedisConfig configures the OTP store connection.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AMQP configures the OTP delivery queue. An empty URL selects the log notifier.
type AMQP struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// Kafka configures the audit stream. No brokers selects the in-memory publisher.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Gateway configures the edge process.
type Gateway struct {
	Addr             string
	UpstreamURL      string
	RoutesFile       string
	PublicRPS        float64
	PublicBurst      int
	BreakerThreshold int
	BreakerTimeout   time.Duration
	TrustedProxies   []string
}

// FromEnv loads an optional .env file and builds Config from the environment.
// Every missing required variable is reported in a single error.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var missing []string
	var errs []error

	cfg := Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Server: Server{
			Addr:            getEnv("USER_SERVICE_ADDR", ":8081"),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second, &errs),
			RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 30*time.Second, &errs),
		},
		Token: Token{
			Secret:     os.Getenv("JWT_SECRET"),
			AccessTTL:  getEnvLifetime("JWT_ACCESS_TTL", 15*time.Minute, &errs),
			RefreshTTL: getEnvLifetime("JWT_REFRESH_TTL", 7*24*time.Hour, &errs),
			CookieName: getEnv("JWT_COOKIE_NAME", "accessToken"),
		},
		OTP: OTP{
			TTL:         getEnvLifetime("OTP_TTL", 120*time.Second, &errs),
			MaxAttempts: getEnvInt("OTP_MAX_ATTEMPTS", 3, &errs),
			CodeLength:  getEnvInt("OTP_CODE_LENGTH", 6, &errs),
		},
		Postgres: Postgres{
			URL:            os.Getenv("DATABASE_URL"),
			MaxOpenConns:   getEnvInt("DATABASE_MAX_OPEN_CONNS", 20, &errs),
			TxTimeout:      getEnvDuration("DATABASE_TX_TIMEOUT", 5*time.Second, &errs),
			MigrateOnStart: getEnv("DATABASE_MIGRATE", "true") == "true",
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10, &errs),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2, &errs),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second, &errs),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second, &errs),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second, &errs),
		},
		AMQP: AMQP{
			URL:        os.Getenv("AMQP_URL"),
			Exchange:   getEnv("AMQP_OTP_EXCHANGE", "notifications"),
			RoutingKey: getEnv("AMQP_OTP_ROUTING_KEY", "sms.otp"),
		},
		Kafka: Kafka{
			Brokers: platformstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_AUDIT_TOPIC", "identity.audit"),
		},
		Gateway: Gateway{
			Addr:             getEnv("GATEWAY_ADDR", ":8080"),
			UpstreamURL:      getEnv("GATEWAY_USER_SERVICE_URL", "http://localhost:8081"),
			RoutesFile:       os.Getenv("GATEWAY_ROUTES_FILE"),
			PublicRPS:        getEnvFloat("GATEWAY_PUBLIC_RPS", 5, &errs),
			PublicBurst:      getEnvInt("GATEWAY_PUBLIC_BURST", 10, &errs),
			BreakerThreshold: getEnvInt("GATEWAY_BREAKER_THRESHOLD", 5, &errs),
			BreakerTimeout:   getEnvDuration("GATEWAY_BREAKER_TIMEOUT", 30*time.Second, &errs),
			TrustedProxies:   platformstrings.SplitList(os.Getenv("GATEWAY_TRUSTED_PROXIES")),
		},
	}

	if strings.TrimSpace(cfg.Token.Secret) == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if strings.TrimSpace(cfg.Token.CookieName) == "" {
		missing = append(missing, "JWT_COOKIE_NAME")
	}
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", ")))
	}
	if cfg.OTP.MaxAttempts <= 0 {
		errs = append(errs, errors.New("OTP_MAX_ATTEMPTS must be positive"))
	}
	if cfg.OTP.CodeLength <= 0 {
		errs = append(errs, errors.New("OTP_CODE_LENGTH must be positive"))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64, errs *[]error) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func getEnvLifetime(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := ParseLifetime(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
