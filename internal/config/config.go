package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	DefaultSpeedMps float64
	DispatchTopN    int
	BroadcastAll    bool
	OSRMEndpoint    string
	ETACacheTTL     time.Duration

	LoyaltyPointsPerRide int64

	JWTSecret string

	PaymentGateway   string // "mpesa" or "stripe"
	MpesaBaseURL     string
	MpesaKey         string
	MpesaSecret      string
	MpesaShortCode   string
	MpesaPasskey     string
	MpesaCallbackURL string
	StripeAPIKey     string
	StripeCurrency   string

	FCMEndpoint string
	FCMKey      string

	LogLevel string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:             ":8080",
		ReadTimeout:          5 * time.Second,
		WriteTimeout:         10 * time.Second,
		IdleTimeout:          120 * time.Second,
		ShutdownTimeout:      15 * time.Second,
		RedisGeoKey:          "drivers_geo",
		KafkaTopic:           "driver-locations",
		DefaultSpeedMps:      10,
		DispatchTopN:         8,
		ETACacheTTL:          30 * time.Second,
		LoyaltyPointsPerRide: 15,
		PaymentGateway:       "mpesa",
		MpesaBaseURL:         "https://sandbox.safaricom.co.ke",
		StripeCurrency:       "kes",
		LogLevel:             "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setFloatFromEnv(&cfg.DefaultSpeedMps, "DISPATCH_DEFAULT_SPEED_MPS", &errs)
	setIntFromEnv(&cfg.DispatchTopN, "DISPATCH_TOP_N", &errs)
	cfg.BroadcastAll = strings.EqualFold(os.Getenv("DISPATCH_BROADCAST_ALL"), "true")
	cfg.OSRMEndpoint = strings.TrimSpace(os.Getenv("OSRM_ENDPOINT"))
	setDurationFromEnv(&cfg.ETACacheTTL, "ETA_CACHE_TTL", &errs)

	setInt64FromEnv(&cfg.LoyaltyPointsPerRide, "LOYALTY_POINTS_PER_RIDE", &errs)

	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	setStringFromEnv(&cfg.PaymentGateway, "PAYMENT_GATEWAY")
	setStringFromEnv(&cfg.MpesaBaseURL, "MPESA_BASE_URL")
	cfg.MpesaKey = os.Getenv("MPESA_CONSUMER_KEY")
	cfg.MpesaSecret = os.Getenv("MPESA_CONSUMER_SECRET")
	cfg.MpesaShortCode = os.Getenv("MPESA_SHORT_CODE")
	cfg.MpesaPasskey = os.Getenv("MPESA_PASSKEY")
	cfg.MpesaCallbackURL = os.Getenv("MPESA_CALLBACK_URL")
	cfg.StripeAPIKey = os.Getenv("STRIPE_API_KEY")
	setStringFromEnv(&cfg.StripeCurrency, "STRIPE_CURRENCY")

	cfg.FCMEndpoint = os.Getenv("FCM_ENDPOINT")
	cfg.FCMKey = os.Getenv("FCM_KEY")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.DispatchTopN <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_TOP_N must be > 0"))
	}
	if cfg.LoyaltyPointsPerRide <= 0 {
		errs = append(errs, fmt.Errorf("LOYALTY_POINTS_PER_RIDE must be > 0"))
	}
	switch cfg.PaymentGateway {
	case "mpesa", "stripe":
	default:
		errs = append(errs, fmt.Errorf("PAYMENT_GATEWAY must be mpesa or stripe"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setInt64FromEnv(target *int64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
