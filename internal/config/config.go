package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port int

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	JWTSecret string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	RazorpayBaseURL       string

	// EvaluationFee is the fixed fee per task, in the currency's
	// minor unit (paise for INR).
	EvaluationFee int64
	Currency      string

	Scorer        string // "heuristic" or "openai"
	ScorerTimeout time.Duration
	EvalWorkers   int
	EvalQueueSize int

	OpenAIKey   string
	OpenAIModel string

	// RedisAddr enables webhook delivery dedup when set.
	RedisAddr string
	RedisDB   int

	LogLevel  string
	LogFormat string
}

func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", 8080)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_NAME", "taskeval")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("RAZORPAY_BASE_URL", "https://api.razorpay.com")
	v.SetDefault("EVALUATION_FEE", 19900) // ₹199
	v.SetDefault("CURRENCY", "INR")
	v.SetDefault("SCORER", "heuristic")
	v.SetDefault("SCORER_TIMEOUT", "60s")
	v.SetDefault("EVAL_WORKERS", 4)
	v.SetDefault("EVAL_QUEUE_SIZE", 256)
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	return &Config{
		Port: v.GetInt("PORT"),

		DBHost:     v.GetString("DB_HOST"),
		DBPort:     v.GetInt("DB_PORT"),
		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBName:     v.GetString("DB_NAME"),
		DBSSLMode:  v.GetString("DB_SSLMODE"),

		JWTSecret: v.GetString("JWT_SECRET"),

		RazorpayKeyID:         v.GetString("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     v.GetString("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: v.GetString("RAZORPAY_WEBHOOK_SECRET"),
		RazorpayBaseURL:       v.GetString("RAZORPAY_BASE_URL"),

		EvaluationFee: v.GetInt64("EVALUATION_FEE"),
		Currency:      v.GetString("CURRENCY"),

		Scorer:        v.GetString("SCORER"),
		ScorerTimeout: v.GetDuration("SCORER_TIMEOUT"),
		EvalWorkers:   v.GetInt("EVAL_WORKERS"),
		EvalQueueSize: v.GetInt("EVAL_QUEUE_SIZE"),

		OpenAIKey:   v.GetString("OPENAI_API_KEY"),
		OpenAIModel: v.GetString("OPENAI_MODEL"),

		RedisAddr: v.GetString("REDIS_ADDR"),
		RedisDB:   v.GetInt("REDIS_DB"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}
}

func (c *Config) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}
