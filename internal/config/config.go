package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Rewards   RewardsConfig
	Topup     TopupConfig
	RateLimit RateLimitConfig
	Scheduler SchedulerConfig
}

// RateLimitConfig throttles point-earning endpoints per member.
type RateLimitConfig struct {
	Enabled   bool
	EarnRate  float64
	EarnBurst int
}

// SchedulerConfig drives the redemption reconciler loop.
type SchedulerConfig struct {
	ReconcileIntervalSec int
	ReconcileMinAgeSec   int
}

// RewardsConfig holds the point amounts credited per rewarded action.
type RewardsConfig struct {
	QuizPoints            int64
	TaskMicroPoints       int64
	TaskVolunteerPoints   int64
	CampaignVotePoints    int64
	EventAttendancePoints int64
	SharePoints           int64
	ReferralBonusPoints   int64
}

// TopupConfig holds the airtime/data provider settings.
type TopupConfig struct {
	Provider       string
	BaseURL        string
	APIKey         string
	APISecret      string
	CallbackSecret string
	TimeoutSec     int
	MaxAttempts    int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "groundswell"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "groundswell"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		Rewards: RewardsConfig{
			QuizPoints:            getenvInt64("REWARD_QUIZ_POINTS", 50),
			TaskMicroPoints:       getenvInt64("REWARD_TASK_MICRO_POINTS", 20),
			TaskVolunteerPoints:   getenvInt64("REWARD_TASK_VOLUNTEER_POINTS", 75),
			CampaignVotePoints:    getenvInt64("REWARD_CAMPAIGN_VOTE_POINTS", 10),
			EventAttendancePoints: getenvInt64("REWARD_EVENT_ATTENDANCE_POINTS", 30),
			SharePoints:           getenvInt64("REWARD_SHARE_POINTS", 5),
			ReferralBonusPoints:   getenvInt64("REWARD_REFERRAL_BONUS_POINTS", 100),
		},
		Topup: TopupConfig{
			Provider:       strings.ToLower(getenv("TOPUP_PROVIDER", "sandbox")),
			BaseURL:        getenv("TOPUP_BASE_URL", ""),
			APIKey:         strings.TrimSpace(getenv("TOPUP_API_KEY", "")),
			APISecret:      strings.TrimSpace(getenv("TOPUP_API_SECRET", "")),
			CallbackSecret: strings.TrimSpace(getenv("TOPUP_CALLBACK_SECRET", "")),
			TimeoutSec:     getenvInt("TOPUP_TIMEOUT_SEC", 15),
			MaxAttempts:    getenvInt("TOPUP_MAX_ATTEMPTS", 3),
		},
		RateLimit: RateLimitConfig{
			Enabled:   getenvBool("RATE_LIMIT_ENABLED", true),
			EarnRate:  getenvFloat("RATE_LIMIT_EARN_RATE", 1),
			EarnBurst: getenvInt("RATE_LIMIT_EARN_BURST", 10),
		},
		Scheduler: SchedulerConfig{
			ReconcileIntervalSec: getenvInt("SCHEDULER_RECONCILE_INTERVAL_SEC", 300),
			ReconcileMinAgeSec:   getenvInt("SCHEDULER_RECONCILE_MIN_AGE_SEC", 900),
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
