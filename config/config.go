package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort     string
	AppMode     string
	CORSOrigins string
	StoreDriver string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	IdentityProvider        string
	JWTSecret               string
	FirebaseProjectID       string
	FirebaseCredentialsFile string

	S3Region     string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string
	S3Endpoint   string
	S3PublicBase string
	MaxUploadMB  int

	LinkRetryAttempts int
	LinkRetryBackoff  time.Duration
	MessageRateLimit  int
	CallRateLimit     int
	CallRingTimeout   time.Duration
}

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	IdentityProviderJWT      = "jwt"
	IdentityProviderFirebase = "firebase"
)

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:     getEnv("APP_PORT", "8080"),
		AppMode:     getEnv("APP_MODE", "debug"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		StoreDriver: getEnv("STORE_DRIVER", StoreDriverPostgres),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "marketchat"),
		DBPort:     getEnv("DB_PORT", "5432"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		IdentityProvider:        getEnv("IDENTITY_PROVIDER", IdentityProviderJWT),
		JWTSecret:               getEnv("JWT_SECRET", "change-me"),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),

		S3Region:     getEnv("S3_REGION", ""),
		S3Bucket:     getEnv("S3_BUCKET", ""),
		S3AccessKey:  getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:  getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		S3PublicBase: getEnv("S3_PUBLIC_BASE", ""),
		MaxUploadMB:  getEnvAsInt("MAX_UPLOAD_MB", 25),

		LinkRetryAttempts: getEnvAsInt("LINK_RETRY_ATTEMPTS", 3),
		LinkRetryBackoff:  getEnvAsDuration("LINK_RETRY_BACKOFF_MS", time.Millisecond, 500*time.Millisecond),
		MessageRateLimit:  getEnvAsInt("MESSAGE_RATE_LIMIT", 60),
		CallRateLimit:     getEnvAsInt("CALL_RATE_LIMIT", 10),
		CallRingTimeout:   getEnvAsDuration("CALL_RING_TIMEOUT_SEC", time.Second, 30*time.Second),
	}
}

// DSN builds the postgres connection string understood by the pgx driver.
func (c *Config) DSN() string {
	return "host=" + c.DBHost + " user=" + c.DBUser + " password=" + c.DBPassword +
		" dbname=" + c.DBName + " port=" + c.DBPort + " sslmode=disable TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration reads an integer count of unit.
func getEnvAsDuration(key string, unit time.Duration, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil && value >= 0 {
		return time.Duration(value) * unit
	}
	return fallback
}
