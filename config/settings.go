package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Settings is the process configuration read from the environment
type Settings struct {
	Port        string
	Env         string
	FrontendURL string
	JWTSecret   string

	MongoURI          string
	DBName            string
	MongoTransactions bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SMTPHost   string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	FromEmail  string
	AdminEmail string

	MpesaEnv            string
	MpesaConsumerKey    string
	MpesaConsumerSecret string
	MpesaShortCode      string
	MpesaPassKey        string
	MpesaCallbackURL    string
	MpesaCallbackSecret string
	MpesaDebug          bool

	CardGatewayURL    string
	CardGatewaySecret string
	CardGatewayEnv    string

	StorageDriver     string
	UploadDir         string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3PublicURL       string

	FirebaseCredentialsBase64 string
	FirebaseCredentialsFile   string
	FirebaseProjectID         string

	ShippingFee         float64
	TaxRate             float64
	DefaultProductLimit int
}

// IsProduction reports whether secure cookies and HSTS should be used
func (s *Settings) IsProduction() bool {
	return s.Env == "production" || s.Env == "prod"
}

// Load reads .env when present and builds Settings with defaults
func Load() *Settings {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		mongoURI = os.Getenv("MONGODB_URI")
	}

	return &Settings{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		FrontendURL: strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		MongoURI:          mongoURI,
		DBName:            getEnv("DB_NAME", "nairobi_verified"),
		MongoTransactions: getBool("MONGO_TRANSACTIONS", true),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		SMTPHost:   os.Getenv("SMTP_HOST"),
		SMTPPort:   getInt("SMTP_PORT", 587),
		SMTPUser:   os.Getenv("SMTP_USER"),
		SMTPPass:   os.Getenv("SMTP_PASS"),
		FromEmail:  getEnv("FROM_EMAIL", "no-reply@nairobiverified.co.ke"),
		AdminEmail: os.Getenv("ADMIN_EMAIL"),

		MpesaEnv:            getEnv("MPESA_ENV", "sandbox"),
		MpesaConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
		MpesaConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
		MpesaShortCode:      os.Getenv("MPESA_SHORTCODE"),
		MpesaPassKey:        os.Getenv("MPESA_PASSKEY"),
		MpesaCallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
		MpesaCallbackSecret: os.Getenv("MPESA_CALLBACK_SECRET"),
		MpesaDebug:          getBool("MPESA_DEBUG", false),

		CardGatewayURL:    os.Getenv("CARD_GATEWAY_URL"),
		CardGatewaySecret: os.Getenv("CARD_GATEWAY_SECRET"),
		CardGatewayEnv:    getEnv("CARD_GATEWAY_ENV", "sandbox"),

		StorageDriver:     getEnv("STORAGE_DRIVER", "local"),
		UploadDir:         getEnv("UPLOAD_DIR", "uploads"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Region:          os.Getenv("S3_REGION"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3PublicURL:       os.Getenv("S3_PUBLIC_URL"),

		FirebaseCredentialsBase64: os.Getenv("FIREBASE_CREDENTIALS_BASE64"),
		FirebaseCredentialsFile:   os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		FirebaseProjectID:         os.Getenv("FIREBASE_PROJECT_ID"),

		ShippingFee:         getFloat("SHIPPING_FEE", 200),
		TaxRate:             getFloat("TAX_RATE", 0.16),
		DefaultProductLimit: getInt("DEFAULT_PRODUCT_LIMIT", 10),
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
