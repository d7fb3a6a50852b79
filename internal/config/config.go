package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendScylla = "scylla"
	BackendMongo  = "mongo"
)

type Config struct {
	Environment string `env:"OTC_ENV,default=development"`

	Server        ServerConfig        `env:",prefix=OTC_SERVER_"`
	Logging       LoggingConfig       `env:",prefix=OTC_LOG_"`
	OTP           OTPConfig           `env:",prefix=OTC_OTP_"`
	Storage       StorageConfig       `env:",prefix=OTC_STORAGE_"`
	RateLimit     RateLimitConfig     `env:",prefix=OTC_RATELIMIT_"`
	Redis         RedisConfig         `env:",prefix=OTC_REDIS_"`
	Scylla        ScyllaConfig        `env:",prefix=OTC_SCYLLA_"`
	Mongo         MongoConfig         `env:",prefix=OTC_MONGO_"`
	Kafka         KafkaConfig         `env:",prefix=OTC_KAFKA_"`
	Elasticsearch ElasticsearchConfig `env:",prefix=OTC_ES_"`
	Clickhouse    ClickhouseConfig    `env:",prefix=OTC_CLICKHOUSE_"`
	KMS           KMSConfig           `env:",prefix=OTC_KMS_"`
	Hashing       HashingConfig       `env:",prefix=OTC_HASH_"`
	Bucketing     BucketingConfig     `env:",prefix=OTC_BUCKET_"`
	SMTP          SMTPConfig          `env:",prefix=OTC_SMTP_"`
	JWT           JWTConfig           `env:",prefix=OTC_JWT_"`
}

type ServerConfig struct {
	Host         string        `env:"HOST,default=0.0.0.0"`
	Port         int           `env:"PORT,default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=15s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT,default=60s"`
	// RequestTimeout bounds every handler, store and dispatch calls included.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=30s"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`

	EnableTLS   bool   `env:"TLS_ENABLED,default=false"`
	TLSPort     int    `env:"TLS_PORT,default=8443"`
	AutoCert    bool   `env:"TLS_AUTOCERT,default=false"`
	Domain      string `env:"TLS_DOMAIN,default=localhost"`
	CertFile    string `env:"TLS_CERT_FILE"`
	KeyFile     string `env:"TLS_KEY_FILE"`
	AutoCertDir string `env:"TLS_AUTOCERT_DIR,default=./certs"`
	Email       string `env:"TLS_EMAIL"`
}

type LoggingConfig struct {
	Level  string `env:"LEVEL,default=info"`
	Format string `env:"FORMAT,default=console"`
}

type OTPConfig struct {
	Length         int           `env:"LENGTH,default=6"`
	TTL            time.Duration `env:"TTL,default=10m"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS,default=5"`
	ResendCooldown time.Duration `env:"RESEND_COOLDOWN,default=60s"`
	// SweepInterval drives the memory backend janitor only.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL,default=1m"`
}

type StorageConfig struct {
	Credentials string `env:"CREDENTIALS,default=memory"`
	Accounts    string `env:"ACCOUNTS,default=memory"`
}

// RateLimitConfig throttles the code-sending endpoints per client IP. Redis backs the
// counters when it is the credential backend; otherwise they live in process memory.
type RateLimitConfig struct {
	Enabled  bool          `env:"ENABLED,default=true"`
	Requests int           `env:"REQUESTS,default=10"`
	Window   time.Duration `env:"WINDOW,default=15m"`
}

type RedisConfig struct {
	URL       string `env:"URL,default=redis://localhost:6379/0"`
	Password  string `env:"PASSWORD"`
	DB        int    `env:"DB,default=0"`
	PoolSize  int    `env:"POOL_SIZE,default=20"`
	KeyPrefix string `env:"KEY_PREFIX,default=otc"`

	TLSCAFile   string `env:"TLS_CA_FILE"`
	TLSCertFile string `env:"TLS_CERT_FILE"`
	TLSKeyFile  string `env:"TLS_KEY_FILE"`
}

type ScyllaConfig struct {
	Nodes             []string `env:"NODES,default=127.0.0.1"`
	Keyspace          string   `env:"KEYSPACE,default=internconnect"`
	Username          string   `env:"USERNAME"`
	Password          string   `env:"PASSWORD"`
	ReplicationFactor int      `env:"REPLICATION_FACTOR,default=1"`
	CAPath            string   `env:"CA_PATH"`
	CertPath          string   `env:"CERT_PATH"`
	KeyPath           string   `env:"KEY_PATH"`
}

type MongoConfig struct {
	URI      string `env:"URI,default=mongodb://localhost:27017"`
	Database string `env:"DATABASE,default=internconnect"`
}

type KafkaConfig struct {
	Enabled bool     `env:"ENABLED,default=false"`
	Brokers []string `env:"BROKERS,default=localhost:9092"`
	Topic   string   `env:"TOPIC,default=otc-events"`
}

type ElasticsearchConfig struct {
	Enabled  bool   `env:"ENABLED,default=false"`
	URL      string `env:"URL,default=http://localhost:9200"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	Index    string `env:"INDEX,default=otc-events"`
}

type ClickhouseConfig struct {
	Enabled  bool   `env:"ENABLED,default=false"`
	URL      string `env:"URL,default=localhost:9000"`
	Username string `env:"USERNAME,default=default"`
	Password string `env:"PASSWORD"`
	Database string `env:"DATABASE,default=default"`
	CAFile   string `env:"CA_FILE"`
}

type KMSConfig struct {
	Enabled bool   `env:"ENABLED,default=false"`
	KeyID   string `env:"KEY_ID"`
	Region  string `env:"REGION,default=us-east-1"`
	// LocalMasterKey is a base64 encoded 32 byte key wrapping data keys when KMS is off.
	LocalMasterKey string `env:"LOCAL_MASTER_KEY"`
}

type HashingConfig struct {
	Argon2MemoryCost  int `env:"ARGON2_MEMORY,default=19456"`
	Argon2TimeCost    int `env:"ARGON2_TIME,default=2"`
	Argon2Parallelism int `env:"ARGON2_PARALLELISM,default=1"`
	// Peppers are "version:secret" pairs; the highest version hashes new codes.
	Peppers    []string `env:"PEPPERS"`
	BcryptCost int      `env:"BCRYPT_COST,default=10"`
}

type BucketingConfig struct {
	EventBuckets int `env:"EVENTS,default=64"`
}

type SMTPConfig struct {
	Enabled  bool   `env:"ENABLED,default=false"`
	Host     string `env:"HOST,default=localhost"`
	Port     int    `env:"PORT,default=1025"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM,default=InternConnect <no-reply@internconnect.local>"`
}

type JWTConfig struct {
	Secret    string        `env:"SECRET"`
	AccessTTL time.Duration `env:"ACCESS_TTL,default=24h"`
	Issuer    string        `env:"ISSUER,default=internconnect"`
}

var current *Config

// LoadConfig reads an optional .env file and resolves the process environment.
func LoadConfig() (*Config, error) {
	envFile := os.Getenv("OTC_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg, err := Parse(envconfig.OsLookuper())
	if err != nil {
		return nil, err
	}
	current = cfg
	return cfg, nil
}

// Parse resolves a Config from the given lookuper and validates it.
func Parse(lookuper envconfig.Lookuper) (*Config, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, cfg, lookuper); err != nil {
		return nil, fmt.Errorf("resolving config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get returns the last loaded configuration.
func Get() *Config {
	return current
}

func (c *Config) Validate() error {
	var problems []string

	if c.OTP.Length < 4 || c.OTP.Length > 10 {
		problems = append(problems, "OTC_OTP_LENGTH must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		problems = append(problems, "OTC_OTP_TTL must be positive")
	}
	if c.OTP.MaxAttempts < 1 {
		problems = append(problems, "OTC_OTP_MAX_ATTEMPTS must be at least 1")
	}
	if c.OTP.ResendCooldown < 0 {
		problems = append(problems, "OTC_OTP_RESEND_COOLDOWN must not be negative")
	}
	if c.OTP.SweepInterval <= 0 {
		problems = append(problems, "OTC_OTP_SWEEP_INTERVAL must be positive")
	}
	if !oneOf(c.Storage.Credentials, BackendMemory, BackendRedis, BackendScylla, BackendMongo) {
		problems = append(problems, fmt.Sprintf("unknown credential backend %q", c.Storage.Credentials))
	}
	if !oneOf(c.Storage.Accounts, BackendMemory, BackendScylla, BackendMongo) {
		problems = append(problems, fmt.Sprintf("unknown account backend %q", c.Storage.Accounts))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0) {
		problems = append(problems, "OTC_RATELIMIT_REQUESTS and OTC_RATELIMIT_WINDOW must be positive")
	}
	if c.KMS.Enabled && c.KMS.KeyID == "" {
		problems = append(problems, "OTC_KMS_KEY_ID is required when KMS is enabled")
	}
	if c.Bucketing.EventBuckets < 1 {
		problems = append(problems, "OTC_BUCKET_EVENTS must be at least 1")
	}
	if c.IsProduction() {
		if c.JWT.Secret == "" {
			problems = append(problems, "OTC_JWT_SECRET is required in production")
		}
		if len(c.Hashing.Peppers) == 0 {
			problems = append(problems, "OTC_HASH_PEPPERS is required in production")
		}
		if !c.KMS.Enabled && c.KMS.LocalMasterKey == "" {
			problems = append(problems, "OTC_KMS_LOCAL_MASTER_KEY or KMS is required in production")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
