package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации сервиса.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig описывает подключение к Redis (кэш верификации и Pub/Sub).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	PublicKey      []byte
	PrivateKey     []byte
}

// AuditConfig — настройки аккумулятора и batch processor'а.
type AuditConfig struct {
	BatchInterval      time.Duration `mapstructure:"batch_interval"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	MaxBatchSize       int           `mapstructure:"max_batch_size"`
	ReconcileAttempts  uint          `mapstructure:"reconcile_attempts"`
	ReconcileBaseDelay time.Duration `mapstructure:"reconcile_base_delay"`

	// Recovery sweep: добор unlinked-событий после рестарта
	RecoverySweep  bool          `mapstructure:"recovery_sweep"`
	RecoveryCutoff time.Duration `mapstructure:"recovery_cutoff"`

	// TTL кэша результатов спот-проверок
	VerifyCacheTTL time.Duration `mapstructure:"verify_cache_ttl"`
}

// LedgerConfig — внешний anchoring ledger и его предохранители.
type LedgerConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	AnchorTimeout time.Duration `mapstructure:"anchor_timeout"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	RateBurst     int           `mapstructure:"rate_burst"`
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// 2. ENV перекрывает файл: AUDIT_MAX_BATCH_SIZE=50 -> audit.max_batch_size
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Ключи из файла ИЛИ напрямую из ENV (для Docker/K8s)
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("audit.batch_interval", 5*time.Minute)
	v.SetDefault("audit.poll_interval", 5*time.Second)
	v.SetDefault("audit.max_batch_size", 100)
	v.SetDefault("audit.reconcile_attempts", 3)
	v.SetDefault("audit.reconcile_base_delay", 100*time.Millisecond)
	v.SetDefault("audit.recovery_sweep", true)
	v.SetDefault("audit.recovery_cutoff", 15*time.Minute)
	v.SetDefault("audit.verify_cache_ttl", time.Minute)

	v.SetDefault("ledger.anchor_timeout", 10*time.Second)
	v.SetDefault("ledger.rate_limit", 5)
	v.SetDefault("ledger.rate_burst", 2)
	v.SetDefault("ledger.cb_max_requests", 3)
	v.SetDefault("ledger.cb_interval", 5*time.Second)
	v.SetDefault("ledger.cb_timeout", 30*time.Second)

	v.SetDefault("auth.token_ttl", 24*time.Hour)
}

// loadKeyResource читает PEM либо из ENV, либо из файла по пути.
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
