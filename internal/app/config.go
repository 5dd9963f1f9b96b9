package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageDriver выбирает реализацию хранилища.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config — настройки запуска сервиса. Загружаются из YAML-файла,
// переменные окружения BMS_* перекрывают значения файла.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	Storage StorageConfig `yaml:"storage"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Redis   RedisConfig   `yaml:"redis"`
	Payment PaymentConfig `yaml:"payment"`
	Mileage MileageConfig `yaml:"mileage"`

	Booking   BookingConfig   `yaml:"booking"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// StorageConfig — настройки хранилища.
type StorageConfig struct {
	Driver      StorageDriver `yaml:"driver"`
	PostgresDSN string        `yaml:"postgres_dsn"`
	AutoMigrate bool          `yaml:"auto_migrate"`
}

// KafkaConfig — настройки брокера. Пустой список brokers отключает публикацию.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// RedisConfig — настройки Redis для кэша токена платёжного шлюза.
// Пустой addr переключает кэш на in-memory реализацию.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PaymentConfig — настройки клиента платёжного шлюза.
type PaymentConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	APISecret string        `yaml:"api_secret"`
	Timeout   time.Duration `yaml:"timeout"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// MileageConfig — настройки сервиса миль. Пустой base_url отключает начисление.
type MileageConfig struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout"`
	RatePermille int64         `yaml:"rate_permille"`
}

// BookingConfig — настройки жизненного цикла брони.
type BookingConfig struct {
	// ConfirmDelay — задержка автоподтверждения после сверки оплаты.
	ConfirmDelay time.Duration `yaml:"confirm_delay"`
}

// OutboxConfig — настройки воркера публикации.
type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	// MaxPending — порог отставания очереди для health check.
	MaxPending int `yaml:"max_pending"`
}

// SchedulerConfig — настройки воркера автоподтверждений.
type SchedulerConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	BatchSize         int           `yaml:"batch_size"`
}

// DefaultConfig возвращает настройки для локального запуска без внешних систем.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		Storage: StorageConfig{
			Driver:      StorageDriverMemory,
			AutoMigrate: true,
		},
		Kafka: KafkaConfig{
			Topic: "bms.booking.events",
		},
		Payment: PaymentConfig{
			Timeout:  5 * time.Second,
			TokenTTL: 10 * time.Minute,
		},
		Mileage: MileageConfig{
			Timeout:      5 * time.Second,
			RatePermille: 10,
		},
		Booking: BookingConfig{
			ConfirmDelay: 30 * time.Minute,
		},
		Outbox: OutboxConfig{
			PollInterval: 5 * time.Second,
			BatchSize:    100,
			MaxAttempts:  3,
			RetryDelay:   200 * time.Millisecond,
			MaxPending:   1000,
		},
		Scheduler: SchedulerConfig{
			PollInterval:      5 * time.Second,
			ReconcileInterval: time.Minute,
			BatchSize:         100,
		},
	}
}

// LoadConfig читает конфигурацию: значения по умолчанию, затем YAML-файл
// (если путь не пуст), затем переменные окружения.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.Storage.Driver != StorageDriverMemory && cfg.Storage.Driver != StorageDriverPostgres {
		return Config{}, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
	if cfg.Storage.Driver == StorageDriverPostgres && cfg.Storage.PostgresDSN == "" {
		return Config{}, fmt.Errorf("postgres driver requires a dsn")
	}

	return cfg, nil
}

// applyEnv перекрывает настройки переменными окружения. Секреты приходят
// только отсюда: в YAML их не кладут.
func (c *Config) applyEnv() {
	setString(&c.HTTPAddr, "BMS_HTTP_ADDR")
	setString(&c.MetricsAddr, "BMS_METRICS_ADDR")

	if v := strings.TrimSpace(os.Getenv("BMS_STORAGE_DRIVER")); v != "" {
		c.Storage.Driver = StorageDriver(v)
	}
	setString(&c.Storage.PostgresDSN, "BMS_POSTGRES_DSN")

	if v := strings.TrimSpace(os.Getenv("BMS_KAFKA_BROKERS")); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	setString(&c.Kafka.Topic, "BMS_KAFKA_TOPIC")

	setString(&c.Redis.Addr, "BMS_REDIS_ADDR")
	setString(&c.Redis.Password, "BMS_REDIS_PASSWORD")
	if v := strings.TrimSpace(os.Getenv("BMS_REDIS_DB")); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}

	setString(&c.Payment.BaseURL, "BMS_PAYMENT_BASE_URL")
	setString(&c.Payment.APIKey, "BMS_PAYMENT_API_KEY")
	setString(&c.Payment.APISecret, "BMS_PAYMENT_API_SECRET")

	setString(&c.Mileage.BaseURL, "BMS_MILEAGE_BASE_URL")
	setString(&c.Mileage.APIKey, "BMS_MILEAGE_API_KEY")

	if v := strings.TrimSpace(os.Getenv("BMS_CONFIRM_DELAY")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Booking.ConfirmDelay = d
		}
	}
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}
