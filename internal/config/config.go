// Package config предоставляет структуры и функции для парсинга и загрузки конфига
// сервисов подбора помощников и рассылки уведомлений.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string          `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string          `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string          `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	MetricsAddress          string          `yaml:"metrics_address" env:"METRICS_ADDRESS" env-default:":9091"`
	Redis                   RedisConnection `yaml:"redis_connection"`
	HTTPServer              HTTPServer      `yaml:"http_server"`
	RabbitMQ                RabbitMQ        `yaml:"rabbitmq"`
	Matching                Matching        `yaml:"matching"`
	Notifier                Notifier        `yaml:"notifier"`
	Log                     Log             `yaml:"log"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	// RateLimit допустимое число запросов в секунду на весь API.
	RateLimit float64 `yaml:"rate_limit" env-default:"50"`
	RateBurst int     `yaml:"rate_burst" env-default:"100"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	Addr        string        `yaml:"address" env:"REDIS_ADDRESS"`
	Password    string        `yaml:"password" env:"REDIS_PASSWORD"`
	User        string        `yaml:"user"`
	DB          int           `yaml:"db"`
	MaxRetries  int           `yaml:"max_retries"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Timeout     time.Duration `yaml:"timeout"`
	CacheTTL    time.Duration `yaml:"cache_ttl" env-default:"1h"`
}

// RabbitMQ настройки подключения к брокеру сообщений.
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	MaxRetries int           `yaml:"max_retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
	Prefetch   int           `yaml:"prefetch" env-default:"10"`
}

// Matching параметры отбора подписчиков для рассылки.
type Matching struct {
	RadiusKm        float64 `yaml:"radius_km" env-default:"20"`
	DailyCap        int     `yaml:"daily_cap" env-default:"5"`
	ContactLimit    int     `yaml:"contact_limit" env-default:"5"`
	Workers         int     `yaml:"workers" env-default:"8"`
	DefaultTimezone string  `yaml:"default_timezone" env-default:"Asia/Kolkata"`
}

// Notifier настройки внешнего канала доставки.
type Notifier struct {
	// Channel одно из: whatsapp, email, simulated.
	Channel  string        `yaml:"channel" env:"NOTIFIER_CHANNEL" env-default:"simulated"`
	Timeout  time.Duration `yaml:"timeout" env-default:"10s"`
	WhatsApp WhatsApp      `yaml:"whatsapp"`
	SMTP     SMTP          `yaml:"smtp"`
	// SimulatedFailureRate доля неуспешных отправок в режиме simulated, от 0 до 1.
	SimulatedFailureRate float64 `yaml:"simulated_failure_rate"`
}

// WhatsApp настройки шаблонных сообщений WhatsApp Business.
type WhatsApp struct {
	APIURL        string `yaml:"api_url" env-default:"https://graph.facebook.com/v19.0"`
	Token         string `yaml:"token" env:"WHATSAPP_TOKEN"`
	PhoneNumberID string `yaml:"phone_number_id" env:"WHATSAPP_PHONE_NUMBER_ID"`
	TemplateName  string `yaml:"template_name" env-default:"new_help_request"`
	Language      string `yaml:"language" env-default:"en"`
}

// SMTP настройки почтового канала.
type SMTP struct {
	Host string `yaml:"host" env:"SMTP_HOST"`
	Port string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	User string `yaml:"user" env:"SMTP_USER"`
	Pass string `yaml:"pass" env:"SMTP_PASS"`
}

// Log настройки логирования.
type Log struct {
	Level      string `yaml:"level" env:"LOG_LEVEL" env-default:"debug"`
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env-default:"100"`
	MaxBackups int    `yaml:"max_backups" env-default:"3"`
}

// Location возвращает часовой пояс по умолчанию для подписчиков без собственного.
func (m Matching) Location() (*time.Location, error) {
	return time.LoadLocation(m.DefaultTimezone)
}

// Load читает конфиг из файла и переменных окружения и проверяет его.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("file: %s - does not exist", configPath)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad функция для загрузки конфига по пути из CONFIG_PATH, завершает процесс при ошибке.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

func (c *Config) validate() error {
	if c.Matching.RadiusKm <= 0 {
		return errors.New("matching.radius_km must be positive")
	}
	if c.Matching.DailyCap <= 0 {
		return errors.New("matching.daily_cap must be positive")
	}
	if c.Matching.ContactLimit < 0 {
		return errors.New("matching.contact_limit must not be negative")
	}
	if c.Matching.Workers <= 0 {
		return errors.New("matching.workers must be positive")
	}
	if _, err := c.Matching.Location(); err != nil {
		return fmt.Errorf("matching.default_timezone: %w", err)
	}
	switch c.Notifier.Channel {
	case "whatsapp", "email", "simulated":
	default:
		return fmt.Errorf("notifier.channel: unknown channel %q", c.Notifier.Channel)
	}
	if c.Notifier.Timeout <= 0 {
		return errors.New("notifier.timeout must be positive")
	}
	if c.Notifier.SimulatedFailureRate < 0 || c.Notifier.SimulatedFailureRate > 1 {
		return errors.New("notifier.simulated_failure_rate must be within [0, 1]")
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Redis: %s (db %d)\n"+
			"HTTPServer: %s (timeout %s)\n"+
			"RabbitMQ: retries %d, delay %s\n"+
			"Matching: radius %.1f km, daily cap %d, contact limit %d, workers %d, tz %s\n"+
			"Notifier: %s (timeout %s)\n",
		c.Env,
		c.Redis.Addr, c.Redis.DB,
		c.HTTPServer.Address, c.HTTPServer.Timeout,
		c.RabbitMQ.MaxRetries, c.RabbitMQ.RetryDelay,
		c.Matching.RadiusKm, c.Matching.DailyCap, c.Matching.ContactLimit, c.Matching.Workers, c.Matching.DefaultTimezone,
		c.Notifier.Channel, c.Notifier.Timeout,
	)
}
