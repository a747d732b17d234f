package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Auth     AuthConfig
	Mail     MailConfig
	Storage  StorageConfig
	App      AppConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт). Используется для всех режимов.
	Addrs []string `mapstructure:"addrs"`

	// Addr: Альтернативный адрес для режима 'single'.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	// MaxRetries: Максимальное количество попыток переподключения (-1 - бесконечно).
	MaxRetries int `mapstructure:"max_retries"`

	// MinRetryBackoff: Минимальный интервал между попытками (в миллисекундах).
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`

	// MaxRetryBackoff: Максимальный интервал между попытками (в миллисекундах).
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`
}

// JWTConfig содержит настройки JWT
type JWTConfig struct {
	Secret        string `mapstructure:"secret"`
	ExpirationHrs int    `mapstructure:"expirationHrs"`
}

// AuthConfig содержит настройки аутентификации
type AuthConfig struct {
	SessionLimit         int
	RefreshTokenLifetime int // в часах
}

// MailConfig содержит настройки исходящей почты
type MailConfig struct {
	// Enabled: выключенная почта переводит отправку писем в noop-режим
	Enabled      bool   `mapstructure:"enabled"`
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from"`
	// BaseURL используется для построения ссылок подтверждения email
	BaseURL string `mapstructure:"base_url"`
	// VerificationTTL: срок действия ссылки подтверждения
	VerificationTTL time.Duration `mapstructure:"verification_ttl"`
	// ResendCooldown: минимальный интервал между повторными отправками
	ResendCooldown time.Duration `mapstructure:"resend_cooldown"`
}

// StorageConfig содержит настройки объектного хранилища для аватаров
type StorageConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	EndpointURL     string `mapstructure:"endpoint_url"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
}

// AppConfig содержит флаги приложения
type AppConfig struct {
	// Issuer: название продукта, попадает в otpauth:// URI
	Issuer string `mapstructure:"issuer"`
	// DemoMode: в демо-режиме администраторам запрещено подключать TOTP
	DemoMode bool `mapstructure:"demo_mode"`
	// RegistrationEnabled: позволяет полностью отключить регистрацию
	RegistrationEnabled bool `mapstructure:"registration_enabled"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// Load загружает конфигурацию из файла
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Используем новый экземпляр Viper, чтобы избежать глобального состояния

	// Значения по умолчанию
	vip.SetDefault("app.issuer", "account-api")
	vip.SetDefault("app.registration_enabled", true)
	vip.SetDefault("mail.verification_ttl", 24*time.Hour)
	vip.SetDefault("mail.resend_cooldown", 30*time.Minute)
	vip.SetDefault("auth.sessionLimit", 10)
	vip.SetDefault("auth.refreshTokenLifetime", 720)

	// Привязываем переменные окружения ЯВНО
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS")
	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	vip.BindEnv("jwt.secret", "JWT_SECRET")
	vip.BindEnv("jwt.expirationHrs", "JWT_EXPIRATIONHRS")

	vip.BindEnv("auth.sessionLimit", "AUTH_SESSIONLIMIT")
	vip.BindEnv("auth.refreshTokenLifetime", "AUTH_REFRESHTOKENLIFETIME")

	vip.BindEnv("mail.enabled", "MAIL_ENABLED")
	vip.BindEnv("mail.resend_api_key", "MAIL_RESEND_API_KEY")
	vip.BindEnv("mail.from", "MAIL_FROM")
	vip.BindEnv("mail.base_url", "MAIL_BASE_URL")

	vip.BindEnv("storage.enabled", "STORAGE_ENABLED")
	vip.BindEnv("storage.region", "STORAGE_REGION")
	vip.BindEnv("storage.bucket", "STORAGE_BUCKET")
	vip.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	vip.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	vip.BindEnv("storage.endpoint_url", "STORAGE_ENDPOINT_URL")
	vip.BindEnv("storage.public_base_url", "STORAGE_PUBLIC_BASE_URL")

	vip.BindEnv("app.issuer", "APP_ISSUER")
	vip.BindEnv("app.demo_mode", "APP_DEMO_MODE")
	vip.BindEnv("app.registration_enabled", "APP_REGISTRATION_ENABLED")

	vip.BindEnv("server.port", "SERVER_PORT")

	// Путь к файлу конфигурации (не страшно, если файла нет, т.к. есть BindEnv)
	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Логирование конфигурации (только в debug режиме)
	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Addr: %s", cfg.Redis.Addr)
		log.Printf("JWT Expiration Hours: %d", cfg.JWT.ExpirationHrs)
		log.Printf("Mail Enabled: %t", cfg.Mail.Enabled)
		log.Printf("Storage Enabled: %t", cfg.Storage.Enabled)
		log.Printf("Demo Mode: %t", cfg.App.DemoMode)
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("-----------------------------------------")
	}

	// Проверка обязательных параметров
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT secret is required in config (check JWT_SECRET env var)")
	}
	if cfg.Database.Host == "" || cfg.Database.DBName == "" || cfg.Database.User == "" {
		return nil, fmt.Errorf("database configuration (host, dbname, user) is incomplete in config (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if cfg.Mail.Enabled && (cfg.Mail.ResendAPIKey == "" || cfg.Mail.From == "" || cfg.Mail.BaseURL == "") {
		return nil, fmt.Errorf("mail is enabled but resend_api_key, from or base_url is missing")
	}
	if cfg.Storage.Enabled && cfg.Storage.Bucket == "" {
		return nil, fmt.Errorf("storage is enabled but bucket is missing")
	}

	return &cfg, nil
}
