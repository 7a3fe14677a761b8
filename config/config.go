package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Драйверы хранилища
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server struct {
		Port int
	}
	DB struct {
		Host     string
		Port     int
		User     string
		Password string
		DBName   string
		SSLMode  string
	}
	JWT struct {
		SecretKey string
		ExpiresIn int // в часах
	}
	RateLimit struct {
		Requests int
		Window   time.Duration
	}
	StorageDriver  string
	MigrationsPath string
	LogDir         string // пусто: логи пишутся в stdout/stderr
	AdminEmail     string // пользователь с этим email получает роль ADMIN при регистрации
}

// NewConfig создает новый экземпляр конфигурации.
// Порядок источников: значения по умолчанию, файл CONFIG_FILE, переменные окружения (.env загружается заранее).
func NewConfig() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации %s: %v", file, err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "bank_db")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("JWT_SECRET_KEY", "your-secret-key-here")
	v.SetDefault("JWT_EXPIRES_IN", "24")
	v.SetDefault("STORAGE_DRIVER", StorageDriverPostgres)
	v.SetDefault("MIGRATIONS_PATH", "database/migrations")
	v.SetDefault("LOG_DIR", "")
	v.SetDefault("RATE_LIMIT_REQUESTS", "100")
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("ADMIN_EMAIL", "")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	var err error

	// Настройки сервера
	if cfg.Server.Port, err = intValue(v, "SERVER_PORT"); err != nil {
		return nil, fmt.Errorf("неверный формат порта сервера: %v", err)
	}

	// Настройки базы данных
	cfg.DB.Host = v.GetString("DB_HOST")
	if cfg.DB.Port, err = intValue(v, "DB_PORT"); err != nil {
		return nil, fmt.Errorf("неверный формат порта базы данных: %v", err)
	}
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.DBName = v.GetString("DB_NAME")
	cfg.DB.SSLMode = v.GetString("DB_SSLMODE")

	// Настройки JWT
	cfg.JWT.SecretKey = v.GetString("JWT_SECRET_KEY")
	if cfg.JWT.ExpiresIn, err = intValue(v, "JWT_EXPIRES_IN"); err != nil {
		return nil, fmt.Errorf("неверный формат времени жизни JWT: %v", err)
	}

	// Ограничение частоты запросов
	if cfg.RateLimit.Requests, err = intValue(v, "RATE_LIMIT_REQUESTS"); err != nil {
		return nil, fmt.Errorf("неверный формат лимита запросов: %v", err)
	}
	if cfg.RateLimit.Window, err = time.ParseDuration(v.GetString("RATE_LIMIT_WINDOW")); err != nil {
		return nil, fmt.Errorf("неверный формат окна лимита запросов: %v", err)
	}

	cfg.StorageDriver = strings.ToLower(v.GetString("STORAGE_DRIVER"))
	if cfg.StorageDriver != StorageDriverPostgres && cfg.StorageDriver != StorageDriverMemory {
		return nil, fmt.Errorf("неизвестный драйвер хранилища: %s", cfg.StorageDriver)
	}
	cfg.MigrationsPath = v.GetString("MIGRATIONS_PATH")
	cfg.LogDir = v.GetString("LOG_DIR")
	cfg.AdminEmail = strings.ToLower(strings.TrimSpace(v.GetString("ADMIN_EMAIL")))

	return cfg, nil
}

// intValue читает целое значение и возвращает ошибку вместо молчаливого нуля
func intValue(v *viper.Viper, key string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(v.GetString(key)))
}

// TokenTTL время жизни токена доступа
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.JWT.ExpiresIn) * time.Hour
}

// PostgresDSN строка подключения для gorm
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.DBName, c.DB.SSLMode)
}

// MigrateURL строка подключения для golang-migrate
func (c *Config) MigrateURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.DBName, c.DB.SSLMode)
}
