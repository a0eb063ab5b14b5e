package config

import (
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Shares   SharesConfig   `mapstructure:"shares"`
	Reaper   ReaperConfig   `mapstructure:"reaper"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Type     string         `mapstructure:"type"` // memory | sqlite | postgres
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type StorageConfig struct {
	Type  string      `mapstructure:"type"` // local | minio
	MinIO MinIOConfig `mapstructure:"minio"`
	Local LocalConfig `mapstructure:"local"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

type LocalConfig struct {
	RootPath string `mapstructure:"root_path"`
}

type SessionsConfig struct {
	Store string        `mapstructure:"store"` // sql | redis
	TTL   time.Duration `mapstructure:"ttl"`
	Redis RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SharesConfig struct {
	DefaultTTL       time.Duration `mapstructure:"default_ttl"`
	DownloadTokenTTL time.Duration `mapstructure:"download_token_ttl"`
	MaxUploadSize    int64         `mapstructure:"max_upload_size"`
	AllowedMimeTypes []string      `mapstructure:"allowed_mime_types"`
}

type ReaperConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads defaults, then an optional config file, then environment
// overrides.
func Load() (*Config, error) {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.sqlite.path", "./data/linkvault.db")
	viper.SetDefault("database.postgres.host", "localhost")
	viper.SetDefault("database.postgres.port", 5432)
	viper.SetDefault("database.postgres.ssl_mode", "disable")
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local.root_path", "./data/uploads")
	viper.SetDefault("storage.minio.endpoint", "localhost:9000")
	viper.SetDefault("storage.minio.use_ssl", false)
	viper.SetDefault("storage.minio.bucket", "linkvault-shares")
	viper.SetDefault("sessions.store", "sql")
	viper.SetDefault("sessions.ttl", 7*24*time.Hour)
	viper.SetDefault("sessions.redis.address", "localhost:6379")
	viper.SetDefault("sessions.redis.db", 0)
	viper.SetDefault("shares.default_ttl", 10*time.Minute)
	viper.SetDefault("shares.download_token_ttl", 5*time.Minute)
	viper.SetDefault("shares.max_upload_size", int64(50*1024*1024))
	viper.SetDefault("shares.allowed_mime_types", []string{})
	viper.SetDefault("reaper.interval", 5*time.Minute)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/linkvault")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	setEnvOverrides()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setEnvOverrides() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		viper.Set("server.host", host)
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		viper.Set("server.port", port)
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		viper.Set("server.mode", mode)
	}

	if dbType := os.Getenv("DATABASE_TYPE"); dbType != "" {
		viper.Set("database.type", dbType)
	}
	if path := os.Getenv("SQLITE_PATH"); path != "" {
		viper.Set("database.sqlite.path", path)
	}
	if pgHost := os.Getenv("POSTGRES_HOST"); pgHost != "" {
		viper.Set("database.postgres.host", pgHost)
	}
	if pgPort := os.Getenv("POSTGRES_PORT"); pgPort != "" {
		if port, err := strconv.Atoi(pgPort); err == nil {
			viper.Set("database.postgres.port", port)
		}
	}
	if pgUser := os.Getenv("POSTGRES_USERNAME"); pgUser != "" {
		viper.Set("database.postgres.username", pgUser)
	}
	if pgPassword := os.Getenv("POSTGRES_PASSWORD"); pgPassword != "" {
		viper.Set("database.postgres.password", pgPassword)
	}
	if pgDatabase := os.Getenv("POSTGRES_DATABASE"); pgDatabase != "" {
		viper.Set("database.postgres.database", pgDatabase)
	}

	if storageType := os.Getenv("STORAGE_TYPE"); storageType != "" {
		viper.Set("storage.type", storageType)
	}
	if root := os.Getenv("UPLOADS_DIR"); root != "" {
		viper.Set("storage.local.root_path", root)
	}
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		viper.Set("storage.minio.endpoint", endpoint)
	}
	if accessKey := os.Getenv("MINIO_ACCESS_KEY"); accessKey != "" {
		viper.Set("storage.minio.access_key", accessKey)
	}
	if secretKey := os.Getenv("MINIO_SECRET_KEY"); secretKey != "" {
		viper.Set("storage.minio.secret_key", secretKey)
	}
	if bucket := os.Getenv("MINIO_BUCKET"); bucket != "" {
		viper.Set("storage.minio.bucket", bucket)
	}

	if sessionStore := os.Getenv("SESSION_STORE"); sessionStore != "" {
		viper.Set("sessions.store", sessionStore)
	}
	if redisAddr := os.Getenv("REDIS_ADDRESS"); redisAddr != "" {
		viper.Set("sessions.redis.address", redisAddr)
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		viper.Set("sessions.redis.password", redisPassword)
	}
	if redisDB := os.Getenv("REDIS_DB"); redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			viper.Set("sessions.redis.db", db)
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		viper.Set("logging.level", level)
	}
}

// DSN builds the database connection string for the configured type.
func (c *Config) DSN() string {
	switch c.Database.Type {
	case "postgres":
		pg := c.Database.Postgres
		dsn := "host=" + pg.Host
		dsn += " port=" + strconv.Itoa(pg.Port)
		dsn += " user=" + pg.Username
		dsn += " password=" + pg.Password
		dsn += " dbname=" + pg.Database
		dsn += " sslmode=" + pg.SSLMode
		return dsn
	case "sqlite":
		return c.Database.SQLite.Path
	default:
		return ""
	}
}

func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}
