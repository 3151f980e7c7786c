package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"

	"github.com/rl1809/checkout/internal/logger"
)

const (
	BackendMySQL  = "mysql"
	BackendMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	App    AppConfig
	HTTP   HTTPConfig
	GRPC   GRPCConfig
	Store  StoreConfig
	MySQL  MySQLConfig
	Redis  RedisConfig
	Ledger LedgerConfig
	Log    logger.Config
}

type AppConfig struct {
	Name string
	Env  string
}

type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type GRPCConfig struct {
	Addr string
}

// StoreConfig selects the backend holding customers, products and orders
type StoreConfig struct {
	Backend string // mysql or memory
}

type MySQLConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// LockWaitTimeout bounds how long a reservation waits for product row locks
	LockWaitTimeout time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	Enabled        bool
	Addr           string
	Password       string
	DB             int
	PoolSize       int
	IdempotencyTTL time.Duration
}

// LedgerConfig configures the in-memory ledger
type LedgerConfig struct {
	LockWait time.Duration
}

// Load reads configuration.
// Priority (highest to lowest):
// 1. Environment variables with CHECKOUT_ prefix (e.g., CHECKOUT_MYSQL_PASSWORD)
// 2. config.yaml found in paths (or the working directory)
// 3. Built-in defaults
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("CHECKOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		HTTP: HTTPConfig{
			Addr:         v.GetString("http.addr"),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
		},
		GRPC: GRPCConfig{
			Addr: v.GetString("grpc.addr"),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(v.GetString("store.backend")),
		},
		MySQL: MySQLConfig{
			Host:            v.GetString("mysql.host"),
			Port:            v.GetInt("mysql.port"),
			User:            v.GetString("mysql.user"),
			Password:        v.GetString("mysql.password"),
			DBName:          v.GetString("mysql.dbname"),
			MaxOpenConns:    v.GetInt("mysql.max_open_conns"),
			MaxIdleConns:    v.GetInt("mysql.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("mysql.conn_max_lifetime"),
			LockWaitTimeout: v.GetDuration("mysql.lock_wait_timeout"),
			AutoMigrate:     v.GetBool("mysql.auto_migrate"),
		},
		Redis: RedisConfig{
			Enabled:        v.GetBool("redis.enabled"),
			Addr:           v.GetString("redis.addr"),
			Password:       v.GetString("redis.password"),
			DB:             v.GetInt("redis.db"),
			PoolSize:       v.GetInt("redis.pool_size"),
			IdempotencyTTL: v.GetDuration("redis.idempotency_ttl"),
		},
		Ledger: LedgerConfig{
			LockWait: v.GetDuration("ledger.lock_wait"),
		},
		Log: logger.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "checkout")
	v.SetDefault("app.env", "development")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 5*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("grpc.addr", ":50051")

	v.SetDefault("store.backend", BackendMySQL)

	v.SetDefault("mysql.host", "localhost")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.password", "root")
	v.SetDefault("mysql.dbname", "checkout")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 25)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("mysql.lock_wait_timeout", 2*time.Second)
	v.SetDefault("mysql.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 100)
	v.SetDefault("redis.idempotency_ttl", 24*time.Hour)

	v.SetDefault("ledger.lock_wait", 2*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendMySQL:
		if c.MySQL.MaxOpenConns <= 0 {
			return fmt.Errorf("mysql.max_open_conns must be positive")
		}
		if c.MySQL.MaxIdleConns > c.MySQL.MaxOpenConns {
			return fmt.Errorf("mysql.max_idle_conns (%d) cannot exceed mysql.max_open_conns (%d)",
				c.MySQL.MaxIdleConns, c.MySQL.MaxOpenConns)
		}
		if c.MySQL.LockWaitTimeout < time.Second {
			return fmt.Errorf("mysql.lock_wait_timeout must be at least 1s, got %s", c.MySQL.LockWaitTimeout)
		}
	case BackendMemory:
		if c.Ledger.LockWait <= 0 {
			return fmt.Errorf("ledger.lock_wait must be positive")
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendMySQL, BackendMemory, c.Store.Backend)
	}

	if c.Redis.Enabled && c.Redis.IdempotencyTTL <= 0 {
		return fmt.Errorf("redis.idempotency_ttl must be positive")
	}
	if c.App.Env == "production" && c.Store.Backend == BackendMemory {
		return fmt.Errorf("store.backend=memory is not allowed in production")
	}
	return nil
}

// DSN returns the go-sql-driver DSN. The InnoDB lock wait timeout is sent as
// a session variable so every pooled connection bounds its row-lock waits.
func (m MySQLConfig) DSN() string {
	c := mysql.NewConfig()
	c.User = m.User
	c.Passwd = m.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
	c.DBName = m.DBName
	c.ParseTime = true
	c.Loc = time.UTC
	c.Params = map[string]string{
		"innodb_lock_wait_timeout": strconv.Itoa(lockWaitSeconds(m.LockWaitTimeout)),
	}
	return c.FormatDSN()
}

func lockWaitSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
