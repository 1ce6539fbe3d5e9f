package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Port    string  `yaml:"port" env:"PORT" env-default:"8080"`
	MySQL   MySQL   `yaml:"mysql"`
	Redis   Redis   `yaml:"redis"`
	Cache   Cache   `yaml:"cache"`
	Seckill Seckill `yaml:"seckill"`
}

type MySQL struct {
	User         string `yaml:"user" env:"MYSQL_USER" env-default:"root"`
	Password     string `yaml:"password" env:"MYSQL_PASSWORD" env-default:"root"`
	Host         string `yaml:"host" env:"MYSQL_HOST" env-default:"localhost"`
	Port         string `yaml:"port" env:"MYSQL_PORT" env-default:"3306"`
	DatabaseName string `yaml:"database_name" env:"MYSQL_DATABASE" env-default:"seckill"`

	MaxOpenConns    int `yaml:"max_open_conns" env:"MYSQL_MAX_OPEN_CONNS" env-default:"50"`
	MaxIdleConns    int `yaml:"max_idle_conns" env:"MYSQL_MAX_IDLE_CONNS" env-default:"25"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime_minutes" env:"MYSQL_CONN_MAX_LIFETIME" env-default:"5"`
}

func (m *MySQL) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		m.User, m.Password, m.Host, m.Port, m.DatabaseName)
}

type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	PoolSize int    `yaml:"pool_size" env:"REDIS_POOL_SIZE" env-default:"100"`
}

type Cache struct {
	TTLMinutes     int `yaml:"ttl_minutes" env:"CACHE_TTL_MINUTES" env-default:"30"`
	NullTTLMinutes int `yaml:"null_ttl_minutes" env:"CACHE_NULL_TTL_MINUTES" env-default:"2"`
	RebuildWorkers int `yaml:"rebuild_workers" env:"CACHE_REBUILD_WORKERS" env-default:"10"`
	RebuildQueue   int `yaml:"rebuild_queue" env:"CACHE_REBUILD_QUEUE" env-default:"100"`
}

type Seckill struct {
	// Optional demo voucher seeded at startup; 0 disables seeding.
	DemoVoucherID int64 `yaml:"demo_voucher_id" env:"SECKILL_DEMO_VOUCHER_ID" env-default:"0"`
	DemoStock     int64 `yaml:"demo_stock" env:"SECKILL_DEMO_STOCK" env-default:"100"`
}

// Load reads the config file when it exists and falls back to environment
// variables otherwise.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := cleanenv.ReadConfig(configPath, cfg); err != nil {
				return nil, fmt.Errorf("read config file %s: %w", configPath, err)
			}
			return cfg, nil
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}
