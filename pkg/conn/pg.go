package conn

import (
	"fmt"
	"net/url"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// PostgresConfig defines connection parameters for PostgreSQL. A
// non-empty ConnString wins over the individual fields.
type PostgresConfig struct {
	Host       string            `json:"host"`
	Port       int               `json:"port"`
	User       string            `json:"user"`
	Password   string            `json:"password"`
	Database   string            `json:"database"`
	SSLMode    string            `json:"sslMode"`
	Params     map[string]string `json:"params"`
	ConnString string            `json:"connString"`
}

func (c PostgresConfig) withDefaults() PostgresConfig {
	if c.Host == "" {
		c.Host = defaultPostgresHost
	}
	if c.Port == 0 {
		c.Port = defaultPostgresPort
	}
	if c.SSLMode == "" {
		c.SSLMode = defaultPostgresSSLMode
	}
	return c
}

// DSN builds the connection string.
func (c PostgresConfig) DSN() string {
	if c.ConnString != "" {
		return c.ConnString
	}
	c = c.withDefaults()

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.Database != "" {
		u.Path = "/" + c.Database
	}

	query := url.Values{}
	query.Set("sslmode", c.SSLMode)
	for key, value := range c.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()

	return u.String()
}

// OpenPostgres opens a gorm connection pool against the configured
// database.
func OpenPostgres(cfg PostgresConfig, gormCfg *gorm.Config) (*gorm.DB, error) {
	if gormCfg == nil {
		gormCfg = &gorm.Config{}
	}
	return gorm.Open(postgres.Open(cfg.DSN()), gormCfg)
}

// ClosePostgres closes the pool behind a gorm handle.
func ClosePostgres(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
