package db

import (
	"context"
	"database/sql"
	"net/url"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nojsfp/internal/config"
)

type DB struct {
	Gorm *gorm.DB
	SQL  *sql.DB
}

func Open(cfg config.DBConfig) (*DB, error) {
	gcfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	dsn, err := WithTimezone(cfg.DSN, cfg.Timezone)
	if err != nil {
		return nil, err
	}
	gdb, err := gorm.Open(postgres.Open(dsn), gcfg)
	if err != nil {
		return nil, err
	}

	sqldb, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &DB{Gorm: gdb, SQL: sqldb}, nil
}

func Close(db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.Close()
}

func Ping(ctx context.Context, db *DB) error {
	if db == nil || db.SQL == nil {
		return nil
	}
	return db.SQL.PingContext(ctx)
}

// WithTimezone sets the session time zone as a connection parameter so every pooled connection
// gets it. URL and keyword/value DSNs are both accepted; an explicit zone in the DSN wins.
func WithTimezone(dsn, tz string) (string, error) {
	if tz == "" {
		return dsn, nil
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", err
		}
		q := u.Query()
		for key := range q {
			if strings.EqualFold(key, "timezone") {
				return dsn, nil
			}
		}
		q.Set("timezone", tz)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	if strings.Contains(strings.ToLower(dsn), "timezone=") {
		return dsn, nil
	}
	return strings.TrimSpace(dsn + " TimeZone=" + tz), nil
}
