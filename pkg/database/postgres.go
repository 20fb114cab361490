package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/civic-workflow-api/pkg/config"
)

const (
	applicationName       = "civic-workflow-api"
	defaultConnectTimeout = 5 * time.Second
)

// NewPostgres opens a pool sized and aged by cfg and verifies it within the connect timeout.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dataSourceName(cfg))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	configurePool(db, cfg)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return db, nil
}

func configurePool(db *sqlx.DB, cfg config.DatabaseConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
}

// dataSourceName renders cfg as a lib/pq keyword/value string. Empty settings are left to
// libpq defaults; values are quoted so passwords may contain spaces or quotes.
func dataSourceName(cfg config.DatabaseConfig) string {
	settings := [][2]string{
		{"host", cfg.Host},
		{"user", cfg.User},
		{"password", cfg.Password},
		{"dbname", cfg.Name},
		{"sslmode", cfg.SSLMode},
		{"application_name", applicationName},
	}
	if cfg.Port > 0 {
		settings = append(settings, [2]string{"port", strconv.Itoa(cfg.Port)})
	}
	if cfg.ConnectTimeout >= time.Second {
		settings = append(settings, [2]string{"connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout / time.Second))})
	}

	parts := make([]string, 0, len(settings))
	for _, kv := range settings {
		if kv[1] == "" {
			continue
		}
		parts = append(parts, kv[0]+"="+quoteDSNValue(kv[1]))
	}
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
