package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/config"
)

// openPostgres opens the connection with lib/pq and hands it to gorm
func openPostgres(cfg config.PostgresConfig, gormCfg *gorm.Config) (*gorm.DB, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(5)

	return gorm.Open(postgres.New(postgres.Config{Conn: conn}), gormCfg)
}
