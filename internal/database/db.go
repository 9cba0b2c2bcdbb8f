package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/ebook-storefront/internal/config"
)

// Options tweak the DSN for special-purpose connections.
type Options struct {
	// MultiStatements allows a single Exec to carry several statements.  Only
	// the migration runner needs it.
	MultiStatements bool
}

// DSN renders the go-sql-driver DSN for the configured database.
// parseTime=true maps DATETIME to time.Time and loc=UTC keeps times consistent.
func DSN(dc config.DBConfig, opts Options) string {
	mc := mysql.NewConfig()
	mc.User = dc.User
	mc.Passwd = dc.Pass
	mc.Net = "tcp"
	mc.Addr = dc.Host + ":" + dc.Port
	mc.DBName = dc.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.MultiStatements = opts.MultiStatements
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// Open connects to MySQL and verifies the connection.
func Open(dc config.DBConfig, opts Options) (*sql.DB, error) {
	db, err := sql.Open("mysql", DSN(dc, opts))
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
