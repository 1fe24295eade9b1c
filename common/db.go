package common

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"time"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"
)

// Flags win over the environment, which wins over the defaults. The
// environment is read when connecting so that values from .env apply.
var (
	mysqlUser     = flag.String("mysql_user", "", "MySQL user (env PRICEMAP_MYSQL_USER, default server).")
	mysqlPassword = flag.String("mysql_password", "", "MySQL password (env PRICEMAP_MYSQL_PASSWORD, default secret).")
	mysqlHost     = flag.String("mysql_host", "", "MySQL host (env PRICEMAP_MYSQL_HOST, default localhost).")
	mysqlPort     = flag.String("mysql_port", "", "MySQL port (env PRICEMAP_MYSQL_PORT, default 3306).")
	mysqlDb       = flag.String("mysql_db", "", "MySQL database to use (env PRICEMAP_MYSQL_DB, default pricemap).")
)

func setting(flagValue string, keys []string, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return envString(keys, defaultValue)
}

func mysqlAddress() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4",
		setting(*mysqlUser, []string{"PRICEMAP_MYSQL_USER", "MYSQL_USER"}, "server"),
		setting(*mysqlPassword, []string{"PRICEMAP_MYSQL_PASSWORD", "MYSQL_PASSWORD"}, "secret"),
		setting(*mysqlHost, []string{"PRICEMAP_MYSQL_HOST", "MYSQL_HOST"}, "localhost"),
		setting(*mysqlPort, []string{"PRICEMAP_MYSQL_PORT", "MYSQL_PORT"}, "3306"),
		setting(*mysqlDb, []string{"PRICEMAP_MYSQL_DB", "MYSQL_DB"}, "pricemap"))
}

func DBConnect() (*sql.DB, error) {
	db, err := sql.Open("mysql", mysqlAddress())
	if err != nil {
		log.Errorf("Failed to connect to the database: %v", err)
		return nil, err
	}

	maxOpen := envInt([]string{"PRICEMAP_DB_MAX_OPEN_CONNS", "DB_MAX_OPEN_CONNS"}, 25)
	maxIdle := envInt([]string{"PRICEMAP_DB_MAX_IDLE_CONNS", "DB_MAX_IDLE_CONNS"}, 10)
	connMaxLifetimeMin := envInt([]string{"PRICEMAP_DB_CONN_MAX_LIFETIME_MIN", "DB_CONN_MAX_LIFETIME_MIN"}, 5)
	pingMaxWaitSec := envInt([]string{"PRICEMAP_DB_PING_MAX_WAIT_SEC", "DB_PING_MAX_WAIT_SEC"}, 60)

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Duration(connMaxLifetimeMin) * time.Minute)

	deadline := time.Now().Add(time.Duration(pingMaxWaitSec) * time.Second)
	waitInterval := time.Second
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		pingErr := db.PingContext(ctx)
		cancel()
		if pingErr == nil {
			break
		}
		if time.Now().After(deadline) {
			db.Close()
			return nil, fmt.Errorf("database ping timeout after %ds: %w", pingMaxWaitSec, pingErr)
		}
		log.Warnf("Database connection failed, retrying in %v: %v", waitInterval, pingErr)
		time.Sleep(waitInterval)
		waitInterval *= 2
		if waitInterval > 30*time.Second {
			waitInterval = 30 * time.Second
		}
	}

	log.Infof("Established db connection pool: open=%d idle=%d max_lifetime_min=%d", maxOpen, maxIdle, connMaxLifetimeMin)
	return db, nil
}
