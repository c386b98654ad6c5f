package config

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// SetupDatabase initializes the database connection and creates the schema
func SetupDatabase(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	if cfg.Database.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}

	if err := CreateTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// schema is written in the subset of SQL that PostgreSQL and SQLite share.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) PRIMARY KEY,
		email VARCHAR(255) UNIQUE NOT NULL,
		name VARCHAR(255) NOT NULL,
		password VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL,
		color VARCHAR(16) NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS expenses (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		date VARCHAR(10) NOT NULL,
		amount NUMERIC(14,2) NOT NULL,
		description TEXT NOT NULL,
		category_id VARCHAR(36),
		sub_category VARCHAR(32) NOT NULL DEFAULT '',
		consumption_rate INTEGER NOT NULL DEFAULT 0 CHECK (consumption_rate >= 0 AND consumption_rate <= 100),
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS meal_preps (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL,
		date VARCHAR(10) NOT NULL,
		consumption_rate INTEGER NOT NULL DEFAULT 0 CHECK (consumption_rate >= 0 AND consumption_rate <= 100),
		is_used BOOLEAN NOT NULL DEFAULT FALSE,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	// consumed_rate is NULL for batches made before the debit was recorded
	`CREATE TABLE IF NOT EXISTS meal_prep_ingredients (
		meal_prep_id VARCHAR(36) NOT NULL REFERENCES meal_preps(id) ON DELETE CASCADE,
		ingredient_id VARCHAR(36) NOT NULL,
		position INTEGER NOT NULL,
		consumed_rate INTEGER,
		PRIMARY KEY (meal_prep_id, ingredient_id)
	)`,
	`CREATE TABLE IF NOT EXISTS meal_logs (
		id VARCHAR(36) PRIMARY KEY,
		user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		date VARCHAR(10) NOT NULL,
		meal_type VARCHAR(16) NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	// used_rate is NULL for logs written before the exact rate was stored
	`CREATE TABLE IF NOT EXISTS meal_log_ingredients (
		meal_log_id VARCHAR(36) NOT NULL REFERENCES meal_logs(id) ON DELETE CASCADE,
		ingredient_id VARCHAR(36) NOT NULL,
		position INTEGER NOT NULL,
		used_rate INTEGER,
		PRIMARY KEY (meal_log_id, ingredient_id)
	)`,
	`CREATE TABLE IF NOT EXISTS meal_log_meal_preps (
		meal_log_id VARCHAR(36) NOT NULL REFERENCES meal_logs(id) ON DELETE CASCADE,
		meal_prep_id VARCHAR(36) NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (meal_log_id, meal_prep_id)
	)`,
}

var indexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_categories_user_id ON categories(user_id)",
	"CREATE INDEX IF NOT EXISTS idx_expenses_user_date ON expenses(user_id, date)",
	"CREATE INDEX IF NOT EXISTS idx_meal_preps_user_id ON meal_preps(user_id)",
	"CREATE INDEX IF NOT EXISTS idx_meal_logs_user_date ON meal_logs(user_id, date)",
}

// CreateTables creates the necessary tables in the database
func CreateTables(db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
