package database

import (
	"fmt"

	"github.com/boubkhaled/streampump/internal/models"
	"gorm.io/driver/clickhouse"
	"gorm.io/gorm"
)

func newClickHouse(config models.DatabaseConfig) (*DB, error) {
	var dsn string
	if config.DSN != "" {
		dsn = config.DSN
	} else {
		dsn = fmt.Sprintf(
			"clickhouse://%s:%s@%s:%d/%s",
			config.Username,
			config.Password,
			config.Host,
			config.Port,
			config.Database,
		)
	}

	gormDB, err := gorm.Open(clickhouse.New(clickhouse.Config{
		DSN:                    dsn,
		DefaultGranularity:     3,
		DefaultCompression:     "LZ4",
		DefaultIndexType:       "minmax",
		DefaultTableEngineOpts: "ENGINE=MergeTree() ORDER BY id",
	}), &gorm.Config{
		// Prepared statements panic with the ClickHouse driver on SELECTs
		// and column introspection, so keep them off.
		PrepareStmt: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	db := &DB{
		DB:         gormDB,
		config:     config,
		driverName: "clickhouse",
	}

	db.setConnectionPool()

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return db, nil
}

// runClickHouseMigrations creates the transfer tables with raw SQL instead of
// AutoMigrate, which has incomplete support in the ClickHouse driver.
func runClickHouseMigrations(db *gorm.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS transfers (
			id String,
			source_type String,
			source_path String,
			source_url String,
			sink_type String,
			sink_path String,
			chunk_size Int32,
			state String,
			bytes_moved Int64,
			chunks Int64,
			error String,
			created_at DateTime DEFAULT now(),
			updated_at DateTime DEFAULT now(),
			started_at Nullable(DateTime),
			finished_at Nullable(DateTime)
		) ENGINE = MergeTree()
		ORDER BY id`,

		`CREATE TABLE IF NOT EXISTS transfer_events (
			id UInt64,
			transfer_id String,
			type String,
			bytes Int64,
			chunks Int64,
			error String,
			created_at DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY (transfer_id, created_at)`,
	}

	for _, query := range queries {
		if err := db.Exec(query).Error; err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}
