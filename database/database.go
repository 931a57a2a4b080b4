package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Connect 连接到数据库
func Connect(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 设置连接池
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

// Migrate 运行数据库迁移
func Migrate(db *sql.DB) error {
	migrations := []string{
		// 上游原始事件归档表, 用于赛后重播
		`CREATE TABLE IF NOT EXISTS feed_messages (
			id BIGSERIAL PRIMARY KEY,
			contest_id VARCHAR(100) NOT NULL,
			event_type VARCHAR(50) NOT NULL,
			routing_key VARCHAR(255),
			payload TEXT NOT NULL,
			received_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feed_messages_contest_id ON feed_messages(contest_id)`,
		`CREATE INDEX IF NOT EXISTS idx_feed_messages_event_type ON feed_messages(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_feed_messages_received_at ON feed_messages(received_at)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
