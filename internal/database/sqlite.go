package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/snusnumrick/robie/internal/logger"
)

type sqliteDB struct {
	db     *sql.DB
	logger logger.Logger
}

func NewSQLiteDB(dsn string, log logger.Logger) (Database, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	log.WithFields(logger.Fields{
		"DSN": dsn,
	}).Debug("Database opened")

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(db, log); err != nil {
		return nil, err
	}

	return &sqliteDB{db: db, logger: log}, nil
}

func (s *sqliteDB) Close() error {
	return s.db.Close()
}

func (s *sqliteDB) GetConversation(chatID int64) (*ConversationRow, error) {
	row := ConversationRow{ChatID: chatID}
	err := s.db.QueryRow(`
		SELECT history, temperature, spend, last_artifact
		FROM conversations WHERE chat_id = ?
	`, chatID).Scan(&row.History, &row.Temperature, &row.Spend, &row.LastArtifact)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &row, nil
}

func (s *sqliteDB) SaveHistory(chatID int64, history []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO conversations (chat_id, history)
		VALUES (?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET history = excluded.history, updated_at = CURRENT_TIMESTAMP
	`, chatID, history)
	return err
}

func (s *sqliteDB) SaveTemperature(chatID int64, temperature sql.NullFloat64) error {
	_, err := s.db.Exec(`
		INSERT INTO conversations (chat_id, temperature)
		VALUES (?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET temperature = excluded.temperature, updated_at = CURRENT_TIMESTAMP
	`, chatID, temperature)
	return err
}

func (s *sqliteDB) SaveSpend(chatID int64, spend float64) error {
	_, err := s.db.Exec(`
		INSERT INTO conversations (chat_id, spend)
		VALUES (?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET spend = excluded.spend, updated_at = CURRENT_TIMESTAMP
	`, chatID, spend)
	return err
}

func (s *sqliteDB) SaveLastArtifact(chatID int64, artifact string) error {
	_, err := s.db.Exec(`
		INSERT INTO conversations (chat_id, last_artifact)
		VALUES (?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET last_artifact = excluded.last_artifact, updated_at = CURRENT_TIMESTAMP
	`, chatID, artifact)
	return err
}
