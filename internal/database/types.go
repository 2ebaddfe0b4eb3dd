package database

import (
	"database/sql"
)

type Database interface {
	Close() error

	// Conversation state, one row per chat
	GetConversation(chatID int64) (*ConversationRow, error)
	SaveHistory(chatID int64, history []byte) error
	SaveTemperature(chatID int64, temperature sql.NullFloat64) error
	SaveSpend(chatID int64, spend float64) error
	SaveLastArtifact(chatID int64, artifact string) error
}

// ConversationRow is the persisted shape of a conversation: the history
// serialized as JSON plus the per-chat scalars.
type ConversationRow struct {
	ChatID       int64
	History      []byte
	Temperature  sql.NullFloat64
	Spend        float64
	LastArtifact string
}
