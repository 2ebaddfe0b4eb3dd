package chat

import (
	"database/sql"
	"encoding/json"
	"math"
	"sync"

	"github.com/snusnumrick/robie/internal/database"
	"github.com/snusnumrick/robie/internal/logger"
)

// Conversation owns everything the bot remembers about one chat.
type Conversation struct {
	ChatID       int64
	History      []Message
	Temperature  *float64
	Spend        float64
	LastArtifact string
}

// Store is the single owner of per-conversation state. A conversation
// is loaded from the database on first access and every mutation is
// written back immediately (last write wins). Callers are expected to
// serialize turns within one chat; the store's own locking only
// protects the cache across chats.
type Store struct {
	db     database.Database
	logger logger.Logger

	mu            sync.Mutex
	conversations map[int64]*Conversation
}

func NewStore(db database.Database, log logger.Logger) *Store {
	return &Store{
		db:            db,
		logger:        log,
		conversations: make(map[int64]*Conversation),
	}
}

// get returns the cached conversation, loading it from the database on
// a cache miss. Unreadable rows and corrupt history payloads start the
// chat empty, never fail the turn.
func (s *Store) get(chatID int64) *Conversation {
	if conv, ok := s.conversations[chatID]; ok {
		return conv
	}

	conv := &Conversation{ChatID: chatID}
	row, err := s.db.GetConversation(chatID)
	if err != nil {
		s.logger.WithError(err).WithField("chat_id", chatID).Error("Failed to load conversation, starting empty")
	} else if row != nil {
		conv = s.fromRow(*row)
	}

	s.conversations[chatID] = conv
	return conv
}

func (s *Store) fromRow(row database.ConversationRow) *Conversation {
	conv := &Conversation{
		ChatID:       row.ChatID,
		Spend:        row.Spend,
		LastArtifact: row.LastArtifact,
	}
	if row.Temperature.Valid {
		t := row.Temperature.Float64
		conv.Temperature = &t
	}
	if len(row.History) > 0 {
		if err := json.Unmarshal(row.History, &conv.History); err != nil {
			s.logger.WithError(err).WithField("chat_id", row.ChatID).Warn("Corrupt history, starting empty")
			conv.History = nil
		}
	}
	return conv
}

// History returns a copy of the chat's message sequence.
func (s *Store) History(chatID int64) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message{}, s.get(chatID).History...)
}

func (s *Store) SetHistory(chatID int64, history []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(chatID).History = history
	return s.persistHistory(chatID)
}

func (s *Store) Append(chatID int64, messages ...Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.get(chatID)
	conv.History = append(conv.History, messages...)
	return s.persistHistory(chatID)
}

// Reset empties the history. The system message is not re-seeded here;
// the next inbound message does that.
func (s *Store) Reset(chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(chatID).History = []Message{}
	return s.persistHistory(chatID)
}

func (s *Store) persistHistory(chatID int64) error {
	data, err := json.Marshal(s.get(chatID).History)
	if err != nil {
		return err
	}
	return s.db.SaveHistory(chatID, data)
}

// SetTemperature stores the bias verbatim, NaN included. NaN has no
// REAL representation, so it persists as NULL and reads back as unset
// after a restart, same as the original JSON store.
func (s *Store) SetTemperature(chatID int64, temperature float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := temperature
	s.get(chatID).Temperature = &t

	value := sql.NullFloat64{Float64: temperature, Valid: !math.IsNaN(temperature)}
	return s.db.SaveTemperature(chatID, value)
}

func (s *Store) Temperature(chatID int64) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.get(chatID)
	if conv.Temperature == nil {
		return 0, false
	}
	return *conv.Temperature, true
}

// AddSpend accumulates the cost estimate; it never decreases.
func (s *Store) AddSpend(chatID int64, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.get(chatID)
	conv.Spend += amount
	return s.db.SaveSpend(chatID, conv.Spend)
}

func (s *Store) Spend(chatID int64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(chatID).Spend
}

// SetLastArtifact records the latest derived natural-language content
// for the chat: a caption, a transcript or a reply. Last write wins.
func (s *Store) SetLastArtifact(chatID int64, artifact string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(chatID).LastArtifact = artifact
	return s.db.SaveLastArtifact(chatID, artifact)
}

func (s *Store) LastArtifact(chatID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(chatID).LastArtifact
}
