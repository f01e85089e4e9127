package storage

import (
	"time"

	"github.com/google/uuid"
)

func (s *Store) SaveChatMessage(msg ChatMessage) (ChatMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO chat_messages (id, author, text, stage, agent, run_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Author, msg.Text, msg.Stage, msg.Agent, msg.RunID, formatTime(msg.CreatedAt),
	)
	if err != nil {
		return ChatMessage{}, err
	}
	return msg, nil
}

// ListChatMessages returns the transcript in the order entries were appended.
func (s *Store) ListChatMessages() ([]ChatMessage, error) {
	rows, err := s.db.Query(`SELECT id, author, text, stage, agent, run_id, created_at FROM chat_messages ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []ChatMessage{}
	for rows.Next() {
		var m ChatMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Author, &m.Text, &m.Stage, &m.Agent, &m.RunID, &createdAt); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
