// Package session provides conversation history persistence and the
// short-lived credential session store.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Message represents a chat message in a conversation history.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// History holds the persisted message sequence for one conversation.
type History struct {
	Key       string         `json:"key"`
	Messages  []Message      `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	mu        sync.RWMutex
}

// NewHistory creates an empty history with the given key.
func NewHistory(key string) *History {
	now := time.Now()
	return &History{
		Key:       key,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  map[string]any{},
	}
}

// AddMessage appends a message.
func (h *History) AddMessage(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.Messages = append(h.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	h.UpdatedAt = time.Now()
}

// Recent returns up to maxMessages of the newest messages.
func (h *History) Recent(maxMessages int) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.Messages) <= maxMessages {
		result := make([]Message, len(h.Messages))
		copy(result, h.Messages)
		return result
	}
	result := make([]Message, maxMessages)
	copy(result, h.Messages[len(h.Messages)-maxMessages:])
	return result
}

// Clear removes all messages.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.Messages = []Message{}
	h.UpdatedAt = time.Now()
}

// Manager manages conversation history persistence as JSONL files: one
// metadata line followed by one line per message.
type Manager struct {
	dir   string
	cache map[string]*History
	mu    sync.RWMutex
}

// NewManager creates a history manager storing files under dir.
func NewManager(dir string) *Manager {
	os.MkdirAll(dir, 0755)
	return &Manager{
		dir:   dir,
		cache: make(map[string]*History),
	}
}

// GetOrCreate returns an existing history or creates a new one.
func (m *Manager) GetOrCreate(key string) *History {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.cache[key]; ok {
		return h
	}

	h := m.load(key)
	if h == nil {
		h = NewHistory(key)
	}

	m.cache[key] = h
	return h
}

// Save persists a history to disk.
func (m *Manager) Save(h *History) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.historyPath(h.Key)

	h.mu.RLock()
	defer h.mu.RUnlock()

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create history file: %w", err)
	}
	defer file.Close()

	meta := map[string]any{
		"_type":      "metadata",
		"created_at": h.CreatedAt.Format(time.RFC3339),
		"updated_at": h.UpdatedAt.Format(time.RFC3339),
		"metadata":   h.Metadata,
	}
	metaLine, _ := json.Marshal(meta)
	file.WriteString(string(metaLine) + "\n")

	for _, msg := range h.Messages {
		msgLine, _ := json.Marshal(msg)
		file.WriteString(string(msgLine) + "\n")
	}

	m.cache[h.Key] = h
	return nil
}

// Delete removes a history.
func (m *Manager) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.cache, key)

	if err := os.Remove(m.historyPath(key)); err != nil {
		return false
	}
	return true
}

func (m *Manager) historyPath(key string) string {
	safeKey := strings.ReplaceAll(key, ":", "_")
	// Strip path separators and traversal components to prevent path injection.
	safeKey = strings.ReplaceAll(safeKey, "/", "_")
	safeKey = strings.ReplaceAll(safeKey, "\\", "_")
	safeKey = strings.ReplaceAll(safeKey, "..", "_")
	return filepath.Join(m.dir, filepath.Base(safeKey)+".jsonl")
}

func (m *Manager) load(key string) *History {
	file, err := os.Open(m.historyPath(key))
	if err != nil {
		return nil
	}
	defer file.Close()

	h := NewHistory(key)
	decoder := json.NewDecoder(file)

	for decoder.More() {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			break
		}

		var check map[string]any
		if json.Unmarshal(raw, &check) == nil && check["_type"] == "metadata" {
			if created, ok := check["created_at"].(string); ok {
				h.CreatedAt, _ = time.Parse(time.RFC3339, created)
			}
			if updated, ok := check["updated_at"].(string); ok {
				h.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
			}
			if meta, ok := check["metadata"].(map[string]any); ok {
				h.Metadata = meta
			}
			continue
		}

		var msg Message
		if json.Unmarshal(raw, &msg) == nil {
			h.Messages = append(h.Messages, msg)
		}
	}

	return h
}
