// Package activity keeps the short "recent activity" list shown on the
// dashboard.
package activity

import (
	"sync"
	"time"
)

// Category groups activity entries and selects their icon.
type Category string

const (
	CategorySystem   Category = "system"
	CategoryDatabase Category = "database"
	CategoryChat     Category = "chat"
	CategoryUpload   Category = "upload"
	CategoryAgent    Category = "agent"
	CategoryAPI      Category = "api"
)

// DefaultCapacity is the number of entries the dashboard shows.
const DefaultCapacity = 5

var icons = map[Category]string{
	CategorySystem:   "fas fa-cog",
	CategoryDatabase: "fas fa-database",
	CategoryChat:     "fas fa-comment",
	CategoryUpload:   "fas fa-upload",
	CategoryAgent:    "fas fa-robot",
	CategoryAPI:      "fas fa-key",
}

// Icon returns the icon class for c.
func Icon(c Category) string {
	if icon, ok := icons[c]; ok {
		return icon
	}
	return "fas fa-info-circle"
}

// Item is one activity entry.
type Item struct {
	Message  string    `json:"message"`
	Category Category  `json:"category"`
	Icon     string    `json:"icon"`
	Time     time.Time `json:"time"`
}

// Log is a bounded list, newest entry first.
type Log struct {
	mu       sync.RWMutex
	items    []Item
	capacity int
	now      func() time.Time
}

// NewLog returns a Log holding at most capacity entries.
// A capacity <= 0 uses DefaultCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity, now: time.Now}
}

// Add inserts an entry at the front, evicting the oldest beyond capacity.
func (l *Log) Add(message string, category Category) Item {
	item := Item{
		Message:  message,
		Category: category,
		Icon:     Icon(category),
		Time:     l.now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append([]Item{item}, l.items...)
	if len(l.items) > l.capacity {
		l.items = l.items[:l.capacity]
	}
	return item
}

// Items returns a copy of the entries, newest first.
func (l *Log) Items() []Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of entries held.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}
