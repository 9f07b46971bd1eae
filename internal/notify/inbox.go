// Package notify collects user-visible messages for a session until the client
// drains them.
package notify

import (
	"sync"
	"time"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

const DefaultCapacity = 50

type Notification struct {
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Inbox is a bounded FIFO. When full, the oldest notification is dropped.
type Inbox struct {
	mu       sync.Mutex
	items    []Notification
	capacity int
	now      func() time.Time
}

func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Inbox{capacity: capacity, now: time.Now}
}

func (i *Inbox) Notify(level Level, message string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.items) == i.capacity {
		i.items = i.items[1:]
	}
	i.items = append(i.items, Notification{Level: level, Message: message, CreatedAt: i.now()})
}

// Drain returns all pending notifications, oldest first, and empties the inbox.
func (i *Inbox) Drain() []Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.items
	i.items = nil
	if out == nil {
		return []Notification{}
	}
	return out
}

func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.items)
}
