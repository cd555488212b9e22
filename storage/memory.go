package storage

import (
	"sync"
	"time"
)

const maxEntries = 1000

type MemoryJournal struct {
	entries []Entry
	mutex   sync.RWMutex
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (m *MemoryJournal) Record(entry *Entry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	m.entries = append(m.entries, *entry)
	if len(m.entries) > maxEntries {
		m.entries = m.entries[len(m.entries)-maxEntries:]
	}
	return nil
}

func (m *MemoryJournal) Recent(sessionId int64, limit int) ([]Entry, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var entries []Entry
	for i := len(m.entries) - 1; i >= 0 && len(entries) < limit; i-- {
		if m.entries[i].SessionId == sessionId {
			entries = append(entries, m.entries[i])
		}
	}
	return entries, nil
}

func (m *MemoryJournal) Close() error {
	return nil
}
