package storage

import "time"

// Entry is one completed submission. The script itself is not kept.
type Entry struct {
	TaskId      string        `bson:"task_id"`
	SessionId   int64         `bson:"session_id"`
	Topic       string        `bson:"topic"`
	Tone        string        `bson:"tone"`
	Format      string        `bson:"format"`
	Temperature float64       `bson:"temperature"`
	SearchTool  string        `bson:"search_tool"`
	Outcome     string        `bson:"outcome"`
	StatusCode  int           `bson:"status_code"`
	Error       string        `bson:"error,omitempty"`
	Elapsed     time.Duration `bson:"elapsed"`
	CreatedAt   time.Time     `bson:"created_at"`
}

type Journal interface {
	Record(entry *Entry) error
	// Recent returns up to limit entries of a session, newest first.
	Recent(sessionId int64, limit int) ([]Entry, error)
	Close() error
}
