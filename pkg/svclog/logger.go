package svclog

import (
	"fmt"
	"path/filepath"
	"time"
)

// Logger is the per-service raw-message log the LOGON/LOGOFF
// commands open and close: every message the owning service sends or
// receives is appended, one line per message, to an append-only Store
// rooted under a per-handle directory.
type Logger struct {
	handle string
	store  Store
}

// NewLogger opens (creating if needed) the raw-message log for handle
// rooted under dir/handle.
func NewLogger(dir, handle string) (*Logger, error) {
	store, err := NewFSStore(DefaultFSStoreConfig(filepath.Join(dir, handle)))
	if err != nil {
		return nil, fmt.Errorf("svclog: open log for %s: %w", handle, err)
	}
	return &Logger{handle: handle, store: store}, nil
}

// LogMessage appends one formatted line describing a message this
// service sent (dir == "OUT") or received (dir == "IN").
func (l *Logger) LogMessage(dir string, source, dest string, typ uint8, session int32, payload []byte) error {
	line := fmt.Sprintf("%d %s %s->%s type=%d session=%d size=%d\n",
		time.Now().UnixNano(), dir, source, dest, typ, session, len(payload))
	_, err := l.store.Append([]byte(line))
	return err
}

// Close flushes and closes the underlying store.
func (l *Logger) Close() error {
	return l.store.Close()
}
