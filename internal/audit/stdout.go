package audit

import (
	"context"
	"errors"
	"log"
)

// LogWriter writes audit entries to a standard logger when no database is configured.
type LogWriter struct {
	logger *log.Logger
}

// NewLogWriter constructs a logger-backed audit writer.
func NewLogWriter(logger *log.Logger) (*LogWriter, error) {
	if logger == nil {
		return nil, errors.New("audit log writer: nil logger")
	}
	return &LogWriter{logger: logger}, nil
}

// Log writes an audit entry as a single key=value line.
func (w *LogWriter) Log(ctx context.Context, entry Entry) error {
	if w == nil || w.logger == nil {
		return errors.New("audit log writer: nil logger")
	}
	entry = prepare(entry)
	w.logger.Printf("audit: id=%s action=%s actor=%s role=%s resource=%s/%s session=%s ip=%s digest=%s",
		entry.ID, entry.Action, entry.Actor, entry.Role, entry.ResourceType, entry.ResourceID, entry.SessionID, entry.IP, entry.PayloadDigest)
	return nil
}
