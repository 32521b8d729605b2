package audit

import (
	"context"
	"time"

	"github.com/cashi/auth-core/internal/auth"
	"github.com/cashi/auth-core/internal/infrastructure/logging"
)

// DefaultBufferSize is the capacity of the recorder's queue.
// Events beyond it are dropped so audit writes never slow down logins.
const DefaultBufferSize = 256

// writeTimeout bounds a single audit insert.
const writeTimeout = 5 * time.Second

// Recorder is an auth.EventSink that queues events and writes them to a
// Repository from a single goroutine. SQLite has one writer, so serial
// writes avoid contending with the auth transactions.
type Recorder struct {
	repo   Repository
	ch     chan *AuditLog
	logger *logging.Logger
}

// NewRecorder creates a recorder. A bufferSize <= 0 uses DefaultBufferSize.
func NewRecorder(repo Repository, bufferSize int, logger *logging.Logger) *Recorder {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Recorder{
		repo:   repo,
		ch:     make(chan *AuditLog, bufferSize),
		logger: logger.With("component", "audit"),
	}
}

// Record enqueues e without blocking. A full queue drops the entry.
func (r *Recorder) Record(_ context.Context, e auth.Event) {
	entry := FromEvent(e)
	select {
	case r.ch <- entry:
	default:
		r.logger.Warn("audit queue full, dropping entry",
			"action", e.Action,
			"outcome", e.Outcome,
		)
	}
}

// Run writes queued entries until ctx is cancelled, then drains what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case entry := <-r.ch:
			r.write(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.ch:
					r.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(entry *AuditLog) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.repo.Create(ctx, entry); err != nil {
		r.logger.Error("audit log write failed",
			"action", entry.Action,
			"error", err,
		)
	}
}

// FromEvent converts an authentication event into an audit entry.
func FromEvent(e auth.Event) *AuditLog {
	return &AuditLog{
		Action:    e.Action,
		Outcome:   e.Outcome,
		Username:  e.Username,
		UserID:    e.UserID,
		ClientIP:  e.ClientIP,
		Details:   e.Details,
		CreatedAt: e.At,
	}
}
