package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// CommentChannel PostgreSQL NOTIFY channel written by the comments trigger.
const CommentChannel = "comments_changes"

const feedPingInterval = 90 * time.Second

type notifier interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// commentNotice NOTIFY payload; only op is read.
type commentNotice struct {
	Op string `json:"op"`
}

// CommentFeed change feed of the comments table over LISTEN/NOTIFY.
type CommentFeed struct {
	listener notifier
	logger   *zap.Logger
}

// NewCommentFeed opens a pq listener on CommentChannel.
func NewCommentFeed(dsn string, logger *zap.Logger) (*CommentFeed, error) {
	listener := pq.NewListener(dsn, time.Second, 30*time.Second, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("Comment feed listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := listener.Listen(CommentChannel); err != nil {
		listener.Close()
		return nil, err
	}
	return &CommentFeed{listener: listener, logger: logger}, nil
}

// Run calls onChange for every notification until ctx is done. A reconnect
// (nil notification) also counts as a change since notifications may have
// been missed.
func (f *CommentFeed) Run(ctx context.Context, onChange func(op string)) {
	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-f.listener.NotificationChannel():
			if !ok {
				return
			}
			op := "reconnect"
			if n != nil {
				var notice commentNotice
				if err := json.Unmarshal([]byte(n.Extra), &notice); err != nil {
					f.logger.Debug("Unparsable comment notification", zap.String("payload", n.Extra))
				}
				op = notice.Op
			}
			onChange(op)
		case <-ticker.C:
			if err := f.listener.Ping(); err != nil {
				f.logger.Warn("Comment feed ping failed", zap.Error(err))
			}
		}
	}
}

// Close stops listening.
func (f *CommentFeed) Close() error {
	return f.listener.Close()
}
