package middleware

import (
	"context"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestLogBatchSize = 100

// LogSink persists batches of request logs.
type LogSink interface {
	CreateBatch(ctx context.Context, logs []*models.RequestLog) error
}

// RequestLogger records every request into a buffered channel that a
// background worker drains in batches.
type RequestLogger struct {
	sink          LogSink
	entries       chan *models.RequestLog
	flushInterval time.Duration
	logger        zerolog.Logger
	done          chan struct{}
}

func NewRequestLogger(sink LogSink, bufferSize int, logger zerolog.Logger) *RequestLogger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &RequestLogger{
		sink:          sink,
		entries:       make(chan *models.RequestLog, bufferSize),
		flushInterval: 5 * time.Second,
		logger:        logger,
		done:          make(chan struct{}),
	}
}

// Start runs the batch writer until ctx is cancelled, then flushes what is
// still buffered. Wait blocks until that final flush is done.
func (l *RequestLogger) Start(ctx context.Context) {
	go func() {
		defer close(l.done)

		batch := make([]*models.RequestLog, 0, requestLogBatchSize)
		ticker := time.NewTicker(l.flushInterval)
		defer ticker.Stop()

		flush := func() {
			if len(batch) == 0 {
				return
			}
			l.insertBatch(batch)
			batch = make([]*models.RequestLog, 0, requestLogBatchSize)
		}

		for {
			select {
			case entry := <-l.entries:
				batch = append(batch, entry)
				if len(batch) >= requestLogBatchSize {
					flush()
				}
			case <-ticker.C:
				flush()
			case <-ctx.Done():
				for {
					select {
					case entry := <-l.entries:
						batch = append(batch, entry)
					default:
						flush()
						return
					}
				}
			}
		}
	}()
}

func (l *RequestLogger) Wait() {
	<-l.done
}

func (l *RequestLogger) insertBatch(batch []*models.RequestLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := l.sink.CreateBatch(ctx, batch); err != nil {
		l.logger.Error().Err(err).Int("count", len(batch)).Msg("failed to insert request logs")
	}
}

// Middleware logs all HTTP requests without blocking them.
func (l *RequestLogger) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		entry := &models.RequestLog{
			RequestID:      c.GetString("request_id"),
			Timestamp:      start,
			Method:         c.Request.Method,
			Path:           c.Request.URL.Path,
			StatusCode:     c.Writer.Status(),
			ResponseTimeMs: int(time.Since(start).Milliseconds()),
			IPAddress:      c.ClientIP(),
			UserAgent:      c.Request.UserAgent(),
			Upstream:       c.GetString("upstream"),
		}

		if v, ok := c.Get("api_key_id"); ok {
			if id, ok := v.(uuid.UUID); ok {
				entry.APIKeyID = &id
			}
		}
		if v, ok := c.Get("user_id"); ok {
			if id, ok := v.(uuid.UUID); ok {
				entry.UserID = &id
			}
		}
		if remaining, ok := response.RemainingFromContext(c.Request.Context()); ok {
			entry.RemainingLimit = &remaining
		}

		select {
		case l.entries <- entry:
		default:
			l.logger.Warn().Msg("request log channel full, skipping log entry")
		}
	}
}
