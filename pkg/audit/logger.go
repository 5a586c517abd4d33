// Package audit is the secure logger: every entry is redacted and every IP
// pseudonymized before it reaches a sink.
package audit

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/logging"
)

type Level string

const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
	LevelAudit Level = "audit"
)

// SlogLevelAudit sits above error so audit entries are never filtered out.
const SlogLevelAudit = slog.LevelError + 4

func (l Level) slog() slog.Level {
	switch l {
	case LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelDebug:
		return slog.LevelDebug
	case LevelAudit:
		return SlogLevelAudit
	default:
		return slog.LevelInfo
	}
}

// Context carries request-scoped identifiers alongside an entry.
type Context struct {
	RequestID string `json:"requestId,omitempty"`
	UserID    string `json:"userId,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
}

// Entry is the structured form handed to a Forwarder.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Context   Context   `json:"context"`
}

// Forwarder ships production entries to an external sink.
type Forwarder interface {
	Forward(ctx context.Context, e Entry) error
}

// NewHandler returns the slog handler for the environment: text in
// development, JSON in production. Audit entries are labelled AUDIT.
func NewHandler(w io.Writer, production bool, level string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: logging.ParseLevel(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == SlogLevelAudit {
					a.Value = slog.StringValue("AUDIT")
				}
			}
			return a
		},
	}
	return logging.NewHandler(w, production, opts)
}

// queueSize bounds how many entries may wait for the forwarder. Entries
// beyond it are dropped and counted.
const queueSize = 1024

type shipper struct {
	forwarder Forwarder
	queue     chan Entry
	dropped   atomic.Int64
}

type Logger struct {
	l     *slog.Logger
	ship  *shipper
	attrs []any
	now   func() time.Time
}

// New builds a Logger. forwarder may be nil and is only used in production;
// entries reach it through Run.
func New(h slog.Handler, production bool, forwarder Forwarder) *Logger {
	l := &Logger{l: slog.New(h), now: time.Now}
	if production && forwarder != nil {
		l.ship = &shipper{forwarder: forwarder, queue: make(chan Entry, queueSize)}
	}
	return l
}

// Run hands queued entries to the forwarder until ctx is done, then flushes
// what is left. It returns immediately when nothing is forwarded.
func (l *Logger) Run(ctx context.Context) {
	if l.ship == nil {
		return
	}
	fwdCtx := context.WithoutCancel(ctx)
	for {
		select {
		case e := <-l.ship.queue:
			l.forward(fwdCtx, e)
		case <-ctx.Done():
			for {
				select {
				case e := <-l.ship.queue:
					l.forward(fwdCtx, e)
				default:
					if n := l.ship.dropped.Swap(0); n > 0 {
						l.l.Warn("log entries dropped", "count", n)
					}
					return
				}
			}
		}
	}
}

func (l *Logger) forward(ctx context.Context, e Entry) {
	if err := l.ship.forwarder.Forward(ctx, e); err != nil {
		l.l.WarnContext(ctx, "log forward failed", "error", RedactString(err.Error()))
	}
}

func (l *Logger) enqueue(ctx context.Context, level Level, message string, data any, lc Context) {
	if l.ship == nil || !l.l.Enabled(ctx, level.slog()) {
		return
	}
	e := Entry{Timestamp: l.now().UTC(), Level: level, Message: message, Data: data, Context: lc}
	select {
	case l.ship.queue <- e:
	default:
		l.ship.dropped.Add(1)
	}
}

// Log writes a redacted entry.
func (l *Logger) Log(ctx context.Context, level Level, message string, data any, lc Context) {
	lc.IPAddress = PseudonymizeIP(lc.IPAddress)
	sanitized := Redact(data)
	message = RedactString(message)

	attrs := make([]any, 0, 8)
	if sanitized != nil {
		attrs = append(attrs, slog.Any("data", sanitized))
	}
	if lc.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", lc.RequestID))
	}
	if lc.UserID != "" {
		attrs = append(attrs, slog.String("user_id", lc.UserID))
	}
	if lc.IPAddress != "" {
		attrs = append(attrs, slog.String("ip", lc.IPAddress))
	}
	l.l.Log(ctx, level.slog(), message, attrs...)
	l.enqueue(ctx, level, message, sanitized, lc)
}

// Event writes an audit event.
func (l *Logger) Event(ctx context.Context, ev domain.AuditEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now().UTC()
	}
	data := map[string]any{"timestamp": ev.Timestamp.Format(time.RFC3339)}
	if ev.Data != nil {
		data["payload"] = ev.Data
	}
	l.Log(ctx, LevelAudit, ev.Event, data, Context{UserID: ev.UserID, IPAddress: ev.IPAddress})
}

func (l *Logger) Audit(ctx context.Context, message string, data any, lc Context) {
	l.Log(ctx, LevelAudit, message, data, lc)
}

// The methods below satisfy logging.Logger so the rest of the code base can
// log through the redacting path without knowing about it.

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.write(ctx, LevelDebug, msg, args)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.write(ctx, LevelInfo, msg, args)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.write(ctx, LevelWarn, msg, args)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.write(ctx, LevelError, msg, args)
}

func (l *Logger) write(ctx context.Context, level Level, msg string, args []any) {
	msg = RedactString(msg)
	args = redactArgs(args)
	l.l.Log(ctx, level.slog(), msg, args...)
	if l.ship != nil {
		l.enqueue(ctx, level, msg, argsData(append(slices.Clone(l.attrs), args...)), Context{})
	}
}

func (l *Logger) With(args ...any) logging.Logger {
	args = redactArgs(args)
	return &Logger{
		l:     l.l.With(args...),
		ship:  l.ship,
		attrs: append(slices.Clone(l.attrs), args...),
		now:   l.now,
	}
}

// argsData turns already redacted slog-style arguments into entry data.
func argsData(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]any, len(args)/2)
	for i := 0; i < len(args); i++ {
		switch a := args[i].(type) {
		case slog.Attr:
			out[a.Key] = a.Value.Any()
		case string:
			if i+1 < len(args) {
				out[a] = args[i+1]
				i++
			} else {
				out["!BADKEY"] = a
			}
		default:
			out["!BADKEY"] = a
		}
	}
	return out
}

var _ logging.Logger = (*Logger)(nil)
