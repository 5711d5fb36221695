package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for audit logging.
type Logger interface {
	// Log logs an audit event.
	Log(ctx context.Context, event *Event) error

	// LogMission logs mission lifecycle events (C11).
	LogMissionCreated(ctx context.Context, missionID, missionType string) error
	LogMissionCompleted(ctx context.Context, missionID string, duration time.Duration) error
	LogMissionFailed(ctx context.Context, missionID, reason string) error

	// LogFusion logs hazard fusion pass events (C4).
	LogFusionPassCompleted(ctx context.Context, duration time.Duration, edgesUpdated int) error
	LogFusionPassFailed(ctx context.Context, err error) error
	LogCriticalAlert(ctx context.Context, source string) error

	// LogRoute logs router/evacuation outcomes (C7/C8).
	LogRouteComputed(ctx context.Context, mode string, distanceM float64) error
	LogRouteImpassable(ctx context.Context, mode string) error

	// Sync flushes buffered log entries.
	Sync() error

	// Close closes the audit logger.
	Close() error
}

// Config represents audit logger configuration.
type Config struct {
	// AuditLogPath is the path to the audit log file.
	AuditLogPath string

	// AppLogPath is the path to the application log file.
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation.
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int

	// Compress determines if rotated files should be compressed.
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string
}

// DefaultConfig returns default audit logger configuration.
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100,
		MaxBackups:   10,
		MaxAge:       30,
		Compress:     true,
		LogLevel:     "info",
	}
}

// auditLogger implements the Logger interface.
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger creates a new audit logger.
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(appRotator),
		level,
	)

	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(auditRotator),
		zapcore.InfoLevel, // audit logs are always INFO level
	)

	auditZapLogger := zap.New(auditCore)

	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event.
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)

	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock).
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer.
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogMissionCreated logs when a mission is created.
func (l *auditLogger) LogMissionCreated(ctx context.Context, missionID, missionType string) error {
	event := NewEvent(EventMissionCreated).
		WithCorrelationID(missionID).
		WithResult(ResultSuccess).
		WithMetadata("mission_type", missionType).
		WithDescription(fmt.Sprintf("mission %s (%s) created", missionID, missionType))

	return l.Log(ctx, event)
}

// LogMissionCompleted logs when a mission completes.
func (l *auditLogger) LogMissionCompleted(ctx context.Context, missionID string, duration time.Duration) error {
	event := NewEvent(EventMissionCompleted).
		WithCorrelationID(missionID).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("mission %s completed", missionID))

	return l.Log(ctx, event)
}

// LogMissionFailed logs when a mission fails.
func (l *auditLogger) LogMissionFailed(ctx context.Context, missionID, reason string) error {
	event := NewEvent(EventMissionFailed).
		WithCorrelationID(missionID).
		WithResult(ResultFailure).
		WithMetadata("reason", reason).
		WithDescription(fmt.Sprintf("mission %s failed: %s", missionID, reason))

	return l.Log(ctx, event)
}

// LogFusionPassCompleted logs a completed hazard fusion pass.
func (l *auditLogger) LogFusionPassCompleted(ctx context.Context, duration time.Duration, edgesUpdated int) error {
	event := NewEvent(EventFusionPassCompleted).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithMetadata("edges_updated", edgesUpdated).
		WithDescription("fusion pass completed")

	return l.Log(ctx, event)
}

// LogFusionPassFailed logs an aborted fusion pass.
func (l *auditLogger) LogFusionPassFailed(ctx context.Context, err error) error {
	event := NewEvent(EventFusionPassFailed).
		WithError(err, "fusion_error").
		WithDescription("fusion pass aborted")

	return l.Log(ctx, event)
}

// LogCriticalAlert logs a critical_alert emission.
func (l *auditLogger) LogCriticalAlert(ctx context.Context, source string) error {
	event := NewEvent(EventFusionCriticalAlert).
		WithResource(source, "hazard_source").
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("critical alert for %s", source))

	return l.Log(ctx, event)
}

// LogRouteComputed logs a successful route computation.
func (l *auditLogger) LogRouteComputed(ctx context.Context, mode string, distanceM float64) error {
	event := NewEvent(EventRouteComputed).
		WithResult(ResultSuccess).
		WithMetadata("mode", mode).
		WithMetadata("distance_m", distanceM).
		WithDescription(fmt.Sprintf("route computed (%s)", mode))

	return l.Log(ctx, event)
}

// LogRouteImpassable logs a route request that found no viable path.
func (l *auditLogger) LogRouteImpassable(ctx context.Context, mode string) error {
	event := NewEvent(EventRouteImpassable).
		WithResult(ResultFailure).
		WithMetadata("mode", mode).
		WithDescription(fmt.Sprintf("route impassable (%s)", mode))

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries.
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.auditLogger.Sync(); err != nil {
		return err
	}

	return l.appLogger.Sync()
}

// Close closes the audit logger.
func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()

	return l.Sync()
}

type correlationIDKey struct{}

// GetCorrelationID extracts the correlation ID from context.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID adds a correlation ID to context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// GenerateCorrelationID generates a new correlation ID.
func GenerateCorrelationID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}
