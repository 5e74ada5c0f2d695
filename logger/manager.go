package logger

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Manager creates and caches per-module loggers
type Manager struct {
	baseConfig ManagerConfig
	loggers    map[string]*CtxZapLogger
	writers    map[string]*lumberjack.Logger
	mu         sync.RWMutex
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// NewManager creates an independent Manager instance
// Zero-valued fields in cfg are filled with defaults
func NewManager(cfg ManagerConfig) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		baseConfig: cfg,
		loggers:    make(map[string]*CtxZapLogger),
		writers:    make(map[string]*lumberjack.Logger),
	}
}

// InitManager initializes the global manager (first call wins)
func InitManager(cfg ManagerConfig) {
	managerOnce.Do(func() {
		globalManager = NewManager(cfg)
	})
}

// GetLogger returns the logger for a module, creating it on demand
// The returned logger already carries the module field
func (m *Manager) GetLogger(module string) *CtxZapLogger {
	m.mu.RLock()
	if l, exists := m.loggers[module]; exists {
		m.mu.RUnlock()
		return l
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// double check
	if l, exists := m.loggers[module]; exists {
		return l
	}

	base := m.createLogger(module).With(zap.String("module", module))
	l := &CtxZapLogger{
		base:   base.WithOptions(zap.AddCallerSkip(1)),
		module: module,
		config: &m.baseConfig,
	}
	m.loggers[module] = l
	return l
}

func (m *Manager) createLogger(module string) *zap.Logger {
	cfg := m.baseConfig
	encoder := createEncoder(cfg)
	level := ParseLevel(cfg.Level)

	var cores []zapcore.Core
	if cfg.EnableConsole {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}
	if cfg.EnableFile {
		path := cfg.moduleFilePath(module)
		_ = os.MkdirAll(filepath.Dir(path), 0o755)
		lumber := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		m.writers[module] = lumber
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(lumber), level))
	}
	if len(cores) == 0 {
		return zap.NewNop()
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(zapcore.NewTee(cores...), opts...)
}

// CloseAll flushes buffers and closes all file handles
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range m.loggers {
		_ = l.base.Sync()
	}
	for _, w := range m.writers {
		_ = w.Close()
	}
	m.loggers = make(map[string]*CtxZapLogger)
	m.writers = make(map[string]*lumberjack.Logger)
}

func createEncoder(cfg ManagerConfig) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "msg",
		CallerKey:      "caller",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if cfg.Encoding == "console" {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

// ============================================
// package-level helpers (global manager)
// ============================================

// GetLogger returns a module logger from the global manager
func GetLogger(module string) *CtxZapLogger {
	if globalManager == nil {
		InitManager(DefaultManagerConfig())
	}
	return globalManager.GetLogger(module)
}

// CloseAll flushes and closes all loggers of the global manager
func CloseAll() {
	if globalManager == nil {
		return
	}
	globalManager.CloseAll()
}
