// Package logging provides categorized logging for unremark on top of zap.
// Every subsystem logs through its own category so that noisy areas (the
// classifier fan-out, the extractor walk) can be switched off independently.
// Until Initialize is called all loggers are no-ops, which keeps library use
// and tests silent.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem
type Category string

const (
	CategoryBoot     Category = "boot"     // CLI startup, config resolution
	CategoryExtract  Category = "extract"  // tree-sitter comment extraction
	CategoryCache    Category = "cache"    // result cache load/save/lookups
	CategoryClassify Category = "classify" // classification requests and retries
	CategoryRewrite  Category = "rewrite"  // in-place comment removal
	CategoryAnalysis Category = "analysis" // per-file orchestration
	CategoryScan     Category = "scan"     // directory walking
)

// Options configures the zap core behind every category logger.
type Options struct {
	Level      string          // debug, info, warn, error
	JSON       bool            // JSON encoder instead of console
	Categories map[string]bool // per-category toggles; missing = enabled
	Output     zapcore.WriteSyncer
}

// Logger is a category-scoped logger. The zero value discards everything.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    *zap.Logger
	opts    Options
	loggers = make(map[Category]*Logger)
)

// Initialize builds the shared zap logger. It may be called again to
// reconfigure; previously handed out loggers keep their old core.
func Initialize(o Options) error {
	level, err := parseLevel(o.Level)
	if err != nil {
		return err
	}

	out := o.Output
	if out == nil {
		out = zapcore.Lock(os.Stderr)
	}

	var enc zapcore.Encoder
	if o.JSON {
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	}

	mu.Lock()
	defer mu.Unlock()
	base = zap.New(zapcore.NewCore(enc, out, level))
	opts = o
	loggers = make(map[Category]*Logger)
	return nil
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if base == nil {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if logging is not initialized or the category is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{category: category}
	if categoryEnabledLocked(category) {
		l.sugar = base.Named(string(category)).Sugar()
	}
	loggers[category] = l
	return l
}

// With returns a logger that attaches the given key/value pairs to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if l.sugar == nil {
		return l
	}
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// Sync flushes buffered entries (call at shutdown).
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
}

// CloseAll flushes and drops the shared logger; subsequent loggers are no-ops.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	if base != nil {
		_ = base.Sync()
	}
	base = nil
	opts = Options{}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

func Extract(format string, args ...interface{})      { Get(CategoryExtract).Info(format, args...) }
func ExtractDebug(format string, args ...interface{}) { Get(CategoryExtract).Debug(format, args...) }

func Cache(format string, args ...interface{})      { Get(CategoryCache).Info(format, args...) }
func CacheDebug(format string, args ...interface{}) { Get(CategoryCache).Debug(format, args...) }
func CacheWarn(format string, args ...interface{})  { Get(CategoryCache).Warn(format, args...) }

func Classify(format string, args ...interface{})      { Get(CategoryClassify).Info(format, args...) }
func ClassifyDebug(format string, args ...interface{}) { Get(CategoryClassify).Debug(format, args...) }
func ClassifyWarn(format string, args ...interface{})  { Get(CategoryClassify).Warn(format, args...) }
func ClassifyError(format string, args ...interface{}) { Get(CategoryClassify).Error(format, args...) }

func Rewrite(format string, args ...interface{})      { Get(CategoryRewrite).Info(format, args...) }
func RewriteDebug(format string, args ...interface{}) { Get(CategoryRewrite).Debug(format, args...) }

func Analysis(format string, args ...interface{})      { Get(CategoryAnalysis).Info(format, args...) }
func AnalysisDebug(format string, args ...interface{}) { Get(CategoryAnalysis).Debug(format, args...) }
func AnalysisWarn(format string, args ...interface{})  { Get(CategoryAnalysis).Warn(format, args...) }
func AnalysisError(format string, args ...interface{}) { Get(CategoryAnalysis).Error(format, args...) }

func Scan(format string, args ...interface{})      { Get(CategoryScan).Info(format, args...) }
func ScanDebug(format string, args ...interface{}) { Get(CategoryScan).Debug(format, args...) }
