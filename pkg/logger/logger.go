package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"dubbing-service/pkg/config"
)

// Fields 结构化日志字段
type Fields = map[string]interface{}

// Logger 日志服务，包装 logrus
type Logger struct {
	entry  *logrus.Logger
	closer io.Closer
}

var (
	mu     sync.RWMutex
	global = newDefault()
)

func newDefault() *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return &Logger{entry: l}
}

// NewLogger 根据配置创建日志服务
func NewLogger(cfg *config.Config) *Logger {
	l := logrus.New()
	out := &Logger{entry: l}

	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	l.SetOutput(os.Stdout)
	if strings.EqualFold(cfg.Log.Output, "file") && cfg.Log.Filename != "" {
		f, err := os.OpenFile(cfg.Log.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] open log file %s failed, falling back to stdout: %v\n", cfg.Log.Filename, err)
		} else {
			l.SetOutput(io.MultiWriter(os.Stdout, f))
			out.closer = f
		}
	}
	return out
}

// SetGlobalLogger 设置全局日志器
func SetGlobalLogger(l *Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	global = l
	mu.Unlock()
}

// SetOutput redirects the global logger; tests use it to silence or capture output.
func SetOutput(w io.Writer) {
	current().entry.SetOutput(w)
}

// Close 关闭日志文件
func (l *Logger) Close() {
	if l != nil && l.closer != nil {
		_ = l.closer.Close()
	}
}

// Raw exposes the underlying logrus logger.
func (l *Logger) Raw() *logrus.Logger { return l.entry }

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

func withFields(fields []Fields) *logrus.Entry {
	e := logrus.NewEntry(current().entry)
	for _, f := range fields {
		if len(f) > 0 {
			e = e.WithFields(logrus.Fields(f))
		}
	}
	return e
}

func Debug(msg string, fields ...Fields) { withFields(fields).Debug(msg) }
func Info(msg string, fields ...Fields)  { withFields(fields).Info(msg) }
func Warn(msg string, fields ...Fields)  { withFields(fields).Warn(msg) }
func Error(msg string, fields ...Fields) { withFields(fields).Error(msg) }

// Fatal 记录日志并退出进程
func Fatal(msg string, fields ...Fields) { withFields(fields).Fatal(msg) }

func Debugf(format string, args ...interface{}) { current().entry.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { current().entry.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { current().entry.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { current().entry.Errorf(format, args...) }
