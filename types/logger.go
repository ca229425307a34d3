package types

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

const logDir = "/var/log/sarchura"

// NewSarchuraLogger creates a new logger with the given name and level.
// The level defaults to info when it cannot be parsed. It can be overridden
// by setting $NAME_DEBUG or $NAME_TRACE to any non-empty value.
// If quiet is true, the logger will not log to the console.
func NewSarchuraLogger(name, level string, quiet bool) SarchuraLogger {
	var writers []io.Writer
	var fileLock *flock.Flock
	var logFile *os.File

	journald := isJournaldAvailable()
	if journald {
		writers = append(writers, getJournaldWriter())
	} else {
		// No journal socket, log to a file instead. Concurrent runs share the
		// file, hence the lock next to it.
		logName := filepath.Join(logDir, fmt.Sprintf("%s.log", name))
		_ = os.MkdirAll(logDir, os.ModeDir|os.ModePerm)

		f, err := os.OpenFile(logName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			logFile = f
			writers = append(writers, zerolog.ConsoleWriter{Out: logFile, TimeFormat: time.RFC3339, NoColor: true})
		}
		fileLock = flock.New(logName + ".lock")
	}

	if !quiet {
		writers = append(writers, zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.TimeFormat = time.RFC3339
		}))
	}

	l, err := zerolog.ParseLevel(level)
	if err != nil {
		l = zerolog.InfoLevel
	}
	if os.Getenv(fmt.Sprintf("%s_DEBUG", strings.ToUpper(name))) != "" {
		l = zerolog.DebugLevel
	}
	if os.Getenv(fmt.Sprintf("%s_TRACE", strings.ToUpper(name))) != "" {
		l = zerolog.TraceLevel
	}

	multi := zerolog.MultiLevelWriter(writers...)
	k := SarchuraLogger{
		zerolog.New(multi).With().Timestamp().Logger().Level(l),
		fileLock,
		logFile,
		journald,
	}

	runtime.SetFinalizer(&k, func(k *SarchuraLogger) {
		k.Cleanup()
	})

	return k
}

// NewBufferLogger writes everything into the given buffer. For tests.
func NewBufferLogger(b *bytes.Buffer) SarchuraLogger {
	return SarchuraLogger{
		zerolog.New(b).With().Timestamp().Logger(),
		nil,
		nil,
		true,
	}
}

// NewNullLogger drops everything.
func NewNullLogger() SarchuraLogger {
	return SarchuraLogger{
		zerolog.New(io.Discard).With().Timestamp().Logger(),
		nil,
		nil,
		true,
	}
}

// SarchuraLogger wraps zerolog and implements the printf-style interface the
// yip stages and other collaborators expect.
type SarchuraLogger struct {
	zerolog.Logger
	fileLock *flock.Flock
	logFile  *os.File
	journald bool // logging to journald needs no file lock
}

func (m *SarchuraLogger) Cleanup() {
	if m.logFile != nil {
		m.logFile.Close()
		m.logFile = nil
	}
	if m.fileLock != nil {
		_ = m.fileLock.Unlock()
		m.fileLock = nil
	}
}

func (m *SarchuraLogger) Close() {
	m.Cleanup()
}

func (m *SarchuraLogger) SetLevel(level string) {
	l, _ := zerolog.ParseLevel(level)
	// Level returns a child logger, overwrite ours with it
	m.Logger = m.Logger.Level(l)
}

func (m SarchuraLogger) GetLevel() zerolog.Level {
	return m.Logger.GetLevel()
}

func (m SarchuraLogger) IsDebug() bool {
	return m.Logger.GetLevel() == zerolog.DebugLevel
}

// emit serializes file-backed writes and prefixes the pid so interleaved runs
// can be told apart. Journald keeps that metadata on its own.
func (m SarchuraLogger) emit(ev *zerolog.Event, msg string) {
	if !m.journald {
		if m.fileLock != nil {
			m.fileLock.Lock()
			defer m.fileLock.Unlock()
		}
		msg = fmt.Sprintf("[%v] %s", os.Getpid(), msg)
	}
	ev.Msg(msg)
}

func (m SarchuraLogger) Infof(tpl string, args ...interface{}) {
	m.emit(m.Logger.Info(), fmt.Sprintf(tpl, args...))
}

func (m SarchuraLogger) Info(args ...interface{}) {
	m.emit(m.Logger.Info(), fmt.Sprint(args...))
}

func (m SarchuraLogger) Warnf(tpl string, args ...interface{}) {
	m.emit(m.Logger.Warn(), fmt.Sprintf(tpl, args...))
}

func (m SarchuraLogger) Warn(args ...interface{}) {
	m.emit(m.Logger.Warn(), fmt.Sprint(args...))
}

func (m SarchuraLogger) Warning(args ...interface{}) {
	m.emit(m.Logger.Warn(), fmt.Sprint(args...))
}

func (m SarchuraLogger) Warningf(tpl string, args ...interface{}) {
	m.emit(m.Logger.Warn(), fmt.Sprintf(tpl, args...))
}

func (m SarchuraLogger) Debugf(tpl string, args ...interface{}) {
	m.emit(m.Logger.Debug(), fmt.Sprintf(tpl, args...))
}

func (m SarchuraLogger) Debug(args ...interface{}) {
	m.emit(m.Logger.Debug(), fmt.Sprint(args...))
}

func (m SarchuraLogger) Errorf(tpl string, args ...interface{}) {
	m.emit(m.Logger.Error(), fmt.Sprintf(tpl, args...))
}

func (m SarchuraLogger) Error(args ...interface{}) {
	m.emit(m.Logger.Error(), fmt.Sprint(args...))
}

func (m SarchuraLogger) Fatalf(tpl string, args ...interface{}) {
	m.emit(m.Logger.Fatal(), fmt.Sprintf(tpl, args...))
}

func (m SarchuraLogger) Fatal(args ...interface{}) {
	m.emit(m.Logger.Fatal(), fmt.Sprint(args...))
}

func (m SarchuraLogger) Panicf(tpl string, args ...interface{}) {
	m.emit(m.Logger.Panic(), fmt.Sprintf(tpl, args...))
}

func (m SarchuraLogger) Panic(args ...interface{}) {
	m.emit(m.Logger.Panic(), fmt.Sprint(args...))
}

func (m SarchuraLogger) Tracef(tpl string, args ...interface{}) {
	m.emit(m.Logger.Trace(), fmt.Sprintf(tpl, args...))
}

func (m SarchuraLogger) Trace(args ...interface{}) {
	m.emit(m.Logger.Trace(), fmt.Sprint(args...))
}
