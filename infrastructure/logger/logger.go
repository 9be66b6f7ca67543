package logger

import (
	"fmt"
	"os"
	"runtime"
	"time"
)

// defaultLogTimestampFormat is the timestamp prepended to every log entry.
const defaultLogTimestampFormat = "2006-01-02 15:04:05.000"

// logEntry is a single formatted log message together with the level it was
// written at, so that each writer can apply its own level filter.
type logEntry struct {
	log   []byte
	level Level
}

// Logger is a subsystem logger. All messages are formatted and handed to the
// Backend, which fans them out to its writers. A Logger is created through
// Backend.Logger and starts out at LevelOff, so it produces no output until a
// level is set for it.
type Logger struct {
	level     Level
	tag       string
	backend   *Backend
	writeChan chan logEntry
}

// Level returns the current logging level of the Logger.
func (l *Logger) Level() Level {
	return l.level
}

// SetLevel changes the logging level of the Logger. It must not be called
// concurrently with logging.
func (l *Logger) SetLevel(level Level) {
	l.level = level
}

// Tracef writes a formatted message at LevelTrace.
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.writef(LevelTrace, format, args...)
}

// Trace writes a message at LevelTrace.
func (l *Logger) Trace(args ...interface{}) {
	l.write(LevelTrace, args...)
}

// Debugf writes a formatted message at LevelDebug.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.writef(LevelDebug, format, args...)
}

// Debug writes a message at LevelDebug.
func (l *Logger) Debug(args ...interface{}) {
	l.write(LevelDebug, args...)
}

// Infof writes a formatted message at LevelInfo.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.writef(LevelInfo, format, args...)
}

// Info writes a message at LevelInfo.
func (l *Logger) Info(args ...interface{}) {
	l.write(LevelInfo, args...)
}

// Warnf writes a formatted message at LevelWarn.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.writef(LevelWarn, format, args...)
}

// Warn writes a message at LevelWarn.
func (l *Logger) Warn(args ...interface{}) {
	l.write(LevelWarn, args...)
}

// Errorf writes a formatted message at LevelError.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.writef(LevelError, format, args...)
}

// Error writes a message at LevelError.
func (l *Logger) Error(args ...interface{}) {
	l.write(LevelError, args...)
}

// Criticalf writes a formatted message at LevelCritical.
func (l *Logger) Criticalf(format string, args ...interface{}) {
	l.writef(LevelCritical, format, args...)
}

// Critical writes a message at LevelCritical.
func (l *Logger) Critical(args ...interface{}) {
	l.write(LevelCritical, args...)
}

func (l *Logger) writef(level Level, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	l.print(level, fmt.Sprintf(format, args...))
}

func (l *Logger) write(level Level, args ...interface{}) {
	if level < l.level {
		return
	}
	l.print(level, fmt.Sprint(args...))
}

func (l *Logger) print(level Level, msg string) {
	entry := l.formatEntry(level, msg)
	if !l.backend.IsRunning() {
		// The backend goroutine isn't consuming entries, so write
		// straight to stderr instead of blocking the caller.
		_, _ = os.Stderr.Write(entry)
		return
	}
	l.writeChan <- logEntry{log: entry, level: level}
}

func (l *Logger) formatEntry(level Level, msg string) []byte {
	buf := make([]byte, 0, normalLogSize)
	buf = time.Now().AppendFormat(buf, defaultLogTimestampFormat)
	buf = append(buf, ' ', '[')
	buf = append(buf, level.String()...)
	buf = append(buf, "] "...)
	buf = append(buf, l.tag...)
	buf = append(buf, ": "...)
	if l.backend.flag&(LogFlagLongFile|LogFlagShortFile) != 0 {
		file, line := callsite(l.backend.flag)
		buf = append(buf, fmt.Sprintf("%s:%d ", file, line)...)
	}
	buf = append(buf, msg...)
	buf = append(buf, '\n')
	return buf
}

// callsite returns the file name and line number of the logging callsite,
// honoring the LogFlagShortFile/LogFlagLongFile flags.
func callsite(flag uint32) (string, int) {
	_, file, line, ok := runtime.Caller(calldepth)
	if !ok {
		return "???", 0
	}
	if flag&LogFlagShortFile != 0 {
		short := file
		for i := len(file) - 1; i > 0; i-- {
			if os.IsPathSeparator(file[i]) {
				short = file[i+1:]
				break
			}
		}
		file = short
	}
	return file, line
}

// calldepth is the call depth from callsite back to the exported logging
// method on Logger.
const calldepth = 5
