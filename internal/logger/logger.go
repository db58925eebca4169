package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rivo/tview"
)

type Level int

const (
	Info Level = iota
	Error
	Warn
	Fatal
)

// Message is one log line queued for the file writer goroutine.
type Message struct {
	Timestamp time.Time
	Tag       string
	Message   string
	Level     Level
}

// Logger writes tagged lines to the TUI debug console (in dev mode) and to a
// timestamped log file when a log path was given. It also serves as the
// notification surface for background failures such as a rejected task
// cancellation.
type Logger struct {
	view      *tview.TextView
	tag       string
	dev       bool
	logFile   *os.File
	logChan   chan Message
	closeChan chan struct{}
}

var (
	logManager *Logger
	once       sync.Once
)

func InitLogger(dev bool, logPath string, view *tview.TextView) {
	once.Do(func() {
		logManager = &Logger{
			view:      view,
			dev:       dev,
			logChan:   make(chan Message, 100),
			closeChan: make(chan struct{}),
		}
		if logPath != "" {
			timestamp := time.Now().Format("20060102_150405")
			fileName := fmt.Sprintf("gab_log_%s.log", timestamp)
			filePath := filepath.Join(logPath, fileName)

			file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				log.Fatalf("Failed to open log file: %s", err)
			}
			logManager.logFile = file
		}

		go logManager.processLogs()
	})
}

// NewLogger returns a tagged logger sharing the global sinks. Safe to call
// before InitLogger; such loggers simply discard everything, which keeps
// tests quiet.
func NewLogger(tag string) *Logger {
	if logManager == nil {
		return &Logger{tag: tag}
	}
	return &Logger{
		view:      logManager.view,
		tag:       tag,
		dev:       logManager.dev,
		logFile:   logManager.logFile,
		logChan:   logManager.logChan,
		closeChan: logManager.closeChan,
	}
}

func (l *Logger) processLogs() {
	for msg := range l.logChan {
		timestamp := msg.Timestamp.Format("2006-01-02 15:04:05")
		logMessage := fmt.Sprintf("%s [%s] %s: %s\n", timestamp, msg.Tag, msg.Level.String(), msg.Message)
		if l.logFile != nil {
			l.logFile.WriteString(logMessage)
		}
	}
}

func (l *Logger) log(level Level, v ...interface{}) {
	message := fmt.Sprint(v...)
	if l.dev {
		if l.view != nil {
			var format string
			switch level {
			case Info:
				format = "[green]DEBUG (%s): %s[-]\n"
			case Warn:
				format = "[yellow]DEBUG (%s): %s[-]\n"
			case Error, Fatal:
				format = "[red]DEBUG (%s): %s[-]\n"
			}
			fmt.Fprintf(l.view, format, l.tag, message)
		} else {
			switch level {
			case Fatal:
				log.Fatal(v...)
			default:
				log.Println(v...)
			}
		}
	}

	if l.logFile != nil {
		l.logChan <- Message{
			Timestamp: time.Now(),
			Tag:       l.tag,
			Message:   message,
			Level:     level,
		}
	}
}

func (l *Logger) Info(v ...interface{}) {
	l.log(Info, v...)
}

func (l *Logger) Error(v ...interface{}) {
	l.log(Error, v...)
}

func (l *Logger) Warn(v ...interface{}) {
	l.log(Warn, v...)
}

func (l *Logger) Fatal(v ...interface{}) {
	l.log(Fatal, v...)
	os.Exit(1)
}

func (l *Logger) Close() {
	if l.closeChan == nil {
		return
	}
	close(l.closeChan)
	if l.logFile != nil {
		l.logFile.Close()
	}
}

func (t Level) String() string {
	switch t {
	case Info:
		return "INFO"
	case Error:
		return "ERROR"
	case Warn:
		return "WARN"
	case Fatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}
