package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger represents a file logger for one trading session
type Logger struct {
	underlying string
	tag        string
	logFile    *os.File
	logger     *log.Logger
	mu         sync.Mutex
	logDir     string
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelTrade   LogLevel = "TRADE"
	LogLevelStatus  LogLevel = "STATUS"
)

// NewLogger creates a new file logger for the given underlying and
// strategy tag
func NewLogger(underlying, tag string) (*Logger, error) {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s_%s.log", underlying, tag, timestamp)
	logPath := filepath.Join(logDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Logger{
		underlying: underlying,
		tag:        tag,
		logFile:    file,
		logger:     log.New(file, "", 0),
		logDir:     logDir,
	}

	l.writeSessionHeader()

	return l, nil
}

func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := fmt.Sprintf(`
================================================================================
🚀 TRADING SESSION STARTED
================================================================================
Underlying: %s | Strategy: %s
Started: %s
Log File: %s_%s_%s.log
================================================================================
`, l.underlying, l.tag, time.Now().Format("2006-01-02 15:04:05"),
		l.underlying, l.tag, time.Now().Format("2006-01-02"))

	l.logger.Print(header)
}

// Log writes a formatted log entry with the specified level
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	logEntry := fmt.Sprintf("[%s] [%s] %s", timestamp, level, message)

	l.logger.Println(logEntry)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Trade logs a trading action
func (l *Logger) Trade(format string, args ...interface{}) {
	l.Log(LogLevelTrade, format, args...)
}

// Status logs market status information
func (l *Logger) Status(format string, args ...interface{}) {
	l.Log(LogLevelStatus, format, args...)
}

// LogPositionStatus logs a full snapshot of the monitored strangle
func (l *Logger) LogPositionStatus(spot, callPrice, putPrice, callAvg, putAvg, profitPts, profitRs float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	statusLog := fmt.Sprintf(`
[%s] [STATUS] ==================== POSITION STATUS ====================
💰 Underlying: %.2f
📉 Call: %.2f (avg %.2f) | Put: %.2f (avg %.2f)
💹 Profit: %.2f pts | %.2f
============================================================`,
		timestamp, spot, callPrice, callAvg, putPrice, putAvg, profitPts, profitRs)

	l.logger.Println(statusLog)
}

// LogTradeExecution logs the fills of one instruction batch
func (l *Logger) LogTradeExecution(action, instrument, tag string, quantity int, price float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	tradeLog := fmt.Sprintf(`
[%s] [TRADE] ==================== %s EXECUTED ====================
📦 Instrument: %s
🔢 Quantity: %d
💰 Avg Price: %.2f
🏷️ Tag: %s
=============================================================`,
		timestamp, action, instrument, quantity, price, tag)

	l.logger.Println(tradeLog)
}

// LogEpisodeCompletion logs the final outcome of a trading episode
func (l *Logger) LogEpisodeCompletion(outcome string, profitPts, profitRs, trendPoints float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	episodeLog := fmt.Sprintf(`
[%s] [TRADE] ==================== EPISODE COMPLETED ====================
🎯 Outcome: %s
📊 Profit: %.2f pts | %.2f
🎣 Trend catcher points: %.2f
==============================================================`,
		timestamp, outcome, profitPts, profitRs, trendPoints)

	l.logger.Println(episodeLog)
}

// LogError logs error with context
func (l *Logger) LogError(context string, err error) {
	l.Error("%s: %v", context, err)
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		timestamp := time.Now().Format("2006-01-02 15:04:05")
		footer := fmt.Sprintf(`
================================================================================
🛑 TRADING SESSION ENDED
================================================================================
Ended: %s
================================================================================

`, timestamp)
		l.logger.Print(footer)

		return l.logFile.Close()
	}
	return nil
}

// GetLogPath returns the current log file path
func (l *Logger) GetLogPath() string {
	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s_%s.log", l.underlying, l.tag, timestamp)
	return filepath.Join(l.logDir, filename)
}
