package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

var (
	globalLogger arbor.ILogger
	loggerMutex  sync.RWMutex
)

func consoleConfig() models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:             models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		TextOutput:       true,
		DisableTimestamp: false,
	}
}

// GetLogger returns the process logger, creating a console logger on first use.
func GetLogger() arbor.ILogger {
	loggerMutex.RLock()
	if globalLogger != nil {
		loggerMutex.RUnlock()
		return globalLogger
	}
	loggerMutex.RUnlock()

	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	if globalLogger == nil {
		globalLogger = arbor.NewLogger().WithConsoleWriter(consoleConfig())
	}
	return globalLogger
}

// Init replaces the process logger. An empty logFile keeps console output only.
func Init(level, logFile string) arbor.ILogger {
	return install(arbor.NewLogger().WithConsoleWriter(consoleConfig()), level, logFile)
}

// InitFile replaces the process logger with a file-only logger, for full-screen
// terminal programs.
func InitFile(level, logFile string) arbor.ILogger {
	return install(arbor.NewLogger(), level, logFile)
}

func install(logger arbor.ILogger, level, logFile string) arbor.ILogger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "warning: create log directory: %v\n", err)
		} else {
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   logFile,
				TimeFormat: "15:04:05",
				MaxSize:    50 * 1024 * 1024,
				MaxBackups: 3,
				TextOutput: true,
			})
		}
	}
	if level == "" {
		level = "info"
	}
	logger = logger.WithLevelFromString(level)
	globalLogger = logger
	return logger
}
