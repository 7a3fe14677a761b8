package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

var (
	InfoLogger  = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime)
	ErrorLogger = log.New(os.Stderr, "ERROR: ", log.Ldate|log.Ltime)
	DebugLogger = log.New(io.Discard, "DEBUG: ", log.Ldate|log.Ltime)

	logFiles []*os.File
	logMu    sync.Mutex
)

// InitLoggers направляет логи в файлы info.log, error.log и debug.log внутри logDir.
// При пустом logDir логгеры пишут в stdout/stderr, отладочный вывод отключен.
func InitLoggers(logDir string) error {
	logMu.Lock()
	defer logMu.Unlock()

	if logDir == "" {
		return nil
	}

	// Создаем директорию для логов, если она не существует
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	open := func(name string) (*os.File, error) {
		return os.OpenFile(filepath.Join(logDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	}

	infoFile, err := open("info.log")
	if err != nil {
		return fmt.Errorf("failed to open info log file: %w", err)
	}
	errorFile, err := open("error.log")
	if err != nil {
		infoFile.Close()
		return fmt.Errorf("failed to open error log file: %w", err)
	}
	debugFile, err := open("debug.log")
	if err != nil {
		infoFile.Close()
		errorFile.Close()
		return fmt.Errorf("failed to open debug log file: %w", err)
	}

	closeLogFiles()
	logFiles = []*os.File{infoFile, errorFile, debugFile}

	InfoLogger = log.New(infoFile, "INFO: ", log.Ldate|log.Ltime)
	ErrorLogger = log.New(errorFile, "ERROR: ", log.Ldate|log.Ltime)
	DebugLogger = log.New(debugFile, "DEBUG: ", log.Ldate|log.Ltime)
	return nil
}

// CloseLoggers закрывает файлы логов
func CloseLoggers() {
	logMu.Lock()
	defer logMu.Unlock()
	closeLogFiles()
}

func closeLogFiles() {
	for _, f := range logFiles {
		f.Close()
	}
	logFiles = nil
}

// LogInfo логирует информационное сообщение
func LogInfo(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	InfoLogger.Printf("%s:%d - %s", filepath.Base(file), line, fmt.Sprintf(format, v...))
}

// LogError логирует сообщение об ошибке
func LogError(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	ErrorLogger.Printf("%s:%d - %s", filepath.Base(file), line, fmt.Sprintf(format, v...))
}

// LogDebug логирует отладочное сообщение
func LogDebug(format string, v ...interface{}) {
	_, file, line, _ := runtime.Caller(1)
	DebugLogger.Printf("%s:%d - %s", filepath.Base(file), line, fmt.Sprintf(format, v...))
}

// LogOperation логирует результат операции и учитывает его в метриках
func LogOperation(operation string, startTime time.Time, err error) {
	duration := time.Since(startTime)
	GetMetrics().RecordOperation(operation, duration, err)
	if err != nil {
		LogError("Operation %s failed after %v: %v", operation, duration, err)
	} else {
		LogInfo("Operation %s completed in %v", operation, duration)
	}
}
