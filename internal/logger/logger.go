/*
 * Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const (
	// ANSI escape code to reset color
	reset = "\033[0m"
	// ANSI escape code for green color
	green = "\033[32m"
	// ANSI escape code for yellow text
	yellowText = "\033[33m"
	// ANSI escape code for red text
	redText = "\033[31m"
	// Unicode code point for the checkmark
	checkmark = "✔"
	// Unicode character for the red X emoji
	redXEmoji = "❌"
	// Unicode character for the warning sign
	warningSign = "⚠"
)

// fdWriter is the subset of os.File that implements io.Writer and Fd()
type fdWriter interface {
	io.Writer
	Fd() uintptr
}

type exitFunc func(int)

// Logger defines the message surface the rest of the program uses.
type Logger interface {
	Info(format string, a ...any)
	Check(format string, a ...any)
	Warning(format string, a ...any)
	Error(err error)
	Debug(format string, a ...any)
}

// FunLogger prints emoji-decorated messages to the console and duplicates
// every message, timestamped per line, into an append-only log file. The
// file survives the session so a failed run can be diagnosed after the
// orchestrator's remote channel has closed.
type FunLogger struct {
	// Out is the console writer, os.Stderr by default.
	Out io.Writer
	// ExitFunc terminates the process, os.Exit by default.
	ExitFunc exitFunc
	// IsCI disables interactive output when set.
	IsCI bool

	debug bool

	mu   sync.Mutex
	file *os.File
}

// NewLogger creates a new instance of FunLogger.
func NewLogger() *FunLogger {
	return &FunLogger{
		Out:      os.Stderr,
		ExitFunc: os.Exit,
	}
}

// SetDebug enables debug-level output.
func (l *FunLogger) SetDebug(debug bool) {
	l.debug = debug
}

// SetLogFile opens path for appending and duplicates all subsequent
// messages into it. The file is created world-readable so the unprivileged
// user can inspect it even when the bootstrapper ran as root.
func (l *FunLogger) SetLogFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	l.mu.Lock()
	l.file = f
	l.mu.Unlock()
	return nil
}

// Close closes the log file, if one was set.
func (l *FunLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// LogFileWriter returns a writer that timestamps each line and appends it
// to the log file, for capturing subprocess stdout/stderr. When no log file
// is configured the writer discards its input.
func (l *FunLogger) LogFileWriter() io.WriteCloser {
	pr, pw := io.Pipe()
	go func() {
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			l.toFile("  | %s", scanner.Text())
		}
		_ = pr.Close()
	}()
	return pw
}

// Info prints an information message with no emoji.
func (l *FunLogger) Info(format string, a ...any) {
	message := fmt.Sprintf(format, a...)
	l.console("%s\n", message)
	l.toFile("INFO  %s", message)
}

// Check prints an information message with a check emoji.
func (l *FunLogger) Check(format string, a ...any) {
	message := fmt.Sprintf(format, a...)
	l.printMessage(green, checkmark, message)
	l.toFile("OK    %s", message)
}

// Warning prints a warning message with a warning emoji.
func (l *FunLogger) Warning(format string, a ...any) {
	message := fmt.Sprintf(format, a...)
	l.printMessage(yellowText, warningSign, message)
	l.toFile("WARN  %s", message)
}

// Error prints an error message with an X emoji.
func (l *FunLogger) Error(err error) {
	l.printMessage(redText, redXEmoji, err.Error())
	l.toFile("ERROR %s", err.Error())
}

// Debug prints a debug message when debug output is enabled. The message is
// always written to the log file.
func (l *FunLogger) Debug(format string, a ...any) {
	message := fmt.Sprintf(format, a...)
	if l.debug {
		l.console("[DEBUG] %s\n", message)
	}
	l.toFile("DEBUG %s", message)
}

// Exit flushes the log file and terminates the process.
func (l *FunLogger) Exit(code int) {
	_ = l.Close()
	l.ExitFunc(code)
}

func (l *FunLogger) console(format string, a ...any) {
	fmt.Fprintf(l.Out, format, a...) // nolint: errcheck
}

// printMessage prints the message with the specified emoji, dropping color
// codes when the console is not an interactive terminal.
func (l *FunLogger) printMessage(color, emoji, message string) {
	if l.isInteractiveTerminal() {
		l.console("%s%s%s\t%s\n", color, emoji, reset, message)
		return
	}
	l.console("%s\t%s\n", emoji, message)
}

func (l *FunLogger) toFile(format string, a ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	ts := time.Now().UTC().Format(time.RFC3339)
	fmt.Fprintf(l.file, "%s %s\n", ts, fmt.Sprintf(format, a...)) // nolint: errcheck
}

func (l *FunLogger) isInteractiveTerminal() bool {
	if l.IsCI || os.Getenv("CI") == "true" {
		return false
	}
	if f, ok := l.Out.(fdWriter); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}
