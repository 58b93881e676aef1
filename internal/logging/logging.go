// Package logging はcharmbracelet/logのロガーを設定から作成します。
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// New は level ("debug", "info", "warn", "error") と format ("text", "json", "logfmt")
// からロガーを作成します。
func New(w io.Writer, level, format string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{
		Level:           ParseLevel(level),
		Formatter:       ParseFormatter(format),
		ReportTimestamp: true,
		Prefix:          "todo-api",
	})
}

// Discard はテスト用に何も出力しないロガーを返します。
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// ParseLevel は文字列のログレベルをパースします。不明な値は info。
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ParseFormatter はフォーマッター名をパースします。不明な値は text。
func ParseFormatter(format string) log.Formatter {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}
