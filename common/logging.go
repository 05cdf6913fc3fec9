// common/logging.go
package common

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

type logLevel int

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarn
	levelError
	levelFatal
)

var levelNames = map[string]logLevel{
	"debug": levelDebug,
	"info":  levelInfo,
	"warn":  levelWarn,
	"error": levelError,
	"fatal": levelFatal,
}

// levelOverride holds a runtime level change (set via the system API);
// empty string means "use the environment".
var levelOverride atomic.Value

// LogLevel returns the effective log level name.
func LogLevel() string {
	if v, _ := levelOverride.Load().(string); v != "" {
		return v
	}
	return strings.ToLower(Env("ROLEWARDEN_LOG_LEVEL", "info"))
}

// SetLogLevel changes the effective log level at runtime. Unknown names are
// rejected so a typo cannot silence the log.
func SetLogLevel(level string) error {
	level = strings.ToLower(strings.TrimSpace(level))
	if _, ok := levelNames[level]; !ok {
		return fmt.Errorf("unknown log level %q", level)
	}
	levelOverride.Store(level)
	return nil
}

func enabled(at logLevel) bool {
	current, ok := levelNames[LogLevel()]
	if !ok {
		return true
	}
	return at >= current
}

// emit renders one line, text or JSON depending on ROLEWARDEN_LOG_FORMAT.
// Every message passes through redactSecrets first.
func emit(label string, format string, args ...interface{}) {
	msg := redactSecrets(fmt.Sprintf(format, args...))

	if Env("ROLEWARDEN_LOG_FORMAT", "text") == "json" {
		entry := map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"level":     strings.ToLower(label),
			"message":   msg,
		}
		if b, err := json.Marshal(entry); err == nil {
			fmt.Println(string(b))
			return
		}
		// fall back to text when the entry itself will not marshal
	}
	fmt.Printf("%s %s: %s\n", time.Now().Format("2006/01/02 15:04:05"), label, msg)
}

func DebugLog(format string, args ...interface{}) {
	if enabled(levelDebug) {
		emit("DEBUG", format, args...)
	}
}

func InfoLog(format string, args ...interface{}) {
	if enabled(levelInfo) {
		emit("INFO", format, args...)
	}
}

func WarnLog(format string, args ...interface{}) {
	if enabled(levelWarn) {
		emit("WARN", format, args...)
	}
}

func ErrorLog(format string, args ...interface{}) {
	if enabled(levelError) {
		emit("ERROR", format, args...)
	}
}

// FatalLog logs regardless of level and exits the process.
func FatalLog(format string, args ...interface{}) {
	if Env("ROLEWARDEN_LOG_FORMAT", "text") == "json" {
		msg := redactSecrets(fmt.Sprintf(format, args...))
		entry := map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"level":     "fatal",
			"message":   msg,
		}
		if b, err := json.Marshal(entry); err == nil {
			fmt.Println(string(b))
		}
		os.Exit(1)
	}
	log.Fatalf("FATAL: "+format, args...)
}

// LogCommandOutput logs remote command output line by line at debug level.
// Output is capped so a chatty compose run cannot flood the log.
func LogCommandOutput(prefix, output string) {
	if !enabled(levelDebug) {
		return
	}

	const maxLines = 20
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > maxLines {
		lines = append(lines[:maxLines], fmt.Sprintf("... %d more lines truncated ...", len(lines)-maxLines))
	}
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			DebugLog("%s: %s", prefix, line)
		}
	}
}

// Values of these variables (and their _FILE companions) never appear in a
// log line. The list covers our own secrets plus the usual suspects found
// in compose environments on managed hosts.
var protectedEnvVars = []string{
	"SSH_KEY",
	"OIDC_CLIENT_SECRET",
	"OIDC_CLIENT_ID",
	"ROLEWARDEN_DB_PASS",
	"ROLEWARDEN_DB_DSN",
	"JWT_SECRET",
	"AUTH_SECRET",
	"DB_PASSWORD",
	"POSTGRES_PASSWORD",
	"MYSQL_PASSWORD",
	"REDIS_PASSWORD",
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(password|passwd|pwd|secret|key|token|api[-_]?key|auth|credential|bearer)[-_=:\s]*[^\s]+`),
	regexp.MustCompile(`(?i)(mysql|postgres|postgresql|mongodb|redis|amqp|mongodb\+srv)://[^@]+@[^\s]+`),
	regexp.MustCompile(`[a-zA-Z0-9]{40,}`), // long opaque strings, likely keys
}

// redactSecrets scrubs one line before it reaches the log.
func redactSecrets(line string) string {
	for _, name := range protectedEnvVars {
		if v := os.Getenv(name); v != "" && v != "true" && v != "false" {
			line = strings.ReplaceAll(line, v, "***REDACTED***")
		}
		if v := os.Getenv(name + "_FILE"); v != "" {
			line = strings.ReplaceAll(line, v, "***REDACTED***")
		}
	}

	for _, re := range secretPatterns {
		line = re.ReplaceAllStringFunc(line, func(match string) string {
			// keep the label, drop the value
			if k, _, ok := strings.Cut(match, "="); ok {
				return k + "=***REDACTED***"
			}
			if k, _, ok := strings.Cut(match, ":"); ok {
				return k + ":***REDACTED***"
			}
			return "***REDACTED***"
		})
	}
	return line
}
