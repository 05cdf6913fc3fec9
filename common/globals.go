// common/globals.go
package common

import (
	"os"
	"strconv"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Process-wide handles, set once during startup.
var (
	DB             *pgxpool.Pool
	SessionManager *scs.SessionManager
)

// SessionName is the session cookie name.
const SessionName = "rolewarden_sess"

// Env returns the variable's value, or def when unset or empty.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvBool reads a boolean-ish variable. 1/t/true/yes/on count as true.
func EnvBool(key, def string) bool {
	switch strings.ToLower(Env(key, def)) {
	case "1", "t", "true", "yes", "on":
		return true
	}
	return false
}

// EnvInt reads an integer variable, falling back to def on parse failure.
func EnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// ReadSecretMaybeFile resolves a secret value. A leading "@" means the rest
// is a path and the trimmed file content is the secret.
func ReadSecretMaybeFile(value string) (string, error) {
	path, ok := strings.CutPrefix(value, "@")
	if !ok {
		return value, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
