package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultFilePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// FileDSN converts a filesystem path into an on-disk SQLite DSN with sensible
// defaults and creates the parent directory. Callers must ensure the path is
// non-empty.
func FileDSN(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", ErrPathRequired
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve storage path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create storage dir: %w", err)
	}
	return fmt.Sprintf("file:%s?%s", abs, defaultFilePragmas), nil
}

// IsPostgres reports whether dsn addresses a PostgreSQL server rather than a
// SQLite file.
func IsPostgres(dsn string) bool {
	trimmed := strings.TrimSpace(dsn)
	return strings.HasPrefix(trimmed, "postgres://") ||
		strings.HasPrefix(trimmed, "postgresql://") ||
		strings.HasPrefix(trimmed, "host=")
}

// ResolveDSN returns dsn unchanged for PostgreSQL and converts anything else
// into a SQLite file DSN.
func ResolveDSN(dsn string) (string, error) {
	if IsPostgres(dsn) {
		return strings.TrimSpace(dsn), nil
	}
	return FileDSN(dsn)
}
