package database

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationVersion(t *testing.T) {
	cases := []struct {
		name string
		want int
	}{
		{"001_init.sql", 1},
		{"002_add_runs.sql", 2},
		{"10_widen_column.sql", 10},
		{"init.sql", 0},
		{"v2_thing.sql", 0},
	}
	for _, c := range cases {
		if got := migrationVersion(c.name); got != c.want {
			t.Errorf("migrationVersion(%q) = %d, want %d", c.name, got, c.want)
		}
	}
}

// Every embedded migration must carry a numeric prefix, and the zero-padded
// names must sort in version order, because the runner applies them in glob
// order.
func TestEmbeddedMigrationsOrdered(t *testing.T) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(names) == 0 {
		t.Fatalf("no embedded migrations found")
	}
	prev := 0
	for _, path := range names {
		v := migrationVersion(strings.TrimPrefix(path, "migrations/"))
		if v <= 0 {
			t.Fatalf("%s has no usable version prefix", path)
		}
		if v <= prev {
			t.Fatalf("%s out of order after version %d", path, prev)
		}
		prev = v
	}
}

func TestDSNFromEnvComposed(t *testing.T) {
	t.Setenv("ROLEWARDEN_DB_DSN", "")
	t.Setenv("ROLEWARDEN_DB_HOST", "db.internal")
	t.Setenv("ROLEWARDEN_DB_PORT", "")
	t.Setenv("ROLEWARDEN_DB_USER", "")
	t.Setenv("ROLEWARDEN_DB_PASS", "pw")
	t.Setenv("ROLEWARDEN_DB_NAME", "")
	t.Setenv("ROLEWARDEN_DB_SSLMODE", "")

	want := "postgres://rolewarden:pw@db.internal:5432/rolewarden?sslmode=disable"
	if got := dsnFromEnv(); got != want {
		t.Fatalf("dsnFromEnv() = %q, want %q", got, want)
	}
}

func TestDSNFromEnvExplicitWins(t *testing.T) {
	t.Setenv("ROLEWARDEN_DB_DSN", "postgres://u:p@elsewhere/db")
	if got := dsnFromEnv(); got != "postgres://u:p@elsewhere/db" {
		t.Fatalf("explicit DSN ignored: %q", got)
	}
}
