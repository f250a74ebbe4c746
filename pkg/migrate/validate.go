package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks migration filenames, version uniqueness and the goose
// section markers. An empty directory is valid.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{} // version -> filename
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		version := m[1]
		if prev, ok := seen[version]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name

		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read file %q: %w", name, err)
		}
		if err := checkSections(string(b)); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}
	return nil
}

func checkSections(txt string) error {
	up := strings.Index(txt, "-- +goose Up")
	down := strings.Index(txt, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf("missing \"-- +goose Up\"")
	case down < 0:
		return fmt.Errorf("missing \"-- +goose Down\"")
	case down < up:
		return fmt.Errorf("\"-- +goose Down\" precedes \"-- +goose Up\"")
	}
	begins := strings.Count(txt, "-- +goose StatementBegin")
	ends := strings.Count(txt, "-- +goose StatementEnd")
	if begins != ends {
		return fmt.Errorf("unbalanced StatementBegin/StatementEnd (%d/%d)", begins, ends)
	}
	return nil
}
