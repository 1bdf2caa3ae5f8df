package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

var migrationName = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

const (
	annotationUp    = "-- +goose Up"
	annotationDown  = "-- +goose Down"
	statementBegin  = "-- +goose StatementBegin"
	statementEnd    = "-- +goose StatementEnd"
	versionDigits   = 14
	sqlMigrationExt = ".sql"
)

// ValidateDir checks the migrations on disk. Every problem is reported, not
// only the first.
func ValidateDir(dir string) error {
	if dir == "" {
		return errors.New("dir is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("migrations dir: %w", err)
	}
	return validateFS(os.DirFS(dir), ".")
}

// ValidateEmbedded checks the migrations compiled into the binary.
func ValidateEmbedded() error {
	return validateFS(embedded, embeddedDir)
}

func validateFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var problems error
	owners := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != sqlMigrationExt {
			continue
		}

		match := migrationName.FindStringSubmatch(name)
		if match == nil {
			problems = multierr.Append(problems, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name))
			continue
		}
		if first, dup := owners[match[1]]; dup {
			problems = multierr.Append(problems, fmt.Errorf("duplicate migration version %s in %q and %q", match[1], first, name))
		} else {
			owners[match[1]] = name
		}

		body, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("read %q: %w", name, err))
			continue
		}
		for _, issue := range annotationIssues(string(body)) {
			problems = multierr.Append(problems, fmt.Errorf("migration %q: %s", name, issue))
		}
	}
	return problems
}

func annotationIssues(body string) []string {
	var issues []string
	up := strings.Index(body, annotationUp)
	down := strings.Index(body, annotationDown)
	if up < 0 {
		issues = append(issues, fmt.Sprintf("missing %q", annotationUp))
	}
	if down < 0 {
		issues = append(issues, fmt.Sprintf("missing %q", annotationDown))
	}
	if up >= 0 && down >= 0 && down < up {
		issues = append(issues, fmt.Sprintf("%q appears before %q", annotationDown, annotationUp))
	}
	if b, e := strings.Count(body, statementBegin), strings.Count(body, statementEnd); b != e {
		issues = append(issues, fmt.Sprintf("unbalanced StatementBegin/StatementEnd (%d/%d)", b, e))
	}
	return issues
}
