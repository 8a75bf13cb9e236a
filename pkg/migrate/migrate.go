package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

// DefaultDir is where migrations live in the repository. The same files are
// embedded, so binaries do not depend on the working directory.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Step is one migration touched or listed by a command.
type Step struct {
	Version  int64
	Path     string
	State    string
	Duration time.Duration
}

func source(dir string) (fs.FS, error) {
	if dir == "" || filepath.Clean(dir) == DefaultDir {
		return fs.Sub(embedded, "migrations")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrations dir %q: %w", dir, err)
	}
	return os.DirFS(dir), nil
}

func newProvider(db *sql.DB, dir string) (*goose.Provider, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	fsys, err := source(dir)
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(database.DialectPostgres, db, fsys)
}

// Run executes up, down or status against the Postgres schema.
func Run(ctx context.Context, db *sql.DB, dir, command string) ([]Step, error) {
	p, err := newProvider(db, dir)
	if err != nil {
		return nil, err
	}
	switch command {
	case "up":
		results, err := p.Up(ctx)
		if err != nil {
			return nil, fmt.Errorf("goose up: %w", err)
		}
		return fromResults(results), nil
	case "down":
		result, err := p.Down(ctx)
		if err != nil {
			return nil, fmt.Errorf("goose down: %w", err)
		}
		return fromResults([]*goose.MigrationResult{result}), nil
	case "status":
		statuses, err := p.Status(ctx)
		if err != nil {
			return nil, fmt.Errorf("goose status: %w", err)
		}
		steps := make([]Step, 0, len(statuses))
		for _, st := range statuses {
			steps = append(steps, Step{Version: st.Source.Version, Path: st.Source.Path, State: string(st.State)})
		}
		return steps, nil
	default:
		return nil, fmt.Errorf("unsupported migrate command %q", command)
	}
}

// MigrateToVersion moves the schema up or down to targetVersion (YYYYMMDDHHMMSS).
func MigrateToVersion(ctx context.Context, db *sql.DB, dir, targetVersion string) ([]Step, error) {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	p, err := newProvider(db, dir)
	if err != nil {
		return nil, err
	}
	current, err := p.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == target:
		return nil, nil
	case current < target:
		results, err = p.UpTo(ctx, target)
	default:
		results, err = p.DownTo(ctx, target)
	}
	if err != nil {
		return nil, fmt.Errorf("migrate %d -> %d: %w", current, target, err)
	}
	return fromResults(results), nil
}

func fromResults(results []*goose.MigrationResult) []Step {
	steps := make([]Step, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		steps = append(steps, Step{
			Version:  r.Source.Version,
			Path:     r.Source.Path,
			State:    r.Direction,
			Duration: r.Duration,
		})
	}
	return steps
}
