package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	migrationsDir     = "sql/migrations"
	migrationLockKey  = int64(0x5f0c4e7)
	statusTimeout     = 5 * time.Second
	schemaTableDDL    = `CREATE TABLE IF NOT EXISTS schema_migrations (version BIGINT PRIMARY KEY, name TEXT NOT NULL, applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW())`
	insertAppliedSQL  = `INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, NOW())`
	deleteAppliedSQL  = `DELETE FROM schema_migrations WHERE version = $1`
	selectAppliedSQL  = `SELECT version FROM schema_migrations ORDER BY version`
	migrationFileGlob = migrationsDir + "/*.sql"
)

var (
	//go:embed sql/migrations/*.sql
	embeddedMigrations embed.FS

	migrationName = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

	errUnknownDirection = errors.New("unknown migration direction")
)

type direction string

const (
	directionUp   direction = "up"
	directionDown direction = "down"
)

// SchemaStatus описывает состояние схемы зеркала заказов.
type SchemaStatus struct {
	Version int64
	Applied int
	Pending []string
}

type migration struct {
	version int64
	name    string
	up      string
	down    string
}

func (m migration) id() string {
	return fmt.Sprintf("%04d_%s", m.version, m.name)
}

type step struct {
	dir direction
	m   migration
}

// MigrateUp применяет недостающие миграции по возрастанию версии.
// steps<=0 применяет все. Возвращает идентификаторы применённых миграций.
func (s *Store) MigrateUp(ctx context.Context, steps int) ([]string, error) {
	return s.migrate(ctx, directionUp, steps)
}

// MigrateDown откатывает последние применённые миграции, минимум одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) ([]string, error) {
	return s.migrate(ctx, directionDown, max(steps, 1))
}

// Status сравнивает schema_migrations со встроенным набором миграций.
func (s *Store) Status(ctx context.Context) (SchemaStatus, error) {
	if s == nil || s.db == nil {
		return SchemaStatus{}, ErrStoreClosed
	}
	known, err := parseMigrations(embeddedMigrations)
	if err != nil {
		return SchemaStatus{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	conn, err := s.db.Conn(queryCtx)
	if err != nil {
		return SchemaStatus{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	applied, err := appliedVersions(queryCtx, conn)
	if err != nil {
		return SchemaStatus{}, err
	}

	status := SchemaStatus{Applied: len(applied)}
	if len(applied) > 0 {
		status.Version = applied[len(applied)-1]
	}
	for _, m := range known {
		if !slices.Contains(applied, m.version) {
			status.Pending = append(status.Pending, m.id())
		}
	}
	return status, nil
}

func (s *Store) migrate(ctx context.Context, dir direction, steps int) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	known, err := parseMigrations(embeddedMigrations)
	if err != nil {
		return nil, err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	// advisory lock не даёт двум репликам мигрировать одновременно
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return nil, err
	}
	plan, err := planSteps(known, applied, dir, steps)
	if err != nil {
		return nil, err
	}

	done := make([]string, 0, len(plan))
	for _, st := range plan {
		if err := st.run(ctx, conn); err != nil {
			return done, err
		}
		s.log().WithFields(log.Fields{
			"migration": st.m.id(),
			"direction": string(st.dir),
		}).Info("migration applied")
		done = append(done, st.m.id())
	}
	return done, nil
}

// planSteps строит упорядоченный список шагов. applied отсортирован по возрастанию.
func planSteps(known []migration, applied []int64, dir direction, steps int) ([]step, error) {
	var plan []step
	switch dir {
	case directionUp:
		for _, m := range known {
			if slices.Contains(applied, m.version) {
				continue
			}
			plan = append(plan, step{dir: directionUp, m: m})
		}
	case directionDown:
		byVersion := make(map[int64]migration, len(known))
		for _, m := range known {
			byVersion[m.version] = m
		}
		for _, v := range slices.Backward(applied) {
			m, ok := byVersion[v]
			if !ok {
				return nil, fmt.Errorf("cannot roll back version %d: no migration file", v)
			}
			plan = append(plan, step{dir: directionDown, m: m})
		}
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownDirection, dir)
	}

	if steps > 0 && len(plan) > steps {
		plan = plan[:steps]
	}
	return plan, nil
}

func (st step) run(ctx context.Context, conn *sql.Conn) error {
	body, bookkeeping, args := st.m.up, insertAppliedSQL, []any{st.m.version, st.m.name}
	if st.dir == directionDown {
		body, bookkeeping, args = st.m.down, deleteAppliedSQL, []any{st.m.version}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s %s: %w", st.dir, st.m.id(), err)
	}
	if _, err := tx.ExecContext(ctx, body); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute %s %s: %w", st.dir, st.m.id(), err)
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record %s %s: %w", st.dir, st.m.id(), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s %s: %w", st.dir, st.m.id(), err)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) ([]int64, error) {
	if _, err := conn.ExecContext(ctx, schemaTableDDL); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	rows, err := conn.QueryContext(ctx, selectAppliedSQL)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema_migrations: %w", err)
	}
	return versions, nil
}

// parseMigrations собирает пары up/down из файлов вида 0001_name.up.sql.
func parseMigrations(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, migrationFileGlob)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files embedded")
	}

	byVersion := make(map[int64]*migration, len(files)/2)
	for _, file := range files {
		base := path.Base(file)
		parts := migrationName.FindStringSubmatch(base)
		if parts == nil {
			return nil, fmt.Errorf("bad migration file name %q", base)
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad migration version in %q: %w", base, err)
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration %q is empty", base)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{version: version, name: parts[2]}
			byVersion[version] = m
		}
		if m.name != parts[2] {
			return nil, fmt.Errorf("version %d has two names: %s and %s", version, m.name, parts[2])
		}

		target := &m.up
		if direction(parts[3]) == directionDown {
			target = &m.down
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s file for version %d", parts[3], version)
		}
		*target = body
	}

	result := make([]migration, 0, len(byVersion))
	for _, v := range slices.Sorted(maps.Keys(byVersion)) {
		m := byVersion[v]
		if m.up == "" || m.down == "" {
			return nil, fmt.Errorf("migration %s needs both up and down files", m.id())
		}
		result = append(result, *m)
	}
	return result, nil
}
