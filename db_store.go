package main

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"climb/internal/engine"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

type DBDialect string

const (
	dialectSQLite   DBDialect = "sqlite"
	dialectPostgres DBDialect = "postgres"
	dialectMemory   DBDialect = "memory"
)

// timeLayout keeps stored timestamps fixed-width so they sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLRepository stores games in sqlite or postgres. Every UpdateGame runs in
// one transaction under the game's lock, with an optimistic version check on
// the games row.
type SQLRepository struct {
	dialect DBDialect
	db      *sql.DB
	locks   *engine.GameLocks
}

var errGameTaken = errors.New("game already joined")

// queryer is the part of *sql.DB and *sql.Tx the loaders need.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// openRepository picks the storage backend from cfg. The memory dialect
// returns a nil closer.
func openRepository(cfg Config, catalog *engine.Catalog) (engine.Repository, func() error, error) {
	dialect := DBDialect(strings.TrimSpace(strings.ToLower(cfg.DBDialect)))
	if dialect == "" {
		dialect = dialectSQLite
	}
	if dialect == dialectMemory {
		log.Printf("database: dialect=%s", dialect)
		return engine.NewMemoryRepository(), nil, nil
	}
	repo, err := openSQLRepository(cfg, dialect)
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := repo.reconcileCatalog(ctx, catalog); err != nil {
		_ = repo.db.Close()
		return nil, nil, err
	}
	return repo, repo.db.Close, nil
}

func openSQLRepository(cfg Config, dialect DBDialect) (*SQLRepository, error) {
	var driverName string
	var dsn string
	switch dialect {
	case dialectSQLite:
		driverName = "sqlite"
		path := strings.TrimSpace(cfg.SQLitePath)
		if path == "" {
			path = filepath.Join("tmp", "climb.sqlite")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		dsn = path
	case dialectPostgres:
		driverName = "pgx"
		dsn = strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			dsn = strings.TrimSpace(cfg.DatabaseURL)
		}
		if dsn == "" {
			return nil, errors.New("DB_DIALECT=postgres requires DB_POSTGRES_DSN or DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DIALECT %q", dialect)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	if dialect == dialectSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}

	repo := &SQLRepository{dialect: dialect, db: db, locks: engine.NewGameLocks()}
	if err := repo.applyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Printf("database: dialect=%s", dialect)
	return repo, nil
}

func (r *SQLRepository) bind(pos int) string {
	if r.dialect == dialectPostgres {
		return fmt.Sprintf("$%d", pos)
	}
	return "?"
}

// binds returns n placeholders starting at position from.
func (r *SQLRepository) binds(from, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = r.bind(from + i)
	}
	return strings.Join(ph, ", ")
}

func (r *SQLRepository) insertQuery(table string, cols []string) string {
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(cols, ", "),
		r.binds(1, len(cols)),
	)
}

func (r *SQLRepository) applyMigrations(ctx context.Context) error {
	create := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)
	`
	if _, err := r.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[string]bool{}
	err := loadRows(ctx, r.db, "SELECT version FROM schema_migrations", nil, func(rows *sql.Rows) error {
		var v string
		if err := rows.Scan(&v); err != nil {
			return fmt.Errorf("scan schema migration: %w", err)
		}
		applied[v] = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}

	pattern := fmt.Sprintf("migrations/%s/*.sql", r.dialect)
	files, err := fs.Glob(migrationFS, pattern)
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)
	for _, file := range files {
		base := filepath.Base(file)
		if applied[base] {
			continue
		}
		sqlBytes, err := migrationFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		q := r.insertQuery("schema_migrations", []string{"version", "applied_at"})
		if _, err := tx.ExecContext(ctx, q, base, time.Now().UTC()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// SyncCatalog replaces the columns table with catalog.
func (r *SQLRepository) SyncCatalog(ctx context.Context, catalog *engine.Catalog) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM columns"); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear columns: %w", err)
	}
	for _, col := range catalog.Columns() {
		if err := r.insertRow(ctx, tx, "columns", []string{"number", "max_height"}, []any{col.Number, col.MaxHeight}); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog tx: %w", err)
	}
	return nil
}

// reconcileCatalog stores catalog unless it would change column heights
// under games that are still being played.
func (r *SQLRepository) reconcileCatalog(ctx context.Context, catalog *engine.Catalog) error {
	stored, err := r.storedColumns(ctx)
	if err != nil {
		return err
	}
	if sameColumns(stored, catalog.Columns()) {
		return nil
	}
	if len(stored) > 0 {
		var active int
		query := "SELECT COUNT(*) FROM games WHERE status = " + r.bind(1)
		if err := r.db.QueryRowContext(ctx, query, string(engine.StatusInProgress)).Scan(&active); err != nil {
			return fmt.Errorf("count active games: %w", err)
		}
		if active > 0 {
			return fmt.Errorf("column catalog differs from the stored one while %d games are in progress", active)
		}
		log.Printf("catalog: replacing %d stored columns with %d", len(stored), len(catalog.Columns()))
	}
	return r.SyncCatalog(ctx, catalog)
}

func sameColumns(a, b []engine.Column) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// StoredCatalog reads the columns table back.
func (r *SQLRepository) StoredCatalog(ctx context.Context) (*engine.Catalog, error) {
	cols, err := r.storedColumns(ctx)
	if err != nil {
		return nil, err
	}
	return engine.NewCatalog(cols)
}

func (r *SQLRepository) storedColumns(ctx context.Context) ([]engine.Column, error) {
	var cols []engine.Column
	err := loadRows(ctx, r.db, "SELECT number, max_height FROM columns ORDER BY number", nil, func(rows *sql.Rows) error {
		var c engine.Column
		if err := rows.Scan(&c.Number, &c.MaxHeight); err != nil {
			return err
		}
		cols = append(cols, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	return cols, nil
}

func (r *SQLRepository) UpdateGame(ctx context.Context, gameID string, fn func(*engine.State) error) error {
	unlock := r.locks.Lock(gameID)
	defer unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin game tx", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	s, err := r.loadState(ctx, tx, gameID, true)
	if err != nil {
		return err
	}
	version := s.Game.Version
	if err := fn(s); err != nil {
		return err
	}
	s.Game.Version = version + 1

	if err := r.saveState(ctx, tx, s, version); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageError("commit game tx", err)
	}
	committed = true
	return nil
}

func (r *SQLRepository) LoadGame(ctx context.Context, gameID string) (*engine.State, error) {
	return r.loadState(ctx, r.db, gameID, false)
}

func (r *SQLRepository) loadState(ctx context.Context, q queryer, gameID string, forUpdate bool) (*engine.State, error) {
	query := "SELECT id, player_a, player_b, turn_owner, status, winner, version, created_at, updated_at FROM games WHERE id = " + r.bind(1)
	if forUpdate && r.dialect == dialectPostgres {
		query += " FOR UPDATE"
	}
	var (
		g                    engine.Game
		playerB, winner      sql.NullString
		status               string
		createdAt, updatedAt string
	)
	err := q.QueryRowContext(ctx, query, gameID).Scan(
		&g.ID, &g.PlayerA, &playerB, &g.TurnOwner, &status, &winner, &g.Version, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.ErrGameNotFound
	}
	if err != nil {
		return nil, storageError("load game", err)
	}
	g.PlayerB = playerB.String
	g.Winner = winner.String
	g.Status = engine.Status(status)
	g.CreatedAt = parseTime(createdAt)
	g.UpdatedAt = parseTime(updatedAt)
	s := engine.NewState(g)

	err = loadRows(ctx, q, "SELECT player_id, column_number, progress, locked FROM player_columns WHERE game_id = "+r.bind(1), []any{gameID}, func(rows *sql.Rows) error {
		var (
			pid           string
			col, progress int
			locked        int
		)
		if err := rows.Scan(&pid, &col, &progress, &locked); err != nil {
			return err
		}
		if s.Progress[pid] == nil {
			s.Progress[pid] = map[int]*engine.Progress{}
		}
		s.Progress[pid][col] = &engine.Progress{Progress: progress, Locked: locked == 1}
		return nil
	})
	if err != nil {
		return nil, storageError("load player columns", err)
	}

	err = loadRows(ctx, q, "SELECT player_id, column_number, temp_progress FROM turn_markers WHERE game_id = "+r.bind(1), []any{gameID}, func(rows *sql.Rows) error {
		var (
			pid       string
			col, temp int
		)
		if err := rows.Scan(&pid, &col, &temp); err != nil {
			return err
		}
		if s.Ledger[pid] == nil {
			s.Ledger[pid] = engine.Ledger{}
		}
		s.Ledger[pid][col] = temp
		return nil
	})
	if err != nil {
		return nil, storageError("load turn markers", err)
	}

	err = loadRows(ctx, q, "SELECT player_id, dice, pairings, has_pending, rolled_at FROM dice_rolls WHERE game_id = "+r.bind(1), []any{gameID}, func(rows *sql.Rows) error {
		var (
			pid, dice, pairings, rolledAt string
			pending                       int
		)
		if err := rows.Scan(&pid, &dice, &pairings, &pending, &rolledAt); err != nil {
			return err
		}
		rec := &engine.RollRecord{HasPending: pending == 1, RolledAt: parseTime(rolledAt)}
		if err := json.Unmarshal([]byte(dice), &rec.Dice); err != nil {
			return fmt.Errorf("decode dice: %w", err)
		}
		if err := json.Unmarshal([]byte(pairings), &rec.Pairings); err != nil {
			return fmt.Errorf("decode pairings: %w", err)
		}
		s.Rolls[pid] = rec
		return nil
	})
	if err != nil {
		return nil, storageError("load dice rolls", err)
	}
	return s, nil
}

// saveState writes s back, replacing every per-game row. The games row is
// only updated if it still carries prevVersion.
func (r *SQLRepository) saveState(ctx context.Context, tx *sql.Tx, s *engine.State, prevVersion int64) error {
	g := s.Game
	q := fmt.Sprintf(
		"UPDATE games SET player_b = %s, turn_owner = %s, status = %s, winner = %s, version = %s, updated_at = %s WHERE id = %s AND version = %s",
		r.bind(1), r.bind(2), r.bind(3), r.bind(4), r.bind(5), r.bind(6), r.bind(7), r.bind(8),
	)
	res, err := tx.ExecContext(ctx, q, nullable(g.PlayerB), g.TurnOwner, string(g.Status), nullable(g.Winner), g.Version, formatTime(g.UpdatedAt), g.ID, prevVersion)
	if err != nil {
		return storageError("update game", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return storageError("update game", err)
	} else if n != 1 {
		return storageError("update game", fmt.Errorf("version %d of game %s is stale", prevVersion, g.ID))
	}

	for _, tbl := range []string{"player_columns", "turn_markers", "dice_rolls"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+tbl+" WHERE game_id = "+r.bind(1), g.ID); err != nil {
			return storageError("clear "+tbl, err)
		}
	}

	for _, pid := range sortedKeys(s.Progress) {
		for _, col := range s.ProgressColumns(pid) {
			p := s.Progress[pid][col]
			err := r.insertRow(ctx, tx, "player_columns",
				[]string{"game_id", "player_id", "column_number", "progress", "locked"},
				[]any{g.ID, pid, col, p.Progress, boolInt(p.Locked)})
			if err != nil {
				return storageError("save player columns", err)
			}
		}
	}
	for _, pid := range sortedKeys(s.Ledger) {
		l := s.Ledger[pid]
		for _, col := range l.Columns() {
			err := r.insertRow(ctx, tx, "turn_markers",
				[]string{"game_id", "player_id", "column_number", "temp_progress"},
				[]any{g.ID, pid, col, l[col]})
			if err != nil {
				return storageError("save turn markers", err)
			}
		}
	}
	for _, pid := range sortedKeys(s.Rolls) {
		rec := s.Rolls[pid]
		err := r.insertRow(ctx, tx, "dice_rolls",
			[]string{"game_id", "player_id", "dice", "pairings", "has_pending", "rolled_at"},
			[]any{g.ID, pid, asJSON(rec.Dice), asJSON(rec.Pairings), boolInt(rec.HasPending), formatTime(rec.RolledAt)})
		if err != nil {
			return storageError("save dice rolls", err)
		}
	}
	return nil
}

func (r *SQLRepository) CreatePlayer(ctx context.Context, p engine.Player) error {
	err := r.insertRow(ctx, r.db, "players",
		[]string{"id", "name", "token", "created_at"},
		[]any{p.ID, p.Name, p.Token, formatTime(p.CreatedAt)})
	if err != nil {
		return storageError("create player", err)
	}
	return nil
}

func (r *SQLRepository) PlayerByToken(ctx context.Context, token string) (engine.Player, error) {
	var (
		p         engine.Player
		createdAt string
	)
	err := r.db.QueryRowContext(ctx, "SELECT id, name, token, created_at FROM players WHERE token = "+r.bind(1), token).
		Scan(&p.ID, &p.Name, &p.Token, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Player{}, engine.ErrInvalidCredential
	}
	if err != nil {
		return engine.Player{}, storageError("load player", err)
	}
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

func (r *SQLRepository) PlayerNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := "SELECT id, name FROM players WHERE id IN (" + r.binds(1, len(ids)) + ")"
	err := loadRows(ctx, r.db, q, args, func(rows *sql.Rows) error {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return err
		}
		out[id] = name
		return nil
	})
	if err != nil {
		return nil, storageError("load player names", err)
	}
	return out, nil
}

func (r *SQLRepository) CreateGame(ctx context.Context, g engine.Game) error {
	err := r.insertRow(ctx, r.db, "games",
		[]string{"id", "player_a", "player_b", "turn_owner", "status", "winner", "version", "created_at", "updated_at"},
		[]any{g.ID, g.PlayerA, nullable(g.PlayerB), g.TurnOwner, string(g.Status), nullable(g.Winner), g.Version, formatTime(g.CreatedAt), formatTime(g.UpdatedAt)})
	if err != nil {
		return storageError("create game", err)
	}
	return nil
}

func (r *SQLRepository) JoinWaitingGame(ctx context.Context, player string, now time.Time) (engine.Game, error) {
	q := fmt.Sprintf(
		"SELECT id FROM games WHERE status = %s AND player_a <> %s ORDER BY created_at, id LIMIT 1",
		r.bind(1), r.bind(2),
	)
	for {
		var id string
		err := r.db.QueryRowContext(ctx, q, string(engine.StatusWaiting), player).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return engine.Game{}, engine.ErrNoGameAvailable
		}
		if err != nil {
			return engine.Game{}, storageError("find waiting game", err)
		}

		var joined engine.Game
		err = r.UpdateGame(ctx, id, func(s *engine.State) error {
			if s.Game.Status != engine.StatusWaiting || s.Game.PlayerB != "" {
				return errGameTaken
			}
			s.Game.PlayerB = player
			s.Game.Status = engine.StatusInProgress
			s.Game.UpdatedAt = now
			joined = s.Game
			return nil
		})
		if errors.Is(err, errGameTaken) {
			continue
		}
		if err != nil {
			return engine.Game{}, err
		}
		joined.Version++
		return joined, nil
	}
}

func (r *SQLRepository) Wins(ctx context.Context) ([]engine.WinTally, error) {
	q := fmt.Sprintf(`
		SELECT g.winner, p.name, COUNT(1)
		FROM games g JOIN players p ON p.id = g.winner
		WHERE g.status = %s
		GROUP BY g.winner, p.name`, r.bind(1))
	var out []engine.WinTally
	err := loadRows(ctx, r.db, q, []any{string(engine.StatusCompleted)}, func(rows *sql.Rows) error {
		var t engine.WinTally
		if err := rows.Scan(&t.PlayerID, &t.Name, &t.Wins); err != nil {
			return err
		}
		out = append(out, t)
		return nil
	})
	if err != nil {
		return nil, storageError("count wins", err)
	}
	engine.SortWins(out)
	return out, nil
}

func (r *SQLRepository) insertRow(ctx context.Context, q queryer, table string, cols []string, vals []any) error {
	if _, err := q.ExecContext(ctx, r.insertQuery(table, cols), vals...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func loadRows(ctx context.Context, q queryer, query string, args []any, fn func(rows *sql.Rows) error) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func storageError(op string, err error) error {
	return &engine.Error{Code: engine.CodeStorage, Message: op, Cause: err}
}

func asJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
