// Package archive keeps every saved path as an immutable revision in a SQL database.
package archive

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pressly/goose/v3"
	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite"

	"github.com/udisondev/autopilot/internal/archive/migrations"
	"github.com/udisondev/autopilot/internal/model"
	"github.com/udisondev/autopilot/internal/pathstore"
)

// ErrNotFound is returned when a revision does not exist.
var ErrNotFound = errors.New("revision not found")

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// goose keeps its base FS and dialect in package globals.
var migrateMu sync.Mutex

// Revision describes one archived version of a named path.
type Revision struct {
	ID         string         `json:"id"`
	Kind       model.PathKind `json:"-"`
	Name       string         `json:"name"`
	Number     int            `json:"revision"`
	VendorName string         `json:"vendor_name,omitempty"`
	Points     int            `json:"points"`
	Checksum   string         `json:"checksum"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Archive stores path revisions.
type Archive struct {
	db       *sql.DB
	postgres bool
	now      func() time.Time

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open connects to the database, applies migrations and returns a ready archive.
func Open(ctx context.Context, driver, dsn string) (*Archive, error) {
	var dialect string
	switch driver {
	case DriverSQLite:
		dialect = "sqlite3"
	case DriverPostgres:
		dialect = "postgres"
	default:
		return nil, fmt.Errorf("unsupported archive driver %q", driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("empty archive dsn")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}
	if driver == DriverSQLite {
		// Один writer: sqlite не любит конкурентные транзакции
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging archive database: %w", err)
	}

	if err := runMigrations(ctx, db, dialect, driver); err != nil {
		db.Close()
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	slog.Info("path archive opened", "driver", driver)
	return &Archive{
		db:       db,
		postgres: driver == DriverPostgres,
		now:      time.Now,
		enc:      enc,
		dec:      dec,
	}, nil
}

func runMigrations(ctx context.Context, db *sql.DB, dialect, dir string) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	if dir == DriverPostgres {
		dir = "postgres"
	}

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("running archive migrations: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (a *Archive) Close() error {
	a.dec.Close()
	if err := a.enc.Close(); err != nil {
		slog.Warn("closing zstd encoder", "error", err)
	}
	return a.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (a *Archive) rebind(query string) string {
	if !a.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Put stores p under name as a new revision. If the content equals the latest
// revision of the same name, the latest revision is returned and created is false.
func (a *Archive) Put(ctx context.Context, name string, p model.Path) (rev Revision, created bool, err error) {
	if len(p.Points) == 0 {
		return Revision{}, false, pathstore.ErrEmptyPath
	}

	var plain bytes.Buffer
	if err := pathstore.Encode(&plain, p); err != nil {
		return Revision{}, false, fmt.Errorf("encoding path %s: %w", name, err)
	}
	sum := blake2b.Sum256(plain.Bytes())
	checksum := hex.EncodeToString(sum[:])

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return Revision{}, false, fmt.Errorf("beginning archive transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	latest, err := a.latest(ctx, tx, p.Kind, name)
	switch {
	case err == nil && latest.Checksum == checksum:
		if err = tx.Commit(); err != nil {
			return Revision{}, false, fmt.Errorf("committing archive transaction: %w", err)
		}
		return latest, false, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return Revision{}, false, err
	}

	rev = Revision{
		ID:        uuid.NewString(),
		Kind:      p.Kind,
		Name:      name,
		Number:    latest.Number + 1,
		Points:    len(p.Points),
		Checksum:  checksum,
		CreatedAt: a.now().UTC(),
	}
	if p.Kind == model.PathVendor {
		rev.VendorName = p.VendorName
	}
	payload := a.enc.EncodeAll(plain.Bytes(), nil)

	_, err = tx.ExecContext(ctx, a.rebind(`
		INSERT INTO path_revisions (id, kind, name, revision, vendor_name, points, checksum, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rev.ID, rev.Kind.String(), rev.Name, rev.Number, rev.VendorName, rev.Points,
		rev.Checksum, payload, rev.CreatedAt.UnixNano(),
	)
	if err != nil {
		return Revision{}, false, fmt.Errorf("inserting revision of %s: %w", name, err)
	}
	if err = tx.Commit(); err != nil {
		return Revision{}, false, fmt.Errorf("committing archive transaction: %w", err)
	}

	slog.Debug("path revision archived", "name", name, "kind", p.Kind, "revision", rev.Number)
	return rev, true, nil
}

const revisionColumns = `id, kind, name, revision, vendor_name, points, checksum, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRevision(row rowScanner, extra ...any) (Revision, error) {
	var (
		rev       Revision
		kind      string
		createdAt int64
	)
	dest := append([]any{&rev.ID, &kind, &rev.Name, &rev.Number, &rev.VendorName, &rev.Points, &rev.Checksum, &createdAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Revision{}, err
	}
	k, ok := model.ParsePathKind(kind)
	if !ok {
		return Revision{}, fmt.Errorf("unknown path kind %q in revision %s", kind, rev.ID)
	}
	rev.Kind = k
	rev.CreatedAt = time.Unix(0, createdAt).UTC()
	return rev, nil
}

func (a *Archive) latest(ctx context.Context, tx *sql.Tx, kind model.PathKind, name string) (Revision, error) {
	row := tx.QueryRowContext(ctx, a.rebind(`
		SELECT `+revisionColumns+` FROM path_revisions
		WHERE kind = ? AND name = ?
		ORDER BY revision DESC LIMIT 1`), kind.String(), name)

	rev, err := scanRevision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, ErrNotFound
	}
	if err != nil {
		return Revision{}, fmt.Errorf("querying latest revision of %s: %w", name, err)
	}
	return rev, nil
}

// Revisions lists revisions of a named path, newest first.
func (a *Archive) Revisions(ctx context.Context, kind model.PathKind, name string) ([]Revision, error) {
	rows, err := a.db.QueryContext(ctx, a.rebind(`
		SELECT `+revisionColumns+` FROM path_revisions
		WHERE kind = ? AND name = ?
		ORDER BY revision DESC`), kind.String(), name)
	if err != nil {
		return nil, fmt.Errorf("querying revisions of %s: %w", name, err)
	}
	defer rows.Close()

	var out []Revision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning revision of %s: %w", name, err)
		}
		out = append(out, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating revisions of %s: %w", name, err)
	}
	return out, nil
}

// Get returns the revision with the given id and its decoded path.
func (a *Archive) Get(ctx context.Context, id string) (Revision, model.Path, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Revision{}, model.Path{}, fmt.Errorf("revision %q: %w", id, ErrNotFound)
	}

	var payload []byte
	row := a.db.QueryRowContext(ctx, a.rebind(`
		SELECT `+revisionColumns+`, payload FROM path_revisions WHERE id = ?`), id)
	rev, err := scanRevision(row, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, model.Path{}, fmt.Errorf("revision %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Revision{}, model.Path{}, fmt.Errorf("querying revision %s: %w", id, err)
	}

	plain, err := a.dec.DecodeAll(payload, nil)
	if err != nil {
		return Revision{}, model.Path{}, fmt.Errorf("decompressing revision %s: %w", id, err)
	}
	p, err := pathstore.Decode(bytes.NewReader(plain), rev.Kind, "revision "+id)
	if err != nil {
		return Revision{}, model.Path{}, fmt.Errorf("decoding revision %s: %w", id, err)
	}
	return rev, p, nil
}
