package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/ignite/internal/artifact"
	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/journal"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - empty database
// 1 - entries and head tables
// 2 - index on entries(future_id, seq)
const currentSchemaVersion = 2

const (
	journalFile  = "journal.db"
	artifactsDir = "artifacts"
	genesisHash  = "genesis"
)

// Durable is a Loader backed by a deployment directory.
type Durable struct {
	dir string
	db  *sql.DB

	mu      sync.Mutex
	lastSeq int64
	head    string
}

// Exists reports whether dir holds a deployment journal.
func Exists(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, journalFile))
	return err == nil && !info.IsDir()
}

// OpenDurable creates or opens the deployment directory dir.
//
// The journal database is configured with:
//   - WAL mode for concurrent reads during writes
//   - FULL synchronous mode so committed appends survive power loss
//   - 5-second busy timeout for lock contention
func OpenDurable(dir string) (*Durable, error) {
	if err := os.MkdirAll(filepath.Join(dir, artifactsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create deployment directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, journalFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	d := &Durable{dir: dir, db: db, head: genesisHash}
	err = db.QueryRow("SELECT seq, hash FROM head WHERE id = 1").Scan(&d.lastSeq, &d.head)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		db.Close()
		return nil, fmt.Errorf("read journal head: %w", err)
	}
	return d, nil
}

// Dir returns the deployment directory.
func (d *Durable) Dir() string { return d.dir }

// Close closes the journal database.
func (d *Durable) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return runMigrations(db)
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("journal schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if version < 2 {
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_entries_future ON entries(future_id, seq)`); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// entryHash chains an entry to its predecessor.
func entryHash(prev string, seq int64, t journal.Type, body []byte) string {
	data := make([]byte, 0, len(prev)+len(body)+64)
	data = append(data, prev...)
	data = append(data, 0)
	data = strconv.AppendInt(data, seq, 10)
	data = append(data, 0)
	data = append(data, t...)
	data = append(data, 0)
	data = append(data, body...)
	return ir.Hash(ir.DomainEntry, data)
}

// Append implements journal.Journal. The entry and the new chain head are
// committed in one transaction.
func (d *Durable) Append(ctx context.Context, m journal.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkSeq(d.lastSeq, m); err != nil {
		return err
	}
	body, err := journal.Encode(m)
	if err != nil {
		return err
	}

	h := journal.Head(m)
	hash := entryHash(d.head, h.Seq, m.Type(), body)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append %s: %w", m.Type(), err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries (seq, type, future_id, body, prev_hash, hash, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, h.Seq, string(m.Type()), h.Future, string(body), d.head, hash, h.Time.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append %s: %w", m.Type(), err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO head (id, seq, hash) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET seq = excluded.seq, hash = excluded.hash
	`, h.Seq, hash)
	if err != nil {
		return fmt.Errorf("append %s: update head: %w", m.Type(), err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append %s: commit: %w", m.Type(), err)
	}

	d.lastSeq = h.Seq
	d.head = hash
	return nil
}

// Replay implements journal.Journal. Entries are verified as they are read;
// the first failure is yielded as an error wrapping ErrCorruptJournal and
// ends the sequence.
func (d *Durable) Replay(ctx context.Context) iter.Seq2[journal.Message, error] {
	return func(yield func(journal.Message, error) bool) {
		var headSeq int64
		headHash := genesisHash
		err := d.db.QueryRowContext(ctx, "SELECT seq, hash FROM head WHERE id = 1").Scan(&headSeq, &headHash)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			yield(nil, fmt.Errorf("replay: read head: %w", err))
			return
		}

		rows, err := d.db.QueryContext(ctx, `
			SELECT seq, type, body, prev_hash, hash
			FROM entries
			ORDER BY seq ASC
		`)
		if err != nil {
			yield(nil, fmt.Errorf("replay: %w", err))
			return
		}
		defer rows.Close()

		var (
			lastSeq int64
			prev    = genesisHash
		)
		for rows.Next() {
			var (
				seq                 int64
				typ, body, prevHash string
				hash                string
			)
			if err := rows.Scan(&seq, &typ, &body, &prevHash, &hash); err != nil {
				yield(nil, fmt.Errorf("replay: scan: %w", err))
				return
			}

			if seq != lastSeq+1 {
				yield(nil, fmt.Errorf("%w: entry %d follows %d", ErrCorruptJournal, seq, lastSeq))
				return
			}
			if prevHash != prev {
				yield(nil, fmt.Errorf("%w: chain broken at entry %d", ErrCorruptJournal, seq))
				return
			}
			if computed := entryHash(prev, seq, journal.Type(typ), []byte(body)); computed != hash {
				yield(nil, fmt.Errorf("%w: entry %d content does not match its hash", ErrCorruptJournal, seq))
				return
			}

			m, err := journal.Decode(journal.Type(typ), []byte(body))
			if err != nil {
				yield(nil, fmt.Errorf("%w: entry %d: %v", ErrCorruptJournal, seq, err))
				return
			}
			if journal.Head(m).Seq != seq {
				yield(nil, fmt.Errorf("%w: entry %d body has sequence %d", ErrCorruptJournal, seq, journal.Head(m).Seq))
				return
			}

			lastSeq, prev = seq, hash
			if !yield(m, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("replay: %w", err))
			return
		}

		if lastSeq != headSeq || prev != headHash {
			yield(nil, fmt.Errorf("%w: journal ends at entry %d but head is entry %d", ErrCorruptJournal, lastSeq, headSeq))
		}
	}
}

// StoreArtifact implements Loader. The file is written to a temporary name,
// synced and renamed so a crash never leaves a partial artifact.
func (d *Durable) StoreArtifact(_ context.Context, futureID string, a artifact.Artifact) error {
	if a.ABI == nil {
		a.ABI = []artifact.ABIEntry{}
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("store artifact %s: %w", futureID, err)
	}

	path, err := d.artifactPath(futureID)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return fmt.Errorf("store artifact %s: %w", futureID, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store artifact %s: %w", futureID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store artifact %s: %w", futureID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store artifact %s: %w", futureID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("store artifact %s: %w", futureID, err)
	}
	return nil
}

// LoadArtifact implements Loader.
func (d *Durable) LoadArtifact(_ context.Context, futureID string) (artifact.Artifact, error) {
	path, err := d.artifactPath(futureID)
	if err != nil {
		return artifact.Artifact{}, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return artifact.Artifact{}, fmt.Errorf("future %s: %w", futureID, artifact.ErrArtifactNotFound)
	}
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("load artifact %s: %w", futureID, err)
	}
	a, err := artifact.Decode(data)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("load artifact %s: %w", futureID, err)
	}
	return a, nil
}

func (d *Durable) artifactPath(futureID string) (string, error) {
	if futureID == "" || filepath.Base(futureID) != futureID || futureID == "." || futureID == ".." {
		return "", fmt.Errorf("invalid future id %q for artifact path", futureID)
	}
	return filepath.Join(d.dir, artifactsDir, futureID+".json"), nil
}
