package configsvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/stockpanel/sentinel/internal/database"
)

const dbSchema = `
CREATE TABLE IF NOT EXISTS system_config (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// DbBackend persists configuration in a sqlite table, one row per key.
// Suited to server deployments where runtime hot-reload without a file
// touch is desired.
type DbBackend struct {
	db *database.DB
}

// NewDbBackend opens (and migrates) the system_config table on db.
func NewDbBackend(db *database.DB) (*DbBackend, error) {
	if err := db.Migrate(dbSchema); err != nil {
		return nil, err
	}
	return &DbBackend{db: db}, nil
}

func (b *DbBackend) Read() (ConfigMap, error) {
	ctx := context.Background()
	rows, err := b.db.Conn().QueryContext(ctx, `SELECT key, value FROM system_config`)
	if err != nil {
		return nil, fmt.Errorf("read system_config: %w", err)
	}
	defer rows.Close()

	out := ConfigMap{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan system_config row: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Version hashes the sorted (key, value) pairs, matching the original
// config backend's "db:" + sha256(sorted items)[:16] format verbatim.
func (b *DbBackend) Version() (string, error) {
	m, err := b.Read()
	if err != nil {
		return "", err
	}
	return dbVersion(m), nil
}

func dbVersion(m ConfigMap) string {
	type pair struct{ k, v string }
	pairs := make([]pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, pair{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].k < pairs[j].k })

	var b strings.Builder
	b.WriteByte('[')
	for i, p := range pairs {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "('%s', '%s')", p.k, p.v)
	}
	b.WriteByte(']')

	sum := sha256.Sum256([]byte(b.String()))
	return "db:" + hex.EncodeToString(sum[:])[:16]
}

func (b *DbBackend) UpdatedAt() (*time.Time, error) {
	var t time.Time
	err := b.db.Conn().QueryRowContext(context.Background(),
		`SELECT updated_at FROM system_config ORDER BY updated_at DESC LIMIT 1`).Scan(&t)
	if err != nil {
		return nil, nil // no rows yet: absent, not an error
	}
	return &t, nil
}

// Apply writes each non-skipped update transactionally.
func (b *DbBackend) Apply(updates []KV, sensitiveKeys map[string]bool, maskToken string) ([]string, []string, string, error) {
	ctx := context.Background()
	current, err := b.Read()
	if err != nil {
		return nil, nil, "", err
	}

	tx, err := b.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, "", fmt.Errorf("begin config transaction: %w", err)
	}
	defer tx.Rollback()

	var updatedKeys, skippedMasked []string
	now := time.Now()

	for _, u := range updates {
		key := strings.ToUpper(u.Key)
		currentValue, hasCurrent := current[key]

		if sensitiveKeys[key] && u.Value == maskToken && hasCurrent && currentValue != "" {
			skippedMasked = append(skippedMasked, key)
			continue
		}
		if hasCurrent && currentValue == u.Value {
			continue
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO system_config (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, u.Value, now)
		if err != nil {
			return nil, nil, "", fmt.Errorf("upsert system_config %s: %w", key, err)
		}
		current[key] = u.Value
		updatedKeys = append(updatedKeys, key)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, "", fmt.Errorf("commit config transaction: %w", err)
	}

	return updatedKeys, skippedMasked, dbVersion(current), nil
}
