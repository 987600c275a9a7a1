package configsvc

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileBackend persists configuration as a dotenv-style file, preserving
// unknown lines and comments on write. Reads are parsed fresh each
// call; writes replace the file atomically (rename), falling back to
// an in-place rewrite with fsync when rename isn't available (e.g. the
// target and temp file live on different filesystems).
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// NewFileBackend opens (but does not yet read) the dotenv file at path.
// A missing file is treated as an empty configuration.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Read() (ConfigMap, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readLocked()
}

func (b *FileBackend) readLocked() (ConfigMap, error) {
	f, err := os.Open(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return ConfigMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	out := ConfigMap{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := parseDotenvLine(scanner.Text())
		if ok {
			out[strings.ToUpper(key)] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return out, nil
}

func parseDotenvLine(line string) (key, value string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", "", false
	}
	idx := strings.Index(trimmed, "=")
	if idx < 0 {
		return "", "", false
	}
	key = strings.TrimSpace(trimmed[:idx])
	value = strings.TrimSpace(trimmed[idx+1:])
	value = strings.Trim(value, `"'`)
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

func (b *FileBackend) Version() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.versionLocked()
}

func (b *FileBackend) versionLocked() (string, error) {
	info, err := os.Stat(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return "mtime_ns:0:" + hashContent(nil), nil
	}
	if err != nil {
		return "", fmt.Errorf("stat config file: %w", err)
	}
	content, err := os.ReadFile(b.path)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}
	return fmt.Sprintf("mtime_ns:%d:%s", info.ModTime().UnixNano(), hashContent(content)), nil
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func (b *FileBackend) UpdatedAt() (*time.Time, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	info, err := os.Stat(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	t := info.ModTime()
	return &t, nil
}

// Apply upserts each non-skipped update into the file, preserving
// every line it doesn't touch, then writes atomically.
func (b *FileBackend) Apply(updates []KV, sensitiveKeys map[string]bool, maskToken string) ([]string, []string, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, err := b.readLocked()
	if err != nil {
		return nil, nil, "", err
	}

	lines, err := b.readRawLines()
	if err != nil {
		return nil, nil, "", err
	}

	var updatedKeys, skippedMasked []string
	pending := map[string]string{}

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
		pending[key] = u.Value
		updatedKeys = append(updatedKeys, key)
	}

	if len(pending) == 0 {
		v, err := b.versionLocked()
		return updatedKeys, skippedMasked, v, err
	}

	lines = upsertLines(lines, pending)
	if err := b.writeAtomic(lines); err != nil {
		return nil, nil, "", err
	}

	v, err := b.versionLocked()
	return updatedKeys, skippedMasked, v, err
}

func (b *FileBackend) readRawLines() ([]string, error) {
	content, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return strings.Split(string(content), "\n"), nil
}

// upsertLines rewrites matching KEY= lines in place, appending any
// pending key that had no existing line. When a key appears more than
// once, the last occurrence is authoritative (matching readLocked's
// last-wins semantics), so it is the occurrence that gets rewritten;
// earlier duplicate lines are left untouched.
func upsertLines(lines []string, pending map[string]string) []string {
	lastIdx := make(map[string]int, len(pending))
	for i, line := range lines {
		key, _, ok := parseDotenvLine(line)
		if !ok {
			continue
		}
		key = strings.ToUpper(key)
		if _, pend := pending[key]; pend {
			lastIdx[key] = i
		}
	}

	remaining := make(map[string]string, len(pending))
	for k, v := range pending {
		remaining[k] = v
	}

	out := make([]string, 0, len(lines)+len(pending))
	for i, line := range lines {
		key, _, ok := parseDotenvLine(line)
		if ok {
			key = strings.ToUpper(key)
			if v, pend := remaining[key]; pend && i == lastIdx[key] {
				out = append(out, key+"="+v)
				delete(remaining, key)
				continue
			}
		}
		out = append(out, line)
	}

	for _, k := range sortedKeys(remaining) {
		out = append(out, k+"="+remaining[k])
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// writeAtomic writes lines to a temp file alongside the target and
// renames it into place. If rename fails (EXDEV/EBUSY — different
// filesystem, file locked by another process), it falls back to an
// in-place rewrite with an explicit fsync.
func (b *FileBackend) writeAtomic(lines []string) error {
	content := strings.Join(lines, "\n")
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp config file: %w", err)
	}

	if err := os.Rename(tmpPath, b.path); err != nil {
		defer os.Remove(tmpPath)
		return b.writeInPlace(content)
	}
	return nil
}

func (b *FileBackend) writeInPlace(content string) error {
	f, err := os.OpenFile(b.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open config file for in-place write: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("write config file in place: %w", err)
	}
	return f.Sync()
}
