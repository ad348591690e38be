package source

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openelectricity/emissionfeed/internal/models"
)

// AppendLog is the consumer-side durable buffer: one JSON object per
// line, in order of receipt.
type AppendLog struct {
	path string
	f    *os.File
}

// OpenAppendLog opens (creating parent directories as needed) the log
// file for appending.
func OpenAppendLog(path string) (*AppendLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open append log: %w", err)
	}
	return &AppendLog{path: path, f: f}, nil
}

// Append writes one raw record as a single JSON line and flushes it so
// file-watching consumers see the mtime change immediately.
func (l *AppendLog) Append(raw models.RawRecord) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal log line: %w", err)
	}
	if _, err := l.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append log line: %w", err)
	}
	return l.f.Sync()
}

// Close closes the underlying file.
func (l *AppendLog) Close() error {
	return l.f.Close()
}

// ReadRecords reads a JSONL file into raw records. Lines that are not
// valid JSON objects are skipped, consistent with the malformed-input
// drop policy.
func ReadRecords(path string) ([]models.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	var out []models.RawRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw models.RawRecord
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}
		out = append(out, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan log: %w", err)
	}
	return out, nil
}

// MirrorCoords copies lat/lon to latitude/longitude when only the short
// names are present, so the log always carries the wire schema's names.
func MirrorCoords(raw models.RawRecord) {
	if _, ok := raw["latitude"]; !ok {
		if v, ok := raw["lat"]; ok {
			raw["latitude"] = v
		}
	}
	if _, ok := raw["longitude"]; !ok {
		if v, ok := raw["lon"]; ok {
			raw["longitude"] = v
		}
	}
}

// ChangeToken returns a cheap token identifying the current contents of
// the first existing path: its modification time in nanoseconds. 0 means
// no file exists yet. Reload only when the token changes.
func ChangeToken(paths ...string) int64 {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			return info.ModTime().UnixNano()
		}
	}
	return 0
}
