package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

var (
	ErrAssetsNotList = errors.New("snapshot: assets is not a list")
	ErrBadExport     = errors.New("snapshot: unreadable state export")
)

// Asset is one simulation object as exported by the game mod.
type Asset map[string]any

// Export is one full state export.
type Export struct {
	Tick     json.Number
	Assets   []Asset
	Revision time.Time
	// Skipped counts assets entries that were not objects.
	Skipped int
}

// StateReader yields the latest export. changed is false when nothing newer
// than the previous read exists.
type StateReader interface {
	Read(ctx context.Context) (exp Export, changed bool, err error)
}

// FileReader reads the export file written by the game mod. The file's
// modification time is its revision. Paths ending in .zst are
// zstd-compressed.
type FileReader struct {
	path string

	mu   sync.Mutex
	last time.Time
}

func NewFileReader(path string) *FileReader {
	return &FileReader{path: path}
}

func (r *FileReader) Path() string {
	return r.path
}

func (r *FileReader) Read(ctx context.Context) (Export, bool, error) {
	if err := ctx.Err(); err != nil {
		return Export{}, false, err
	}
	info, err := os.Stat(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Export{}, false, nil
	}
	if err != nil {
		return Export{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	mtime := info.ModTime()
	if !mtime.After(r.last) {
		return Export{}, false, nil
	}
	// A bad file is not retried until it is rewritten.
	r.last = mtime

	data, err := r.load()
	if err != nil {
		return Export{}, true, err
	}
	exp, err := ParseExport(data)
	if err != nil {
		return Export{}, true, err
	}
	exp.Revision = mtime
	return exp, true, nil
}

func (r *FileReader) load() ([]byte, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if !strings.HasSuffix(r.path, ".zst") {
		return io.ReadAll(f)
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadExport, err)
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadExport, err)
	}
	return data, nil
}

// ParseExport decodes {"tick": n, "assets": [...]} keeping number literals.
func ParseExport(data []byte) (Export, error) {
	var doc struct {
		Tick   json.Number     `json:"tick"`
		Assets json.RawMessage `json:"assets"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Export{}, fmt.Errorf("%w: %v", ErrBadExport, err)
	}
	exp := Export{Tick: doc.Tick}
	raw := bytes.TrimSpace(doc.Assets)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return exp, nil
	}
	if raw[0] != '[' {
		return Export{}, ErrAssetsNotList
	}
	var items []any
	dec = json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&items); err != nil {
		return Export{}, fmt.Errorf("%w: %v", ErrBadExport, err)
	}
	exp.Assets = make([]Asset, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			exp.Skipped++
			log.Warn().Str("component", "snapshot").Int("index", i).Msg("skipping non-object asset")
			continue
		}
		exp.Assets = append(exp.Assets, Asset(obj))
	}
	return exp, nil
}
