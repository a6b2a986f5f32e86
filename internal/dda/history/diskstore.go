package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstdDec is a package-level decoder, concurrent-safe, shared across reads.
var zstdDec *zstd.Decoder

func init() {
	var err error
	zstdDec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("history: init zstd decoder: " + err.Error())
	}
}

// DiskStore persists entries as zstd-compressed JSON blobs, one file per ID,
// under a single directory. Writes go through a temp-file-then-rename for
// atomicity.
type DiskStore struct {
	mu  sync.Mutex
	dir string
}

// NewDiskStore creates a DiskStore rooted at dir, creating it if absent.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("history: creating store directory: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) pathFor(id string) string {
	return filepath.Join(s.dir, id+".zst")
}

// Put serializes entry to JSON, zstd-compresses it, and atomically writes it
// to entry.ID's file.
func (s *DiskStore) Put(ctx context.Context, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("history: marshaling entry: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("history: creating zstd encoder: %w", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(raw, nil)

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".history-*")
	if err != nil {
		return fmt.Errorf("history: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("history: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("history: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.pathFor(entry.ID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("history: renaming into place: %w", err)
	}
	return nil
}

// Get reads and decompresses the entry for id, if its file exists.
func (s *DiskStore) Get(ctx context.Context, id string) (Entry, bool, error) {
	compressed, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("history: reading entry: %w", err)
	}

	raw, err := zstdDec.DecodeAll(compressed, nil)
	if err != nil {
		return Entry{}, false, fmt.Errorf("history: decompressing entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("history: unmarshaling entry: %w", err)
	}
	return entry, true, nil
}

// List scans the store directory and returns the IDs of entries belonging
// to userID, oldest first. This reads and decompresses every entry in full
// to check its UserID, acceptable for the small expected history sizes.
func (s *DiskStore) List(ctx context.Context, userID string) ([]string, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("history: listing store directory: %w", err)
	}

	var matches []Entry
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".zst" {
			continue
		}
		id := strings.TrimSuffix(f.Name(), ".zst")
		entry, ok, err := s.Get(ctx, id)
		if err != nil || !ok {
			continue
		}
		if entry.UserID == userID {
			matches = append(matches, entry)
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.Before(matches[j].CreatedAt) })

	ids := make([]string, len(matches))
	for i, e := range matches {
		ids[i] = e.ID
	}
	return ids, nil
}
