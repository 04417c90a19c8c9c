// Package store persists the feed collection as a JSON snapshot under the
// data directory. Every mutation overwrites the whole file; there is no
// incremental update path.
package store

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"feedwarden/internal/feed"
)

const (
	snapshotName     = "database.json"
	snapshotNameGzip = "database.json.gz"
)

type Store struct {
	dataDir  string
	compress bool
	log      *slog.Logger
}

func New(dataDir string, compress bool, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %q: %w", dataDir, err)
	}

	return &Store{
		dataDir:  dataDir,
		compress: compress,
		log:      log,
	}, nil
}

func (s *Store) Path() string {
	name := snapshotName
	if s.compress {
		name = snapshotNameGzip
	}

	return filepath.Join(s.dataDir, name)
}

// Load reads the snapshot once at startup. A missing file is an empty
// collection, not an error.
func (s *Store) Load(ctx context.Context) (feed.Collection, error) {
	path := s.Path()

	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.WarnContext(ctx, "Snapshot does not exist, starting with an empty collection",
			"path", path)

		return feed.Collection{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %q: %w", path, err)
	}
	defer s.closeQuietly(ctx, file, path)

	var reader io.Reader = file
	if s.compress {
		gz, gzErr := gzip.NewReader(file)
		if gzErr != nil {
			return nil, fmt.Errorf("failed to open gzip snapshot %q: %w", path, gzErr)
		}
		defer s.closeQuietly(ctx, gz, path)
		reader = gz
	}

	var feeds feed.Collection
	if err = json.NewDecoder(reader).Decode(&feeds); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %q: %w", path, err)
	}

	return feeds, nil
}

// Save overwrites the snapshot wholesale. The write goes to a temp file
// first so a crash mid-write cannot truncate the previous snapshot.
func (s *Store) Save(ctx context.Context, feeds feed.Collection) error {
	path := s.Path()

	tmp, err := os.CreateTemp(s.dataDir, snapshotName+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}

	if err = s.write(tmp, feeds); err != nil {
		if removeErr := os.Remove(tmp.Name()); removeErr != nil {
			s.log.WarnContext(ctx, "Failed to remove temp snapshot",
				"error", removeErr,
				"path", tmp.Name())
		}

		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace snapshot %q: %w", path, err)
	}

	s.log.DebugContext(ctx, "Snapshot is written",
		"path", path,
		"feedCount", len(feeds))

	return nil
}

func (s *Store) write(file *os.File, feeds feed.Collection) error {
	var writer io.Writer = file
	var gz *gzip.Writer
	if s.compress {
		gz = gzip.NewWriter(file)
		writer = gz
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(feeds); err != nil {
		return err
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return err
		}
	}

	return file.Close()
}

func (s *Store) closeQuietly(ctx context.Context, closer io.Closer, path string) {
	if err := closer.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		s.log.WarnContext(ctx, "Failed to close snapshot",
			"error", err,
			"path", path)
	}
}
