package feed

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"options-analyzer/internal/errors"
	"options-analyzer/internal/logging"
	"options-analyzer/internal/models"
)

// FileSource replays recorded NSE chain payloads from a directory, one
// file per Fetch in lexical order. File names sort chronologically when
// they embed a timestamp, which the recorder guarantees.
type FileSource struct {
	symbol    string
	files     []string
	next      int
	prevClose float64
	interval  time.Duration
	base      time.Time
	loc       *time.Location
	log       zerolog.Logger
}

// NewFileSource creates a replay source over the .json files in dir.
// Replayed snapshots are timestamped at interval spacing from the
// first file so delta analysis behaves as it did live.
func NewFileSource(symbol, dir string, prevClose float64, interval time.Duration, loc *time.Location, log zerolog.Logger) (*FileSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewFeedError("file", symbol, "reading replay directory", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		return nil, errors.NewFeedError("file", symbol, "no .json snapshots in directory", nil)
	}
	sort.Strings(files)

	return &FileSource{
		symbol:    symbol,
		files:     files,
		prevClose: prevClose,
		interval:  interval,
		base:      time.Now().In(loc),
		loc:       loc,
		log:       logging.WithComponent(log, "feed").With().Str("source", "file").Logger(),
	}, nil
}

// Fetch returns the next recorded snapshot, or ErrDataNotFound once
// the recording is exhausted.
func (s *FileSource) Fetch(ctx context.Context) (*models.OptionChainSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.files) {
		return nil, errors.ErrDataNotFound
	}

	path := s.files[s.next]
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewFeedError("file", s.symbol, "reading snapshot file", err)
	}
	var payload chainPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errors.NewFeedError("file", s.symbol, "decoding snapshot file", err)
	}

	ts := s.base.Add(time.Duration(s.next) * s.interval)
	s.next++

	s.log.Debug().Str("file", filepath.Base(path)).Time("tick", ts).Msg("Replaying snapshot")
	return buildSnapshot(s.symbol, &payload, s.prevClose, ts, s.loc)
}

// Close implements ChainSource.
func (s *FileSource) Close() error {
	return nil
}

// Remaining reports how many recorded snapshots are left.
func (s *FileSource) Remaining() int {
	return len(s.files) - s.next
}
