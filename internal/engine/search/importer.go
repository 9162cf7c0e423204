package search

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/rendis/geodir/internal/model"
)

// ImportStats tracks an import in progress. Counters are safe to read while
// the import runs.
type ImportStats struct {
	Read     atomic.Int64
	Skipped  atomic.Int64
	Stored   atomic.Int64
	Batches  atomic.Int64
	Failures atomic.Int64
}

// ImportOptions tunes Import.
type ImportOptions struct {
	BatchSize int
	// Within, if set, drops listings whose coordinates fall outside it.
	Within orb.MultiPolygon
	// OnBatch is called after every stored batch.
	OnBatch func(stored int)
	// ProgressEvery sets the progress log interval; zero disables it.
	ProgressEvery time.Duration
	Stats         *ImportStats
}

// Inserter is the write side of the local index.
type Inserter interface {
	InsertBatch(ctx context.Context, listings []model.Listing) (int, error)
}

// Import reads listings from r, either one JSON array or one JSON object per
// line, and stores them in batches.
func Import(ctx context.Context, dst Inserter, r io.Reader, opts ImportOptions, logger *slog.Logger) (*ImportStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	stats := opts.Stats
	if stats == nil {
		stats = &ImportStats{}
	}

	start := time.Now()
	if opts.ProgressEvery > 0 {
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(opts.ProgressEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					logger.Info("import progress",
						"read", stats.Read.Load(), "stored", stats.Stored.Load(),
						"skipped", stats.Skipped.Load(), "elapsed", time.Since(start).Truncate(time.Second))
				case <-done:
					return
				}
			}
		}()
	}

	br := bufio.NewReader(r)
	dec := json.NewDecoder(br)
	array, err := startsWithArray(br)
	if err != nil {
		return stats, err
	}
	if array {
		if _, err := dec.Token(); err != nil {
			return stats, fmt.Errorf("reading listings: %w", err)
		}
	}

	batch := make([]model.Listing, 0, opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := dst.InsertBatch(ctx, batch)
		stats.Batches.Add(1)
		if err != nil {
			stats.Failures.Add(1)
			return fmt.Errorf("storing batch %d: %w", stats.Batches.Load(), err)
		}
		stats.Stored.Add(int64(n))
		if opts.OnBatch != nil {
			opts.OnBatch(n)
		}
		batch = batch[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if array && !dec.More() {
			break
		}
		var l model.Listing
		if err := dec.Decode(&l); err != nil {
			if errors.Is(err, io.EOF) && !array {
				break
			}
			return stats, fmt.Errorf("decoding listing %d: %w", stats.Read.Load()+1, err)
		}
		stats.Read.Add(1)

		if !keep(l, opts.Within) {
			stats.Skipped.Add(1)
			continue
		}
		batch = append(batch, l)
		if len(batch) >= opts.BatchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		return stats, err
	}

	logger.Info("import finished",
		"read", stats.Read.Load(), "stored", stats.Stored.Load(),
		"skipped", stats.Skipped.Load(), "elapsed", time.Since(start).Truncate(time.Millisecond))
	return stats, nil
}

func keep(l model.Listing, within orb.MultiPolygon) bool {
	if l.ObjectID == "" || l.Name == "" {
		return false
	}
	if len(within) == 0 {
		return true
	}
	if l.Lat == 0 && l.Lng == 0 {
		return false
	}
	return planar.MultiPolygonContains(within, orb.Point{l.Lng, l.Lat})
}

func startsWithArray(br *bufio.Reader) (bool, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, fmt.Errorf("reading listings: %w", err)
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			br.ReadByte()
		default:
			return b[0] == '[', nil
		}
	}
}
