// Package dispatch gates outbound backend queries: identical consecutive
// requests are answered from the last result, and a page context change
// invalidates everything issued before it.
package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rendis/geodir/internal/model"
)

// ErrStaleContext is returned for a dispatch whose page context was replaced
// while it was in flight. Its result must be discarded.
var ErrStaleContext = errors.New("dispatch: page context changed")

// Searcher executes a request list against the search backend.
type Searcher interface {
	Search(ctx context.Context, reqs []model.Request) (*model.Response, error)
}

// Key is the dedup hash of a request list. It covers every index name and
// parameter the backend sees and nothing presentational.
func Key(reqs []model.Request) (string, error) {
	data, err := json.Marshal(reqs)
	if err != nil {
		return "", fmt.Errorf("encoding requests: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ContextChange holds the state resets of a page context change, run in
// order before the next dispatch is built.
type ContextChange struct {
	ClearQuery       func()
	ClearRefinements func()
	ResetGeo         func()
}

// Guard sits between the merged configuration and the backend.
type Guard struct {
	searcher Searcher
	logger   *slog.Logger
	group    singleflight.Group

	mu         sync.Mutex
	epoch      uint64
	lastKey    string
	lastResult *model.Response
}

func NewGuard(s Searcher, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{searcher: s, logger: logger}
}

// Dispatch sends reqs unless they equal the previous successful request, in
// which case the previous response is returned as is. Identical requests in
// flight at the same time share one backend call.
func (g *Guard) Dispatch(ctx context.Context, reqs []model.Request) (*model.Response, error) {
	return g.DispatchAt(ctx, g.Epoch(), reqs)
}

// DispatchAt is Dispatch for requests built while the context epoch was
// epoch. If the context has changed since, it returns ErrStaleContext
// without calling the backend.
func (g *Guard) DispatchAt(ctx context.Context, epoch uint64, reqs []model.Request) (*model.Response, error) {
	key, err := Key(reqs)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if g.epoch != epoch {
		g.mu.Unlock()
		dispatchTotal.WithLabelValues(outcomeStale).Inc()
		return nil, ErrStaleContext
	}
	if g.lastResult != nil && key == g.lastKey {
		res := g.lastResult
		g.mu.Unlock()
		dispatchTotal.WithLabelValues(outcomeDeduped).Inc()
		g.logger.Debug("dispatch deduplicated", "key", key[:12])
		return res, nil
	}
	g.mu.Unlock()

	v, err, shared := g.group.Do(strconv.FormatUint(epoch, 10)+":"+key, func() (any, error) {
		start := time.Now()
		res, err := g.searcher.Search(ctx, reqs)
		backendLatency.Observe(time.Since(start).Seconds())
		return res, err
	})
	if shared {
		dispatchTotal.WithLabelValues(outcomeCoalesced).Inc()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.epoch != epoch {
		dispatchTotal.WithLabelValues(outcomeStale).Inc()
		g.logger.Debug("dropping stale dispatch", "key", key[:12])
		return nil, ErrStaleContext
	}
	if err != nil {
		dispatchTotal.WithLabelValues(outcomeFailed).Inc()
		return nil, fmt.Errorf("search backend: %w", err)
	}
	res := v.(*model.Response)
	if !shared {
		dispatchTotal.WithLabelValues(outcomeSent).Inc()
	}
	g.lastKey = key
	g.lastResult = res
	return res, nil
}

// ChangeContext switches to a new page context. Dispatches already in flight
// become stale, the cached result is dropped, and the steps of c run in
// order. The next Dispatch always reaches the backend.
func (g *Guard) ChangeContext(c ContextChange) {
	g.mu.Lock()
	g.epoch++
	g.lastKey = ""
	g.lastResult = nil
	epoch := g.epoch
	g.mu.Unlock()

	for _, step := range []func(){c.ClearQuery, c.ClearRefinements, c.ResetGeo} {
		if step != nil {
			step()
		}
	}
	g.logger.Debug("page context changed", "epoch", epoch)
}

// Epoch counts context changes.
func (g *Guard) Epoch() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.epoch
}

// Invalidate drops the cached result without changing context.
func (g *Guard) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastKey = ""
	g.lastResult = nil
}
