package geo

import (
	"context"
	"log/slog"
	"sync"

	"github.com/paulmach/orb"
)

// Autocomplete fronts a Places service for input fields. Per field only the
// most recent request counts: starting a new one cancels the previous one and
// a superseded result is dropped. Lookup failures degrade to empty results.
type Autocomplete struct {
	places Places
	logger *slog.Logger

	mu     sync.Mutex
	fields map[string]*fieldState
}

type fieldState struct {
	seq    uint64
	cancel context.CancelFunc
}

func NewAutocomplete(places Places, logger *slog.Logger) *Autocomplete {
	if logger == nil {
		logger = slog.Default()
	}
	return &Autocomplete{
		places: places,
		logger: logger,
		fields: make(map[string]*fieldState),
	}
}

// Predict returns predictions for input. ok is false when a newer request for
// the same field was issued meanwhile and this result must be discarded.
func (a *Autocomplete) Predict(ctx context.Context, field, input string) (preds []Prediction, ok bool) {
	ctx, seq, done := a.begin(ctx, field)
	defer done()

	preds, err := a.places.Predict(ctx, input)
	if !a.latest(field, seq) {
		return nil, false
	}
	if err != nil {
		a.logger.Warn("place predictions failed", "field", field, "error", err)
		return nil, true
	}
	return preds, true
}

// Details resolves a prediction. The point is nil when the lookup failed;
// ok is false when the result was superseded.
func (a *Autocomplete) Details(ctx context.Context, field, id string) (pt *orb.Point, ok bool) {
	ctx, seq, done := a.begin(ctx, field)
	defer done()

	p, err := a.places.Details(ctx, id)
	if !a.latest(field, seq) {
		return nil, false
	}
	if err != nil {
		a.logger.Warn("place details failed", "field", field, "id", id, "error", err)
		return nil, true
	}
	return &p, true
}

func (a *Autocomplete) begin(ctx context.Context, field string) (context.Context, uint64, func()) {
	ctx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	st, ok := a.fields[field]
	if !ok {
		st = &fieldState{}
		a.fields[field] = st
	}
	if st.cancel != nil {
		st.cancel()
	}
	st.seq++
	st.cancel = cancel
	seq := st.seq
	a.mu.Unlock()

	return ctx, seq, cancel
}

func (a *Autocomplete) latest(field string, seq uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fields[field].seq == seq
}
