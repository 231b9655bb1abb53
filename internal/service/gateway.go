package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"estate-assistant/internal/metrics"
	"estate-assistant/internal/model"

	"github.com/rs/zerolog"
)

// Strategy names a retrieval path
type Strategy string

const (
	StrategyCache      Strategy = "cache"
	StrategyStructured Strategy = "structured"
	StrategySemantic   Strategy = "semantic"
)

// StepStatus is the outcome of one retrieval step
type StepStatus string

const (
	StepOK     StepStatus = "ok"
	StepEmpty  StepStatus = "empty"
	StepFailed StepStatus = "failed"
)

// StepResult records what one retrieval step produced
type StepResult struct {
	Strategy Strategy
	Status   StepStatus
	Records  []model.PropertyRecord
	Err      error
}

// SearchOutcome is the full trace of a search. Records and Strategy come
// from the step that answered; both are empty when nothing matched.
type SearchOutcome struct {
	Steps    []StepResult
	Records  []model.PropertyRecord
	Strategy Strategy
}

// Found reports whether any step returned records
func (o SearchOutcome) Found() bool {
	return len(o.Records) > 0
}

// AllFailed reports whether every attempted step failed
func (o SearchOutcome) AllFailed() bool {
	if len(o.Steps) == 0 {
		return false
	}
	for _, s := range o.Steps {
		if s.Status != StepFailed {
			return false
		}
	}
	return true
}

// GatewayOptions tunes retrieval limits
type GatewayOptions struct {
	ResultLimit int
	VectorTopK  int
	CallTimeout time.Duration
}

// PropertySearchGateway chooses between narrowing cached results, querying
// the structured store and falling back to semantic search.
type PropertySearchGateway struct {
	cache    *ResultCache
	store    PropertyStore
	embedder Embedder
	vectors  VectorIndex
	opts     GatewayOptions
	guard    callGuard
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// NewPropertySearchGateway wires the gateway's collaborators
func NewPropertySearchGateway(
	cache *ResultCache,
	store PropertyStore,
	embedder Embedder,
	vectors VectorIndex,
	opts GatewayOptions,
	m *metrics.Metrics,
	log zerolog.Logger,
) *PropertySearchGateway {
	if opts.ResultLimit <= 0 {
		opts.ResultLimit = 6
	}
	if opts.VectorTopK <= 0 {
		opts.VectorTopK = 6
	}
	if embedder == nil {
		embedder = disabledEmbedder{}
	}
	return &PropertySearchGateway{
		cache:    cache,
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		opts:     opts,
		guard:    callGuard{timeout: opts.CallTimeout, metrics: m},
		metrics:  m,
		log:      log,
	}
}

// Search runs the retrieval steps in order until one returns records. A
// follow-up with cached results is answered from the cache alone, even when
// narrowing leaves nothing. Failures are logged and the next step is tried.
func (g *PropertySearchGateway) Search(ctx context.Context, filters model.FilterSet, userID string, isFollowup bool) SearchOutcome {
	var outcome SearchOutcome
	log := g.log.With().Str("user_id", userID).Logger()

	if isFollowup {
		step, ok := g.searchCache(ctx, userID, filters)
		if ok {
			g.record(&outcome, log, step)
			if step.Status != StepFailed {
				return outcome
			}
		}
	}

	if g.record(&outcome, log, g.searchStructured(ctx, userID, filters)) {
		return outcome
	}
	g.record(&outcome, log, g.searchSemantic(ctx, filters))
	return outcome
}

// record appends a step and adopts its records when it found any
func (g *PropertySearchGateway) record(o *SearchOutcome, log zerolog.Logger, step StepResult) bool {
	o.Steps = append(o.Steps, step)
	g.metrics.ObserveStep(string(step.Strategy), string(step.Status))

	evt := log.Info()
	if step.Status == StepFailed {
		evt = log.Warn().Err(step.Err)
	}
	evt.Str("strategy", string(step.Strategy)).
		Str("status", string(step.Status)).
		Int("count", len(step.Records)).
		Msg("retrieval step finished")

	if step.Status == StepOK {
		o.Records = step.Records
		o.Strategy = step.Strategy
		return true
	}
	return false
}

// searchCache narrows the cached results. ok is false when there was no
// cache to narrow.
func (g *PropertySearchGateway) searchCache(ctx context.Context, userID string, filters model.FilterSet) (StepResult, bool) {
	type lookup struct {
		records []model.PropertyRecord
		noCache bool
	}
	res, err := guarded(ctx, g.guard, metrics.CollaboratorSession, func(ctx context.Context) (lookup, error) {
		records, err := g.cache.FilterInPlace(ctx, userID, filters)
		if errors.Is(err, ErrCacheEmpty) {
			return lookup{noCache: true}, nil
		}
		return lookup{records: records}, err
	})
	if res.noCache {
		return StepResult{}, false
	}
	return stepFrom(StrategyCache, res.records, err), true
}

func (g *PropertySearchGateway) searchStructured(ctx context.Context, userID string, filters model.FilterSet) StepResult {
	records, err := guarded(ctx, g.guard, metrics.CollaboratorStore, func(ctx context.Context) ([]model.PropertyRecord, error) {
		return g.store.FindProperties(ctx, filters, g.opts.ResultLimit)
	})
	if err != nil {
		return stepFrom(StrategyStructured, nil, fmt.Errorf("structured search: %w", err))
	}
	if len(records) > g.opts.ResultLimit {
		records = records[:g.opts.ResultLimit]
	}

	if len(records) > 0 {
		cacheErr := g.guard.do(ctx, metrics.CollaboratorSession, func(ctx context.Context) error {
			return g.cache.Set(ctx, userID, records)
		})
		if cacheErr != nil {
			g.log.Warn().Err(cacheErr).Str("user_id", userID).Msg("failed to cache results")
		}
	}
	return stepFrom(StrategyStructured, records, nil)
}

// searchSemantic embeds the filters as text, queries the vector index and
// resolves the hits in rank order. It does not touch the cache.
func (g *PropertySearchGateway) searchSemantic(ctx context.Context, filters model.FilterSet) StepResult {
	return g.semanticStep(ctx, SemanticQueryText(filters), g.opts.VectorTopK)
}

func (g *PropertySearchGateway) semanticStep(ctx context.Context, text string, topK int) StepResult {
	if g.vectors == nil {
		return stepFrom(StrategySemantic, nil, errors.New("semantic search: no vector index configured"))
	}

	vector, err := guarded(ctx, g.guard, metrics.CollaboratorEmbedder, func(ctx context.Context) ([]float32, error) {
		return g.embedder.Embed(ctx, text)
	})
	if err != nil {
		return stepFrom(StrategySemantic, nil, fmt.Errorf("embed query: %w", err))
	}
	return g.vectorStep(ctx, vector, topK)
}

// vectorStep queries the index with vector and loads the hits in rank order
func (g *PropertySearchGateway) vectorStep(ctx context.Context, vector []float32, topK int) StepResult {
	if g.vectors == nil {
		return stepFrom(StrategySemantic, nil, errors.New("semantic search: no vector index configured"))
	}

	matches, err := guarded(ctx, g.guard, metrics.CollaboratorVector, func(ctx context.Context) ([]VectorMatch, error) {
		return g.vectors.Query(ctx, vector, topK)
	})
	if err != nil {
		return stepFrom(StrategySemantic, nil, fmt.Errorf("vector query: %w", err))
	}
	if len(matches) == 0 {
		return stepFrom(StrategySemantic, nil, nil)
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}

	records, err := guarded(ctx, g.guard, metrics.CollaboratorStore, func(ctx context.Context) ([]model.PropertyRecord, error) {
		return g.store.GetPropertiesByIDs(ctx, ids)
	})
	if err != nil {
		return stepFrom(StrategySemantic, nil, fmt.Errorf("resolve ids: %w", err))
	}
	return stepFrom(StrategySemantic, OrderByIDs(records, ids), nil)
}

// BrowseRequest is a direct catalogue search outside any conversation
type BrowseRequest struct {
	Query    string
	Filters  model.FilterSet
	Semantic bool
	Limit    int
}

// Browse searches the catalogue without reading or writing any user's
// cached results. A semantic search needs free text; its hits are then
// narrowed by the filters. Otherwise the structured store answers.
func (g *PropertySearchGateway) Browse(ctx context.Context, req BrowseRequest) StepResult {
	limit := req.Limit
	if limit <= 0 {
		limit = g.opts.ResultLimit
	}

	var step StepResult
	query := strings.TrimSpace(req.Query)
	if req.Semantic && query != "" {
		step = g.semanticStep(ctx, query, limit)
		if step.Status == StepOK && !req.Filters.IsEmpty() {
			step = stepFrom(StrategySemantic, FilterRecords(step.Records, req.Filters), nil)
		}
	} else {
		records, err := guarded(ctx, g.guard, metrics.CollaboratorStore, func(ctx context.Context) ([]model.PropertyRecord, error) {
			return g.store.FindProperties(ctx, req.Filters, limit)
		})
		if err != nil {
			err = fmt.Errorf("structured search: %w", err)
		}
		step = stepFrom(StrategyStructured, records, err)
	}

	var outcome SearchOutcome
	g.record(&outcome, g.log.With().Str("query", query).Logger(), step)
	return step
}

func stepFrom(strategy Strategy, records []model.PropertyRecord, err error) StepResult {
	switch {
	case err != nil:
		return StepResult{Strategy: strategy, Status: StepFailed, Err: err}
	case len(records) == 0:
		return StepResult{Strategy: strategy, Status: StepEmpty}
	default:
		return StepResult{Strategy: strategy, Status: StepOK, Records: records}
	}
}

// SemanticQueryText renders filters as "key: value" pairs joined by spaces
func SemanticQueryText(filters model.FilterSet) string {
	pairs := filters.Pairs()
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.Key + ": " + p.Value
	}
	return strings.Join(parts, " ")
}

// OrderByIDs returns records in the order of ids, dropping ids with no record
func OrderByIDs(records []model.PropertyRecord, ids []string) []model.PropertyRecord {
	byID := make(map[string]model.PropertyRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	out := make([]model.PropertyRecord, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}
