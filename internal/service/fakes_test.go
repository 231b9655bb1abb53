package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"estate-assistant/internal/model"
	"estate-assistant/internal/session"

	"github.com/rs/zerolog"
)

var errBoom = errors.New("boom")

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func nopLogger() zerolog.Logger { return zerolog.New(io.Discard) }

type recordOpt func(*model.PropertyRecord)

func withCity(city string) recordOpt   { return func(r *model.PropertyRecord) { r.City = &city } }
func withState(state string) recordOpt { return func(r *model.PropertyRecord) { r.State = &state } }
func withType(t string) recordOpt      { return func(r *model.PropertyRecord) { r.PropertyType = &t } }
func withLegacyType(t string) recordOpt {
	return func(r *model.PropertyRecord) { r.Type = &t }
}
func withListing(l string) recordOpt { return func(r *model.PropertyRecord) { r.ListingType = &l } }
func withBedrooms(n int) recordOpt   { return func(r *model.PropertyRecord) { r.Bedrooms = &n } }
func withPrice(p int64) recordOpt    { return func(r *model.PropertyRecord) { r.Price = &p } }

func newRecord(id string, opts ...recordOpt) model.PropertyRecord {
	r := model.PropertyRecord{ID: id, Title: "Property " + id, IsActive: true}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// fakePropertyStore answers FindProperties from a fixed list and
// GetPropertiesByIDs from byID, in map order.
type fakePropertyStore struct {
	mu         sync.Mutex
	found      []model.PropertyRecord
	findErr    error
	byID       map[string]model.PropertyRecord
	byIDErr    error
	findCalls  int
	lastFilter model.FilterSet
	lastLimit  int
}

func (f *fakePropertyStore) FindProperties(_ context.Context, filters model.FilterSet, limit int) ([]model.PropertyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	f.lastFilter = filters
	f.lastLimit = limit
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.found, nil
}

func (f *fakePropertyStore) GetPropertiesByIDs(_ context.Context, ids []string) ([]model.PropertyRecord, error) {
	if f.byIDErr != nil {
		return nil, f.byIDErr
	}
	var out []model.PropertyRecord
	for _, r := range f.byID {
		for _, id := range ids {
			if r.ID == id {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (f *fakePropertyStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findCalls
}

type fakeEmbedder struct {
	mu       sync.Mutex
	vector   []float32
	err      error
	texts    []string
	batchErr error
	batches  [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, texts)
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

type fakeVectorIndex struct {
	matches []VectorMatch
	err     error
	topK    int
}

func (f *fakeVectorIndex) Query(_ context.Context, _ []float32, topK int) ([]VectorMatch, error) {
	f.topK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	text    string
	err     error
	prompts []string
	delay   time.Duration
	block   chan struct{} // when set, Generate waits on it and ignores ctx
	active  int
	peak    int
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type fakeConversationLog struct {
	mu      sync.Mutex
	entries []model.ConversationLogEntry
	err     error
}

func (f *fakeConversationLog) SaveConversation(_ context.Context, entry model.ConversationLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

// failingStore is a session store whose every call fails
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errBoom }
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errBoom
}
func (failingStore) Delete(context.Context, ...string) error { return errBoom }
func (failingStore) Close() error                            { return nil }

var _ session.Store = failingStore{}
