package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"estate-assistant/internal/metrics"
	"estate-assistant/internal/model"
	"estate-assistant/internal/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conversationFixture struct {
	svc       *ConversationService
	store     *fakePropertyStore
	embedder  *fakeEmbedder
	vectors   *fakeVectorIndex
	generator *fakeGenerator
	convLog   *fakeConversationLog
	history   *HistoryStore
	cache     *ResultCache
	metrics   *metrics.Metrics
}

func newConversationFixture(t *testing.T) *conversationFixture {
	t.Helper()
	return newConversationFixtureWithTimeout(t, time.Second)
}

func newConversationFixtureWithTimeout(t *testing.T, callTimeout time.Duration) *conversationFixture {
	t.Helper()
	sessions := session.NewMemoryStore()
	f := &conversationFixture{
		store:     &fakePropertyStore{},
		embedder:  &fakeEmbedder{vector: []float32{1, 0}},
		vectors:   &fakeVectorIndex{},
		generator: &fakeGenerator{text: "Happy to help."},
		convLog:   &fakeConversationLog{},
		history:   NewHistoryStore(sessions, 0, 50),
		cache:     NewResultCache(sessions, 0),
		metrics:   metrics.New(prometheus.NewRegistry()),
	}
	gateway := NewPropertySearchGateway(f.cache, f.store, f.embedder, f.vectors,
		GatewayOptions{CallTimeout: callTimeout}, f.metrics, nopLogger())
	f.svc = NewConversationService(newTestExtractor(t), gateway, f.generator, f.history, f.cache, f.convLog,
		ConversationOptions{PromptWindow: 5, CallTimeout: callTimeout}, f.metrics, nopLogger())
	return f
}

func (f *conversationFixture) turns(t *testing.T, userID string) []model.Turn {
	t.Helper()
	turns, err := f.svc.History(context.Background(), userID)
	require.NoError(t, err)
	return turns
}

func TestProcessQuery_StructuredResults(t *testing.T) {
	f := newConversationFixture(t)
	f.store.found = []model.PropertyRecord{
		newRecord("a", withCity("Bangalore"), withBedrooms(2), withListing("rent"), withPrice(25000)),
	}

	reply := f.svc.ProcessQuery(context.Background(), "u1", "Show me 2 BHK apartments in Bangalore for rent")

	assert.Equal(t, FormatResults(f.store.found), reply.Text)
	assert.Equal(t, []string{"a"}, model.PropertyIDs(reply.Properties))
	assert.Equal(t, "structured", reply.Strategy)
	assert.True(t, reply.IsFollowup)
	assert.Equal(t, strPtr("Bangalore"), reply.Filters.City)
	assert.Empty(t, f.generator.prompts, "templated replies do not call the generator")

	turns := f.turns(t, "u1")
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleUser, turns[0].Role)
	assert.Equal(t, "Show me 2 BHK apartments in Bangalore for rent", turns[0].Text)
	assert.Equal(t, model.RoleAssistant, turns[1].Role)
	assert.Equal(t, reply.Text, turns[1].Text)
	assert.NotEmpty(t, turns[0].ID)

	require.Len(t, f.convLog.entries, 1)
	entry := f.convLog.entries[0]
	assert.Equal(t, "u1", entry.UserID)
	assert.Equal(t, []string{"a"}, entry.PropertyIDs)
	assert.Equal(t, reply.Text, entry.AIResponse)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TurnsTotal.WithLabelValues(metrics.OutcomeResults)))
}

func TestProcessQuery_TwoStoreRecords(t *testing.T) {
	f := newConversationFixture(t)
	f.store.found = []model.PropertyRecord{
		newRecord("a", withState("Tamil Nadu"), withBedrooms(3)),
		newRecord("b", withState("Tamil Nadu"), withBedrooms(3)),
	}

	reply := f.svc.ProcessQuery(context.Background(), "u1", "show me 3 bhk flats in chennai")

	assert.True(t, strings.HasPrefix(reply.Text, "I found 2 properties matching your criteria:"))
	assert.Len(t, reply.Properties, 2)
}

func TestProcessQuery_NoResults(t *testing.T) {
	f := newConversationFixture(t)

	reply := f.svc.ProcessQuery(context.Background(), "u1", "land near orai")

	assert.Equal(t, FormatNoResults(model.FilterSet{City: strPtr("Orai")}), reply.Text)
	assert.Empty(t, reply.Properties)
	assert.NotNil(t, reply.Properties)
	assert.Empty(t, f.generator.prompts)
}

func TestProcessQuery_NoFiltersUsesGenerator(t *testing.T) {
	f := newConversationFixture(t)

	reply := f.svc.ProcessQuery(context.Background(), "u1", "hello there")

	assert.Equal(t, "Happy to help.", reply.Text)
	assert.Zero(t, f.store.calls(), "no search without filters")
	require.Len(t, f.generator.prompts, 1)
	assert.Contains(t, f.generator.prompts[0], "User: hello there\n")
	assert.NotContains(t, f.generator.prompts[0], "Current filters")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TurnsTotal.WithLabelValues(metrics.OutcomeGenerated)))
}

func TestProcessQuery_GeneratorFailureApologizes(t *testing.T) {
	f := newConversationFixture(t)
	f.generator.err = errBoom

	reply := f.svc.ProcessQuery(context.Background(), "u1", "hello there")

	assert.Equal(t, ApologyText, reply.Text)
	turns := f.turns(t, "u1")
	require.Len(t, turns, 2)
	assert.Equal(t, ApologyText, turns[1].Text)
}

func TestProcessQuery_SearchUnavailableUsesGenerator(t *testing.T) {
	f := newConversationFixture(t)
	f.store.findErr = errBoom
	f.embedder.err = errBoom

	reply := f.svc.ProcessQuery(context.Background(), "u1", "houses in pune")

	assert.Equal(t, "Happy to help.", reply.Text)
	assert.Contains(t, f.generator.lastPrompt(), "Property search is temporarily unavailable.")
}

func TestProcessQuery_EverythingDownApologizes(t *testing.T) {
	f := newConversationFixture(t)
	f.store.findErr = errBoom
	f.embedder.err = errBoom
	f.generator.err = errBoom

	reply := f.svc.ProcessQuery(context.Background(), "u1", "houses in pune")

	assert.Equal(t, ApologyText, reply.Text)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TurnsTotal.WithLabelValues(metrics.OutcomeApology)))
}

func TestProcessQuery_FollowupNarrowsPreviousResults(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture(t)
	f.store.found = []model.PropertyRecord{
		newRecord("a", withState("Tamil Nadu"), withType("residential"), withBedrooms(3)),
		newRecord("b", withState("Tamil Nadu"), withType("residential"), withBedrooms(2)),
	}

	first := f.svc.ProcessQuery(ctx, "u1", "show me houses in chennai")
	require.Equal(t, []string{"a", "b"}, model.PropertyIDs(first.Properties))

	second := f.svc.ProcessQuery(ctx, "u1", "from these only 2 bhk")

	assert.True(t, second.IsFollowup)
	assert.Equal(t, "cache", second.Strategy)
	assert.Equal(t, []string{"b"}, model.PropertyIDs(second.Properties))
	assert.Equal(t, 1, f.store.calls(), "the follow-up is answered from the cache")
}

func TestProcessQuery_FollowupWithNothingLeft(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture(t)
	f.store.found = []model.PropertyRecord{newRecord("a", withState("Tamil Nadu"), withBedrooms(3))}

	f.svc.ProcessQuery(ctx, "u1", "show me houses in chennai")
	reply := f.svc.ProcessQuery(ctx, "u1", "from these only 2 bhk")

	assert.Equal(t, FormatNoResults(model.FilterSet{Bedrooms: intPtr(2)}), reply.Text)
	assert.Equal(t, 1, f.store.calls())

	cached, err := f.cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, model.PropertyIDs(cached))
}

func TestProcessQuery_PromptHistoryExcludesCurrentTurn(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture(t)
	f.generator.text = "Hi!"

	f.svc.ProcessQuery(ctx, "u1", "hello there")
	f.svc.ProcessQuery(ctx, "u1", "tell me a joke")

	prompt := f.generator.lastPrompt()
	assert.Contains(t, prompt, "User: hello there\nAssistant: Hi!\n")
	assert.Equal(t, 1, strings.Count(prompt, "tell me a joke"))
}

func TestProcessQuery_UsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture(t)

	f.svc.ProcessQuery(ctx, "u1", "hello there")
	f.svc.ProcessQuery(ctx, "u2", "tell me a joke")

	assert.Len(t, f.turns(t, "u1"), 2)
	assert.Len(t, f.turns(t, "u2"), 2)
	assert.NotContains(t, f.generator.lastPrompt(), "hello there")
}

func TestProcessQuery_SerializesTurnsPerUser(t *testing.T) {
	f := newConversationFixture(t)
	f.generator.delay = 10 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.svc.ProcessQuery(context.Background(), "u1", "hello there")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.generator.peak)
	turns := f.turns(t, "u1")
	require.Len(t, turns, 10)
	for i, turn := range turns {
		want := model.RoleUser
		if i%2 == 1 {
			want = model.RoleAssistant
		}
		assert.Equal(t, want, turn.Role, "turn %d", i)
	}
}

func TestProcessQuery_CompletesAfterCancel(t *testing.T) {
	f := newConversationFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reply := f.svc.ProcessQuery(ctx, "u1", "hello there")

	assert.Equal(t, "Happy to help.", reply.Text)
	assert.Len(t, f.turns(t, "u1"), 2)
}

func TestProcessQuery_HungGeneratorReleasesLock(t *testing.T) {
	f := newConversationFixtureWithTimeout(t, 50*time.Millisecond)
	f.generator.block = make(chan struct{})
	t.Cleanup(func() { close(f.generator.block) })

	replies := make(chan model.Reply, 2)
	go func() {
		for _, text := range []string{"hello there", "are you there"} {
			replies <- f.svc.ProcessQuery(context.Background(), "u1", text)
		}
	}()

	for i := 0; i < 2; i++ {
		select {
		case reply := <-replies:
			assert.Equal(t, ApologyText, reply.Text)
		case <-time.After(2 * time.Second):
			t.Fatalf("turn %d still blocked on a generator that ignores its context", i+1)
		}
	}
	assert.Len(t, f.turns(t, "u1"), 4)
}

func TestProcessQuery_LogFailureIsIgnored(t *testing.T) {
	f := newConversationFixture(t)
	f.convLog.err = errBoom

	reply := f.svc.ProcessQuery(context.Background(), "u1", "hello there")
	assert.Equal(t, "Happy to help.", reply.Text)
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture(t)

	_, err := f.svc.Summary(ctx, "u1")
	assert.ErrorIs(t, err, ErrNoHistory)

	f.svc.ProcessQuery(ctx, "u1", "hello there")
	f.generator.text = "Greeted the assistant."

	summary, err := f.svc.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Greeted the assistant.", summary)

	prompt := f.generator.lastPrompt()
	assert.True(t, strings.HasPrefix(prompt, "Summarize the key points from this real estate conversation."))
	assert.Contains(t, prompt, "User: hello there\nAssistant: Happy to help.\n")
	assert.True(t, strings.HasSuffix(prompt, "Summary:"))
	assert.Len(t, f.turns(t, "u1"), 2, "summarizing does not add turns")

	f.generator.err = errBoom
	_, err = f.svc.Summary(ctx, "u1")
	assert.ErrorIs(t, err, errBoom)
}

func TestEndSession(t *testing.T) {
	ctx := context.Background()
	f := newConversationFixture(t)
	f.store.found = []model.PropertyRecord{newRecord("a")}

	f.svc.ProcessQuery(ctx, "u1", "houses in pune")
	require.NoError(t, f.svc.EndSession(ctx, "u1"))

	assert.Empty(t, f.turns(t, "u1"))
	cached, err := f.cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, cached)
}
