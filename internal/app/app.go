// Package app wires configuration into the assistant's collaborators. Both
// the HTTP server and the CLI build on it.
package app

import (
	"errors"
	"fmt"

	"estate-assistant/internal/config"
	"estate-assistant/internal/metrics"
	"estate-assistant/internal/repository"
	"estate-assistant/internal/service"
	"estate-assistant/internal/session"
	"estate-assistant/internal/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// backfillConcurrency bounds concurrent embedding requests during backfill
const backfillConcurrency = 4

// App holds the wired services
type App struct {
	Repo          *repository.PostgresRepository
	Sessions      session.Store
	Metrics       *metrics.Metrics
	Conversations *service.ConversationService
	Embeddings    *service.EmbeddingService
	Search        *service.PropertySearchGateway
	Similar       *service.SimilarProperties
}

// New connects to PostgreSQL and the session backend and wires the
// conversation and embedding services. reg receives the metrics; pass nil to
// skip them.
func New(cfg *config.Config, reg prometheus.Registerer, log zerolog.Logger) (*App, error) {
	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	locations, err := utils.LoadLocationTable(cfg.Locations.File)
	if err != nil {
		return nil, err
	}

	repo, err := repository.NewPostgresRepository(
		cfg.GetPostgreSQLDSN(),
		cfg.PostgreSQL.MaxConnections,
		cfg.PostgreSQL.MaxIdleConnections,
	)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("connected to PostgreSQL")

	sessions, err := newSessionStore(cfg.Session)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	log.Info().Str("backend", cfg.Session.Backend).Msg("session store ready")

	providers, err := service.NewProviders(cfg, log)
	if err != nil {
		_ = repo.Close()
		_ = sessions.Close()
		return nil, err
	}

	cache := service.NewResultCache(sessions, cfg.Session.TTL)
	history := service.NewHistoryStore(sessions, cfg.Session.TTL, cfg.Session.HistoryLimit)
	extractor := service.NewFilterExtractor(locations, log.With().Str("component", "extractor").Logger())
	gateway := service.NewPropertySearchGateway(
		cache,
		repo,
		providers.Embedder,
		repo,
		service.GatewayOptions{
			ResultLimit: cfg.Search.ResultLimit,
			VectorTopK:  cfg.Search.VectorTopK,
			CallTimeout: cfg.Session.CallTimeout,
		},
		m,
		log.With().Str("component", "gateway").Logger(),
	)
	conversations := service.NewConversationService(
		extractor,
		gateway,
		providers.Generator,
		history,
		cache,
		repo,
		service.ConversationOptions{
			PromptWindow: cfg.Session.PromptWindow,
			CallTimeout:  cfg.Session.CallTimeout,
		},
		m,
		log.With().Str("component", "conversation").Logger(),
	)
	embeddings := service.NewEmbeddingService(
		repo,
		providers.Embedder,
		cfg.OpenAI.BatchSize,
		backfillConcurrency,
		log.With().Str("component", "embeddings").Logger(),
	)

	return &App{
		Repo:          repo,
		Sessions:      sessions,
		Metrics:       m,
		Conversations: conversations,
		Embeddings:    embeddings,
		Search:        gateway,
		Similar:       service.NewSimilarProperties(repo, gateway),
	}, nil
}

func newSessionStore(cfg config.SessionConfig) (session.Store, error) {
	switch cfg.Backend {
	case "redis":
		store, err := session.NewRedisStore(session.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory", "":
		return session.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// Close releases the database and session connections
func (a *App) Close() error {
	return errors.Join(a.Sessions.Close(), a.Repo.Close())
}
