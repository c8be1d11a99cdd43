package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/support-assistant/internal/config"
	"github.com/kirillkom/support-assistant/internal/core/domain"
	"github.com/kirillkom/support-assistant/internal/core/ports"
	"github.com/kirillkom/support-assistant/internal/core/usecase"
	"github.com/kirillkom/support-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/support-assistant/internal/infrastructure/extractor"
	"github.com/kirillkom/support-assistant/internal/infrastructure/lexical"
	"github.com/kirillkom/support-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/support-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/support-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/support-assistant/internal/infrastructure/storage/localfs"
)

// Observers are optional metric sinks wired into the pipeline.
type Observers struct {
	Turns   usecase.TurnObserver
	RAG     usecase.RAGObserver
	Breaker resilience.StateObserver
}

// App is the process-wide pipeline. Build it once with New and release it with Close.
type App struct {
	Config config.Config
	Script domain.DialogueScript

	Chat      *usecase.ChatService
	Knowledge *usecase.KnowledgeAnswerer
	Ingest    *usecase.IngestKnowledgeUseCase
	Uploads   *localfs.Storage
	Events    ports.CaseEvents

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, observers Observers) (_ *App, err error) {
	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	script, err := config.LoadDialogueScript(cfg.DialogueConfigPath)
	if err != nil {
		return nil, err
	}
	app.Script = script

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storeExec := newExecutor(cfg.StoreResilience(), observers.Breaker)
	cases := postgres.NewCaseRepository(db).WithExecutor(storeExec)
	transcripts := postgres.NewTranscriptRepository(db).WithExecutor(storeExec)
	corpus := postgres.NewChunkRepository(db).WithExecutor(storeExec)

	uploads, err := localfs.New(cfg.KnowledgeDir)
	if err != nil {
		return nil, fmt.Errorf("init knowledge storage: %w", err)
	}
	app.Uploads = uploads

	if cfg.NATSURL != "" {
		events, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: newExecutor(cfg.StoreResilience(), observers.Breaker),
		})
		if err != nil {
			return nil, fmt.Errorf("init case events: %w", err)
		}
		app.onClose(events.Close)
		app.Events = events
	}

	genExec := newExecutor(cfg.GenerationResilience(), observers.Breaker)
	retrievalExec := newExecutor(cfg.RetrievalResilience(), observers.Breaker)

	embedder, generator, err := newLanguageModels(cfg, genExec, retrievalExec)
	if err != nil {
		return nil, err
	}
	dense, closeDense, err := newDenseIndex(ctx, cfg, retrievalExec)
	if err != nil {
		return nil, err
	}
	app.onClose(closeDense)
	sessions, closeSessions, err := newSessionStore(cfg)
	if err != nil {
		return nil, err
	}
	app.onClose(closeSessions)

	bm25 := lexical.NewBM25Index()
	app.Ingest = usecase.NewIngestKnowledgeUseCase(
		extractor.NewRegistry(),
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		dense,
		corpus,
		bm25,
		cfg.EmbedBatchSize,
	)
	if err := app.Ingest.RefreshLexical(ctx); err != nil {
		slog.Warn("lexical_refresh_failed", "error", err)
	}

	retriever := usecase.NewHybridRetriever(embedder, dense, bm25, usecase.RetrievalOptions{
		DenseTopK:  cfg.RAGDenseTopK,
		SparseTopK: cfg.RAGSparseTopK,
		TopK:       cfg.RAGTopK,
		RRFK:       cfg.RAGFusionRRFK,
		Weights:    usecase.FusionWeights{Dense: cfg.RAGDenseWeight, Sparse: cfg.RAGSparseWeight},
	})
	app.Knowledge = usecase.NewKnowledgeAnswerer(
		retriever,
		usecase.NewAnswerSynthesizer(generator, cfg.RAGMaxContextRunes),
		observers.RAG,
	)

	existing := usecase.NewExistingCustomerFlow(cases, app.Events, app.Knowledge, script)
	onboarding := usecase.NewNewCustomerFlow(
		usecase.NewIntentClassifier(generator, cfg.IntentHistoryTurns),
		app.Knowledge,
		generator,
		script,
		cfg.OnboardingHistoryTurns,
	)
	router := usecase.NewSessionRouter(existing, onboarding, app.Knowledge, script)
	app.Chat = usecase.NewChatService(router, sessions, transcripts, observers.Turns, script)

	return app, nil
}

// RunLexicalRefresh reloads the keyword index from the corpus store until ctx
// is done, so chunks ingested by other processes become searchable.
func (a *App) RunLexicalRefresh(ctx context.Context) {
	interval := time.Duration(a.Config.LexicalRefreshSeconds) * time.Second
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Ingest.RefreshLexical(ctx); err != nil {
				slog.Warn("lexical_refresh_failed", "error", err)
			}
		}
	}
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

func newExecutor(cfg resilience.Config, observer resilience.StateObserver) *resilience.Executor {
	exec := resilience.NewExecutor(cfg)
	if observer != nil {
		exec.WithStateObserver(observer)
	}
	return exec
}
