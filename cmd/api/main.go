package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zixuanli/edge-sim/backend/internal/config"
	"github.com/zixuanli/edge-sim/backend/internal/handler"
	"github.com/zixuanli/edge-sim/backend/internal/model/persona"
	"github.com/zixuanli/edge-sim/backend/internal/service/ai"
	memoryservice "github.com/zixuanli/edge-sim/backend/internal/service/memory"
	replayservice "github.com/zixuanli/edge-sim/backend/internal/service/replay"
	sessionservice "github.com/zixuanli/edge-sim/backend/internal/service/session"
	"github.com/zixuanli/edge-sim/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	st, err := store.Open(cfg.Data.Path)
	if err != nil {
		log.Fatalf("failed to open data store: %v", err)
	}
	defer st.Close()

	inferencer, embedder := buildBackend(ctx, cfg.AI)

	memorySvc, err := memoryservice.New(cfg.Memory.Path, embedder)
	if err != nil {
		log.Fatalf("failed to open vector memory: %v", err)
	}

	personaStore := persona.NewMemoryStore(persona.Seed())
	sessionSvc := sessionservice.NewService(personaStore, memorySvc, inferencer, st)
	defer sessionSvc.Stop()

	executor := replayservice.NewExecutor(st, inferencer)
	if err := executor.Recover(ctx); err != nil {
		log.Printf("warning: job recovery failed: %v", err)
	}

	router := handler.NewRouter(personaStore, sessionSvc, executor, cfg.Replay)

	startServer(ctx, cfg.Server, router)
}

// buildBackend selects the inference backend from configuration. The REST
// backend doubles as the embedder; without it, memory falls back to the
// deterministic hash embedder.
func buildBackend(ctx context.Context, cfg config.AIConfig) (ai.Inferencer, memoryservice.Embedder) {
	if cfg.WorkersEnabled() {
		log.Println("using Workers AI inference backend")
		client := ai.NewWorkersClient(cfg)
		return client, client
	}

	if cfg.ArkEnabled() {
		chatModel, err := cfg.NewArkChatModel(ctx)
		if err != nil {
			log.Fatalf("failed to initialize ark chat model: %v", err)
		}
		log.Println("using Ark inference backend (hash embedder for memory)")
		return ai.NewArkModel(chatModel), memoryservice.NewHashEmbedder()
	}

	log.Fatal("no inference backend configured: set AI_ACCOUNT_ID/AI_API_TOKEN or ARK_API_KEY/ARK_MODEL")
	return nil, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Edge Persona Simulator backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
