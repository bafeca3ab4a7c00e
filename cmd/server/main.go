// Command server runs the voxprompt backend: the prompt optimization
// API and the live dictation pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yegors/voxprompt/internal/api"
	"github.com/yegors/voxprompt/internal/config"
	"github.com/yegors/voxprompt/internal/genai"
	"github.com/yegors/voxprompt/internal/livestt"
	"github.com/yegors/voxprompt/internal/optimizer"
	"github.com/yegors/voxprompt/internal/polish"
	"github.com/yegors/voxprompt/internal/recorder"
	"github.com/yegors/voxprompt/internal/storage/sqlite"
	"github.com/yegors/voxprompt/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxprompt: %v\n", err)
		return 1
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxprompt: logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	log.Info("Starting voxprompt",
		logger.String("provider", cfg.GenAI.Provider),
		logger.Int("port", cfg.Server.Port))

	db, err := sqlite.Open(cfg.Storage.Path)
	if err != nil {
		log.Error("Failed to open database", logger.Error(err))
		return 1
	}
	defer db.Close()

	history, err := sqlite.NewHistoryStorage(db, cfg.History.MaxEntries, log)
	if err != nil {
		log.Error("Failed to initialize history storage", logger.Error(err))
		return 1
	}
	sessionState, err := sqlite.NewSessionStateStorage(db, log)
	if err != nil {
		log.Error("Failed to initialize session state storage", logger.Error(err))
		return 1
	}

	gen, err := newGenerator(cfg, log)
	if err != nil {
		log.Error("Failed to build generation client", logger.Error(err))
		return 1
	}

	liveClient := livestt.NewClient(cfg.GenAI.APIKey, log,
		livestt.WithModel(cfg.Live.Model),
		livestt.WithBaseURL(cfg.Live.BaseURL))

	invoker := polish.NewInvoker(gen, cfg.Polish.Model, cfg.Polish.MinChars, log)
	optimizerSvc := optimizer.NewService(gen, history, cfg.GenAI.FlashModel, log)

	router := api.NewRouter(
		optimizerSvc,
		history,
		sessionState,
		recorder.LiveOpener{Client: liveClient},
		invoker,
		cfg,
		log,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Server error", logger.Error(err))
		return 1
	}

	log.Info("Stopped")
	return 0
}

// newGenerator selects the one-shot generation backend from config.
func newGenerator(cfg *config.Config, log *logger.Logger) (genai.Generator, error) {
	timeout := cfg.GenAITimeout()
	switch cfg.GenAI.Provider {
	case "openai":
		opts := []genai.OpenAIOption{genai.WithOpenAITimeout(timeout)}
		if cfg.GenAI.BaseURL != "" {
			opts = append(opts, genai.WithOpenAIBaseURL(cfg.GenAI.BaseURL))
		}
		return genai.NewOpenAIClient(cfg.GenAI.APIKey, log, opts...), nil
	case "gemini":
		opts := []genai.GeminiOption{genai.WithGeminiTimeout(timeout)}
		if cfg.GenAI.BaseURL != "" {
			opts = append(opts, genai.WithGeminiBaseURL(cfg.GenAI.BaseURL))
		}
		return genai.NewGeminiClient(cfg.GenAI.APIKey, log, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.GenAI.Provider)
	}
}
