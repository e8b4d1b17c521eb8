package app

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/hibiken/asynq"
	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"rxreader/internal/config"
	"rxreader/internal/engine"
	"rxreader/internal/jobs"
	"rxreader/internal/medctx"
	"rxreader/internal/retry"
	"rxreader/internal/stages"
	"rxreader/internal/stages/fsimage"
	"rxreader/internal/stages/geministage"
	"rxreader/internal/stages/openaistage"
	"rxreader/internal/store"
	"rxreader/internal/store/memory"
	"rxreader/internal/store/postgres"
	"rxreader/internal/store/redisstore"

	"github.com/redis/go-redis/v9"
)

// App holds the wired application: one JobStore, one set of stage
// adapters, the engine, and the submission service the API and CLI use.
type App struct {
	Config   *config.Config
	JobStore store.JobStore
	Engine   *engine.Engine
	Jobs     *jobs.Service

	asynqClient *asynq.Client
	pgStore     *postgres.Store
	genaiClient *genai.Client
}

func NewApp(cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	if err := app.initJobStore(); err != nil {
		return nil, err
	}
	if err := app.initEngine(); err != nil {
		app.Close()
		return nil, err
	}
	if err := app.initJobService(); err != nil {
		app.Close()
		return nil, err
	}

	log.Info("application initialization complete")
	return app, nil
}

func (a *App) initJobStore() error {
	switch a.Config.Store.Backend {
	case "memory":
		a.JobStore = memory.New()
	case "redis", "":
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.Config.Redis.Address,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		a.JobStore = redisstore.New(rdb)
	case "postgres":
		ctx := context.Background()
		pg, err := postgres.New(ctx, a.Config.Store.DSN)
		if err != nil {
			return fmt.Errorf("init postgres job store: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return fmt.Errorf("migrate postgres job store: %w", err)
		}
		a.pgStore = pg
		a.JobStore = pg
	default:
		return fmt.Errorf("unknown store backend %q", a.Config.Store.Backend)
	}
	return nil
}

func (a *App) initEngine() error {
	images := fsimage.New(a.Config.Jobs.ImageRoot)

	adapters, err := a.buildAdapters(images)
	if err != nil {
		return err
	}

	var provider engine.ContextProvider
	if a.Config.Jobs.MedicationsFile != "" {
		provider = medctx.NewFileProvider(a.Config.Jobs.MedicationsFile)
	}

	a.Engine = &engine.Engine{
		Store:    a.JobStore,
		Adapters: adapters,
		Policy: retry.Policy{
			MaxRateLimitRetries: a.Config.Retry.MaxRateLimitRetries,
			MaxTransientRetries: a.Config.Retry.MaxTransientRetries,
			BaseDelay:           a.Config.Retry.BaseDelay,
			MaxDelay:            a.Config.Retry.MaxDelay,
		},
		Context: provider,
	}
	return nil
}

func (a *App) buildAdapters(images stages.ImageSource) (stages.Adapters, error) {
	switch a.Config.Provider {
	case "openai", "":
		if a.Config.OpenAI.APIKey == "" {
			log.Warn("OpenAI API key not set; stage calls will fail until OPENAI_API_KEY is provided")
		}
		client := openaistage.New(openai.NewClient(a.Config.OpenAI.APIKey), images, openaistage.Config{
			TranscribeModel: a.Config.OpenAI.TranscribeModel,
			ExtractModel:    a.Config.OpenAI.ExtractModel,
			JudgeModel:      a.Config.OpenAI.JudgeModel,
			CorrectModel:    a.Config.OpenAI.CorrectModel,
		})
		return stages.Adapters{Transcriber: client, Extractor: client, Evaluator: client, Corrector: client}, nil
	case "gemini":
		gc, err := genai.NewClient(context.Background(), option.WithAPIKey(a.Config.Gemini.APIKey))
		if err != nil {
			return stages.Adapters{}, fmt.Errorf("create gemini client: %w", err)
		}
		a.genaiClient = gc
		client := geministage.New(gc, images, geministage.Config{
			TranscribeModel: a.Config.Gemini.TranscribeModel,
			ExtractModel:    a.Config.Gemini.ExtractModel,
			JudgeModel:      a.Config.Gemini.JudgeModel,
			CorrectModel:    a.Config.Gemini.CorrectModel,
		})
		return stages.Adapters{Transcriber: client, Extractor: client, Evaluator: client, Corrector: client}, nil
	default:
		return stages.Adapters{}, fmt.Errorf("unknown provider %q", a.Config.Provider)
	}
}

func (a *App) initJobService() error {
	a.asynqClient = asynq.NewClient(a.RedisOpt())
	a.Jobs = &jobs.Service{
		Store:    a.JobStore,
		Enqueuer: a.asynqClient,
		Defaults: jobs.Defaults{
			MaxCorrections: a.Config.Jobs.MaxCorrections,
			UseTranscriber: a.Config.Jobs.UseTranscriber,
		},
	}
	return nil
}

// RedisOpt is the shared asynq connection config for client and worker.
func (a *App) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.Config.Redis.Address,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	}
}

func (a *App) Close() {
	if a.asynqClient != nil {
		_ = a.asynqClient.Close()
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	if a.genaiClient != nil {
		_ = a.genaiClient.Close()
	}
}
