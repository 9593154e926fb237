package app

import (
	"context"
	"log"
	"time"

	"github.com/supportpilot/supportpilot/internal/config"
	"github.com/supportpilot/supportpilot/internal/core"
	db "github.com/supportpilot/supportpilot/internal/core/database"
	"github.com/supportpilot/supportpilot/internal/core/ingest"
	"github.com/supportpilot/supportpilot/internal/core/llm"
	"github.com/supportpilot/supportpilot/internal/core/objectstore"
	"github.com/supportpilot/supportpilot/internal/core/rag"
)

type App struct {
	Store  core.Store
	Server *Server

	embedder *llm.GeminiEmbedder
	chatLLM  *llm.GeminiLLM
	clsLLM   *llm.GeminiLLM
}

// NewApp wires every component. A missing AI key leaves the providers nil:
// chat degrades to fallback replies and ingestion reports a clean error.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	store, err := db.NewDatabaseClient(appCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	var objects core.ObjectStore
	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		s3, err := objectstore.NewS3Client(appCtx, cfg.AwsAccessKey, cfg.AwsSecretKey, cfg.AwsRegion, cfg.BucketName)
		if err != nil {
			log.Printf("WARN: object store unavailable, raw uploads will not be archived: %v", err)
		} else {
			objects = s3
		}
	}

	a := &App{Store: store}

	var embedder core.EmbeddingProvider
	var chatLLM, clsLLM core.LLMProvider
	var modelName string

	if cfg.AIAPIKey != "" {
		ge, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, err
		}
		gl, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
		if err != nil {
			_ = ge.Close()
			return nil, err
		}
		a.embedder, a.chatLLM = ge, gl
		embedder, chatLLM = ge, gl
		clsLLM = gl
		modelName = gl.ModelName()

		// Intent classification can run on a cheaper model.
		if cfg.ClassifierModel != "" && cfg.ClassifierModel != cfg.GenModel {
			cl, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.ClassifierModel)
			if err != nil {
				_ = ge.Close()
				_ = gl.Close()
				return nil, err
			}
			a.clsLLM = cl
			clsLLM = cl
		}
	} else {
		log.Println("WARN: GEMINI_API_KEY not set; running with fallback replies and no ingestion")
	}

	var pipeline *ingest.Pipeline
	if embedder != nil {
		pipeline = ingest.NewPipeline(store, embedder, objects, cfg.CrawlerUserAgent, cfg.CrawlerMaxPages)
	}

	engine := rag.New(store, embedder)

	a.Server = NewServer(cfg, store, pipeline, engine, chatLLM, clsLLM, modelName)
	return a, nil
}

func (a *App) Close() {
	if a.clsLLM != nil {
		_ = a.clsLLM.Close()
	}
	if a.chatLLM != nil {
		_ = a.chatLLM.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}
