package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/supportpilot/supportpilot/internal/api/handlers"
	appMiddleware "github.com/supportpilot/supportpilot/internal/api/middlewares"
	"github.com/supportpilot/supportpilot/internal/config"
	"github.com/supportpilot/supportpilot/internal/core"
	"github.com/supportpilot/supportpilot/internal/core/classifier"
	"github.com/supportpilot/supportpilot/internal/core/ingest"
	"github.com/supportpilot/supportpilot/internal/core/rag"
	"github.com/supportpilot/supportpilot/internal/core/ratelimit"
)

// ingestTimeout bounds a synchronous ingestion request. Crawls of large
// sites dominate this budget.
const ingestTimeout = 15 * time.Minute

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes. The classifier may run on a
// cheaper model than the chat replies, so it takes its own provider.
func NewServer(cfg *config.Config, store core.Store, pipeline *ingest.Pipeline, engine *rag.Engine, chatLLM, clsLLM core.LLMProvider, modelName string) *Server {
	var cls *classifier.Classifier
	if clsLLM != nil {
		cls = classifier.New(clsLLM)
	}

	ingestHandler := handlers.NewIngestHandler(store, pipeline)
	docHandler := handlers.NewDocumentHandler(store, engine)
	widgetHandler := handlers.NewWidgetHandler(store)
	chatHandler := handlers.NewChatHandler(store, engine, chatLLM, cls, ratelimit.NewVisitorLimiter(), modelName)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(api chi.Router) {
		// Public widget endpoints; CORS is negotiated per organization
		// against its domain allowlist.
		api.Route("/widget/{org}", func(pub chi.Router) {
			pub.Options("/config", widgetHandler.Preflight)
			pub.Get("/config", widgetHandler.GetConfig)
			pub.Options("/chat", widgetHandler.Preflight)
			pub.With(middleware.Timeout(2 * time.Minute)).Post("/chat", chatHandler.HandleTurn)
		})

		// Dashboard endpoints.
		api.Group(func(protected chi.Router) {
			protected.Use(cors.Handler(cors.Options{
				AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
				AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
				AllowCredentials: true,
			}))
			protected.Use(appMiddleware.JWT(cfg.JWTSecret))

			protected.With(middleware.Timeout(ingestTimeout)).Post("/documents/ingest", ingestHandler.StartIngestion)
			protected.With(middleware.Timeout(30 * time.Second)).Group(func(short chi.Router) {
				short.Get("/documents", docHandler.ListDocuments)
				short.Get("/documents/{id}/status", ingestHandler.GetStatus)
				short.Post("/documents/{id}/cancel", ingestHandler.Cancel)
				short.Delete("/documents/{id}", docHandler.DeleteDocument)
				short.Post("/kb/test", docHandler.TestKnowledgeBase)
			})
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
