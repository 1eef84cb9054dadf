package httpapi

import (
	"net/http"

	"noema/internal/answer"
	"noema/internal/config"
	"noema/internal/objectstore"
	"noema/internal/queue"
	"noema/internal/retrieval"
	"noema/internal/store"
)

// Server exposes the HTTP surface over the ingestion queue and the
// retrieval pipeline.
type Server struct {
	store     *store.Store
	objects   objectstore.ObjectStore
	queue     *queue.Queue
	retrieval retrieval.Deps
	answer    answer.Deps
	limits    config.IngestLimits
	mux       *http.ServeMux
}

func NewServer(s *store.Store, objects objectstore.ObjectStore, q *queue.Queue, retrievalDeps retrieval.Deps, answerDeps answer.Deps, limits config.IngestLimits) *Server {
	srv := &Server{store: s, objects: objects, queue: q, retrieval: retrievalDeps, answer: answerDeps, limits: limits, mux: http.NewServeMux()}
	srv.registerRoutes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	auth := AuthMiddleware(s.store)

	s.mux.HandleFunc("GET /live", s.handleLive)
	s.mux.HandleFunc("GET /ready", s.handleReady)

	s.mux.Handle("POST /api/v1/ingress", auth(http.HandlerFunc(s.handleIngress)))
	s.mux.Handle("GET /api/v1/categories", auth(http.HandlerFunc(s.handleCategories)))
	s.mux.Handle("POST /query", auth(http.HandlerFunc(s.handleQuery)))
}
