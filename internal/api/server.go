// Package api provides the HTTP front end of the tracker: region ingestion
// and the flight-data read path polled by the dashboard.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"adsb_tracker/internal/broker"
	"adsb_tracker/internal/region"
	"adsb_tracker/internal/storage"
)

// Server serves region ingestion and the latest-snapshot read path.
type Server struct {
	store storage.Store
	pub   broker.Publisher
	cfg   Config
}

// Config holds configuration for the API server.
type Config struct {
	Port           int
	RegionsQueue   string
	Version        string   // reported by GET /
	AllowedOrigins []string // CORS allow-list; empty allows any origin
}

// NewServer creates the API server. store backs GET /flights; pub receives
// one region message per submitted bounding box.
func NewServer(store storage.Store, pub broker.Publisher, cfg Config) *Server {
	return &Server{store: store, pub: pub, cfg: cfg}
}

// Run starts the HTTP server and shuts it down gracefully when ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS for the dashboard.
	r.Use(s.corsMiddleware)

	r.Mount("/", s.Router())

	addr := ":" + strconv.Itoa(s.cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("regions API %s starting at http://localhost%s", s.cfg.Version, addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Router returns the route tree without the outer middleware, for embedding
// and for handler tests.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Post("/regions", s.handleSetRegions)
	r.Get("/flights", s.handleFlights)
	return r
}

// corsMiddleware adds CORS headers for the configured origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.allowOrigin(r.Header.Get("Origin")))
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(origin string) string {
	if len(s.cfg.AllowedOrigins) == 0 {
		return "*"
	}
	for _, o := range s.cfg.AllowedOrigins {
		if o == origin || o == "*" {
			return o
		}
	}
	return s.cfg.AllowedOrigins[0]
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.cfg.Version})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSetRegions validates the submitted bounding boxes and enqueues one
// region message per box. The whole request fails if any region cannot be
// normalized or enqueued.
func (s *Server) handleSetRegions(w http.ResponseWriter, r *http.Request) {
	var req region.BoundingBoxesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	if len(req.BoundingBoxes) == 0 {
		log.Printf("api: received an empty bounding box list")
		writeError(w, http.StatusBadRequest, "No bounding boxes provided.")
		return
	}

	for _, box := range req.BoundingBoxes {
		reg, err := box.Normalize()
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "Error processing regions: "+err.Error())
			return
		}
		payload, err := reg.Marshal()
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "Error processing regions: "+err.Error())
			return
		}
		if err := s.pub.Enqueue(r.Context(), s.cfg.RegionsQueue, payload); err != nil {
			log.Printf("api: enqueue region failed: %v", err)
			writeError(w, http.StatusUnprocessableEntity, "Error processing regions: "+err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Bounding boxes processed successfully"})
}

// handleFlights returns every aircraft state in the most recent complete
// batch.
func (s *Server) handleFlights(w http.ResponseWriter, r *http.Request) {
	states, err := s.store.FetchLatest(r.Context())
	if err != nil {
		log.Printf("api: fetch latest batch failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, states)
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
