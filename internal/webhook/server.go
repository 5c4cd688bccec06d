package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/suspectuso/boost-tracker/internal/payment"
	"github.com/suspectuso/boost-tracker/internal/storage"
)

// Store is the persistence the server needs
type Store interface {
	SaveInvoice(inv payment.Invoice) (bool, error)
	ListInvoices(q storage.InvoiceQuery) ([]payment.Invoice, error)
}

// Relay forwards a newly stored boost to nostr
type Relay interface {
	Publish(ctx context.Context, inv payment.Invoice) error
}

// Server serves stored boosts and receives new ones from Helipad
type Server struct {
	store Store
	relay Relay
	token string
	log   *slog.Logger

	server *http.Server
}

// NewServer creates a new server. relay may be nil to skip nostr.
func NewServer(store Store, relay Relay, token string, log *slog.Logger) *Server {
	return &Server{
		store: store,
		relay: relay,
		token: token,
		log:   log,
	}
}

// Start serves on port until ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log.Info("starting boost api", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/api/boosts", s.handleBoosts)
	r.Post("/webhook/helipad", s.handleHelipad)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleBoosts(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	invoices, err := s.store.ListInvoices(q)
	if err != nil {
		s.log.Error("list invoices", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeJSON(w, http.StatusOK, invoices)
}

func parseQuery(r *http.Request) (storage.InvoiceQuery, error) {
	v := r.URL.Query()
	q := storage.InvoiceQuery{
		Since:        v.Get("since"),
		Podcasts:     splitList(v.Get("podcast")),
		EventGUIDs:   splitList(v.Get("eventGuid")),
		EpisodeGUIDs: splitList(v.Get("episodeGuid")),
	}

	ints := []struct {
		name string
		dst  *int64
	}{
		{"created_at_gt", &q.CreatedAtGT},
		{"created_at_lt", &q.CreatedAtLT},
	}
	for _, p := range ints {
		raw := v.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return q, fmt.Errorf("invalid %s", p.name)
		}
		*p.dst = n
	}

	for name, dst := range map[string]*int{"page": &q.Page, "items": &q.Items} {
		raw := v.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, fmt.Errorf("invalid %s", name)
		}
		*dst = n
	}

	return q, nil
}

func (s *Server) handleHelipad(w http.ResponseWriter, r *http.Request) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		s.log.Warn("helipad webhook without authorization")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	token := strings.TrimPrefix(auth, "Bearer ")
	if s.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
		s.log.Warn("helipad token mismatch")
		w.WriteHeader(http.StatusForbidden)
		return
	}

	var payload HelipadPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.log.Warn("invalid helipad payload", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !payload.IsIncomingBoost() {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	inv, err := payload.Invoice()
	if err != nil {
		s.log.Warn("invalid helipad boostagram", "index", payload.Index, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	isNew, err := s.store.SaveInvoice(inv)
	if err != nil {
		s.log.Error("save invoice", "identifier", inv.Identifier, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if !isNew {
		s.log.Debug("boost already stored", "identifier", inv.Identifier)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.log.Info("boost stored",
		"identifier", inv.Identifier,
		"podcast", inv.Boostagram.Podcast,
		"sats", inv.Boostagram.ValueMsatTotal.Sats(),
	)

	// Publish asynchronously; the manager retries failures
	if s.relay != nil {
		go func() {
			if err := s.relay.Publish(context.Background(), inv); err != nil {
				s.log.Warn("publish boost", "identifier", inv.Identifier, "error", err)
			}
		}()
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
