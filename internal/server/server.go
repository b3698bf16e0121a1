package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ostapkh/cloud-hibernator/internal/models"
	"github.com/ostapkh/cloud-hibernator/internal/orchestrator"
	"github.com/ostapkh/cloud-hibernator/internal/replay"
)

const retryAfterSeconds = "30"

const defaultTransitionsLimit = 20

// TransitionHistory reads back the persisted run audit rows.
type TransitionHistory interface {
	RecentTransitions(ctx context.Context, limit uint64) ([]models.Transition, error)
}

// Server is the placeholder endpoint. While the backend sleeps the load
// balancer routes everything here; any request wakes the backend and is
// answered with the replayed backend response. The idle-alarm webhook on a
// reserved path triggers hibernation.
type Server struct {
	wake            *orchestrator.Wake
	hibernate       *orchestrator.Hibernate
	history         TransitionHistory
	backendScheme   string
	backendDomain   string
	wakeBudget      time.Duration
	hibernateBudget time.Duration
}

func New(
	wake *orchestrator.Wake,
	hibernate *orchestrator.Hibernate,
	history TransitionHistory,
	backendScheme, backendDomain string,
	wakeBudget, hibernateBudget time.Duration,
) *Server {
	if wakeBudget == 0 {
		wakeBudget = 2 * time.Minute
	}
	if hibernateBudget == 0 {
		hibernateBudget = 5 * time.Minute
	}
	return &Server{
		wake:            wake,
		hibernate:       hibernate,
		history:         history,
		backendScheme:   backendScheme,
		backendDomain:   backendDomain,
		wakeBudget:      wakeBudget,
		hibernateBudget: hibernateBudget,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/internal/idle-alarm", s.handleIdleAlarm)
	mux.HandleFunc("/internal/transitions", s.handleTransitions)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", s.handleWake)
	return mux
}

// handleWake serves every cold request. Concurrent cold requests each get
// their own wake run; no de-duplication on purpose, the resource operations
// are idempotent and every caller deserves its own replayed answer.
func (s *Server) handleWake(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	captured, err := replay.Capture(r, s.backendScheme, s.backendDomain)
	if err != nil {
		writeRetryLater(w, "failed to capture request", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.wakeBudget)
	defer cancel()

	resp, err := s.wake.Run(ctx, captured)
	if err != nil {
		writeRetryLater(w, "backend is waking up, retry shortly", err)
		return
	}
	resp.WriteTo(w)
}

// handleIdleAlarm runs hibernation in the background: the alarm webhook has
// no use for the result and must not hang on the drain wait.
func (s *Server) handleIdleAlarm(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.hibernateBudget)
		defer cancel()
		if err := s.hibernate.Run(ctx); err != nil {
			log.Error().Err(err).Msg("hibernate run triggered by idle alarm failed")
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

// handleTransitions serves the recent run history on a reserved path, for
// operators checking when and why the backend slept or woke.
func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		http.Error(w, "transition history is not configured", http.StatusNotFound)
		return
	}

	limit := uint64(defaultTransitionsLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 || parsed > 500 {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	transitions, err := s.history.RecentTransitions(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to read transition history")
		http.Error(w, "failed to read transition history", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(transitions)
}

func writeRetryLater(w http.ResponseWriter, message string, err error) {
	w.Header().Set("Retry-After", retryAfterSeconds)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"message": message,
		"error":   err.Error(),
	})
}
