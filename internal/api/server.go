// Package api exposes read-only state and the manual close override over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"dex-pair-sentinel/internal/domain"
	"dex-pair-sentinel/internal/engine"
	"dex-pair-sentinel/internal/observability"
	"dex-pair-sentinel/internal/position"
	"dex-pair-sentinel/internal/storage"
)

// Positions is the part of position.Manager served over HTTP.
type Positions interface {
	OpenPositions() []*domain.Position
	ClosedPositions() []*domain.Position
	Get(id string) (*domain.Position, error)
	RequestClose(ctx context.Context, id string) (domain.ExitReason, error)
	Stats() position.Stats
	Recovered() bool
}

// Scorer reports pipeline counters.
type Scorer interface {
	Stats() engine.ScorerStats
}

// Options configures a Server.
type Options struct {
	Positions Positions               // required
	Scorer    Scorer                  // optional
	Scores    storage.ScoreEventStore // optional; enables /scores
	APIKey    string                  // when set, mutating routes require X-API-Key
	Timeout   time.Duration           // per-request context timeout, default 8s
	AccessLog io.Writer               // default: Logger's writer
	Clock     func() time.Time
	Logger    *log.Logger
}

// Server routes API requests.
type Server struct {
	opts    Options
	started time.Time
	router  *mux.Router
}

// New creates a Server.
func New(opts Options) (*Server, error) {
	if opts.Positions == nil {
		return nil, errors.New("api requires positions")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.AccessLog == nil {
		opts.AccessLog = opts.Logger.Writer()
	}

	s := &Server{opts: opts, started: opts.Clock(), router: mux.NewRouter()}
	r := s.router
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.stats).Methods(http.MethodGet)
	r.HandleFunc("/positions", s.listPositions).Methods(http.MethodGet)
	r.HandleFunc("/positions/{id}", s.getPosition).Methods(http.MethodGet)
	r.HandleFunc("/positions/{id}/close", s.authenticate(s.closePosition)).Methods(http.MethodPost)
	r.HandleFunc("/scores", s.recentScores).Methods(http.MethodGet)
	r.HandleFunc("/scores/{token}", s.tokenScores).Methods(http.MethodGet)
	return s, nil
}

// Handler returns the router wrapped with access logging and panic recovery.
func (s *Server) Handler() http.Handler {
	return handlers.RecoveryHandler(handlers.RecoveryLogger(s.opts.Logger))(
		handlers.LoggingHandler(s.opts.AccessLog, s.router),
	)
}

// PositionView is the JSON shape of a position.
type PositionView struct {
	ID            string     `json:"id"`
	TokenAddress  string     `json:"token_address"`
	PairAddress   string     `json:"pair_address,omitempty"`
	Symbol        string     `json:"symbol,omitempty"`
	Status        string     `json:"status"`
	Score         float64    `json:"score"`
	EntryPrice    float64    `json:"entry_price"`
	EntryAmount   string     `json:"entry_amount"`
	TokenQuantity float64    `json:"token_quantity"`
	PeakPrice     float64    `json:"peak_price"`
	TrailingStop  float64    `json:"trailing_stop"`
	LastPrice     float64    `json:"last_price"`
	UnrealizedPct float64    `json:"unrealized_pct"`
	PendingExit   string     `json:"pending_exit,omitempty"`
	SellAttempts  int        `json:"sell_attempts"`
	OpenedAt      time.Time  `json:"opened_at"`
	HeldSeconds   float64    `json:"held_seconds"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	ExitReason    string     `json:"exit_reason,omitempty"`
	ExitPrice     float64    `json:"exit_price,omitempty"`
	RealizedPnL   string     `json:"realized_pnl,omitempty"`
	EntryTx       string     `json:"entry_tx,omitempty"`
	ExitTx        string     `json:"exit_tx,omitempty"`
}

func viewOf(p *domain.Position, now time.Time) PositionView {
	v := PositionView{
		ID:            p.ID,
		TokenAddress:  p.TokenAddress,
		PairAddress:   p.PairAddress,
		Symbol:        p.Symbol,
		Status:        string(p.Status),
		Score:         p.Score,
		EntryPrice:    p.EntryPrice,
		EntryAmount:   p.EntryAmount.String(),
		TokenQuantity: p.TokenQuantity,
		PeakPrice:     p.PeakPrice,
		TrailingStop:  p.TrailingStop,
		LastPrice:     p.LastPrice,
		PendingExit:   string(p.PendingExit),
		SellAttempts:  p.SellAttempts,
		OpenedAt:      p.OpenedAt,
		HeldSeconds:   p.HoldDuration(now).Seconds(),
		ClosedAt:      p.ClosedAt,
		ExitReason:    string(p.ExitReason),
		ExitPrice:     p.ExitPrice,
		EntryTx:       p.EntryTx,
		ExitTx:        p.ExitTx,
	}
	if p.LastPrice > 0 {
		v.UnrealizedPct = p.UnrealizedReturn(p.LastPrice) * 100
	}
	if p.Status == domain.StatusClosed {
		v.RealizedPnL = p.RealizedPnL.String()
	}
	return v
}

func (s *Server) views(ps []*domain.Position) []PositionView {
	now := s.opts.Clock()
	out := make([]PositionView, 0, len(ps))
	for _, p := range ps {
		out = append(out, viewOf(p, now))
	}
	return out
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !s.opts.Positions.Recovered() {
		status = "recovering"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

// StatsResponse is the JSON body of /stats.
type StatsResponse struct {
	Uptime    string              `json:"uptime"`
	Positions position.Stats      `json:"positions"`
	Scorer    *engine.ScorerStats `json:"scorer,omitempty"`
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	resp := StatsResponse{
		Uptime:    s.opts.Clock().Sub(s.started).Round(time.Second).String(),
		Positions: s.opts.Positions.Stats(),
	}
	if s.opts.Scorer != nil {
		st := s.opts.Scorer.Stats()
		resp.Scorer = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

// listPositions serves open positions, or closed ones with ?status=closed.
func (s *Server) listPositions(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("status") {
	case "", "open":
		writeJSON(w, http.StatusOK, s.views(s.opts.Positions.OpenPositions()))
	case "closed":
		closed := s.opts.Positions.ClosedPositions()
		if limit := atoiDefault(r.URL.Query().Get("limit"), 0); limit > 0 && limit < len(closed) {
			closed = closed[:limit]
		}
		writeJSON(w, http.StatusOK, s.views(closed))
	default:
		writeErr(w, http.StatusBadRequest, "status must be open or closed")
	}
}

func (s *Server) getPosition(w http.ResponseWriter, r *http.Request) {
	p, err := s.opts.Positions.Get(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p, s.opts.Clock()))
}

// closePosition requests a MANUAL exit. 202 means the exit was decided but
// the sell has not confirmed yet.
func (s *Server) closePosition(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.Timeout)
	defer cancel()

	id := mux.Vars(r)["id"]
	reason, err := s.opts.Positions.RequestClose(ctx, id)
	if err != nil && !errors.Is(err, position.ErrSellFailed) {
		s.writeError(w, err)
		return
	}
	p, getErr := s.opts.Positions.Get(id)
	if getErr != nil {
		s.writeError(w, getErr)
		return
	}
	code := http.StatusOK
	if p.Status != domain.StatusClosed {
		code = http.StatusAccepted
	}
	resp := map[string]any{"exit_reason": string(reason), "position": viewOf(p, s.opts.Clock())}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, code, resp)
}

func (s *Server) recentScores(w http.ResponseWriter, r *http.Request) {
	if s.opts.Scores == nil {
		writeErr(w, http.StatusNotFound, "score history disabled")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.Timeout)
	defer cancel()

	limit := atoiDefault(r.URL.Query().Get("limit"), 50)
	if limit < 1 || limit > 1000 {
		limit = 50
	}
	events, err := s.opts.Scores.Recent(ctx, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreViews(events))
}

func (s *Server) tokenScores(w http.ResponseWriter, r *http.Request) {
	if s.opts.Scores == nil {
		writeErr(w, http.StatusNotFound, "score history disabled")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.Timeout)
	defer cancel()

	events, err := s.opts.Scores.GetByToken(ctx, mux.Vars(r)["token"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreViews(events))
}

// ScoreView is the JSON shape of a score event.
type ScoreView struct {
	ID           string                  `json:"id"`
	TokenAddress string                  `json:"token_address"`
	PairAddress  string                  `json:"pair_address,omitempty"`
	Total        float64                 `json:"total"`
	Rejected     bool                    `json:"rejected"`
	RejectReason string                  `json:"reject_reason,omitempty"`
	Components   []domain.ComponentScore `json:"components"`
	Action       string                  `json:"action"`
	ScoredAt     time.Time               `json:"scored_at"`
}

func scoreViews(events []*domain.ScoreEvent) []ScoreView {
	out := make([]ScoreView, 0, len(events))
	for _, e := range events {
		out = append(out, ScoreView{
			ID:           e.ID,
			TokenAddress: e.TokenAddress,
			PairAddress:  e.PairAddress,
			Total:        e.Total,
			Rejected:     e.Rejected,
			RejectReason: e.RejectReason,
			Components:   e.Components,
			Action:       e.Action,
			ScoredAt:     e.ScoredAt,
		})
	}
	return out
}

func (s *Server) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.APIKey != "" && !safeKeyEq(r.Header.Get("X-API-Key"), s.opts.APIKey) {
			writeErr(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// writeError maps domain errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, position.ErrPositionNotFound), errors.Is(err, storage.ErrNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, position.ErrPositionClosed), errors.Is(err, position.ErrClosingInProgress):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeErr(w, http.StatusGatewayTimeout, err.Error())
	default:
		s.opts.Logger.Printf("api: %v", err)
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func safeKeyEq(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := 0; i < len(a); i++ {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
