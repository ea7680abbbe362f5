// Package httpserver exposes the karma engine over a JSON REST API.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/nvt/karmad/internal/chain"
	"github.com/nvt/karmad/internal/config"
	"github.com/nvt/karmad/internal/karma"
	"github.com/nvt/karmad/internal/ledger"
	"github.com/nvt/karmad/internal/metrics"
	"github.com/nvt/karmad/internal/models"
	"github.com/nvt/karmad/internal/staking"
)

// SyncQueue is the slice of the queue client the API needs: scheduling a
// wallet for a content sync and reporting on the last completed run.
type SyncQueue interface {
	Enqueue(ctx context.Context, wallet string, priority float64) (bool, error)
	GetLastRun(ctx context.Context, wallet string) (time.Time, error)
	Length(ctx context.Context) (int64, error)
}

// Server is the HTTP server for the karma API.
type Server struct {
	cfg        config.Config
	ledger     *ledger.Service
	staking    *staking.Service
	chain      chain.Ledger
	queue      SyncQueue
	logger     zerolog.Logger
	httpServer *http.Server
}

// NewServer wires the API routes over the given services.
func NewServer(
	cfg config.Config,
	ledgerSvc *ledger.Service,
	stakingSvc *staking.Service,
	chainLedger chain.Ledger,
	syncQueue SyncQueue,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		cfg:     cfg,
		ledger:  ledgerSvc,
		staking: stakingSvc,
		chain:   chainLedger,
		queue:   syncQueue,
		logger:  logger.With().Str("component", "httpserver").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /users", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /users/{wallet}", s.handleGetUser)
	mux.HandleFunc("POST /activities", s.requireAuth(s.handleRecordActivity))
	mux.HandleFunc("GET /activities/{wallet}/stats", s.handleUserStats)
	mux.HandleFunc("POST /staking/stake", s.requireAuth(s.handleStake))
	mux.HandleFunc("POST /staking/unstake", s.requireAuth(s.handleUnstake))
	mux.HandleFunc("GET /staking/{wallet}", s.handleActiveStaking)
	mux.HandleFunc("POST /redeem", s.requireAuth(s.handleRedeem))
	mux.HandleFunc("GET /karma/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("POST /sync/{wallet}", s.requireAuth(s.handleEnqueueSync))
	mux.HandleFunc("GET /sync/{wallet}", s.handleSyncStatus)

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      withLogging(s.logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the configured HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	WalletAddress string `json:"walletAddress"`
	Email         string `json:"email"`
	Username      string `json:"username"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	if req.WalletAddress == "" {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "walletAddress is required")
		return
	}

	user, err := s.ledger.Register(r.Context(), req.WalletAddress, req.Email, req.Username)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	token, err := s.issueToken(user.WalletAddress)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to issue token")
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to issue token")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user":  userView(user),
		"token": token,
	})
}

type loginRequest struct {
	WalletAddress string `json:"walletAddress"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	user, err := s.ledger.GetUser(r.Context(), req.WalletAddress)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	token, err := s.issueToken(user.WalletAddress)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to issue token")
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":  userView(user),
		"token": token,
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.ledger.GetUser(r.Context(), r.PathValue("wallet"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userView(user)})
}

type activityRequest struct {
	WalletAddress string `json:"walletAddress"`
	ActivityType  string `json:"activityType"`
	Metadata      string `json:"metadata"`
}

func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	activity, user, err := s.ledger.RecordActivity(r.Context(), req.WalletAddress, req.ActivityType, req.Metadata)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := map[string]any{
		"activity": activityView(activity),
		"user":     userView(user),
	}

	// Attestation is best effort. The ledger entry is already committed,
	// so a chain failure must not fail the request.
	payload := fmt.Sprintf(`{"type":%q,"finalKarma":%g}`, activity.Type, activity.FinalKarma)
	receipt, err := s.chain.Attest(r.Context(), user.WalletAddress, payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("wallet", user.WalletAddress).Msg("Activity attestation failed")
	} else {
		resp["blockchainResult"] = receipt
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.UserStats(r.Context(), r.PathValue("wallet"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type stakeRequest struct {
	WalletAddress string  `json:"walletAddress"`
	Amount        float64 `json:"amount"`
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	record, user, err := s.staking.Stake(r.Context(), req.WalletAddress, req.Amount)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stakingRecord": stakingView(record),
		"user":          userView(user),
	})
}

type unstakeRequest struct {
	WalletAddress   string `json:"walletAddress"`
	StakingRecordID uint   `json:"stakingRecordId"`
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	var req unstakeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	record, user, err := s.staking.Unstake(r.Context(), req.WalletAddress, req.StakingRecordID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stakingRecord": stakingView(record),
		"user":          userView(user),
	})
}

func (s *Server) handleActiveStaking(w http.ResponseWriter, r *http.Request) {
	records, err := s.staking.ActiveRecords(r.Context(), r.PathValue("wallet"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	views := make([]map[string]any, len(records))
	for i := range records {
		views[i] = stakingView(&records[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"stakingRecords": views})
}

type redeemRequest struct {
	WalletAddress string  `json:"walletAddress"`
	KarmaAmount   float64 `json:"karmaAmount"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	activity, user, tokens, err := s.ledger.Redeem(r.Context(), req.WalletAddress, req.KarmaAmount, s.cfg.RedeemRate)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	receipt, err := s.chain.Transfer(r.Context(), user.WalletAddress, tokens)
	if err != nil {
		// Karma is already burned at this point. Surface the failed
		// settlement so the operator can replay the transfer.
		s.logger.Error().Err(err).Str("wallet", user.WalletAddress).Float64("tokens", tokens).
			Msg("Token transfer failed after redemption")
		writeError(w, http.StatusBadGateway, "TransferFailed", "token transfer failed, redemption recorded")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"activity":         activityView(activity),
		"user":             userView(user),
		"tokens":           tokens,
		"blockchainResult": receipt,
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 100 {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	users, err := s.ledger.Leaderboard(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	entries := make([]map[string]any, len(users))
	for i := range users {
		entries[i] = map[string]any{
			"rank":          i + 1,
			"walletAddress": users[i].WalletAddress,
			"username":      users[i].Username,
			"karmaPoints":   users[i].KarmaPoints,
			"multiplier":    users[i].Multiplier,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

func (s *Server) handleEnqueueSync(w http.ResponseWriter, r *http.Request) {
	wallet := r.PathValue("wallet")
	if _, err := s.ledger.GetUser(r.Context(), wallet); err != nil {
		s.writeServiceError(w, err)
		return
	}

	queued, err := s.queue.Enqueue(r.Context(), wallet, float64(time.Now().Unix()))
	if err != nil {
		s.logger.Error().Err(err).Str("wallet", wallet).Msg("Failed to enqueue sync")
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to enqueue sync")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"walletAddress": wallet,
		"queued":        queued,
	})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	wallet := r.PathValue("wallet")
	if _, err := s.ledger.GetUser(r.Context(), wallet); err != nil {
		s.writeServiceError(w, err)
		return
	}

	lastRun, err := s.queue.GetLastRun(r.Context(), wallet)
	if err != nil {
		s.logger.Error().Err(err).Str("wallet", wallet).Msg("Failed to read sync status")
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to read sync status")
		return
	}

	resp := map[string]any{"walletAddress": wallet}
	if lastRun.IsZero() {
		resp["lastRun"] = nil
	} else {
		resp["lastRun"] = lastRun.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeServiceError maps service errors onto HTTP status codes
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, karma.ErrInvalidActivityType),
		errors.Is(err, ledger.ErrInvalidWalletAddress),
		errors.Is(err, staking.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
	case errors.Is(err, ledger.ErrInsufficientKarma):
		writeError(w, http.StatusBadRequest, "InsufficientKarma", err.Error())
	case errors.Is(err, ledger.ErrUserNotFound), errors.Is(err, staking.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "NotFound", "user not found")
	case errors.Is(err, staking.ErrStakingRecordNotFound):
		writeError(w, http.StatusNotFound, "NotFound", err.Error())
	case errors.Is(err, ledger.ErrWalletExists):
		writeError(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ledger.ErrDuplicateEvent):
		writeError(w, http.StatusConflict, "Conflict", err.Error())
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "InternalError", "internal server error")
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func userView(u *models.User) map[string]any {
	return map[string]any{
		"walletAddress": u.WalletAddress,
		"email":         u.Email,
		"username":      u.Username,
		"karmaPoints":   u.KarmaPoints,
		"stakedAmount":  u.StakedAmount,
		"multiplier":    u.Multiplier,
		"lastActivity":  u.LastActivity.UTC().Format(time.RFC3339),
		"isActive":      u.IsActive,
		"createdAt":     u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func activityView(a *models.ActivityRecord) map[string]any {
	return map[string]any{
		"id":         a.ID,
		"type":       a.Type,
		"value":      a.Value,
		"multiplier": a.Multiplier,
		"finalKarma": a.FinalKarma,
		"metadata":   a.Metadata,
		"timestamp":  a.Timestamp.UTC().Format(time.RFC3339),
	}
}

func stakingView(rec *models.StakingRecord) map[string]any {
	view := map[string]any{
		"id":         rec.ID,
		"amount":     rec.Amount,
		"multiplier": rec.Multiplier,
		"startDate":  rec.StartDate.UTC().Format(time.RFC3339),
		"isActive":   rec.IsActive,
	}
	if rec.EndDate != nil {
		view["endDate"] = rec.EndDate.UTC().Format(time.RFC3339)
	}
	return view
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		// Use the matched route pattern so wallet addresses do not blow up
		// the metric label cardinality.
		route := r.Pattern
		if route == "" {
			route = r.Method + " " + r.URL.Path
		}
		metrics.RecordHTTPRequest(route, strconv.Itoa(wrapped.status))
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
