package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"LendLedger/internal/confidential"
	"LendLedger/internal/core"
	"LendLedger/internal/ledger"
	"LendLedger/internal/observability"
	"LendLedger/internal/query"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// MinterAdmin is the administrative surface of the token collaborator: the
// minter capability has one owner and is reassigned explicitly.
type MinterAdmin interface {
	SetMinter(minter confidential.Party) error
	Minter() confidential.Party
}

// Approver grants time-bounded operator rights on the token. Repayments move
// the borrower's encrypted balance, which the token only permits for an
// approved operator.
type Approver interface {
	Approve(account string, operator confidential.Party, until time.Time)
}

// Server binds the engine and query service to an HTTP/JSON API.
type Server struct {
	engine   *core.LendingEngine
	queries  *query.Service
	admin    MinterAdmin
	approver Approver
	health   *observability.HealthChecker
	metrics  *observability.Metrics
	log      zerolog.Logger

	httpServer *http.Server
}

type Deps struct {
	Engine        *core.LendingEngine
	QueryService  *query.Service
	MinterAdmin   MinterAdmin
	Approver      Approver
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
	Logger        zerolog.Logger
}

func New(addr string, deps *Deps) *Server {
	s := &Server{
		engine:   deps.Engine,
		queries:  deps.QueryService,
		admin:    deps.MinterAdmin,
		approver: deps.Approver,
		health:   deps.HealthChecker,
		metrics:  deps.Metrics,
		log:      deps.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/accounts/{account}", func(r chi.Router) {
			r.Post("/stake", s.handleOp("stake"))
			r.Post("/borrow", s.handleOp("borrow"))
			r.Post("/repay", s.handleOp("repay"))
			r.Post("/withdraw", s.handleOp("withdraw"))
			r.Post("/approve", s.handleApprove)
			r.Get("/", s.handleSnapshot)
			r.Get("/operations", s.handleOperations)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Get("/minter", s.handleGetMinter)
			r.Post("/minter", s.handleSetMinter)
		})
	})

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Start serves until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type opRequest struct {
	// Amount as a decimal string: raw units in the 64-bit confidential domain.
	Amount string `json:"amount"`
}

type snapshotResponse struct {
	Account        string `json:"account"`
	ClearStake     string `json:"clear_stake"`
	ClearDebt      string `json:"clear_debt"`
	EncStakeHandle string `json:"enc_stake_handle"`
	EncDebtHandle  string `json:"enc_debt_handle"`
}

func (s *Server) handleOp(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := chi.URLParam(r, "account")

		var req opRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, op, http.StatusBadRequest, "invalid_request", err)
			return
		}

		amount, err := strconv.ParseUint(req.Amount, 10, 64)
		if err != nil {
			// Amounts outside the 64-bit confidential domain are rejected
			// here, before they reach either ledger.
			s.writeError(w, op, http.StatusBadRequest, "invalid_amount", ledger.ErrInvalidAmount)
			return
		}

		switch op {
		case "stake":
			err = s.engine.Stake(r.Context(), account, amount)
		case "borrow":
			err = s.engine.Borrow(r.Context(), account, amount)
		case "repay":
			err = s.engine.Repay(r.Context(), account, amount)
		case "withdraw":
			err = s.engine.Withdraw(r.Context(), account, amount)
		}
		if err != nil {
			status, kind := classifyError(err)
			s.writeError(w, op, status, kind, err)
			return
		}

		s.writeSnapshot(w, op, account)
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeSnapshot(w, "snapshot", chi.URLParam(r, "account"))
}

func (s *Server) writeSnapshot(w http.ResponseWriter, endpoint, account string) {
	clearStake, clearDebt := s.engine.Snapshot(account)
	resp := snapshotResponse{
		Account:        account,
		ClearStake:     clearStake.Dec(),
		ClearDebt:      clearDebt.Dec(),
		EncStakeHandle: s.engine.EncryptedStake(account).String(),
		EncDebtHandle:  s.engine.EncryptedDebt(account).String(),
	}
	s.writeJSON(w, endpoint, http.StatusOK, resp)
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	account := chi.URLParam(r, "account")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	ops, err := s.queries.GetOperations(r.Context(), account, limit)
	if err != nil {
		s.writeError(w, "operations", http.StatusInternalServerError, "query_failed", err)
		return
	}
	if ops == nil {
		ops = []query.OperationRecord{}
	}

	if s.metrics != nil {
		s.metrics.QueryDuration.WithLabelValues("operations").Observe(time.Since(start).Seconds())
	}
	s.writeJSON(w, "operations", http.StatusOK, map[string]interface{}{
		"account":    account,
		"operations": ops,
	})
}

type approveRequest struct {
	Operator   string `json:"operator"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "approve", http.StatusBadRequest, "invalid_request", err)
		return
	}

	operator := confidential.Party(req.Operator)
	if operator == "" {
		operator = confidential.PartyLedger
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	until := time.Now().Add(ttl)

	s.approver.Approve(account, operator, until)
	s.writeJSON(w, "approve", http.StatusOK, map[string]string{
		"account":  account,
		"operator": string(operator),
		"until":    until.UTC().Format(time.RFC3339),
	})
}

type minterRequest struct {
	Minter string `json:"minter"`
}

func (s *Server) handleGetMinter(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "minter", http.StatusOK, map[string]string{
		"minter": string(s.admin.Minter()),
	})
}

func (s *Server) handleSetMinter(w http.ResponseWriter, r *http.Request) {
	var req minterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "minter", http.StatusBadRequest, "invalid_request", err)
		return
	}

	if err := s.admin.SetMinter(confidential.Party(req.Minter)); err != nil {
		s.writeError(w, "minter", http.StatusBadRequest, "invalid_token", err)
		return
	}

	s.log.Info().Str("minter", req.Minter).Msg("minter identity updated")
	s.writeJSON(w, "minter", http.StatusOK, map[string]string{"minter": req.Minter})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, ledger.ErrInsufficientCollateral):
		return http.StatusConflict, "insufficient_collateral"
	case errors.Is(err, ledger.ErrInsufficientStake):
		return http.StatusConflict, "insufficient_stake"
	case errors.Is(err, ledger.ErrTransferFailed):
		return http.StatusBadGateway, "transfer_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, endpoint string, status int, v interface{}) {
	if s.metrics != nil {
		s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, endpoint string, status int, kind string, err error) {
	if s.metrics != nil {
		s.metrics.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"kind":  kind,
		"error": err.Error(),
	})
}
