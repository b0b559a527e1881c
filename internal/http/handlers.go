package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"splitledger/internal/core"
	"splitledger/internal/log"
	"splitledger/internal/price"
	"splitledger/internal/services"
)

const (
	defaultSettlementLimit = 50
	maxSettlementLimit     = 500
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "error", err)
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	people, err := s.store.ListPeople(ctx)
	if err != nil {
		s.internalError(w, r, "list people", err)
		return
	}
	meta, err := s.store.SnapshotInfo(ctx)
	if err != nil {
		s.internalError(w, r, "snapshot info", err)
		return
	}

	sum := core.Summarize(people)
	out := summaryJSON{
		Registered:      sum.Registered,
		Debtors:         sum.Debtors,
		Creditors:       sum.Creditors,
		Outstanding:     newAmount(sum.Outstanding),
		TotalRegistered: meta.TotalRegistered,
	}
	if !meta.RefreshedAt.IsZero() {
		at := meta.RefreshedAt.UTC()
		out.RefreshedAt = &at
	}
	if s.oracle != nil {
		// A missing quote only drops the fiat fields.
		if v, err := price.ToFiat(ctx, s.oracle, sum.Outstanding, s.fiat); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Fiat conversion unavailable", "fiat", s.fiat, "error", err)
		} else {
			out.Fiat = strings.ToUpper(s.fiat)
			out.OutstandingFiat = v.StringFixed(2)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePeople(w http.ResponseWriter, r *http.Request) {
	people, err := s.store.ListPeople(r.Context())
	if err != nil {
		s.internalError(w, r, "list people", err)
		return
	}
	out := make([]personJSON, 0, len(people))
	for _, p := range people {
		out = append(out, newPerson(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, err := s.store.ListExpenses(r.Context())
	if err != nil {
		s.internalError(w, r, "list expenses", err)
		return
	}
	out := make([]expenseJSON, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, newExpense(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSettlements(w http.ResponseWriter, r *http.Request) {
	limit := defaultSettlementLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSettlementLimit)
	}

	attempts, err := s.store.ListSettlementAttempts(r.Context(), limit)
	if err != nil {
		s.internalError(w, r, "list settlements", err)
		return
	}
	out := make([]attemptJSON, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, newAttempt(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOverdue(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	debtor := common.HexToAddress(raw)

	debts, err := s.overdue.OverdueDebts(r.Context(), debtor)
	if err != nil {
		s.internalError(w, r, "overdue debts", err)
		return
	}
	report := services.DetectOverdue(debts)
	out := overdueJSON{
		Debtor:     debtor.Hex(),
		Debts:      make([]debtJSON, 0, len(report.Debts)),
		Actionable: len(report.Actionable),
	}
	for _, d := range report.Debts {
		out.Debts = append(out.Debts, newDebt(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), "API request failed", log.FieldOperation, op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
