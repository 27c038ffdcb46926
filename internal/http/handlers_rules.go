package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"financeos/internal/core"
	"financeos/internal/log"
)

const maxRuleBodyBytes = 64 << 10

type createRuleRequest struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Pattern        string          `json:"pattern"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	Frequency      string          `json:"frequency"`
	NextDueDate    core.Date       `json:"next_due_date"`
	Category       string          `json:"category"`
	Active         *bool           `json:"active"`
}

func (req createRuleRequest) toRule(accountID string) core.RecurringRule {
	freq, err := core.ParseFrequency(req.Frequency)
	if err != nil {
		// Validate reports the unknown frequency as an InvalidRuleError.
		freq = core.Frequency(req.Frequency)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return core.RecurringRule{
		ID:             req.ID,
		AccountID:      accountID,
		Name:           req.Name,
		Pattern:        req.Pattern,
		ExpectedAmount: req.ExpectedAmount,
		Frequency:      freq,
		NextDueDate:    req.NextDueDate,
		Category:       req.Category,
		Active:         active,
	}
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := parseBool(r, "active")
	if err != nil {
		respondError(w, r, err, log.OpList)
		return
	}
	rules, err := s.deps.Rules.List(r.Context(), s.accountID(r), activeOnly)
	if err != nil {
		respondError(w, r, err, log.OpList)
		return
	}
	resp := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		resp = append(resp, toRuleResponse(rule))
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRuleBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("%w: %w", errBadRequest, err), log.OpCreate)
		return
	}

	rule, err := s.deps.Rules.Create(r.Context(), req.toRule(s.accountID(r)))
	if err != nil {
		respondError(w, r, err, log.OpCreate)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Recurring rule created",
		log.FieldAccountID, rule.AccountID,
		log.FieldRuleID, rule.ID)
	writeJSON(w, r, http.StatusCreated, toRuleResponse(rule))
}
