package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"financeos/internal/core"
	"financeos/internal/ledger"
	"financeos/internal/log"
	"financeos/internal/metrics"
	"financeos/internal/services"
	"financeos/internal/storage"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type transactionResponse struct {
	ID          string      `json:"id"`
	AccountID   string      `json:"account_id"`
	Date        string      `json:"date"`
	Amount      json.Number `json:"amount"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	HashID      string      `json:"hash_id,omitempty"`
	Status      core.Status `json:"status"`
	RuleID      string      `json:"rule_id,omitempty"`
	BatchID     string      `json:"batch_id,omitempty"`
}

type conflictResponse struct {
	Transaction transactionResponse `json:"transaction"`
	ExistingID  string              `json:"existing_id"`
}

type malformedResponse struct {
	Line  int    `json:"line"`
	Field string `json:"field"`
	Value string `json:"value"`
	Error string `json:"error"`
}

type importResponse struct {
	BatchID        string                `json:"batch_id"`
	Mode           string                `json:"mode"`
	AcceptedCount  int                   `json:"accepted_count"`
	RejectedCount  int                   `json:"rejected_count"`
	MalformedCount int                   `json:"malformed_count"`
	SuspectedCount int                   `json:"suspected_count"`
	Committed      bool                  `json:"committed"`
	Accepted       []transactionResponse `json:"accepted"`
	Rejected       []conflictResponse    `json:"rejected"`
	Malformed      []malformedResponse   `json:"malformed"`
	Suspected      []conflictResponse    `json:"suspected"`
}

type billResponse struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	DueDate string      `json:"dueDate"`
	Amount  json.Number `json:"amount"`
	Status  string      `json:"status"`
}

type balancePointResponse struct {
	Date    string      `json:"date"`
	Balance json.Number `json:"balance"`
}

type dashboardResponse struct {
	SafeToSpend       json.Number            `json:"safe_to_spend"`
	TotalBalance      json.Number            `json:"total_balance"`
	PendingBillsTotal json.Number            `json:"pending_bills_total"`
	BufferTarget      json.Number            `json:"buffer_target"`
	UpcomingBills     []billResponse         `json:"upcoming_bills"`
	BurnDownChart     []balancePointResponse `json:"burn_down_chart"`
}

type forecastResponse struct {
	AsOf         string                `json:"as_of"`
	HorizonDays  int                   `json:"horizon_days"`
	Transactions []transactionResponse `json:"transactions"`
}

type ruleResponse struct {
	ID             string      `json:"id"`
	AccountID      string      `json:"account_id"`
	Name           string      `json:"name"`
	Pattern        string      `json:"pattern"`
	ExpectedAmount json.Number `json:"expected_amount"`
	Frequency      string      `json:"frequency"`
	NextDueDate    string      `json:"next_due_date"`
	Category       string      `json:"category"`
	Active         bool        `json:"active"`
}

// money renders an amount as a JSON number with two decimals.
func money(d decimal.Decimal) json.Number {
	return json.Number(core.FormatAmount(d))
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		AccountID:   t.AccountID,
		Date:        t.Date.String(),
		Amount:      money(t.Amount),
		Description: t.Description,
		Category:    t.Category,
		HashID:      t.Fingerprint,
		Status:      t.Status,
		RuleID:      t.RuleID,
		BatchID:     t.BatchID,
	}
}

func toTransactionResponses(txs []core.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	return out
}

func toImportResponse(out services.ImportOutcome) importResponse {
	res := out.Result
	resp := importResponse{
		Mode:           out.Batch.Mode,
		AcceptedCount:  len(out.Approved),
		RejectedCount:  len(res.RejectedAsDuplicate),
		MalformedCount: len(res.Malformed),
		SuspectedCount: len(res.SuspectedDuplicates),
		Committed:      out.Committed,
		Accepted:       toTransactionResponses(out.Approved),
		Rejected:       make([]conflictResponse, 0, len(res.RejectedAsDuplicate)),
		Malformed:      make([]malformedResponse, 0, len(res.Malformed)),
		Suspected:      make([]conflictResponse, 0, len(res.SuspectedDuplicates)),
	}
	if out.Committed {
		resp.BatchID = out.Batch.ID
	}
	for i, t := range res.RejectedAsDuplicate {
		c := conflictResponse{Transaction: toTransactionResponse(t)}
		if i < len(res.Conflicts) {
			c.ExistingID = res.Conflicts[i].ExistingID
		}
		resp.Rejected = append(resp.Rejected, c)
	}
	for _, m := range res.Malformed {
		resp.Malformed = append(resp.Malformed, toMalformedResponse(m))
	}
	for _, sd := range res.SuspectedDuplicates {
		resp.Suspected = append(resp.Suspected, conflictResponse{
			Transaction: toTransactionResponse(sd.Transaction),
			ExistingID:  sd.Existing.ID,
		})
	}
	return resp
}

func toMalformedResponse(m ledger.MalformedRow) malformedResponse {
	resp := malformedResponse{Error: "malformed row"}
	if m.Err != nil {
		resp.Line = m.Err.Line
		resp.Field = m.Err.Field
		resp.Value = m.Err.Value
		resp.Error = m.Err.Error()
	}
	return resp
}

func toDashboardResponse(d metrics.Dashboard) dashboardResponse {
	resp := dashboardResponse{
		SafeToSpend:       money(d.SafeToSpend),
		TotalBalance:      money(d.TotalBalance),
		PendingBillsTotal: money(d.PendingBillsTotal),
		BufferTarget:      money(d.BufferTarget),
		UpcomingBills:     make([]billResponse, 0, len(d.UpcomingBills)),
		BurnDownChart:     make([]balancePointResponse, 0, len(d.BurnDownChart)),
	}
	for _, b := range d.UpcomingBills {
		resp.UpcomingBills = append(resp.UpcomingBills, billResponse{
			ID:      b.ID,
			Name:    b.Name,
			DueDate: b.DueDate.String(),
			Amount:  money(b.Amount),
			Status:  string(b.Status),
		})
	}
	for _, p := range d.BurnDownChart {
		resp.BurnDownChart = append(resp.BurnDownChart, balancePointResponse{
			Date:    p.Date.String(),
			Balance: money(p.Balance),
		})
	}
	return resp
}

func toRuleResponse(r core.RecurringRule) ruleResponse {
	return ruleResponse{
		ID:             r.ID,
		AccountID:      r.AccountID,
		Name:           r.Name,
		Pattern:        r.Pattern,
		ExpectedAmount: money(r.ExpectedAmount),
		Frequency:      string(r.Frequency),
		NextDueDate:    r.NextDueDate.String(),
		Category:       r.Category,
		Active:         r.Active,
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to encode response", log.FieldError, err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, r, status, errorResponse{Error: code, Message: message})
}

// errBadRequest marks malformed query parameters or bodies.
var errBadRequest = errors.New("bad request")

// classify maps an error onto an HTTP status and a stable error code.
func classify(err error) (int, string) {
	var (
		aggErr      *core.AggregationInputError
		ruleErr     *core.InvalidRuleError
		conflictErr *core.DuplicateConflictError
		maxBytesErr *http.MaxBytesError
	)
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.As(err, &aggErr):
		return http.StatusUnprocessableEntity, "invalid_aggregation_input"
	case errors.As(err, &ruleErr):
		return http.StatusUnprocessableEntity, "invalid_rule"
	case errors.As(err, &conflictErr):
		return http.StatusConflict, "duplicate_conflict"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errBadRequest),
		errors.Is(err, services.ErrInvalidImport),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrEmptyAccount),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidDay),
		errors.Is(err, core.ErrInvalidMonth):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// respondError logs server-side failures and writes the JSON error body.
func respondError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldError, err,
			log.FieldOperation, operation)
		message = "internal server error"
	}
	writeError(w, r, status, code, message)
}
