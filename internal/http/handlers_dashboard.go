package http

import (
	"net/http"
	"time"

	"financeos/internal/core"
	"financeos/internal/log"
	"financeos/internal/services"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := services.DashboardQuery{AccountID: s.accountID(r)}
	var err error
	if q.AsOf, err = parseAsOf(r); err != nil {
		respondError(w, r, err, log.OpAggregate)
		return
	}
	if q.ChartDays, err = parseDays(r, "chart_days", s.opts.ChartDays); err != nil {
		respondError(w, r, err, log.OpAggregate)
		return
	}
	if q.BufferTarget, err = parseBuffer(r); err != nil {
		respondError(w, r, err, log.OpAggregate)
		return
	}

	d, err := s.deps.Dashboards.Dashboard(r.Context(), q)
	if err != nil {
		respondError(w, r, err, log.OpAggregate)
		return
	}
	writeJSON(w, r, http.StatusOK, toDashboardResponse(d))
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r)
	if err != nil {
		respondError(w, r, err, log.OpProject)
		return
	}
	if asOf.IsZero() {
		asOf = core.DateOf(time.Now())
	}
	horizon, err := parseDays(r, "horizon_days", s.opts.HorizonDays)
	if err != nil {
		respondError(w, r, err, log.OpProject)
		return
	}

	txs, err := s.deps.Dashboards.Forecast(r.Context(), s.accountID(r), asOf, horizon)
	if err != nil {
		respondError(w, r, err, log.OpProject)
		return
	}
	writeJSON(w, r, http.StatusOK, forecastResponse{
		AsOf:         asOf.String(),
		HorizonDays:  horizon,
		Transactions: toTransactionResponses(txs),
	})
}
