package http

import (
	"net/http"

	"financeos/internal/log"
)

// handleImport ingests a bank CSV for the account in the path.
// Query parameters: mode (exact|fuzzy), dry_run, approve.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	req, body, err := parseImportRequest(w, r, s.accountID(r), s.opts.ImportMaxBytes)
	if err != nil {
		respondError(w, r, err, log.OpImport)
		return
	}
	defer body.Close()

	out, err := s.deps.Imports.Import(r.Context(), req)
	if err != nil {
		respondError(w, r, err, log.OpImport)
		return
	}

	status := http.StatusOK
	if out.Committed {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, toImportResponse(out))
}
