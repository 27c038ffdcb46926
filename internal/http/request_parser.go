package http

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"financeos/internal/core"
	"financeos/internal/ledger"
	"financeos/internal/services"
)

const maxQueryDays = 3660

// parseAsOf reads the optional as_of parameter. A zero Date means "today".
func parseAsOf(r *http.Request) (core.Date, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("as_of"))
	if raw == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(raw)
	if err != nil {
		return core.Date{}, fmt.Errorf("%w: as_of: %w", errBadRequest, err)
	}
	return d, nil
}

// parseDays reads a day count, falling back to def when absent. Zero and
// negative counts are passed on; the aggregation layer rejects negatives
// with an AggregationInputError.
func parseDays(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	if n > maxQueryDays {
		return 0, fmt.Errorf("%w: %s must be at most %d", errBadRequest, name, maxQueryDays)
	}
	return n, nil
}

func parseBuffer(r *http.Request) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("buffer"))
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: buffer: %w", errBadRequest, err)
	}
	return &d, nil
}

func parseBool(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %w", errBadRequest, name, err)
	}
	return b, nil
}

// parseApprove accepts approve=a,b as well as repeated approve parameters.
func parseApprove(r *http.Request) []string {
	var ids []string
	for _, v := range r.URL.Query()["approve"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// parseImportRequest builds an import request from the query string and the
// uploaded CSV. The body is either a multipart form with a "file" part or
// the raw CSV itself. The returned closer must be called once the import
// has run.
func parseImportRequest(w http.ResponseWriter, r *http.Request, accountID string, maxBytes int64) (services.ImportRequest, io.Closer, error) {
	req := services.ImportRequest{AccountID: accountID}

	mode, err := ledger.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		return req, nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	req.Mode = mode

	if req.DryRun, err = parseBool(r, "dry_run"); err != nil {
		return req, nil, err
	}
	req.Approve = parseApprove(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		req.Body = r.Body
		return req, r.Body, nil
	}

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return req, nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return req, nil, fmt.Errorf("%w: missing file part: %w", errBadRequest, err)
	}
	req.Body = file
	return req, file, nil
}
