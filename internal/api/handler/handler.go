// Package handler contains the HTTP handlers for the training API. Each
// handler depends on a narrow interface so tests can substitute fakes without
// standing up the full service graph.
package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sreevalsan/mltrainer/internal/api/response"
)

// orgIDParam extracts and validates the {orgID} URL parameter. On failure it
// writes the error response and returns false.
func orgIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "orgID")
	id, err := uuid.Parse(raw)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"orgID must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
