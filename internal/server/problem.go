package server

import (
	"encoding/json"
	"net/http"
)

// Problem types for RFC 7807 Problem Details responses.
const (
	ProblemTypeNotFound   = "https://snutz.dev/problems/not-found"
	ProblemTypeBadRequest = "https://snutz.dev/problems/bad-request"
	ProblemTypeInternal   = "https://snutz.dev/problems/internal-error"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// NewProblem builds a Problem for the given status with the matching type
// URI and title. Statuses without a dedicated type fall back to internal.
func NewProblem(status int, detail string) Problem {
	problemType := ProblemTypeInternal
	switch status {
	case http.StatusNotFound:
		problemType = ProblemTypeNotFound
	case http.StatusBadRequest:
		problemType = ProblemTypeBadRequest
	}
	return Problem{
		Type:   problemType,
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}
}

// WriteProblem writes an RFC 7807 Problem Details JSON response.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NotFound writes a 404 problem response.
func NotFound(w http.ResponseWriter, detail string) {
	WriteProblem(w, NewProblem(http.StatusNotFound, detail))
}

// BadRequest writes a 400 problem response.
func BadRequest(w http.ResponseWriter, detail string) {
	WriteProblem(w, NewProblem(http.StatusBadRequest, detail))
}

// InternalError writes a 500 problem response.
func InternalError(w http.ResponseWriter, detail string) {
	WriteProblem(w, NewProblem(http.StatusInternalServerError, detail))
}
