package cds

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrWaitExceeded is returned when a job is still queued or running
	// after the configured maximum wait.
	ErrWaitExceeded = errors.New("job did not complete in time")

	// ErrShortTransfer is returned when the downloaded asset does not have
	// the size announced by the service.
	ErrShortTransfer = errors.New("asset size mismatch")
)

// APIError is a rejection reported by the service, either as a non-2xx
// response or as a job that ended in a failure state.
type APIError struct {
	StatusCode int
	Title      string
	Detail     string
	JobID      string
}

func (e *APIError) Error() string {
	var sb strings.Builder
	sb.WriteString("cds: ")
	if e.JobID != "" {
		fmt.Fprintf(&sb, "job %s: ", e.JobID)
	}
	if e.Title != "" {
		sb.WriteString(e.Title)
	} else {
		sb.WriteString(http.StatusText(e.StatusCode))
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, " (status %d)", e.StatusCode)
	}
	return sb.String()
}

// problem is an RFC 7807 problem document as returned by the service.
type problem struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Traceback string `json:"traceback"`
}

const maxProblemSize = 64 << 10

// newAPIError builds an APIError from a failed response and drains its body.
func newAPIError(res *http.Response, jobID string) *APIError {
	e := &APIError{StatusCode: res.StatusCode, JobID: jobID}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxProblemSize))
	if err != nil || len(body) == 0 {
		return e
	}
	var p problem
	if err := json.Unmarshal(body, &p); err != nil {
		e.Detail = strings.TrimSpace(string(body))
		return e
	}
	e.Title = p.Title
	e.Detail = p.Detail
	if e.Detail == "" {
		e.Detail = strings.TrimSpace(p.Traceback)
	}
	return e
}
