package server

import (
	"context"
	"net/http"
	"time"

	"github.com/raterudder/metersync/pkg/job"
	"github.com/raterudder/metersync/pkg/types"
)

// RunResponse is the JSON form of a job.Result.
type RunResponse struct {
	RunID     string       `json:"runID"`
	Outcome   job.Outcome  `json:"outcome"`
	Window    types.Window `json:"window"`
	Fetched   int          `json:"fetched"`
	Rows      int          `json:"rows"`
	Watermark *time.Time   `json:"watermark,omitempty"`
	Duration  string       `json:"duration"`
	Error     string       `json:"error,omitempty"`
}

func newRunResponse(res job.Result) RunResponse {
	resp := RunResponse{
		RunID:    res.RunID,
		Outcome:  res.Outcome,
		Window:   res.Window,
		Fetched:  res.Fetched,
		Rows:     res.Rows,
		Duration: res.Duration.String(),
		Error:    res.Error(),
	}
	if !res.Watermark.IsZero() {
		wm := res.Watermark
		resp.Watermark = &wm
	}
	return resp
}

// runStatusCode maps an outcome to the status returned to the scheduler so
// failed runs show up in its retry and alerting.
func runStatusCode(o job.Outcome) int {
	switch o {
	case job.OutcomeBusy:
		return http.StatusConflict
	case job.OutcomeFetchFailed:
		return http.StatusBadGateway
	case job.OutcomeReadFailed, job.OutcomeWriteFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	// the run is detached from the request so a scheduler timeout doesn't
	// abort a save half way
	res := s.runner.Run(context.WithoutCancel(r.Context()))
	writeJSON(w, newRunResponse(res), runStatusCode(res.Outcome))
}
