package server

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/raterudder/metersync/pkg/export"
	"github.com/raterudder/metersync/pkg/log"
	"github.com/raterudder/metersync/pkg/storage"
)

// StatusResponse describes the persisted dataset and the last run.
type StatusResponse struct {
	Exists    bool         `json:"exists"`
	Rows      int          `json:"rows"`
	Columns   []string     `json:"columns"`
	Watermark *time.Time   `json:"watermark,omitempty"`
	LastRun   *RunResponse `json:"lastRun,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := StatusResponse{Columns: []string{}}
	d, err := s.data.Load(ctx)
	switch {
	case err == nil:
		resp.Exists = true
		resp.Rows = d.Len()
		resp.Columns = append(resp.Columns, d.Columns...)
		if wm, ok := d.Watermark(); ok {
			resp.Watermark = &wm
		}
	case errors.Is(err, storage.ErrNotFound):
	default:
		log.Ctx(ctx).ErrorContext(ctx, "failed to load dataset", slog.Any("error", err))
		writeJSONError(w, "failed to load dataset", http.StatusInternalServerError)
		return
	}
	if last, ok := s.runner.Last(); ok {
		rr := newRunResponse(last)
		resp.LastRun = &rr
	}
	writeJSON(w, resp, http.StatusOK)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatCSV
	}
	if format != export.FormatCSV && format != export.FormatXLSX {
		writeJSONError(w, "format must be csv or xlsx", http.StatusBadRequest)
		return
	}

	d, err := s.data.Load(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSONError(w, "no dataset", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to load dataset", slog.Any("error", err))
		writeJSONError(w, "failed to load dataset", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, d, format); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to export dataset", slog.String("format", format), slog.Any("error", err))
		writeJSONError(w, "failed to export dataset", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", `attachment; filename="meter_data.`+format+`"`)
	if _, err := w.Write(buf.Bytes()); err != nil {
		panic(http.ErrAbortHandler)
	}
}
