package server

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"github.com/raterudder/metersync/pkg/chart"
	"github.com/raterudder/metersync/pkg/log"
	"github.com/raterudder/metersync/pkg/storage"
)

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	column := r.PathValue("column")

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
	if err := chart.Render(&buf, d, column, s.localNow()); err != nil {
		if errors.Is(err, chart.ErrUnknownColumn) {
			writeJSONError(w, "unknown column", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to render chart", slog.String("column", column), slog.Any("error", err))
		writeJSONError(w, "failed to render chart", http.StatusInternalServerError)
		return
	}
	if s.metrics != nil {
		s.metrics.ChartsWritten.Inc()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		panic(http.ErrAbortHandler)
	}
}
