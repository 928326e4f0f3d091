package handlers

import (
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/powerdeck/internal/domain"
	"github.com/MrSnakeDoc/powerdeck/internal/httpserver/deps"
	"github.com/MrSnakeDoc/powerdeck/internal/logger"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Request returns the progress board of one request.
func Request(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		board, ok := d.Dispatcher.Board(chi.URLParam(r, "rid"))
		if !ok {
			writeError(w, http.StatusNotFound, "request not found")
			return
		}
		writeJSON(w, http.StatusOK, board.Snapshot())
	}
}

// RequestOutput delivers the full command output as an attachment.
func RequestOutput(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := chi.URLParam(r, "rid")
		err := d.Dispatcher.WithOutput(rid, func(f *os.File, name string) error {
			info, err := f.Stat()
			if err != nil {
				return err
			}
			w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			http.ServeContent(w, r, name, info.ModTime(), f)
			return nil
		})
		if err != nil {
			d.Logger.Debug("output not delivered",
				logger.String("request_id", rid),
				logger.Error(err))
			writeError(w, statusFor(err), err.Error())
		}
	}
}

// History lists recent outcomes, newest first. ?limit= caps the count.
func History(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		results, err := d.Dispatcher.History(r.Context(), limit)
		if err != nil {
			d.Logger.Warn("failed to read history", logger.Error(err))
			writeError(w, http.StatusInternalServerError, "history unavailable")
			return
		}
		if results == nil {
			results = []*domain.Result{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}
