package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//////////////////////////////////////////////////////////////
// STATUS SERVER
//////////////////////////////////////////////////////////////

type actionLister interface {
	Recent(ctx context.Context, limit int) ([]ModerationAction, error)
}

type healthResponse struct {
	Connected            bool   `json:"connected"`
	ModerationConfigured bool   `json:"moderation_configured"`
	ModerationActive     bool   `json:"moderation_active"`
	Window               string `json:"window"`
}

// NewRouter exposes metrics, a health probe and the recent moderation log.
// actions may be nil when the audit log is disabled.
func NewRouter(bot *Bot, actions actionLister) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	refreshGauge := func() bool {
		active := bot.ModerationActive()
		if active {
			moderationActive.Set(1)
		} else {
			moderationActive.Set(0)
		}
		return active
	}

	metrics := promhttp.Handler()
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		refreshGauge()
		metrics.ServeHTTP(w, req)
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Connected:            bot.Connected(),
			ModerationConfigured: bot.moderator.Configured(),
			ModerationActive:     refreshGauge(),
			Window:               bot.hours.String(),
		})
	})

	r.Get("/actions", func(w http.ResponseWriter, req *http.Request) {
		if actions == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "audit log disabled"})
			return
		}
		limit := 50
		if v := req.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}
		list, err := actions.Recent(req.Context(), limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if list == nil {
			list = []ModerationAction{}
		}
		writeJSON(w, http.StatusOK, list)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newStatusServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
