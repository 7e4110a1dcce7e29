// Package statusapi serves a read-only HTTP view of the ledger and the
// Prometheus metrics.
package statusapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/outreachbot/internal/governor"
	"github.com/example/outreachbot/internal/models"
	"github.com/example/outreachbot/internal/report"
	"github.com/example/outreachbot/internal/store"
)

type Handler struct {
	Store    *store.Store
	Governor *governor.Governor
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Counters(c *gin.Context) {
	day := c.DefaultQuery("day", h.Governor.Today())
	counters, err := h.Store.Counters(c.Request.Context(), day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"day":                    counters.Day,
		"connections_sent_today": counters.ConnectionsSentToday,
		"messages_sent_today":    counters.MessagesSentToday,
	})
}

func (h *Handler) Status(c *gin.Context) {
	s, err := report.Snapshot(c.Request.Context(), h.Store, h.Governor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s)
}

type contactView struct {
	Identity          string     `json:"identity"`
	DisplayName       string     `json:"display_name"`
	Company           string     `json:"company"`
	TitleText         string     `json:"title_text"`
	Classification    string     `json:"classification"`
	Basis             string     `json:"basis"`
	RelationshipState string     `json:"relationship_state"`
	LastActionAt      *time.Time `json:"last_action_at,omitempty"`
}

func (h *Handler) Contacts(c *gin.Context) {
	raw := c.Query("state")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state is required"})
		return
	}
	var states []models.RelationshipState
	for _, s := range strings.Split(raw, ",") {
		st := models.RelationshipState(strings.ToUpper(strings.TrimSpace(s)))
		if st.Rank() < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown state " + s})
			return
		}
		states = append(states, st)
	}
	contacts, err := h.Store.ListByStates(c.Request.Context(), states...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]contactView, 0, len(contacts))
	for _, ct := range contacts {
		out = append(out, contactView{
			Identity:          ct.Identity,
			DisplayName:       ct.DisplayName,
			Company:           ct.Company,
			TitleText:         ct.TitleText,
			Classification:    string(ct.Classification),
			Basis:             string(ct.Basis),
			RelationshipState: string(ct.RelationshipState),
			LastActionAt:      ct.LastActionAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"contacts": out})
}

func (h *Handler) CompanyStats(c *gin.Context) {
	stats, err := h.Store.CompanyStats(c.Request.Context(), c.Param("company"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	v1 := r.Group("/v1")
	v1.GET("/counters", h.Counters)
	v1.GET("/status", h.Status)
	v1.GET("/contacts", h.Contacts)
	v1.GET("/companies/:company", h.CompanyStats)
	return r
}

// Serve runs the API on addr until ctx is done.
func Serve(ctx context.Context, addr string, h *Handler, log *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: NewRouter(h), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("status api listening", "module", "statusapi", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
