package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/contextforge/corpus/internal/embedding"
	"github.com/contextforge/corpus/internal/store"
)

type memoryStore interface {
	CreateMemory(ctx context.Context, rec store.MemoryRecord, vector []float32) (store.MemoryRecord, error)
	ListMemories(ctx context.Context, f store.MemoryFilter) ([]store.MemoryRecord, error)
	SearchMemories(ctx context.Context, vector []float32, f store.MemoryFilter) ([]store.MemorySearchResult, error)
	UpdateMemory(ctx context.Context, id string, upd store.MemoryUpdate) (store.MemoryRecord, error)
	DeleteMemory(ctx context.Context, id string) (bool, error)
}

// MemoryHandler exposes session and project scoped memory records.
type MemoryHandler struct {
	Store memoryStore
	Gen   embedding.Generator
}

func (h *MemoryHandler) Register(g *echo.Group, secret []byte) {
	g.Use(authMiddleware(secret))
	g.POST("", h.create)
	g.GET("", h.list)
	g.POST("/search", h.search)
	g.PUT("/:id", h.update)
	g.DELETE("/:id", h.remove)
}

func (h *MemoryHandler) create(c echo.Context) error {
	var req CreateMemoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}
	if !store.ValidMemoryType(req.Type) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid memory type")
	}
	vec, err := h.Gen.Generate(c.Request().Context(), req.Content)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	rec, err := h.Store.CreateMemory(c.Request().Context(), store.MemoryRecord{
		SessionID: req.SessionID,
		ProjectID: req.ProjectID,
		Type:      req.Type,
		Content:   req.Content,
		Tags:      req.Tags,
	}, vec)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *MemoryHandler) list(c echo.Context) error {
	f := store.MemoryFilter{
		SessionID: c.QueryParam("session_id"),
		ProjectID: c.QueryParam("project_id"),
		Type:      c.QueryParam("type"),
		Tag:       c.QueryParam("tag"),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		f.Limit = n
	}
	items, err := h.Store.ListMemories(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *MemoryHandler) search(c echo.Context) error {
	var req MemorySearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	vec, err := h.Gen.Generate(c.Request().Context(), req.Query)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	hits, err := h.Store.SearchMemories(c.Request().Context(), vec, store.MemoryFilter{
		SessionID: req.SessionID,
		ProjectID: req.ProjectID,
		Limit:     req.Limit,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, hits)
}

func (h *MemoryHandler) update(c echo.Context) error {
	id := c.Param("id")
	var req UpdateMemoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	upd := store.MemoryUpdate{Content: req.Content, Type: req.Type, Tags: req.Tags}
	if req.Type != nil && !store.ValidMemoryType(*req.Type) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid memory type")
	}
	if req.Content != nil {
		vec, err := h.Gen.Generate(c.Request().Context(), *req.Content)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		upd.Embedding = vec
	}
	rec, err := h.Store.UpdateMemory(c.Request().Context(), id, upd)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "memory not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *MemoryHandler) remove(c echo.Context) error {
	deleted, err := h.Store.DeleteMemory(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !deleted {
		return echo.NewHTTPError(http.StatusNotFound, "memory not found")
	}
	return c.NoContent(http.StatusNoContent)
}
