package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/contextforge/corpus/internal/search"
	"github.com/contextforge/corpus/internal/store"
)

type queryService interface {
	Query(ctx context.Context, text string, topK int) ([]search.Result, error)
	Similar(ctx context.Context, chunkID int64, topK int) ([]search.Result, error)
}

type chunkGetter interface {
	GetChunk(ctx context.Context, id int64) (store.ChunkRecord, error)
}

// QueryHandler exposes retrieval endpoints.
type QueryHandler struct {
	Search queryService
	Chunks chunkGetter
}

func (h *QueryHandler) Register(api *echo.Group, secret []byte) {
	g := api.Group("")
	g.Use(authMiddleware(secret))
	g.POST("/query", h.query)
	g.POST("/search/similar", h.similar)
	g.GET("/chunks/:id", h.getChunk)
}

func (h *QueryHandler) query(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	started := time.Now()
	results, err := h.Search.Query(c.Request().Context(), req.Query, req.TopK)
	queryRequests.WithLabelValues(outcome(err)).Inc()
	queryDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		if errors.Is(err, search.ErrEmptyQuery) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, results)
}

func (h *QueryHandler) similar(c echo.Context) error {
	var req SimilarRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ChunkID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "chunk_id must be positive")
	}
	results, err := h.Search.Similar(c.Request().Context(), req.ChunkID, req.TopK)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "chunk not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, results)
}

func (h *QueryHandler) getChunk(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid chunk id")
	}
	rec, err := h.Chunks.GetChunk(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "chunk not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ChunkResponse{
		ID:         rec.ID,
		SourcePath: rec.SourcePath,
		ChunkIndex: rec.ChunkIndex,
		Text:       rec.Text,
		TokenCount: rec.TokenCount,
	})
}
