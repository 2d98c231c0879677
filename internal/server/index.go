package server

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/contextforge/corpus/internal/indexer"
)

type ingestService interface {
	IndexDirectory(ctx context.Context, root string) (indexer.Summary, error)
	IndexText(ctx context.Context, key, content string) (indexer.Summary, error)
	IndexURL(ctx context.Context, rawURL, keyOverride string) (indexer.Summary, error)
}

// IndexHandler exposes the ingestion surface.
type IndexHandler struct {
	Indexer ingestService
	Logger  *log.Logger
}

func (h *IndexHandler) Register(g *echo.Group, secret []byte) {
	g.Use(authMiddleware(secret))
	g.POST("/directory", h.directory)
	g.POST("/text", h.text)
	g.POST("/url", h.url)
}

func (h *IndexHandler) directory(c echo.Context) error {
	var req IndexDirectoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Root) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "root is required")
	}
	summary, err := h.Indexer.IndexDirectory(c.Request().Context(), req.Root)
	indexRequests.WithLabelValues("directory", outcome(err)).Inc()
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *IndexHandler) text(c echo.Context) error {
	var req IndexTextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Key) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key is required")
	}
	summary, err := h.Indexer.IndexText(c.Request().Context(), req.Key, req.Content)
	indexRequests.WithLabelValues("text", outcome(err)).Inc()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *IndexHandler) url(c echo.Context) error {
	var req IndexURLRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.URL) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}
	summary, err := h.Indexer.IndexURL(c.Request().Context(), req.URL, req.Key)
	indexRequests.WithLabelValues("url", outcome(err)).Inc()
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, summary)
}
