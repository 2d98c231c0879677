package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/contextforge/corpus/internal/store"
)

type adminService interface {
	Stats(ctx context.Context) (store.IndexStats, error)
	ListSources(ctx context.Context, limit int) ([]store.SourceInfo, error)
	DeleteSource(ctx context.Context, sourcePath string, confirm bool) (bool, error)
	PurgeAll(ctx context.Context, confirmation string) (int64, error)
	NormalizeSourcePaths(ctx context.Context, projectRoot string) (store.NormalizeResult, error)
}

// AdminHandler exposes the management surface.
type AdminHandler struct {
	Manage adminService
}

func (h *AdminHandler) Register(api *echo.Group, secret []byte) {
	g := api.Group("")
	g.Use(authMiddleware(secret))
	g.GET("/stats", h.stats)
	g.GET("/sources", h.listSources)
	g.DELETE("/sources", h.deleteSource)
	g.POST("/admin/purge", h.purge)
	g.POST("/admin/normalize", h.normalize)
}

func (h *AdminHandler) stats(c echo.Context) error {
	st, err := h.Manage.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, StatsResponse{
		Documents:    st.Documents,
		Chunks:       st.Chunks,
		Tokens:       st.Tokens,
		StorageBytes: st.StorageBytes,
	})
}

func (h *AdminHandler) listSources(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	sources, err := h.Manage.ListSources(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]SourceResponse, 0, len(sources))
	for _, s := range sources {
		out = append(out, SourceResponse{
			SourcePath: s.SourcePath,
			ChunkCount: s.ChunkCount,
			IndexedAt:  s.IndexedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminHandler) deleteSource(c echo.Context) error {
	var req DeleteSourceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	deleted, err := h.Manage.DeleteSource(c.Request().Context(), req.SourcePath, req.Confirm)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !deleted {
		return echo.NewHTTPError(http.StatusNotFound, "source not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) purge(c echo.Context) error {
	var req PurgeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := h.Manage.PurgeAll(c.Request().Context(), req.Confirmation)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, PurgeResponse{Purged: n})
}

func (h *AdminHandler) normalize(c echo.Context) error {
	var req NormalizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.Manage.NormalizeSourcePaths(c.Request().Context(), req.ProjectRoot)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, NormalizeResponse{Renamed: res.Renamed, Removed: res.Removed})
}
