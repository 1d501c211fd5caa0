package dashboard

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	dashboardsvc "github.com/Ramsey-B/tally/internal/services/dashboard"
	"github.com/Ramsey-B/tally/pkg/aggregation"
	"github.com/Ramsey-B/tally/pkg/models"
	"github.com/Ramsey-B/tally/pkg/tracing"
	"github.com/Ramsey-B/tally/pkg/utils"
)

type Handler struct {
	service *dashboardsvc.Service
}

func NewHandler(service *dashboardsvc.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the read-only election views
func (h *Handler) RegisterRoutes(g *echo.Group) {
	elections := g.Group("/elections/:election_id")
	elections.GET("/dashboard", h.Dashboard)
	elections.GET("/summary", h.Summary)
	elections.GET("/regions", h.Regions)
	elections.GET("/breakdown", h.Breakdown)
	elections.GET("/top-candidates", h.TopCandidates)
	elections.GET("/activity", h.ActivityFeed)
}

func regionID(c echo.Context) string {
	return strings.TrimSpace(c.QueryParam("region_id"))
}

// Dashboard handles GET /elections/:election_id/dashboard?region_id=
func (h *Handler) Dashboard(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "dashboard_handler.Dashboard")
	defer span.End()

	board, err := h.service.Dashboard(ctx, c.Param("election_id"), regionID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, board)
}

func (h *Handler) Summary(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "dashboard_handler.Summary")
	defer span.End()

	overview, err := h.service.Summary(ctx, c.Param("election_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, overview)
}

func (h *Handler) Regions(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "dashboard_handler.Regions")
	defer span.End()

	nodes, err := h.service.Regions(ctx, c.Param("election_id"), regionID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nodes)
}

// Breakdown handles GET /elections/:election_id/breakdown?level=&region_id=, level defaults to region
func (h *Handler) Breakdown(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "dashboard_handler.Breakdown")
	defer span.End()

	level := models.GeoLevel(strings.ToLower(strings.TrimSpace(c.QueryParam("level"))))
	if level == "" {
		level = models.GeoLevelRegion
	}

	nodes, err := h.service.Breakdown(ctx, c.Param("election_id"), level, regionID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, nodes)
}

func (h *Handler) TopCandidates(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "dashboard_handler.TopCandidates")
	defer span.End()

	limit, err := utils.QueryInt(c, "limit", aggregation.DefaultTopCandidatesLimit)
	if err != nil {
		return err
	}

	tallies, err := h.service.TopCandidates(ctx, c.Param("election_id"), aggregation.TopCandidatesOptions{
		RegionID:   regionID(c),
		PositionID: strings.TrimSpace(c.QueryParam("position_id")),
		Limit:      limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tallies)
}

// ActivityFeed handles GET /elections/:election_id/activity?limit=
func (h *Handler) ActivityFeed(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "dashboard_handler.ActivityFeed")
	defer span.End()

	limit, err := utils.QueryInt(c, "limit", 0)
	if err != nil {
		return err
	}

	events, err := h.service.ActivityFeed(ctx, c.Param("election_id"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, events)
}
