package sheet

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/tally/internal/services/collation"
	appctx "github.com/Ramsey-B/tally/pkg/context"
	"github.com/Ramsey-B/tally/pkg/models"
	"github.com/Ramsey-B/tally/pkg/tracing"
	"github.com/Ramsey-B/tally/pkg/utils"
	"github.com/Ramsey-B/tally/pkg/workflow"
)

type OpenSheetRequest struct {
	PollingStationID string `json:"polling_station_id" validate:"required"`
}

// EntriesRequest replaces or adds entries. Version is the sheet version the client last read.
type EntriesRequest struct {
	Version int                 `json:"version" validate:"min=1"`
	Entries []models.EntryInput `json:"entries"`
}

type TotalsRequest struct {
	Version int `json:"version" validate:"min=1"`
	models.Totals
}

type TransitionRequest struct {
	Version int    `json:"version" validate:"min=1"`
	Reason  string `json:"reason"`
}

type SheetListResponse struct {
	Items []models.ResultSheet `json:"items"`
	Total int                  `json:"total"`
}

type Handler struct {
	service *collation.Service
}

func NewHandler(service *collation.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers sheet routes on the versioned api group
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/elections/:election_id/sheets", h.Open)
	g.GET("/elections/:election_id/sheets", h.List)

	sheets := g.Group("/sheets")
	sheets.GET("/:id", h.Get)
	sheets.GET("/:id/entries", h.ListEntries)
	sheets.PUT("/:id/entries", h.BulkAddEntries)
	sheets.PUT("/:id/totals", h.UpdateTotals)
	sheets.GET("/:id/consistency", h.Consistency)
	sheets.GET("/:id/activity", h.History)
	sheets.POST("/:id/:action", h.Transition)
}

// Open handles POST /elections/:election_id/sheets. A repeated call returns the existing sheet.
func (h *Handler) Open(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "sheet_handler.Open")
	defer span.End()

	req, err := utils.BindRequest[OpenSheetRequest](c)
	if err != nil {
		return err
	}

	view, created, err := h.service.OpenSheet(ctx, c.Param("election_id"), strings.TrimSpace(req.PollingStationID), appctx.GetActorID(ctx))
	if err != nil {
		return err
	}
	if created {
		return c.JSON(http.StatusCreated, view)
	}
	return c.JSON(http.StatusOK, view)
}

// List handles GET /elections/:election_id/sheets?status=
func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "sheet_handler.List")
	defer span.End()

	sheets, err := h.service.ListSheets(ctx, models.SheetFilter{
		ElectionID: c.Param("election_id"),
		Status:     models.SheetStatus(strings.ToLower(strings.TrimSpace(c.QueryParam("status")))),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SheetListResponse{Items: sheets, Total: len(sheets)})
}

func (h *Handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "sheet_handler.Get")
	defer span.End()

	view, err := h.service.GetSheet(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) ListEntries(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "sheet_handler.ListEntries")
	defer span.End()

	list, err := h.service.ListEntries(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// BulkAddEntries handles PUT /sheets/:id/entries
func (h *Handler) BulkAddEntries(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "sheet_handler.BulkAddEntries")
	defer span.End()

	req, err := utils.BindRequest[EntriesRequest](c)
	if err != nil {
		return err
	}

	view, err := h.service.BulkAddEntries(ctx, c.Param("id"), req.Version, req.Entries, appctx.GetActorID(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// UpdateTotals handles PUT /sheets/:id/totals. Omitted totals are cleared.
func (h *Handler) UpdateTotals(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "sheet_handler.UpdateTotals")
	defer span.End()

	req, err := utils.BindRequest[TotalsRequest](c)
	if err != nil {
		return err
	}

	view, err := h.service.UpdateTotals(ctx, c.Param("id"), req.Version, req.Totals, appctx.GetActorID(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) Consistency(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "sheet_handler.Consistency")
	defer span.End()

	report, err := h.service.Consistency(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// History handles GET /sheets/:id/activity, newest first
func (h *Handler) History(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "sheet_handler.History")
	defer span.End()

	events, err := h.service.History(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, events)
}

// Transition handles POST /sheets/:id/:action for submit, verify, approve, certify and reject
func (h *Handler) Transition(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "sheet_handler.Transition")
	defer span.End()

	action, ok := workflow.ParseAction(c.Param("action"))
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "unknown workflow action '%s'", c.Param("action"))
	}

	req, err := utils.BindRequest[TransitionRequest](c)
	if err != nil {
		return err
	}

	result, err := h.service.Transition(ctx, c.Param("id"), workflow.Command{
		Action:          action,
		ExpectedVersion: req.Version,
		ActorID:         appctx.GetActorID(ctx),
		Reason:          req.Reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
