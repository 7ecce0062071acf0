package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jeffrey-bowles/uspto/internal/application/indexing"
	"github.com/jeffrey-bowles/uspto/internal/application/query"
	"github.com/jeffrey-bowles/uspto/internal/domain/reporting"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

const (
	// DefaultPageCount applies when the client omits count.
	DefaultPageCount = 25
	// DefaultSortBy applies when the client omits sort_by.
	DefaultSortBy = indexing.SortPatentNumber
)

// PatentReader is the part of query.Service the handlers use.
type PatentReader interface {
	Patents(ctx context.Context, req query.PageRequest) (*query.Page, error)
	FeeEvents(ctx context.Context, patentID int64) ([]query.EventRow, error)
}

// PatentHandler serves patent pages and fee event lists.
type PatentHandler struct {
	reader PatentReader
	logger logging.Logger
}

// NewPatentHandler creates a new PatentHandler.
func NewPatentHandler(reader PatentReader, logger logging.Logger) *PatentHandler {
	return &PatentHandler{reader: reader, logger: logger.Named("patent_handler")}
}

// RegisterRoutes mounts the legacy paths used by the web client and their
// /api/v1 equivalents.
func (h *PatentHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/update_patents", h.ListPatents)
	r.GET("/update_fee_events", h.ListFeeEvents)

	v1 := r.Group("/api/v1/patents")
	v1.GET("", h.ListPatents)
	v1.GET("/:id/fee-events", h.ListFeeEvents)
}

// FeeEventsResponse is the body of the fee events endpoints.
type FeeEventsResponse struct {
	EventResults []query.EventRow `json:"event_results"`
}

// ListPatents handles GET /update_patents.
//
// Query parameters: patent_set (1..6 or a set name), start_row, count,
// sort_by, descending, unpaid, filter. Flags count as set only when "true".
func (h *PatentHandler) ListPatents(c *gin.Context) {
	req, err := parsePageRequest(c)
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	page, err := h.reader.Patents(c.Request.Context(), req)
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// ListFeeEvents handles GET /update_fee_events?patent=<id> and
// GET /api/v1/patents/:id/fee-events.
func (h *PatentHandler) ListFeeEvents(c *gin.Context) {
	raw := c.Param("id")
	if raw == "" {
		raw = c.Query("patent")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeAppError(c, h.logger, errors.New(errors.ErrCodeValidation, "patent must be a positive id").WithDetail(raw))
		return
	}
	events, err := h.reader.FeeEvents(c.Request.Context(), id)
	if err != nil {
		writeAppError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, FeeEventsResponse{EventResults: events})
}

func parsePageRequest(c *gin.Context) (query.PageRequest, error) {
	var req query.PageRequest
	set := c.Query("patent_set")
	if set == "" {
		return req, errors.New(errors.ErrCodeValidation, "patent_set is required")
	}
	name, err := reporting.ParseSet(set)
	if err != nil {
		return req, err
	}
	req.Set = name

	if req.StartRow, err = queryInt(c, "start_row", 0); err != nil {
		return req, err
	}
	if req.Count, err = queryInt(c, "count", DefaultPageCount); err != nil {
		return req, err
	}
	req.SortBy = c.DefaultQuery("sort_by", DefaultSortBy)
	req.Descending = queryBool(c, "descending")
	req.Unpaid = queryBool(c, "unpaid")
	req.Filter = c.Query("filter")
	return req, req.Validate()
}
