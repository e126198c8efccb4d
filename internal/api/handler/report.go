package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storyscope/storyscope/internal/service"
)

// ReportHandler handles analysis submission and polling endpoints.
type ReportHandler struct {
	reportService *service.ReportService
}

// NewReportHandler creates a new report handler.
// Parameters:
//   - reportService: report service instance.
// Returns:
//   - *ReportHandler: initialized handler.
func NewReportHandler(reportService *service.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// Submit handles POST /api/v1/books/:id/analyze. Submission is
// idempotent per book: while an analysis is pending or processing,
// repeated calls return the same report with 200 instead of 202.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ReportHandler) Submit(c *gin.Context) {
	h.submit(c, c.Param("id"))
}

// SubmitBody handles POST /api/v1/reports with {"book_id": "..."}.
// Same semantics as Submit.
func (h *ReportHandler) SubmitBody(c *gin.Context) {
	var req struct {
		BookID string `json:"book_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	h.submit(c, req.BookID)
}

func (h *ReportHandler) submit(c *gin.Context, bookID string) {
	report, created, err := h.reportService.Submit(c.Request.Context(), bookID)
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	}
	if errors.Is(err, service.ErrEmptyBook) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Book has no chapters to analyze"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to submit analysis: " + err.Error(),
		})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusAccepted
	}
	c.JSON(status, report)
}

// Status handles GET /api/v1/reports/:id/status.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ReportHandler) Status(c *gin.Context) {
	view, err := h.reportService.GetStatus(c.Request.Context(), c.Param("id"))
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load report status: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, view)
}

// Get handles GET /api/v1/reports/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ReportHandler) Get(c *gin.Context) {
	view, err := h.reportService.GetReport(c.Request.Context(), c.Param("id"))
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load report: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, view)
}
