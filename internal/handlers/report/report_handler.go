// internal/handlers/report/report_handler.go
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"bloom-payments/internal/domain/payment"
	"bloom-payments/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	dateLayout      = "2006-01-02"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Service interface {
	GetAnalytics(ctx context.Context, from, to time.Time) (*payment.PaymentAnalytics, error)
	GetDailySummary(ctx context.Context, date time.Time) (*payment.DailySummary, error)
	ExportTransactions(ctx context.Context, c payment.SearchCriteria, w io.Writer) error
}

type ReportHandler struct {
	reportService Service
	location      *time.Location
	now           func() time.Time
}

func NewReportHandler(reportService Service, location *time.Location) *ReportHandler {
	if location == nil {
		location = time.Local
	}
	return &ReportHandler{
		reportService: reportService,
		location:      location,
		now:           time.Now,
	}
}

// GetAnalytics reports on [from, to] inclusive of both days; defaults to the last 30 days
func (h *ReportHandler) GetAnalytics(c *gin.Context) {
	today := h.startOfDay(h.now())

	from, err := h.parseDate(c.Query("from"), today.AddDate(0, 0, -29))
	if err != nil {
		response.ValidationError(c, "invalid from date", err)
		return
	}
	to, err := h.parseDate(c.Query("to"), today)
	if err != nil {
		response.ValidationError(c, "invalid to date", err)
		return
	}

	analytics, err := h.reportService.GetAnalytics(c.Request.Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		response.FromError(c, "failed to build analytics", err)
		return
	}

	response.Success(c, http.StatusOK, "analytics retrieved", analytics)
}

// GetDailySummary reports on one shop day; defaults to today
func (h *ReportHandler) GetDailySummary(c *gin.Context) {
	date, err := h.parseDate(c.Query("date"), h.startOfDay(h.now()))
	if err != nil {
		response.ValidationError(c, "invalid date", err)
		return
	}

	summary, err := h.reportService.GetDailySummary(c.Request.Context(), date)
	if err != nil {
		response.FromError(c, "failed to build daily summary", err)
		return
	}

	response.Success(c, http.StatusOK, "daily summary retrieved", summary)
}

// ExportTransactions returns the filtered transaction list as a spreadsheet
func (h *ReportHandler) ExportTransactions(c *gin.Context) {
	var criteria payment.SearchCriteria
	if err := c.ShouldBindQuery(&criteria); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	// Buffer so a failed export can still answer with a JSON error
	var buf bytes.Buffer
	if err := h.reportService.ExportTransactions(c.Request.Context(), criteria, &buf); err != nil {
		response.FromError(c, "failed to export transactions", err)
		return
	}

	filename := fmt.Sprintf("transactions-%s.xlsx", h.now().In(h.location).Format(dateLayout))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *ReportHandler) parseDate(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	return time.ParseInLocation(dateLayout, raw, h.location)
}

func (h *ReportHandler) startOfDay(t time.Time) time.Time {
	t = t.In(h.location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, h.location)
}
