// Package exports streams CSV views of the delivery ledger for BI pulls and
// campaign reviews. Exports are read-only and live on the operator surface.
package exports

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sequencer_backend/platform/httpkit"
)

var errToBeforeFrom = errors.New("toDate before fromDate")

const (
	defaultTimezone = "UTC"
	dateLayout      = "2006-01-02"
	exportLayout    = "2006-01-02 15:04:05-0700"

	defaultLimit = 5000
	maxLimit     = 50000
)

// Handler handles CSV export requests.
type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// HandleExportInstances streams instances created in the requested window.
// GET /api/v1/ops/exports/instances.csv
func (h *Handler) HandleExportInstances(c *gin.Context) {
	filter, location, ok := parseFilter(c)
	if !ok {
		return
	}

	items, err := h.repo.ListInstances(c.Request.Context(), filter)
	if httpkit.HandleError(c, err) {
		return
	}

	writer, ok := startCSVResponse(c, "sequence-instances.csv", instanceHeaders())
	if !ok {
		return
	}
	for _, row := range items {
		if err := writer.Write(row.CSV(location)); err != nil {
			return
		}
	}
	writer.Flush()
}

// HandleExportSteps streams delivery records due in the requested window.
// GET /api/v1/ops/exports/steps.csv
func (h *Handler) HandleExportSteps(c *gin.Context) {
	filter, location, ok := parseFilter(c)
	if !ok {
		return
	}

	items, err := h.repo.ListSteps(c.Request.Context(), filter)
	if httpkit.HandleError(c, err) {
		return
	}

	writer, ok := startCSVResponse(c, "sequence-steps.csv", stepHeaders())
	if !ok {
		return
	}
	for _, row := range items {
		if err := writer.Write(row.CSV(location)); err != nil {
			return
		}
	}
	writer.Flush()
}

// ---- Rows ----

func (r InstanceRow) CSV(loc *time.Location) []string {
	return []string{
		r.ID.String(),
		r.RecipientKey,
		r.Email,
		r.DisplayName,
		r.OrgName,
		r.SequenceType,
		r.Segment,
		r.Mode,
		r.Status,
		formatExportTime(r.AnchorAt, loc),
		formatExportTime(r.CreatedAt, loc),
		strconv.Itoa(r.SentSteps),
		strconv.Itoa(r.FailedSteps),
		strconv.Itoa(r.OpenSteps),
	}
}

func instanceHeaders() []string {
	return []string{
		"Instance ID",
		"Recipient Key",
		"Email",
		"Display Name",
		"Org Name",
		"Sequence Type",
		"Segment",
		"Mode",
		"Status",
		"Anchor Time",
		"Created Time",
		"Sent Steps",
		"Failed Steps",
		"Open Steps",
	}
}

func (r StepRow) CSV(loc *time.Location) []string {
	sentAt := ""
	if r.SentAt != nil {
		sentAt = formatExportTime(*r.SentAt, loc)
	}
	lastError := ""
	if r.LastError != nil {
		lastError = *r.LastError
	}
	return []string{
		r.InstanceID.String(),
		r.RecipientKey,
		r.SequenceType,
		r.Segment,
		strconv.Itoa(r.Position),
		r.TemplateRef,
		r.Status,
		formatExportTime(r.FireAt, loc),
		strconv.Itoa(r.Attempts),
		sentAt,
		r.SentBy,
		r.MessageID,
		lastError,
	}
}

func stepHeaders() []string {
	return []string{
		"Instance ID",
		"Recipient Key",
		"Sequence Type",
		"Segment",
		"Position",
		"Template",
		"Status",
		"Fire Time",
		"Attempts",
		"Sent Time",
		"Sent By",
		"Message ID",
		"Last Error",
	}
}

// ---- Helpers ----

func parseFilter(c *gin.Context) (Filter, *time.Location, bool) {
	from, to, err := parseDateRange(c)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid date range", err.Error())
		return Filter{}, nil, false
	}

	tzName := strings.TrimSpace(c.DefaultQuery("timezone", defaultTimezone))
	location, err := time.LoadLocation(tzName)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid timezone", nil)
		return Filter{}, nil, false
	}

	return Filter{
		From:         from,
		To:           to,
		SequenceType: strings.TrimSpace(c.Query("sequenceType")),
		Segment:      strings.TrimSpace(c.Query("segment")),
		Status:       strings.TrimSpace(c.Query("status")),
		Limit:        parseLimit(c, defaultLimit, maxLimit),
	}, location, true
}

func parseDateRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -90)
	to := now

	if raw := strings.TrimSpace(c.Query("fromDate")); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if raw := strings.TrimSpace(c.Query("toDate")); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errToBeforeFrom
	}
	return from, to, nil
}

func parseLimit(c *gin.Context, fallback int, max int) int {
	limit := fallback
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	if limit > max {
		return max
	}
	if limit < 1 {
		return fallback
	}
	return limit
}

func startCSVResponse(c *gin.Context, filename string, headers []string) (*csv.Writer, bool) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename="+filename)

	writer := csv.NewWriter(c.Writer)
	if err := writer.Write(headers); err != nil {
		return nil, false
	}
	return writer, true
}

func formatExportTime(value time.Time, loc *time.Location) string {
	return value.In(loc).Format(exportLayout)
}
