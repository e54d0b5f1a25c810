package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prepworks/examgate-backend/internal/response"
	"github.com/prepworks/examgate-backend/internal/service"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// AdminResultHandler exposes the back-office view of attempt results.
type AdminResultHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
}

// NewAdminResultHandler creates a new AdminResultHandler.
func NewAdminResultHandler(attemptService *service.AttemptService, log zerolog.Logger) *AdminResultHandler {
	return &AdminResultHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "admin_result_handler").Logger(),
	}
}

// ListResults godoc
// GET /api/v1/admin/exams/:id/results?page=&per_page=
func (h *AdminResultHandler) ListResults(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	rows, total, err := h.attemptService.ListResults(c.Request.Context(), examID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	totalPages := int((total + int64(perPage) - 1) / int64(perPage))
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": rows}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: totalPages,
	})
}

// ExportResults godoc
// GET /api/v1/admin/exams/:id/results/export
// Streams an xlsx workbook of all attempts for the exam.
func (h *AdminResultHandler) ExportResults(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	rows, err := h.attemptService.ExportResults(c.Request.Context(), examID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Results"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Attempt ID", "User ID", "Name", "Email", "Score", "Started At", "Submitted At"}
	for i, hdr := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, hdr)
	}

	for i, row := range rows {
		values := []interface{}{
			row.AttemptID.String(),
			row.UserID,
			row.Name,
			row.Email,
			nil,
			row.StartedAt.Format("2006-01-02 15:04:05"),
			nil,
		}
		if row.Score != nil {
			values[4] = *row.Score
		}
		if row.SubmittedAt != nil {
			values[6] = row.SubmittedAt.Format("2006-01-02 15:04:05")
		}
		for j, v := range values {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	filename := fmt.Sprintf("exam-%s-results.xlsx", examID)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if err := f.Write(c.Writer); err != nil {
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("xlsx write failed")
	}
}
