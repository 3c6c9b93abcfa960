package echo

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	app "github.com/mohammadpnp/account-reconcile/internal/application/reconcile"
	domain "github.com/mohammadpnp/account-reconcile/internal/domain/reconcile"
	infrafile "github.com/mohammadpnp/account-reconcile/internal/infrastructure/file"
)

type ReconcileUseCases struct {
	Preview     app.PreviewBatch
	GetBatch    app.GetBatch
	Report      app.ExportBatchReport
	Apply       app.ApplyBatch
	Recover     app.RecoverBatch
	ExportUsers app.ExportTargetUsers
	Audit       app.ListAuditHistory
}

type HandlerOptions struct {
	ActorHeader    string
	MaxUploadBytes int64
}

type ReconcileHandler struct {
	uc   ReconcileUseCases
	opts HandlerOptions
	log  logrus.FieldLogger
}

type applyRequest struct {
	Confirm       bool   `json:"confirm"`
	ConfirmText   string `json:"confirm_text"`
	PreviewSHA256 string `json:"preview_sha256" validate:"required,len=64,hexadecimal"`
}

func NewReconcileHandler(uc ReconcileUseCases, opts HandlerOptions, log logrus.FieldLogger) *ReconcileHandler {
	if opts.ActorHeader == "" {
		opts.ActorHeader = "X-Actor"
	}
	return &ReconcileHandler{uc: uc, opts: opts, log: log}
}

func (h *ReconcileHandler) actor(c echo.Context) string {
	return strings.TrimSpace(c.Request().Header.Get(h.opts.ActorHeader))
}

// readCSV accepts either a multipart upload in field "file" or the raw request body.
func (h *ReconcileHandler) readCSV(c echo.Context) ([]byte, error) {
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(contentType, echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("%w: missing multipart field \"file\"", app.ErrInvalidCSV)
		}
		if h.opts.MaxUploadBytes > 0 && fh.Size > h.opts.MaxUploadBytes {
			return nil, fmt.Errorf("%w: %s is larger than %d bytes", infrafile.ErrTooLarge, fh.Filename, h.opts.MaxUploadBytes)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload: %w", err)
		}
		defer f.Close()
		return infrafile.ReadLimited(f, h.opts.MaxUploadBytes, fh.Filename)
	}
	return infrafile.ReadLimited(c.Request().Body, h.opts.MaxUploadBytes, "request body")
}

func (h *ReconcileHandler) Preview(c echo.Context) error {
	raw, err := h.readCSV(c)
	if err != nil {
		return writeUseCaseError(c, h.log, err, "failed to read upload")
	}

	out, err := h.uc.Preview.Execute(c.Request().Context(), app.PreviewBatchInput{
		TargetID: c.Param("target_id"),
		Actor:    h.actor(c),
		CSV:      raw,
	})
	if err != nil {
		return writeUseCaseError(c, h.log, err, "failed to build preview")
	}

	return c.JSON(http.StatusCreated, apiResponse{Data: out})
}

func (h *ReconcileHandler) GetBatch(c echo.Context) error {
	out, err := h.uc.GetBatch.Execute(c.Request().Context(), app.GetBatchInput{
		TargetID: c.Param("target_id"),
		BatchID:  c.Param("batch_id"),
	})
	if err != nil {
		return writeUseCaseError(c, h.log, err, "failed to get batch")
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

func (h *ReconcileHandler) Report(c echo.Context) error {
	out, err := h.uc.Report.Execute(c.Request().Context(), app.ExportBatchReportInput{
		TargetID: c.Param("target_id"),
		BatchID:  c.Param("batch_id"),
		Format:   c.QueryParam("format"),
	})
	if err != nil {
		return writeUseCaseError(c, h.log, err, "failed to build report")
	}
	return attachment(c, out)
}

func (h *ReconcileHandler) Apply(c echo.Context) error {
	var req applyRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "bad_request", "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "bad_request", "preview_sha256 must be a 64 character hex digest")
	}

	out, err := h.uc.Apply.Execute(c.Request().Context(), app.ApplyBatchInput{
		TargetID:      c.Param("target_id"),
		BatchID:       c.Param("batch_id"),
		Actor:         h.actor(c),
		PreviewSHA256: strings.ToLower(req.PreviewSHA256),
		Confirm:       req.Confirm,
		ConfirmText:   req.ConfirmText,
	})
	if err != nil {
		return writeUseCaseError(c, h.log, err, "apply failed")
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

func (h *ReconcileHandler) Recover(c echo.Context) error {
	out, err := h.uc.Recover.Execute(c.Request().Context(), app.RecoverBatchInput{
		TargetID: c.Param("target_id"),
		BatchID:  c.Param("batch_id"),
		Actor:    h.actor(c),
	})
	if err != nil {
		return writeUseCaseError(c, h.log, err, "failed to recover batch")
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

func (h *ReconcileHandler) ExportUsers(c echo.Context) error {
	out, err := h.uc.ExportUsers.Execute(c.Request().Context(), app.ExportTargetUsersInput{
		TargetID: c.Param("target_id"),
	})
	if err != nil {
		return writeUseCaseError(c, h.log, err, "failed to export users")
	}
	return attachment(c, out)
}

func (h *ReconcileHandler) Audit(c echo.Context) error {
	filter := domain.AuditFilter{
		TargetID:  c.QueryParam("target"),
		BatchID:   c.QueryParam("batch_id"),
		Actor:     c.QueryParam("actor"),
		Operation: c.QueryParam("operation"),
		Email:     c.QueryParam("email"),
	}
	if raw := c.QueryParam("success"); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			return respondError(c, http.StatusBadRequest, "bad_request", "success must be true or false")
		}
		filter.Success = &success
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return respondError(c, http.StatusBadRequest, "bad_request", "limit must be an integer")
		}
		filter.Limit = limit
	}

	out, err := h.uc.Audit.Execute(c.Request().Context(), filter)
	if err != nil {
		return writeUseCaseError(c, h.log, err, "failed to list audit history")
	}
	for i := range out.Entries {
		out.Entries[i].Request = redactMap(out.Entries[i].Request)
		out.Entries[i].Response = redactMap(out.Entries[i].Response)
	}
	return c.JSON(http.StatusOK, apiResponse{Data: out})
}

func attachment(c echo.Context, out app.ExportOutput) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", out.Filename))
	return c.Blob(http.StatusOK, out.ContentType, out.Content)
}
