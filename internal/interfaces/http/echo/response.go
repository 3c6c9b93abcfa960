package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	app "github.com/mohammadpnp/account-reconcile/internal/application/reconcile"
	infrafile "github.com/mohammadpnp/account-reconcile/internal/infrastructure/file"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Data  any        `json:"data,omitempty"`
	Error *errorBody `json:"error,omitempty"`
}

func respondError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, apiResponse{Error: &errorBody{Code: code, Message: message}})
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{app.ErrInvalidCSV, http.StatusBadRequest, "invalid_csv"},
	{app.ErrConfirmationRequired, http.StatusBadRequest, "confirmation_required"},
	{app.ErrInvalidReportFormat, http.StatusBadRequest, "invalid_format"},
	{infrafile.ErrTooLarge, http.StatusRequestEntityTooLarge, "too_large"},
	{app.ErrTargetNotFound, http.StatusNotFound, "target_not_found"},
	{app.ErrBatchNotFound, http.StatusNotFound, "batch_not_found"},
	{app.ErrPlanMismatch, http.StatusConflict, "plan_mismatch"},
	{app.ErrBatchNotApplicable, http.StatusConflict, "batch_not_applicable"},
	{app.ErrLedgerIntegrity, http.StatusConflict, "ledger_integrity"},
	{app.ErrTargetLock, http.StatusConflict, "target_locked"},
	{app.ErrTargetChanged, http.StatusConflict, "target_changed"},
	{app.ErrBatchNotStranded, http.StatusConflict, "batch_not_stranded"},
	{app.ErrPreviewHasErrors, http.StatusUnprocessableEntity, "preview_has_errors"},
	{app.ErrFetchRemoteState, http.StatusBadGateway, "remote_unavailable"},
}

// writeUseCaseError maps use case errors onto statuses. Client errors carry the full
// message; server errors are logged and answered with the sentinel text only.
func writeUseCaseError(c echo.Context, log logrus.FieldLogger, err error, fallback string) error {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		if m.status >= http.StatusInternalServerError {
			log.WithError(err).WithField("path", c.Path()).Warn("upstream failure")
			return respondError(c, m.status, m.code, m.target.Error())
		}
		return respondError(c, m.status, m.code, err.Error())
	}

	log.WithError(err).WithField("path", c.Path()).Error("request failed")
	return respondError(c, http.StatusInternalServerError, "internal_error", fallback)
}
