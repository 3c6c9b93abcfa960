package echo

import e "github.com/labstack/echo/v4"

func RegisterRoutes(server *e.Echo, handler *ReconcileHandler) {
	if server.Validator == nil {
		server.Validator = NewRequestValidator()
	}

	targets := server.Group("/api/v1/targets/:target_id")
	targets.POST("/previews", handler.Preview)
	targets.GET("/batches/:batch_id", handler.GetBatch)
	targets.GET("/batches/:batch_id/report", handler.Report)
	targets.POST("/batches/:batch_id/apply", handler.Apply)
	targets.POST("/batches/:batch_id/recover", handler.Recover)
	targets.GET("/users/export", handler.ExportUsers)

	server.GET("/api/v1/audit", handler.Audit)
}
