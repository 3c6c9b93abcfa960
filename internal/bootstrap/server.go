package bootstrap

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	httpecho "github.com/mohammadpnp/account-reconcile/internal/interfaces/http/echo"
)

func NewHTTPServer(a *App) *echo.Echo {
	server := echo.New()
	server.HideBanner = true
	server.HidePort = true

	server.Use(middleware.Recover())
	server.Use(middleware.RequestID())
	// Multipart framing adds a little on top of the CSV itself.
	server.Use(middleware.BodyLimit(strconv.FormatInt(a.Config.MaxUploadBytes+64*1024, 10)))
	server.Use(requestLogger(a.Log))

	handler := httpecho.NewReconcileHandler(a.UseCases, httpecho.HandlerOptions{
		ActorHeader:    a.Config.ActorHeader,
		MaxUploadBytes: a.Config.MaxUploadBytes,
	}, a.Log)
	httpecho.RegisterRoutes(server, handler)

	server.GET(a.Config.MetricsPath, echo.WrapHandler(promhttp.Handler()))
	server.GET("/healthz", func(c echo.Context) error {
		if err := a.Pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return server
}

func requestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"request_id": v.RequestID,
			}).Info("request")
			return nil
		},
	})
}
