// Package http exposes the flash-sale services over a JSON HTTP API.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Handlers bundles the services behind each route.
type Handlers struct {
	Products ProductReader
	Holds    HoldReserver
	Sweeper  HoldSweeper
	Orders   OrderCreator
	Payments PaymentSettler
	Pending  PendingReconciler
}

type RouterConfig struct {
	AllowedOrigins []string
	Logger         *zap.Logger
	// Metrics is served on GET /metrics when set.
	Metrics http.Handler
}

func NewRouter(cfg RouterConfig, h Handlers) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(RequestLogger(cfg.Logger))
	if corsMiddleware := CORS(cfg.AllowedOrigins); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}
	router.NoRoute(NotFoundHandler)
	router.NoMethod(MethodNotAllowedHandler)

	router.GET("/health", HealthHandler)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	api := router.Group("/api")
	api.GET("/products/:id", HandleGetProduct(h.Products))
	api.POST("/holds", HandleCreateHold(h.Holds))
	api.POST("/holds/expire", HandleExpireHolds(h.Sweeper))
	api.POST("/orders", HandleCreateOrder(h.Orders))
	api.POST("/payments/webhook", HandlePaymentWebhook(h.Payments))
	api.POST("/payments/process-pending", HandleProcessPending(h.Pending))

	return router
}

type dataResponse struct {
	Data any `json:"data"`
}

// decodeJSON strictly decodes the request body into dst and writes a 400 on
// failure.
func decodeJSON(c *gin.Context, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return false
	}
	return true
}
