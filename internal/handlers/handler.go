package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/imrishuroy/go-pos-cartflow/internal/cart"
	"github.com/imrishuroy/go-pos-cartflow/internal/checkout"
	"github.com/imrishuroy/go-pos-cartflow/internal/idempotency"
	"github.com/imrishuroy/go-pos-cartflow/internal/session"
	"github.com/imrishuroy/go-pos-cartflow/internal/validation"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransactionStore is satisfied by transactions.Store.
type TransactionStore interface {
	Get(ctx context.Context, transactionID string) (*checkout.Transaction, error)
	UpdateStatus(ctx context.Context, transactionID, expectedStatus, newStatus string) error
}

// IdempotencyStore is satisfied by idempotency.Store.
type IdempotencyStore interface {
	CreateIfNotExists(ctx context.Context, key, sessionID string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	Reclaim(ctx context.Context, key string) (bool, error)
	MarkDone(ctx context.Context, key, transactionID string, resp idempotency.Response) error
	MarkFailed(ctx context.Context, key, note string) error
}

// HeldSaleStore is satisfied by heldsales.Store.
type HeldSaleStore interface {
	Save(ctx context.Context, h cart.HeldSale) error
	Get(ctx context.Context, storeID, holdID string) (*cart.HeldSale, error)
	List(ctx context.Context, storeID string) ([]cart.HeldSale, error)
	Delete(ctx context.Context, storeID, holdID string) error
}

// Metrics is satisfied by aws.MetricsClient.
type Metrics interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
}

// HandlerConfig groups dependencies for the API handlers.
type HandlerConfig struct {
	Sessions       *session.Registry
	Checkout       *checkout.Service
	Transactions   TransactionStore
	Idempotency    IdempotencyStore
	HeldSales      HeldSaleStore
	Metrics        Metrics
	DefaultTaxRate decimal.Decimal
	Logger         *zap.Logger
}

type Handler struct {
	sessions       *session.Registry
	checkout       *checkout.Service
	transactions   TransactionStore
	idempotency    IdempotencyStore
	held           HeldSaleStore
	metrics        Metrics
	defaultTaxRate decimal.Decimal
	validate       *validatorv10.Validate
	logger         *zap.Logger
	nowFunc        func() time.Time
}

func New(cfg HandlerConfig) *Handler {
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return &Handler{
		sessions:       cfg.Sessions,
		checkout:       cfg.Checkout,
		transactions:   cfg.Transactions,
		idempotency:    cfg.Idempotency,
		held:           cfg.HeldSales,
		metrics:        cfg.Metrics,
		defaultTaxRate: cfg.DefaultTaxRate,
		validate:       validation.New(),
		logger:         l,
		nowFunc:        time.Now,
	}
}

// RegisterRoutes registers the session, cart, held sale and transaction routes.
func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.POST("/sessions", h.createSession)

	s := r.Group("/sessions/:id")
	s.DELETE("", h.closeSession)
	s.GET("/cart", h.getCart)
	s.DELETE("/cart", h.clearCart)
	s.POST("/lines", h.addLine)
	s.PATCH("/lines/:productId", h.updateLineQuantity)
	s.DELETE("/lines/:productId", h.removeLine)
	s.PUT("/lines/:productId/discount", h.setLineDiscount)
	s.DELETE("/lines/:productId/discount", h.removeLineDiscount)
	s.PUT("/lines/:productId/notes", h.setLineNotes)
	s.PUT("/discount", h.setCartDiscount)
	s.DELETE("/discount", h.removeCartDiscount)
	s.PUT("/tax", h.setTaxRate)
	s.PUT("/customer", h.setCustomer)
	s.DELETE("/customer", h.removeCustomer)
	s.PUT("/notes", h.setNotes)

	s.POST("/hold", h.holdSale)
	s.GET("/held", h.listHeld)
	s.POST("/held/:holdId/resume", h.resumeHeld)
	s.DELETE("/held/:holdId", h.discardHeld)

	s.POST("/checkout", h.checkoutSession)

	t := r.Group("/transactions/:id")
	t.GET("", h.getTransaction)
	t.POST("/refund", h.refundTransaction)
	t.POST("/cancel", h.cancelTransaction)
}

// session resolves :id or writes a 404.
func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	sess, err := h.sessions.Get(c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session_lookup_failed", "detail": err.Error()})
		return nil, false
	}
	return sess, true
}

func (h *Handler) recordCount(ctx context.Context, metric string, dims map[string]string) {
	if h.metrics == nil {
		return
	}
	if err := h.metrics.RecordCount(ctx, metric, dims); err != nil {
		h.logger.Warn("record metric failed", zap.String("metric", metric), zap.Error(err))
	}
}
