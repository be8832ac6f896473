package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-pos-cartflow/internal/cart"
	"github.com/imrishuroy/go-pos-cartflow/internal/session"
	"github.com/imrishuroy/go-pos-cartflow/internal/validation"
	"go.uber.org/zap"
)

type sessionResponse struct {
	ID        string     `json:"id"`
	CashierID string     `json:"cashier_id"`
	StoreID   string     `json:"store_id"`
	TenantID  string     `json:"tenant_id,omitempty"`
	ItemCount int        `json:"item_count"`
	Cart      cart.State `json:"cart"`
}

func newSessionResponse(s *session.Session, st cart.State) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		CashierID: s.CashierID,
		StoreID:   s.StoreID,
		TenantID:  s.TenantID,
		ItemCount: st.ItemCount(),
		Cart:      st,
	}
}

func (h *Handler) createSession(c *gin.Context) {
	var req validation.CreateSessionRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	rate := h.defaultTaxRate
	if req.TaxRate != nil {
		rate = *req.TaxRate
	}
	sess := h.sessions.Create(req.CashierID, req.StoreID, req.TenantID, rate)
	h.logger.Info("session opened",
		zap.String("session_id", sess.ID),
		zap.String("store_id", sess.StoreID),
		zap.String("cashier_id", sess.CashierID),
	)

	c.Header("Location", "/sessions/"+sess.ID)
	c.JSON(http.StatusCreated, newSessionResponse(sess, sess.State()))
}

func (h *Handler) closeSession(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if !sess.State().IsEmpty() {
		c.JSON(http.StatusConflict, gin.H{"error": "cart_not_empty"})
		return
	}
	// Get succeeded, so ErrNotFound here means a concurrent close won.
	_ = h.sessions.Delete(sess.ID)
	c.Status(http.StatusNoContent)
}

func (h *Handler) getCart(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(sess, sess.State()))
}

// dispatch applies a to the session cart and writes the new state. Edits
// are refused while a checkout is running.
func (h *Handler) dispatch(c *gin.Context, sess *session.Session, a cart.Action) {
	st, err := sess.DispatchIfIdle(a)
	if errors.Is(err, session.ErrBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": "checkout_in_progress"})
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(sess, st))
}

// bindAndDispatch resolves the session, binds req and dispatches the action
// built from it.
func bindAndDispatch[T any](h *Handler, c *gin.Context, build func(T) cart.Action) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req T
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}
	h.dispatch(c, sess, build(req))
}

func (h *Handler) clearCart(c *gin.Context) {
	if sess, ok := h.session(c); ok {
		h.dispatch(c, sess, cart.ClearCart{})
	}
}

func (h *Handler) addLine(c *gin.Context) {
	bindAndDispatch(h, c, func(req validation.AddLineRequest) cart.Action {
		return req.Action()
	})
}

func (h *Handler) updateLineQuantity(c *gin.Context) {
	productID := c.Param("productId")
	bindAndDispatch(h, c, func(req validation.UpdateQuantityRequest) cart.Action {
		return cart.UpdateLineQuantity{ProductID: productID, Quantity: *req.Quantity}
	})
}

func (h *Handler) removeLine(c *gin.Context) {
	if sess, ok := h.session(c); ok {
		h.dispatch(c, sess, cart.RemoveLine{ProductID: c.Param("productId")})
	}
}

func (h *Handler) setLineDiscount(c *gin.Context) {
	productID := c.Param("productId")
	bindAndDispatch(h, c, func(req validation.LineDiscountRequest) cart.Action {
		return cart.SetLineDiscount{ProductID: productID, Percent: *req.Percent}
	})
}

func (h *Handler) removeLineDiscount(c *gin.Context) {
	if sess, ok := h.session(c); ok {
		h.dispatch(c, sess, cart.RemoveLineDiscount{ProductID: c.Param("productId")})
	}
}

func (h *Handler) setLineNotes(c *gin.Context) {
	productID := c.Param("productId")
	bindAndDispatch(h, c, func(req validation.NotesRequest) cart.Action {
		return cart.SetLineNotes{ProductID: productID, Notes: req.Notes}
	})
}

func (h *Handler) setCartDiscount(c *gin.Context) {
	bindAndDispatch(h, c, func(req validation.CartDiscountRequest) cart.Action {
		return cart.SetCartDiscount{Type: cart.DiscountType(req.Type), Value: *req.Value}
	})
}

func (h *Handler) removeCartDiscount(c *gin.Context) {
	if sess, ok := h.session(c); ok {
		h.dispatch(c, sess, cart.RemoveCartDiscount{})
	}
}

func (h *Handler) setTaxRate(c *gin.Context) {
	bindAndDispatch(h, c, func(req validation.TaxRateRequest) cart.Action {
		return cart.SetTaxRate{Rate: *req.Rate}
	})
}

func (h *Handler) setCustomer(c *gin.Context) {
	bindAndDispatch(h, c, func(req validation.CustomerRequest) cart.Action {
		return cart.SetCustomer{ID: req.ID, Name: req.Name}
	})
}

func (h *Handler) removeCustomer(c *gin.Context) {
	if sess, ok := h.session(c); ok {
		h.dispatch(c, sess, cart.RemoveCustomer{})
	}
}

func (h *Handler) setNotes(c *gin.Context) {
	bindAndDispatch(h, c, func(req validation.NotesRequest) cart.Action {
		return cart.SetNotes{Notes: req.Notes}
	})
}
