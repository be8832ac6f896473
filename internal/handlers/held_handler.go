package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/imrishuroy/go-pos-cartflow/internal/cart"
	"github.com/imrishuroy/go-pos-cartflow/internal/heldsales"
	"github.com/imrishuroy/go-pos-cartflow/internal/session"
	"go.uber.org/zap"
)

// holdSale parks the session cart in the held sale store and clears it.
func (h *Handler) holdSale(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	st := sess.State()
	if st.IsEmpty() {
		c.JSON(http.StatusConflict, gin.H{"error": "empty_cart"})
		return
	}
	if st.Processing {
		c.JSON(http.StatusConflict, gin.H{"error": "checkout_in_progress"})
		return
	}

	holdID := st.HoldID
	if holdID == "" {
		holdID = uuid.NewString()
	}
	held := cart.Hold(st, holdID, sess.StoreID, sess.CashierID, h.nowFunc().UTC())
	if err := h.held.Save(c.Request.Context(), held); err != nil {
		h.logger.Error("hold sale failed", zap.String("session_id", sess.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hold_failed", "detail": err.Error()})
		return
	}
	if _, err := sess.DispatchIfIdle(cart.ClearCart{}); errors.Is(err, session.ErrBusy) {
		// a checkout took the cart after it was parked; drop the parked copy
		if dErr := h.held.Delete(c.Request.Context(), sess.StoreID, holdID); dErr != nil {
			h.logger.Warn("drop held sale failed", zap.String("hold_id", holdID), zap.Error(dErr))
		}
		c.JSON(http.StatusConflict, gin.H{"error": "checkout_in_progress"})
		return
	}

	c.JSON(http.StatusCreated, held)
}

func (h *Handler) listHeld(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	sales, err := h.held.List(c.Request.Context(), sess.StoreID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_held_failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"held_sales": sales})
}

// resumeHeld replaces the session cart with a held sale and removes it from
// the store. Whatever was in the cart is overwritten, unless a checkout is
// running, in which case nothing changes.
func (h *Handler) resumeHeld(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	holdID := c.Param("holdId")

	held, err := h.held.Get(ctx, sess.StoreID, holdID)
	if errors.Is(err, heldsales.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "held_sale_not_found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resume_failed", "detail": err.Error()})
		return
	}

	st, err := sess.ReplaceIfIdle(cart.Restore(*held))
	if errors.Is(err, session.ErrBusy) {
		c.JSON(http.StatusConflict, gin.H{"error": "checkout_in_progress"})
		return
	}
	if err := h.held.Delete(ctx, sess.StoreID, holdID); err != nil && !errors.Is(err, heldsales.ErrNotFound) {
		h.logger.Warn("remove resumed held sale failed", zap.String("hold_id", holdID), zap.Error(err))
	}
	c.JSON(http.StatusOK, newSessionResponse(sess, st))
}

func (h *Handler) discardHeld(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	err := h.held.Delete(c.Request.Context(), sess.StoreID, c.Param("holdId"))
	if errors.Is(err, heldsales.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "held_sale_not_found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "discard_failed", "detail": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
