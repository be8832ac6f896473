package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-pos-cartflow/internal/aws"
	"github.com/imrishuroy/go-pos-cartflow/internal/checkout"
	"github.com/imrishuroy/go-pos-cartflow/internal/idempotency"
	"github.com/imrishuroy/go-pos-cartflow/internal/logger"
	"github.com/imrishuroy/go-pos-cartflow/internal/transactions"
	"github.com/imrishuroy/go-pos-cartflow/internal/validation"
	"go.uber.org/zap"
)

const settleTimeout = 5 * time.Second

type checkoutResponse struct {
	Transaction checkout.Transaction `json:"transaction"`
	Persisted   bool                 `json:"persisted"`
	Warning     string               `json:"warning,omitempty"`
}

// checkoutSession finalizes the session cart. The Idempotency-Key header guards
// against double submission: a repeated key replays the stored response.
func (h *Handler) checkoutSession(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(c, h.logger)

	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req validation.CheckoutRequest
	if err := validation.BindAndValidate(c, &req, h.validate); err != nil {
		return
	}

	idempKey := c.GetHeader("Idempotency-Key")
	if idempKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
		return
	}

	created, err := h.idempotency.CreateIfNotExists(ctx, idempKey, sess.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "detail": err.Error()})
		return
	}
	if !created && !h.replayOrReclaim(c, idempKey, sess.ID) {
		return
	}

	meta := checkout.Meta{CashierID: sess.CashierID, TenantID: sess.TenantID, StoreID: sess.StoreID}
	tx, pending, err := h.checkout.Checkout(sess, req.Outcome(), meta, idempKey)
	if err != nil {
		status, code := checkoutErrorStatus(err)
		// FAILED keys can be reclaimed, so the client may retry with the same key
		if mErr := h.idempotency.MarkFailed(ctx, idempKey, code); mErr != nil {
			log.Warn("mark idempotency failed", zap.String("idempotency_key", idempKey), zap.Error(mErr))
		}
		c.JSON(status, gin.H{"error": code, "detail": err.Error()})
		return
	}

	saved, err := pending.Wait(ctx)
	if err != nil && !errors.Is(err, checkout.ErrPersistenceFailed) {
		// request context ended; the save keeps running on its own deadline
		log.Warn("client left before save finished", zap.String("transaction_id", tx.ID), zap.Error(err))
		go h.settleWhenSaved(idempKey, sess.StoreID, pending, log)
		return
	}

	persisted := err == nil
	body, err := h.settle(ctx, log, idempKey, sess.StoreID, saved, err)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encode_failed", "detail": err.Error()})
		return
	}
	if persisted {
		c.Header("Location", fmt.Sprintf("/transactions/%s", saved.ID))
	}
	c.Data(http.StatusCreated, "application/json", body)
}

// settle builds the checkout response for a finished save and records the
// outcome on the idempotency key: DONE with the response on success, FAILED
// otherwise.
func (h *Handler) settle(ctx context.Context, log *zap.Logger, key, storeID string, saved checkout.Transaction, saveErr error) ([]byte, error) {
	resp := checkoutResponse{Transaction: saved, Persisted: saveErr == nil}
	if saveErr != nil {
		resp.Warning = "transaction completed but not saved; keep the receipt"
		h.recordCount(ctx, aws.MetricCheckoutSaveFailures, map[string]string{"StoreId": storeID})
	}

	body, err := json.Marshal(resp)
	if err != nil {
		saveErr = fmt.Errorf("encode response: %w", err)
	}
	if saveErr != nil {
		if mErr := h.idempotency.MarkFailed(ctx, key, fmt.Sprintf("save_failed: %v", saveErr)); mErr != nil {
			log.Warn("mark idempotency failed", zap.String("idempotency_key", key), zap.Error(mErr))
		}
		return body, err
	}

	if dErr := h.idempotency.MarkDone(ctx, key, saved.ID, idempotency.Response{Status: http.StatusCreated, Body: body}); dErr != nil {
		log.Warn("mark idempotency done failed", zap.String("idempotency_key", key), zap.Error(dErr))
	}
	return body, nil
}

// settleWhenSaved finishes the idempotency record for a checkout whose
// client went away, so a retry replays the result instead of getting 202
// until the record expires.
func (h *Handler) settleWhenSaved(key, storeID string, pending *checkout.PendingSave, log *zap.Logger) {
	<-pending.Done()
	saved, saveErr := pending.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	if _, err := h.settle(ctx, log, key, storeID, saved, saveErr); err != nil {
		log.Error("settle checkout failed", zap.String("idempotency_key", key), zap.Error(err))
	}
}

// replayOrReclaim handles a key that already has a record. It returns true
// when the checkout should go ahead, having reclaimed a FAILED key. A key
// claimed by another session is never replayed.
func (h *Handler) replayOrReclaim(c *gin.Context, key, sessionID string) bool {
	ctx := c.Request.Context()
	rec, err := h.idempotency.Get(ctx, key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "detail": err.Error()})
		return false
	}
	if rec == nil {
		// expired between the conditional put and the read
		c.JSON(http.StatusConflict, gin.H{"error": "idempotency_record_missing"})
		return false
	}
	if rec.SessionID != sessionID {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency_key_reused"})
		return false
	}

	switch rec.Status {
	case idempotency.StatusDone:
		if resp, ok := rec.Replay(); ok {
			c.Data(resp.Status, "application/json", resp.Body)
			return false
		}
		c.JSON(http.StatusOK, gin.H{"transaction_id": rec.TransactionID})
		return false
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "transaction_id": rec.TransactionID})
		return false
	case idempotency.StatusFailed:
		reclaimed, err := h.idempotency.Reclaim(ctx, key)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "detail": err.Error()})
			return false
		}
		if !reclaimed {
			c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress"})
			return false
		}
		return true
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
		return false
	}
}

func checkoutErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, checkout.ErrCheckoutInProgress):
		return http.StatusConflict, "checkout_in_progress"
	case errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusUnprocessableEntity, "empty_cart"
	case errors.Is(err, checkout.ErrInsufficientPayment):
		return http.StatusUnprocessableEntity, "insufficient_payment"
	case errors.Is(err, checkout.ErrUnknownPaymentMethod):
		return http.StatusBadRequest, "unknown_payment_method"
	default:
		return http.StatusInternalServerError, "checkout_failed"
	}
}

func (h *Handler) getTransaction(c *gin.Context) {
	tx, err := h.transactions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get_transaction_failed", "detail": err.Error()})
		return
	}
	if tx == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction_not_found"})
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *Handler) refundTransaction(c *gin.Context) {
	h.transition(c, checkout.StatusRefunded, aws.MetricTransactionsRefunded)
}

func (h *Handler) cancelTransaction(c *gin.Context) {
	h.transition(c, checkout.StatusCancelled, aws.MetricTransactionsCancelled)
}

// transition moves a completed transaction to newStatus. Only completed
// transactions can be refunded or cancelled.
func (h *Handler) transition(c *gin.Context, newStatus, metric string) {
	ctx := c.Request.Context()
	id := c.Param("id")

	tx, err := h.transactions.Get(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get_transaction_failed", "detail": err.Error()})
		return
	}
	if tx == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction_not_found"})
		return
	}

	err = h.transactions.UpdateStatus(ctx, id, checkout.StatusCompleted, newStatus)
	if errors.Is(err, transactions.ErrStatusMismatch) {
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_status_transition", "status": tx.Status})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update_status_failed", "detail": err.Error()})
		return
	}

	h.logger.Info("transaction status changed",
		zap.String("transaction_id", id),
		zap.String("status", newStatus),
	)
	h.recordCount(ctx, metric, map[string]string{"StoreId": tx.StoreID})

	tx.Status = newStatus
	c.JSON(http.StatusOK, tx)
}
