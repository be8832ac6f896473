package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-pos-cartflow/internal/cart"
	"github.com/imrishuroy/go-pos-cartflow/internal/checkout"
	"github.com/imrishuroy/go-pos-cartflow/internal/heldsales"
	"github.com/imrishuroy/go-pos-cartflow/internal/idempotency"
	"github.com/imrishuroy/go-pos-cartflow/internal/session"
	"github.com/imrishuroy/go-pos-cartflow/internal/transactions"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memTransactions is an in-memory TransactionStore that also acts as the
// checkout Saver.
type memTransactions struct {
	mu      sync.Mutex
	txs     map[string]checkout.Transaction
	saveErr error
	// block, when set, holds Save until it is closed
	block chan struct{}
}

func newMemTransactions() *memTransactions {
	return &memTransactions{txs: map[string]checkout.Transaction{}}
}

func (m *memTransactions) Save(_ context.Context, tx checkout.Transaction, _ string) (checkout.Transaction, error) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return checkout.Transaction{}, m.saveErr
	}
	m.txs[tx.ID] = tx
	return tx, nil
}

func (m *memTransactions) Get(_ context.Context, id string) (*checkout.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil, nil
	}
	return &tx, nil
}

func (m *memTransactions) UpdateStatus(_ context.Context, id, expected, newStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok || tx.Status != expected {
		return transactions.ErrStatusMismatch
	}
	tx.Status = newStatus
	m.txs[id] = tx
	return nil
}

// memIdempotency mirrors idempotency.Store semantics in memory.
type memIdempotency struct {
	mu   sync.Mutex
	recs map[string]*idempotency.Record
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{recs: map[string]*idempotency.Record{}}
}

func (m *memIdempotency) CreateIfNotExists(_ context.Context, key, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[key]; ok {
		return false, nil
	}
	m.recs[key] = &idempotency.Record{Key: key, SessionID: sessionID, Status: idempotency.StatusInProgress}
	return true, nil
}

func (m *memIdempotency) Get(_ context.Context, key string) (*idempotency.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *memIdempotency) Reclaim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[key]
	if !ok || rec.Status != idempotency.StatusFailed {
		return false, nil
	}
	rec.Status = idempotency.StatusInProgress
	rec.Note = ""
	return true, nil
}

func (m *memIdempotency) MarkDone(_ context.Context, key, txID string, resp idempotency.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.recs[key]
	rec.Status = idempotency.StatusDone
	rec.TransactionID = txID
	rec.ReplayBody = string(resp.Body)
	rec.ReplayStatus = resp.Status
	return nil
}

func (m *memIdempotency) MarkFailed(_ context.Context, key, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.recs[key]
	rec.Status = idempotency.StatusFailed
	rec.Note = note
	return nil
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) RecordCount(_ context.Context, name string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[name]++
	return nil
}

type testServer struct {
	router   *gin.Engine
	sessions *session.Registry
	txs     *memTransactions
	idem    *memIdempotency
	metrics *countingMetrics
	redis   *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	sessions := session.NewRegistry()
	txs := newMemTransactions()
	idem := newMemIdempotency()
	metrics := &countingMetrics{}
	svc := checkout.NewService(checkout.NewAssembler(), txs, nil, time.Second, zap.NewNop())

	h := New(HandlerConfig{
		Sessions:       sessions,
		Checkout:       svc,
		Transactions:   txs,
		Idempotency:    idem,
		HeldSales:      heldsales.NewStore(rdb, time.Hour),
		Metrics:        metrics,
		DefaultTaxRate: decimal.NewFromInt(10),
	})
	r := gin.New()
	RegisterRoutes(r, h)

	return &testServer{router: r, sessions: sessions, txs: txs, idem: idem, metrics: metrics, redis: mr}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (s *testServer) openSession(t *testing.T) string {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/sessions", `{"cashier_id":"k1","store_id":"s1"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return body["id"].(string)
}

func cartOf(body map[string]interface{}) map[string]interface{} {
	return body["cart"].(map[string]interface{})
}

func totalsOf(body map[string]interface{}) map[string]interface{} {
	return cartOf(body)["totals"].(map[string]interface{})
}

func TestCartLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession(t)
	base := "/sessions/" + id

	w, body := s.do(t, http.MethodPost, base+"/lines", `{"product":{"id":"P1","name":"Widget","unit_price":"1000"},"quantity":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	// default tax 10% on 1000
	assert.Equal(t, "1100", totalsOf(body)["grand_total"])

	w, body = s.do(t, http.MethodPut, base+"/discount", `{"type":"percentage","value":10}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "990", totalsOf(body)["grand_total"])

	w, body = s.do(t, http.MethodPut, base+"/lines/P1/discount", `{"percent":50}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "500", totalsOf(body)["subtotal"])

	w, body = s.do(t, http.MethodDelete, base+"/lines/P1/discount", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1000", totalsOf(body)["subtotal"])

	w, body = s.do(t, http.MethodPatch, base+"/lines/P1", `{"quantity":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, body["item_count"])

	w, _ = s.do(t, http.MethodPut, base+"/customer", `{"id":"c1","name":"Ada"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, http.MethodPut, base+"/notes", `{"notes":"gift wrap"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w, body = s.do(t, http.MethodPut, base+"/lines/P1/notes", `{"notes":"blue"}`)
	require.Equal(t, http.StatusOK, w.Code)
	lines := cartOf(body)["lines"].([]interface{})
	assert.Equal(t, "blue", lines[0].(map[string]interface{})["notes"])

	w, body = s.do(t, http.MethodPatch, base+"/lines/P1", `{"quantity":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["item_count"])

	w, body = s.do(t, http.MethodDelete, base+"/cart", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", cartOf(body)["tax_rate"], "clear keeps the register default tax")
}

func TestCart_ValidationAndNotFound(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession(t)

	w, body := s.do(t, http.MethodPost, "/sessions/"+id+"/lines", `{"product":{"id":"P1","name":"x","unit_price":-5}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", body["error"])
	fields := body["fields"].(map[string]interface{})
	assert.Equal(t, "gte", fields["product.unit_price"])

	w, body = s.do(t, http.MethodPut, "/sessions/"+id+"/discount", `{"type":"bogo","value":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", body["error"])

	w, body = s.do(t, http.MethodGet, "/sessions/missing/cart", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "session_not_found", body["error"])
}

func TestCloseSession(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession(t)

	s.do(t, http.MethodPost, "/sessions/"+id+"/lines", `{"product":{"id":"P1","name":"Widget","unit_price":"1"}}`)
	w, _ := s.do(t, http.MethodDelete, "/sessions/"+id, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	s.do(t, http.MethodDelete, "/sessions/"+id+"/cart", "")
	w, _ = s.do(t, http.MethodDelete, "/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = s.do(t, http.MethodGet, "/sessions/"+id+"/cart", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHoldListResumeDiscard(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession(t)
	base := "/sessions/" + id

	s.do(t, http.MethodPost, base+"/lines", `{"product":{"id":"P1","name":"Widget","unit_price":"200"},"quantity":2}`)
	s.do(t, http.MethodPut, base+"/lines/P1/discount", `{"percent":25}`)
	s.do(t, http.MethodPut, base+"/tax", `{"rate":5}`)

	w, held := s.do(t, http.MethodPost, base+"/hold", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	holdID := held["hold_id"].(string)
	assert.Equal(t, "315", held["grand_total"])

	_, body := s.do(t, http.MethodGet, base+"/cart", "")
	assert.EqualValues(t, 0, body["item_count"])

	w, body = s.do(t, http.MethodGet, base+"/held", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["held_sales"], 1)

	w, body = s.do(t, http.MethodPost, base+"/held/"+holdID+"/resume", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "315", totalsOf(body)["grand_total"])
	assert.Equal(t, holdID, cartOf(body)["hold_id"])
	assert.False(t, s.redis.Exists("held:s1:"+holdID))

	w, _ = s.do(t, http.MethodPost, base+"/held/"+holdID+"/resume", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, held = s.do(t, http.MethodPost, base+"/hold", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, holdID, held["hold_id"], "re-holding a resumed sale keeps its hold id")

	w, _ = s.do(t, http.MethodDelete, base+"/held/"+holdID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = s.do(t, http.MethodDelete, base+"/held/"+holdID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHold_EmptyCart(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession(t)

	w, body := s.do(t, http.MethodPost, "/sessions/"+id+"/hold", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "empty_cart", body["error"])
}

func TestCheckout_SuccessAndReplay(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession(t)
	base := "/sessions/" + id
	s.do(t, http.MethodPost, base+"/lines", `{"product":{"id":"P1","name":"Widget","unit_price":"90"}}`)

	payload := `{"method":"cash","amount_paid":"100"}`
	w, body := s.do(t, http.MethodPost, base+"/checkout", payload, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, body["persisted"])
	tx := body["transaction"].(map[string]interface{})
	assert.Equal(t, "99", tx["grand_total"])
	assert.Equal(t, "1", tx["change"])
	assert.Equal(t, "s1", tx["store_id"])
	txID := tx["id"].(string)
	assert.Equal(t, "/transactions/"+txID, w.Header().Get("Location"))

	_, cartBody := s.do(t, http.MethodGet, base+"/cart", "")
	assert.EqualValues(t, 0, cartBody["item_count"])

	rec, _ := s.idem.Get(context.Background(), "k-1")
	assert.Equal(t, idempotency.StatusDone, rec.Status)
	assert.Equal(t, txID, rec.TransactionID)

	// replay returns the stored response without a second sale
	w2, body2 := s.do(t, http.MethodPost, base+"/checkout", payload, "Idempotency-Key", "k-1")
	assert.Equal(t, http.StatusCreated, w2.Code)
	assert.Equal(t, txID, body2["transaction"].(map[string]interface{})["id"])
	assert.Len(t, s.txs.txs, 1)

	w, body = s.do(t, http.MethodGet, "/transactions/"+txID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, checkout.StatusCompleted, body["status"])
}

func TestCheckout_RequiresIdempotencyKey(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession(t)

	w, body := s.do(t, http.MethodPost, "/sessions/"+id+"/checkout", `{"method":"card","card":{"last4":"4242"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "missing_idempotency_key", body["error"])
}

func TestCheckout_InsufficientThenRetrySameKey(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession(t)
	base := "/sessions/" + id
	s.do(t, http.MethodPost, base+"/lines", `{"product":{"id":"P1","name":"Widget","unit_price":"50"}}`)

	w, body := s.do(t, http.MethodPost, base+"/checkout", `{"method":"cash","amount_paid":"20"}`, "Idempotency-Key", "k-2")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "insufficient_payment", body["error"])

	_, cartBody := s.do(t, http.MethodGet, base+"/cart", "")
	assert.EqualValues(t, 1, cartBody["item_count"], "failed checkout keeps the cart")
	assert.Equal(t, false, cartOf(cartBody)["processing"])

	w, body = s.do(t, http.MethodPost, base+"/checkout", `{"method":"cash","amount_paid":"60"}`, "Idempotency-Key", "k-2")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "5", body["transaction"].(map[string]interface{})["change"])
}

func TestCheckout_EmptyCart(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession(t)

	w, body := s.do(t, http.MethodPost, "/sessions/"+id+"/checkout", `{"method":"card","card":{}}`, "Idempotency-Key", "k-3")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "empty_cart", body["error"])
}

func TestCheckout_InProgressKey(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession(t)
	_, _ = s.idem.CreateIfNotExists(context.Background(), "k-4", id)

	w, _ := s.do(t, http.MethodPost, "/sessions/"+id+"/checkout", `{"method":"card","card":{}}`, "Idempotency-Key", "k-4")
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestCheckout_SaveFailureReturnsLocalReceipt(t *testing.T) {
	s := newTestServer(t)
	s.txs.saveErr = errors.New("dynamo unavailable")
	id := s.openSession(t)
	base := "/sessions/" + id
	s.do(t, http.MethodPost, base+"/lines", `{"product":{"id":"P1","name":"Widget","unit_price":"10"}}`)

	w, body := s.do(t, http.MethodPost, base+"/checkout", `{"method":"mobile","mobile":{"provider":"mpesa"}}`, "Idempotency-Key", "k-5")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, false, body["persisted"])
	assert.NotEmpty(t, body["warning"])
	assert.Empty(t, w.Header().Get("Location"))

	_, cartBody := s.do(t, http.MethodGet, base+"/cart", "")
	assert.EqualValues(t, 0, cartBody["item_count"], "cart is not restored after a failed save")

	rec, _ := s.idem.Get(context.Background(), "k-5")
	assert.Equal(t, idempotency.StatusFailed, rec.Status)
	assert.Equal(t, 1, s.metrics.counts["CheckoutSaveFailures"])
}

func TestTransactionTransitions(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession(t)
	base := "/sessions/" + id
	s.do(t, http.MethodPost, base+"/lines", `{"product":{"id":"P1","name":"Widget","unit_price":"10"}}`)
	_, body := s.do(t, http.MethodPost, base+"/checkout", `{"method":"card","card":{"last4":"1111"}}`, "Idempotency-Key", "k-6")
	txID := body["transaction"].(map[string]interface{})["id"].(string)

	w, body := s.do(t, http.MethodPost, "/transactions/"+txID+"/refund", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, checkout.StatusRefunded, body["status"])

	w, body = s.do(t, http.MethodPost, "/transactions/"+txID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_status_transition", body["error"])

	w, _ = s.do(t, http.MethodPost, "/transactions/nope/refund", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = s.do(t, http.MethodGet, "/transactions/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 1, s.metrics.counts["TransactionsRefunded"])
}

func TestCartEditsRefusedDuringCheckout(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession(t)
	base := "/sessions/" + id

	s.do(t, http.MethodPost, base+"/lines", `{"product":{"id":"H","name":"Parked","unit_price":"5"}}`)
	w, held := s.do(t, http.MethodPost, base+"/hold", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	holdID := held["hold_id"].(string)
	s.do(t, http.MethodPost, base+"/lines", `{"product":{"id":"P","name":"Paying","unit_price":"7"},"quantity":2}`)

	sess, err := s.sessions.Get(id)
	require.NoError(t, err)
	_, ok := sess.BeginCheckout()
	require.True(t, ok)

	w, body := s.do(t, http.MethodPost, base+"/held/"+holdID+"/resume", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "checkout_in_progress", body["error"])
	assert.True(t, s.redis.Exists("held:s1:"+holdID), "held sale survives a refused resume")

	w, _ = s.do(t, http.MethodPost, base+"/lines", `{"product":{"id":"X","name":"Late","unit_price":"1"}}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	w, _ = s.do(t, http.MethodPut, base+"/discount", `{"type":"fixed","value":3}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	w, _ = s.do(t, http.MethodDelete, base+"/cart", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	w, _ = s.do(t, http.MethodPost, base+"/hold", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 2, sess.State().ItemCount())

	sess.Dispatch(cart.CheckoutSucceeded{})

	w, body = s.do(t, http.MethodPost, base+"/held/"+holdID+"/resume", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, body["item_count"])
	assert.False(t, s.redis.Exists("held:s1:"+holdID))
}

func TestCheckout_ZeroTotalPaidInCash(t *testing.T) {
	s := newTestServer(t)
	id := s.openSession(t)
	base := "/sessions/" + id
	s.do(t, http.MethodPost, base+"/lines", `{"product":{"id":"P1","name":"Sample","unit_price":"40"}}`)
	w, body := s.do(t, http.MethodPut, base+"/lines/P1/discount", `{"percent":100}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "0", totalsOf(body)["grand_total"])

	w, body = s.do(t, http.MethodPost, base+"/checkout", `{"method":"cash","amount_paid":0}`, "Idempotency-Key", "k-zero")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tx := body["transaction"].(map[string]interface{})
	assert.Equal(t, "0", tx["grand_total"])
	assert.Equal(t, "0", tx["change"])

	w, body = s.do(t, http.MethodPost, base+"/checkout", `{"method":"cash","amount_paid":-1}`, "Idempotency-Key", "k-neg")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", body["error"])
}

func TestCheckout_ClientLeavesBeforeSaveFinishes(t *testing.T) {
	s := newTestServer(t)
	s.txs.block = make(chan struct{})
	id := s.openSession(t)
	base := "/sessions/" + id
	s.do(t, http.MethodPost, base+"/lines", `{"product":{"id":"P1","name":"Widget","unit_price":"10"}}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, base+"/checkout", strings.NewReader(`{"method":"card","card":{"last4":"4242"}}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "k-gone")
	s.router.ServeHTTP(httptest.NewRecorder(), req)

	rec, _ := s.idem.Get(context.Background(), "k-gone")
	require.NotNil(t, rec)
	assert.Equal(t, idempotency.StatusInProgress, rec.Status)

	close(s.txs.block)
	require.Eventually(t, func() bool {
		rec, _ := s.idem.Get(context.Background(), "k-gone")
		return rec.Status == idempotency.StatusDone
	}, time.Second, 10*time.Millisecond)

	rec, _ = s.idem.Get(context.Background(), "k-gone")
	w, body := s.do(t, http.MethodPost, base+"/checkout", `{"method":"card","card":{"last4":"4242"}}`, "Idempotency-Key", "k-gone")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, rec.TransactionID, body["transaction"].(map[string]interface{})["id"])
	assert.Len(t, s.txs.txs, 1)
}

func TestCheckout_KeyFromAnotherSessionIsRejected(t *testing.T) {
	s := newTestServer(t)
	first := s.openSession(t)
	second := s.openSession(t)
	line := `{"product":{"id":"P1","name":"Widget","unit_price":"10"}}`
	payload := `{"method":"card","card":{"last4":"4242"}}`

	s.do(t, http.MethodPost, "/sessions/"+first+"/lines", line)
	w, _ := s.do(t, http.MethodPost, "/sessions/"+first+"/checkout", payload, "Idempotency-Key", "k-shared")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	s.do(t, http.MethodPost, "/sessions/"+second+"/lines", line)
	w, body := s.do(t, http.MethodPost, "/sessions/"+second+"/checkout", payload, "Idempotency-Key", "k-shared")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "idempotency_key_reused", body["error"])

	_, cartBody := s.do(t, http.MethodGet, "/sessions/"+second+"/cart", "")
	assert.EqualValues(t, 1, cartBody["item_count"])
	assert.Len(t, s.txs.txs, 1)
}
