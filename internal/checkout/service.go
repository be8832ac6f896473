package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/imrishuroy/go-pos-cartflow/internal/cart"
	"go.uber.org/zap"
)

// Register is the cart owner a checkout runs against. BeginCheckout must
// raise the processing flag atomically and report false if it was already up.
type Register interface {
	BeginCheckout() (cart.State, bool)
	Dispatch(a cart.Action) cart.State
}

// Saver persists a finalized transaction and returns the stored record.
type Saver interface {
	Save(ctx context.Context, tx Transaction, idempotencyKey string) (Transaction, error)
}

// Publisher announces a persisted transaction to downstream consumers.
type Publisher interface {
	PublishTransactionCompleted(ctx context.Context, tx Transaction) error
}

// PendingSave tracks the background save of one transaction.
type PendingSave struct {
	done  chan struct{}
	local Transaction
	tx    Transaction
	err   error
}

// Wait blocks until the save finishes or ctx is done. It always returns a
// usable transaction: the stored one on success, the local one otherwise.
// A non-nil error wraps ErrPersistenceFailed or is ctx.Err().
func (p *PendingSave) Wait(ctx context.Context) (Transaction, error) {
	select {
	case <-p.done:
		return p.tx, p.err
	case <-ctx.Done():
		return p.local, ctx.Err()
	}
}

// Done is closed once the save has finished.
func (p *PendingSave) Done() <-chan struct{} { return p.done }

// Service runs checkout against a register.
type Service struct {
	assembler   *Assembler
	saver       Saver
	publisher   Publisher
	saveTimeout time.Duration
	logger      *zap.Logger
}

func NewService(assembler *Assembler, saver Saver, publisher Publisher, saveTimeout time.Duration, logger *zap.Logger) *Service {
	if saveTimeout <= 0 {
		saveTimeout = 5 * time.Second
	}
	return &Service{
		assembler:   assembler,
		saver:       saver,
		publisher:   publisher,
		saveTimeout: saveTimeout,
		logger:      logger,
	}
}

// Checkout assembles a transaction from the register's cart, clears the cart
// and starts saving the transaction in the background. The cart is cleared
// before the save is confirmed and is not restored if the save fails.
func (s *Service) Checkout(reg Register, p PaymentOutcome, meta Meta, idempotencyKey string) (Transaction, *PendingSave, error) {
	state, ok := reg.BeginCheckout()
	if !ok {
		return Transaction{}, nil, ErrCheckoutInProgress
	}

	if state.IsEmpty() {
		reg.Dispatch(cart.CheckoutFailed{Reason: "empty cart"})
		return Transaction{}, nil, ErrEmptyCart
	}
	if err := ValidateTender(state.Totals.GrandTotal, p); err != nil {
		reg.Dispatch(cart.CheckoutFailed{Reason: err.Error()})
		return Transaction{}, nil, err
	}

	tx, err := s.assembler.Assemble(state, p, meta)
	if err != nil {
		reg.Dispatch(cart.CheckoutFailed{Reason: err.Error()})
		return Transaction{}, nil, err
	}

	reg.Dispatch(cart.CheckoutSucceeded{})
	s.logger.Info("checkout completed",
		zap.String("transaction_id", tx.ID),
		zap.String("number", tx.Number),
		zap.String("grand_total", tx.GrandTotal.String()),
		zap.String("payment_method", tx.PaymentMethod),
	)

	return tx, s.persist(tx, idempotencyKey), nil
}

func (s *Service) persist(tx Transaction, idempotencyKey string) *PendingSave {
	p := &PendingSave{done: make(chan struct{}), local: tx, tx: tx}

	go func() {
		defer close(p.done)

		ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
		defer cancel()

		saved, err := s.saver.Save(ctx, tx, idempotencyKey)
		if err != nil {
			s.logger.Warn("transaction save failed, keeping local record",
				zap.String("transaction_id", tx.ID),
				zap.Error(err),
			)
			p.err = fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
			return
		}
		p.tx = saved

		if s.publisher == nil {
			return
		}
		if err := s.publisher.PublishTransactionCompleted(ctx, saved); err != nil {
			s.logger.Error("publish transaction event failed",
				zap.String("transaction_id", saved.ID),
				zap.Error(err),
			)
		}
	}()

	return p
}
