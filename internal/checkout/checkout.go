// Package checkout converts the current cart into a single order submission:
// it validates preconditions, snapshots the cart, submits the order, and only
// clears the cart once success has been observed.
package checkout

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kirashop/storefront/internal/cart"
)

// DefaultTimeout bounds a single submission attempt. After it elapses the
// attempt is treated as failed and the cart is left untouched.
const DefaultTimeout = 30 * time.Second

// SubmissionItem mirrors one cart line item into the order request.
type SubmissionItem struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

// Submission is the order request built from one cart snapshot. It is owned
// by the flow for the duration of a single attempt and discarded afterwards.
type Submission struct {
	TotalAmount decimal.Decimal
	Items       []SubmissionItem

	// IdempotencyKey is a client-generated UUID sent with the request so a
	// retry after an ambiguous failure cannot create a duplicate order. The
	// key stays stable across retries of the same cart and is regenerated
	// whenever the cart changes.
	IdempotencyKey string
}

// ConfirmedOrder is the server's representation of a successfully placed
// order.
type ConfirmedOrder struct {
	ID          int64
	Status      string
	TotalAmount decimal.Decimal
}

// Submitter places an order with the Order API using the given bearer
// credential.
type Submitter interface {
	PlaceOrder(ctx context.Context, token string, sub Submission) (*ConfirmedOrder, error)
}

// CredentialSource supplies the current bearer credential, if any. Injected
// rather than read from ambient storage so the authentication precondition is
// testable on its own.
type CredentialSource interface {
	Token() (string, bool)
}

// Flow drives a checkout attempt against the Order API. At most one
// submission may be in flight per Flow; a second Checkout call while one is
// submitting is rejected rather than queued, so a rapid double-click can
// never place two orders.
type Flow struct {
	store     *cart.Store
	submitter Submitter
	creds     CredentialSource
	timeout   time.Duration
	lg        *zap.Logger

	submitting atomic.Bool

	// keyMu guards pendingKey, the idempotency key for the current cart
	// generation. Cleared by the cart listener on every mutation.
	keyMu      sync.Mutex
	pendingKey string
}

// Option configures a Flow.
type Option func(*Flow)

// WithTimeout overrides the per-attempt submission timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Flow) { f.timeout = d }
}

// NewFlow creates a checkout flow over the given cart store, order submitter,
// and credential source.
func NewFlow(store *cart.Store, submitter Submitter, creds CredentialSource, lg *zap.Logger, opts ...Option) *Flow {
	if lg == nil {
		lg = zap.NewNop()
	}
	f := &Flow{
		store:     store,
		submitter: submitter,
		creds:     creds,
		timeout:   DefaultTimeout,
		lg:        lg,
	}
	for _, opt := range opts {
		opt(f)
	}

	// Any cart mutation starts a new order intent, so the idempotency key is
	// regenerated on the next attempt. Clearing the cart on success resets it
	// through the same path.
	store.Subscribe(func(cart.Snapshot) {
		f.keyMu.Lock()
		f.pendingKey = ""
		f.keyMu.Unlock()
	})
	return f
}

// InFlight reports whether a submission is currently in progress. The UI uses
// this to disable cart-mutating affordances while submitting.
func (f *Flow) InFlight() bool {
	return f.submitting.Load()
}

// Checkout runs one checkout attempt:
//
//	Idle -> Validating -> Submitting -> Succeeded | Failed
//
// On success the cart is cleared and the confirmed order returned. On any
// failure the cart is left exactly as it was so the user can retry.
func (f *Flow) Checkout(ctx context.Context) (*ConfirmedOrder, error) {
	if !f.submitting.CompareAndSwap(false, true) {
		return nil, ErrCheckoutInFlight
	}
	defer f.submitting.Store(false)

	// Validating.
	if f.store.Len() == 0 {
		return nil, ErrEmptyCart
	}
	token, ok := f.creds.Token()
	if !ok || token == "" {
		return nil, ErrAuthRequired
	}

	f.keyMu.Lock()
	if f.pendingKey == "" {
		f.pendingKey = uuid.New().String()
	}
	key := f.pendingKey
	f.keyMu.Unlock()

	// One consistent snapshot; the submission never sees later cart edits.
	snap := f.store.Snapshot()
	sub := Submission{
		TotalAmount:    snap.Subtotal,
		Items:          make([]SubmissionItem, len(snap.Items)),
		IdempotencyKey: key,
	}
	for i, it := range snap.Items {
		sub.Items[i] = SubmissionItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.UnitPrice,
		}
	}

	// Submitting.
	subCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	f.lg.Debug("Submitting order",
		zap.Int("items", len(sub.Items)),
		zap.String("total", sub.TotalAmount.String()),
		zap.String("idempotency_key", sub.IdempotencyKey),
	)

	confirmed, err := f.submitter.PlaceOrder(subCtx, token, sub)
	if err != nil {
		f.lg.Warn("Order submission failed", zap.Error(err))
		return nil, &SubmissionError{Err: err}
	}

	// Succeeded: only now does the cart get cleared.
	f.store.Clear()
	f.lg.Info("Order placed",
		zap.Int64("order_id", confirmed.ID),
		zap.String("total", confirmed.TotalAmount.String()),
	)
	return confirmed, nil
}
