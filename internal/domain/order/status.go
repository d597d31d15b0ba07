package order

import (
	"fmt"
	"slices"

	"github.com/go-faster/errors"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

var (
	// ErrInvalidStatus is returned for status names outside the lifecycle.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrStatusChanged is returned by Store.UpdateStatus when a concurrent
	// update moved the order first.
	ErrStatusChanged = errors.New("order status changed concurrently")
)

// ParseStatus validates s as a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", errors.Wrapf(ErrInvalidStatus, "%q", s)
	}
	return st, nil
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// next is the forward fulfilment chain.
var next = map[Status]Status{
	StatusPending:    StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

// Policy decides which statuses an order may be cancelled from. Which
// pre-delivery states allow cancellation is a product decision, so it is
// configuration rather than code.
type Policy struct {
	CancellableFrom []Status
}

// DefaultPolicy allows cancellation from every non-terminal status.
func DefaultPolicy() Policy {
	return Policy{CancellableFrom: []Status{StatusPending, StatusProcessing, StatusShipped}}
}

// Validate rejects unknown or terminal statuses in CancellableFrom.
func (p Policy) Validate() error {
	for _, s := range p.CancellableFrom {
		if !s.IsValid() {
			return errors.Wrapf(ErrInvalidStatus, "%q", s)
		}
		if s.IsTerminal() {
			return errors.Errorf("cannot cancel from terminal status %s", s)
		}
	}
	return nil
}

// CanTransition reports whether an order may move from one status to another.
func (p Policy) CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusCancelled {
		return slices.Contains(p.CancellableFrom, from)
	}
	return next[from] == to
}

// TransitionError reports a status change the policy does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}
