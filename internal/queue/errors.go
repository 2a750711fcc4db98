package queue

import (
	"net/http"
	"sync/atomic"

	apperrors "smssim/pkg/errors"
)

var (
	// ErrUnavailable means the broker could not be reached or refused the
	// operation.
	ErrUnavailable = apperrors.NewError("QUEUE_UNAVAILABLE", "queue broker unavailable", http.StatusServiceUnavailable)
	// ErrConnectionLost means an established session went away. A consumer
	// that sees it must stop.
	ErrConnectionLost = apperrors.NewError("QUEUE_CONNECTION_LOST", "queue connection lost", http.StatusServiceUnavailable).AsFatal()
	// ErrAlreadySettled is returned locally for a second Ack/Nack on the same
	// delivery. Nothing is sent to the broker.
	ErrAlreadySettled = apperrors.NewError("QUEUE_ALREADY_SETTLED", "delivery already acknowledged", http.StatusConflict).AsFatal()
)

type settleGuard struct {
	settled atomic.Bool
}

func (g *settleGuard) claim() error {
	if !g.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return nil
}
