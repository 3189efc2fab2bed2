package order

import (
	"fmt"

	"github.com/xenking/rentkart/internal/domain/failure"
)

// Event drives a lifecycle transition.
type Event string

const (
	EventPay             Event = "pay"
	EventStart           Event = "start"
	EventComplete        Event = "complete"
	EventCancel          Event = "cancel"
	EventDispute         Event = "dispute"
	EventResolveComplete Event = "resolve_complete"
	EventResolveCancel   Event = "resolve_cancel"
	EventRejectDispute   Event = "reject_dispute"
)

type edge struct {
	from  Status
	event Event
}

// statusRestore marks a transition back to the status held before the
// dispute.
const statusRestore Status = ""

var transitions = map[edge]Status{
	{StatusPendingPayment, EventPay}:       StatusConfirmed,
	{StatusConfirmed, EventStart}:          StatusInProgress,
	{StatusInProgress, EventComplete}:      StatusCompleted,
	{StatusPendingPayment, EventCancel}:    StatusCancelled,
	{StatusConfirmed, EventCancel}:         StatusCancelled,
	{StatusConfirmed, EventDispute}:        StatusDisputed,
	{StatusInProgress, EventDispute}:       StatusDisputed,
	{StatusCompleted, EventDispute}:        StatusDisputed,
	{StatusDisputed, EventResolveComplete}: StatusCompleted,
	{StatusDisputed, EventResolveCancel}:   StatusCancelled,
	{StatusDisputed, EventRejectDispute}:   statusRestore,
}

// TransitionError is returned when an event is not allowed from the
// order's current status.
type TransitionError struct {
	OrderID string
	From    Status
	Event   Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot %s from %s", e.OrderID, e.Event, e.From)
}

func (e *TransitionError) Unwrap() error {
	return failure.ErrInvalidStateTransition
}

// Can reports whether ev is allowed from s.
func Can(s Status, ev Event) bool {
	_, ok := transitions[edge{s, ev}]
	return ok
}

// next returns the status ev leads to from the order's current status.
func (o *Order) next(ev Event) (Status, error) {
	to, ok := transitions[edge{o.Status, ev}]
	if !ok {
		return "", &TransitionError{OrderID: o.ID, From: o.Status, Event: ev}
	}
	if to == statusRestore {
		to = o.DisputedFrom
	}
	return to, nil
}

// apply moves the order along ev. It is the only place Status changes.
func (o *Order) apply(ev Event) (from Status, err error) {
	to, err := o.next(ev)
	if err != nil {
		return "", err
	}

	from = o.Status
	switch ev {
	case EventDispute:
		o.DisputedFrom = from
	case EventRejectDispute, EventResolveComplete, EventResolveCancel:
		o.DisputedFrom = ""
	}
	o.Status = to
	return from, nil
}
