// Package donationerr defines the sentinel error kinds the pipeline raises,
// so callers can classify a failure with errors.Is instead of string
// matching.
package donationerr

import "errors"

var (
	// ErrQueueDropped is recorded when EventBridge drops an event because
	// the loop hasn't started or the queue is full.
	ErrQueueDropped = errors.New("donationerr: event dropped from queue")

	// ErrUnknownComponent is returned when the dispatcher can't resolve an
	// event's component_id against the registry.
	ErrUnknownComponent = errors.New("donationerr: unknown component")

	// ErrHandlerFault wraps any panic or error a handler raised; the
	// dispatcher isolates it and continues.
	ErrHandlerFault = errors.New("donationerr: handler fault")

	// ErrNoActivePoll classifies a commit made when no poll's time window
	// contains the commit instant; the correlation engine clears both slots
	// on it. DonationWriter.Commit does not check the poll's time window and
	// does not return it.
	ErrNoActivePoll = errors.New("donationerr: no active poll")

	// ErrInvalidCategory is returned when the (poll, category) pair has no
	// binding at commit time.
	ErrInvalidCategory = errors.New("donationerr: invalid category for poll")

	// ErrStorageError wraps a transactional failure in DonationWriter; it
	// is the only kind the correlation engine retries.
	ErrStorageError = errors.New("donationerr: storage error")

	// ErrSubscriberSendFailed marks a broadcast send that failed; the hub
	// drops the subscriber and never propagates this to the caller.
	ErrSubscriberSendFailed = errors.New("donationerr: subscriber send failed")

	// ErrStartupConfigError aborts the process before it starts accepting
	// events.
	ErrStartupConfigError = errors.New("donationerr: startup configuration error")
)
