package core

import "errors"

var (
	// ErrQueueClosed describes use of a queue after Close.
	// PriorityQueue reports that case through the false result of
	// Offer and Put, and of Get once the queue is empty; it does not
	// return this error.
	ErrQueueClosed = errors.New("queue closed")

	// ErrQueueFull is returned by Offer callers that choose to surface
	// the drop explicitly rather than just checking the bool.
	ErrQueueFull = errors.New("queue full")

	// ErrUnknownAdapterCommand reports an ADAPTER_COMMAND event whose
	// content does not name a recognized AdapterCommand. The Brain logs
	// it with the valid names and drops the event.
	ErrUnknownAdapterCommand = errors.New("unknown adapter command")

	// ErrInvalidDirectOutputPayload describes a DIRECT_OUTPUT event
	// whose content is not an output Event. The Brain logs and drops
	// such events and does not return this error.
	ErrInvalidDirectOutputPayload = errors.New("direct_output content must be an output event")
)
