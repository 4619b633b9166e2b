// Package bus implements the Consumer Pipeline component (spec.md §4.6): a
// message-bus consumer loop with redelivery counting, dead-letter escape,
// JSON payload decoding, phone normalization, and lease-mediated dispatch to
// the modem pool. The message-bus client itself is out of scope (spec.md
// §1): this package depends only on the abstract Consumer/Message contract
// below, which a concrete Pulsar (or other) client must satisfy.
package bus

import (
	"context"
)

// Message is one bus delivery, borrowed by the pipeline for the duration of
// its processing. Ack or Nack must be called exactly once before the
// message is released back to the bus client (spec.md §3 BusMessage).
type Message interface {
	// Payload returns the raw, undecoded message body.
	Payload() []byte
	// RedeliveryCount reports how many times this logical message has been
	// redelivered to any consumer sharing this subscription.
	RedeliveryCount() int
	// Ack acknowledges successful processing.
	Ack() error
	// Nack negatively acknowledges the message, scheduling redelivery (or
	// DLQ routing once the redelivery cap is reached) per the bus client's
	// own policy.
	Nack() error
}

// Consumer is the abstract subscriber contract the pipeline relies on
// (spec.md §1, §4.6 Shared subscription model). A concrete implementation
// wraps whatever bus client library is deployed; none is specified here.
type Consumer interface {
	// Receive blocks until a message is available or ctx is done.
	Receive(ctx context.Context) (Message, error)
	// Close releases the subscription.
	Close() error
}
