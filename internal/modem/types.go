package modem

import "time"

// Descriptor is the immutable identity of a modem, populated during
// session-init (spec.md §3). Callers should treat it as read-only.
type Descriptor struct {
	Port         string
	Manufacturer string
	Model        string
	IMEI         string
	IMSI         string
	ServiceCentre string
	Vendor       Vendor
}

// State is the mutable health of a modem session (spec.md §3). It is
// mutated only by the owning session's health-check or a send operation,
// and is read by the pool's selector; callers receive copies via Session.State.
type State struct {
	Signal     int // 0-31, or -1 if unknown
	Network    string
	Available  bool
	ErrorCount int
	LastUsed   time.Time
	InUse      bool
}

// SendResult is the outcome of a Send call (spec.md §3 SmsOutcome, minus the
// fields the pool/pipeline layer owns such as elapsed time and modem identity,
// which the caller already has).
type SendResult struct {
	Success         bool
	SegmentsTotal   int
	SegmentsSent    int
	References      []string
	Kind            Kind
	Err             error
}
