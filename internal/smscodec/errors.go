package smscodec

import "errors"

// ErrEmptyBody indicates an attempt to plan segments for a zero-length
// message body (spec.md §3, §8: "Empty body is rejected with
// EncodingRejected before any AT dialogue begins").
var ErrEmptyBody = errors.New("smscodec: body must not be empty")
