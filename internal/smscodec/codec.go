// Package smscodec implements the PDU/UCS-2 codec described in spec.md §4.3:
// UCS-2 text and phone-number encoding, UDH-based segmentation of long
// messages, and CMS error code decoding. It deliberately implements
// text-mode UCS-2 send (spec.md §9's authoritative choice), not PDU mode.
package smscodec

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/warthog618/sms/encoding/ucs2"
)

// ShortLimit is the maximum number of UTF-16 code units that fit in a single,
// unsegmented SMS (spec.md §3, §4.3).
const ShortLimit = 70

// SegmentLimit is the number of UTF-16 code units carried per segment once a
// message must be concatenated (spec.md §4.3).
const SegmentLimit = 67

// udhLen is the length, in bytes, of the concatenation UDH (spec.md §3).
const udhLen = 6

// Segment is one transmission unit of a (possibly multi-part) message: the
// hex-encoded bytes to send after the AT+CMGS prompt, and its 1-based
// position within the logical message.
type Segment struct {
	Index int // 1-based position (SS)
	Total int // total segment count (TT)
	Ref   int // concatenation reference (RR), shared by all segments of one message
	Hex   string
}

// Plan splits body into one or more Segments per spec.md §4.3's segmentation
// rule. A body of ShortLimit code units or fewer is emitted as a single
// segment with no UDH. Longer bodies are split into SegmentLimit-sized
// pieces, each prefixed with a 6-byte UDH sharing one reference.
//
// Plan rejects an empty body with ErrEmptyBody before any AT dialogue begins
// (spec.md §8, boundary behaviors).
func Plan(body string) ([]Segment, error) {
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}
	full := ucs2.Encode([]rune(body))
	numUnits := len(full) / 2
	if numUnits == 0 {
		return nil, ErrEmptyBody
	}

	if numUnits <= ShortLimit {
		return []Segment{{Index: 1, Total: 1, Hex: hexUpper(full)}}, nil
	}

	ref, err := randomReference()
	if err != nil {
		return nil, err
	}
	total := (numUnits + SegmentLimit - 1) / SegmentLimit
	segments := make([]Segment, 0, total)
	for i := 0; i < total; i++ {
		lo := i * SegmentLimit * 2
		hi := lo + SegmentLimit*2
		if hi > len(full) {
			hi = len(full)
		}
		udh := udhBytes(ref, total, i+1)
		payload := append(udh, full[lo:hi]...)
		segments = append(segments, Segment{
			Index: i + 1,
			Total: total,
			Ref:   ref,
			Hex:   hexUpper(payload),
		})
	}
	return segments, nil
}

// Reassemble orders segments by their SS index, whatever order they are
// given in, and returns the original code-unit sequence with any UDH
// stripped (the round-trip law in spec.md §8). It does not check that all
// segments carry the same reference (RR).
func Reassemble(segments []Segment) (string, error) {
	if len(segments) == 0 {
		return "", ErrEmptyBody
	}
	total := segments[0].Total
	ordered := make([]*Segment, total)
	for i := range segments {
		s := segments[i]
		if s.Total != total {
			return "", fmt.Errorf("smscodec: mismatched segment totals")
		}
		if s.Index < 1 || s.Index > total {
			return "", fmt.Errorf("smscodec: segment index %d out of range", s.Index)
		}
		ordered[s.Index-1] = &s
	}
	var units []byte
	for i, s := range ordered {
		if s == nil {
			return "", fmt.Errorf("smscodec: missing segment %d", i+1)
		}
		raw, err := hex.DecodeString(s.Hex)
		if err != nil {
			return "", fmt.Errorf("smscodec: decode segment %d: %w", i+1, err)
		}
		if total > 1 {
			if len(raw) < udhLen {
				return "", fmt.Errorf("smscodec: segment %d shorter than UDH", i+1)
			}
			raw = raw[udhLen:]
		}
		units = append(units, raw...)
	}
	runes, err := ucs2.Decode(units)
	if err != nil {
		return "", err
	}
	return string(runes), nil
}

// EncodePhone renders a destination number for CMGS, per the vendor's
// hex-encoding quirk (spec.md §4.3, §9). When hexEncode is false the ASCII
// digits of the number are sent as-is, the legacy/default CMGS behavior for
// modems that do not require UCS-2 destinations even in UCS-2 charset mode.
// When hexEncode is true, the leading "+" is stripped before re-encoding
// unless preservePlus is set (spec.md §4.3: "leading + preserved or
// stripped according to the modem ... default strips + then re-encodes").
func EncodePhone(number string, hexEncode bool, preservePlus bool) string {
	if !hexEncode {
		return number
	}
	if !preservePlus {
		number = strings.TrimPrefix(number, "+")
	}
	return hexUpper(ucs2.Encode([]rune(number)))
}

// DecodeCMSError maps a CMS ERROR numeric code to its meaning, per the table
// in spec.md §4.3. Unrecognized codes decode to an Unknown kind.
func DecodeCMSError(code int) CMSErrorKind {
	if kind, ok := cmsErrorTable[code]; ok {
		return kind
	}
	return CMSErrorKind{Code: code, Meaning: "unknown"}
}

// CMSErrorKind names the decoded meaning of a CMS ERROR code.
type CMSErrorKind struct {
	Code    int
	Meaning string
}

var cmsErrorTable = map[int]CMSErrorKind{
	23:  {23, "payload string too long"},
	516: {516, "payload string too long"},
	300: {300, "malformed or invalid destination"},
	301: {301, "malformed or invalid destination"},
	500: {500, "unspecified modem-side failure"},
	29:  {29, "PIN required"},
	30:  {30, "PUK required"},
}

func randomReference() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(255))
	if err != nil {
		return 0, fmt.Errorf("smscodec: generate concatenation reference: %w", err)
	}
	return int(n.Int64()) + 1, nil
}

func udhBytes(ref, total, seq int) []byte {
	return []byte{0x05, 0x00, 0x03, byte(ref), byte(total), byte(seq)}
}

func hexUpper(b []byte) string {
	return fmt.Sprintf("%X", b)
}
