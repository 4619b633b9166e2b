package bus

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// ErrPayloadMalformed indicates the message body did not decode as the
// expected JSON shape (spec.md §7 PayloadMalformed).
var ErrPayloadMalformed = errors.New("bus: payload malformed")

// rawRequest is the wire shape of spec.md §6's inbound message.
type rawRequest struct {
	Phone    string                 `json:"phone"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// SmsRequest is a decoded, normalized send request (spec.md §3).
type SmsRequest struct {
	Destination string
	Body        string
	Metadata    map[string]interface{}
}

// DecodeRequest parses payload as the inbound JSON shape and normalizes the
// destination to E.164 using defaultCountryCode for numbers given without a
// leading "+" (spec.md §4.6 step 2-3). It does not validate the destination
// against the published schema's Pattern: malformed-looking destinations are
// still dispatched to the modem and surfaced through its own CmsError path
// (spec.md §8 scenario 3), matching original_source's SMSMessage.from_dict,
// which only normalizes and never pattern-rejects before dispatch. The
// pattern itself is schema-descriptor documentation for producers only; see
// schema.RequestFields.
func DecodeRequest(payload []byte, defaultCountryCode string) (SmsRequest, error) {
	var raw rawRequest
	if err := json.Unmarshal(payload, &raw); err != nil {
		return SmsRequest{}, errors.Wrap(ErrPayloadMalformed, err.Error())
	}
	if raw.Phone == "" || raw.Content == "" {
		return SmsRequest{}, errors.Wrap(ErrPayloadMalformed, "phone and content are required")
	}

	dest := normalizePhone(raw.Phone, defaultCountryCode)

	return SmsRequest{
		Destination: dest,
		Body:        raw.Content,
		Metadata:    raw.Metadata,
	}, nil
}

// normalizePhone prefixes a bare national number with defaultCountryCode,
// passing already-international numbers through unchanged (spec.md §3, §8
// boundary behaviors).
func normalizePhone(phone, defaultCountryCode string) string {
	if strings.HasPrefix(phone, "+") {
		return phone
	}
	return defaultCountryCode + phone
}
