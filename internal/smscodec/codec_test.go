package smscodec_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echowing/smsgw/internal/smscodec"
)

func TestPlanShortBody(t *testing.T) {
	segs, err := smscodec.Plan("hi")
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, 1, segs[0].Total)
	assert.Equal(t, "00680069", segs[0].Hex)
	assertEvenUpperHex(t, segs[0].Hex)
}

func TestPlanBoundary70(t *testing.T) {
	body := strings.Repeat("a", 70)
	segs, err := smscodec.Plan(body)
	require.NoError(t, err)
	assert.Len(t, segs, 1)
}

func TestPlanBoundary71(t *testing.T) {
	body := strings.Repeat("a", 71)
	segs, err := smscodec.Plan(body)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, segs[0].Ref, segs[1].Ref)
	assert.Equal(t, 1, segs[0].Index)
	assert.Equal(t, 2, segs[1].Index)
	for _, s := range segs {
		assert.Equal(t, 2, s.Total)
		assertEvenUpperHex(t, s.Hex)
	}
}

func TestPlanLongChineseBody(t *testing.T) {
	body := strings.Repeat("你好", 50) // 100 UTF-16 code units
	segs, err := smscodec.Plan(body)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	for _, s := range segs {
		assert.Equal(t, 2, s.Total)
	}
	assert.Equal(t, segs[0].Ref, segs[1].Ref)
}

func TestPlanEmptyBodyRejected(t *testing.T) {
	_, err := smscodec.Plan("")
	assert.ErrorIs(t, err, smscodec.ErrEmptyBody)
}

func TestReassembleRoundTrip(t *testing.T) {
	body := strings.Repeat("hello world ", 10)
	segs, err := smscodec.Plan(body)
	require.NoError(t, err)

	// shuffle order to prove reassembly uses RR/SS, not arrival order.
	shuffled := make([]smscodec.Segment, len(segs))
	copy(shuffled, segs)
	if len(shuffled) > 1 {
		shuffled[0], shuffled[len(shuffled)-1] = shuffled[len(shuffled)-1], shuffled[0]
	}

	got, err := smscodec.Reassemble(shuffled)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestDecodeCMSError(t *testing.T) {
	assert.Equal(t, "malformed or invalid destination", smscodec.DecodeCMSError(300).Meaning)
	assert.Equal(t, "PIN required", smscodec.DecodeCMSError(29).Meaning)
	unk := smscodec.DecodeCMSError(9999)
	assert.Equal(t, "unknown", unk.Meaning)
	assert.Equal(t, 9999, unk.Code)
}

func TestEncodePhoneHex(t *testing.T) {
	hex := smscodec.EncodePhone("15551234567", true, false)
	assert.Equal(t, "00310035003500350031003200330034003500360037", hex)
}

func TestEncodePhonePlain(t *testing.T) {
	assert.Equal(t, "15551234567", smscodec.EncodePhone("15551234567", false, false))
}

func TestEncodePhoneHexStripsLeadingPlus(t *testing.T) {
	hex := smscodec.EncodePhone("+15551234567", true, false)
	assert.Equal(t, "00310035003500350031003200330034003500360037", hex)
}

func TestEncodePhoneHexPreservesPlusWhenRequested(t *testing.T) {
	hex := smscodec.EncodePhone("+00", true, true)
	assert.Equal(t, "002B00300030", hex)
}

func assertEvenUpperHex(t *testing.T, s string) {
	t.Helper()
	assert.Zero(t, len(s)%2, "hex must be even length")
	assert.Equal(t, strings.ToUpper(s), s, "hex must be upper-case")
}
