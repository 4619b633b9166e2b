package pool

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/echowing/smsgw/internal/modem"
)

func TestDedupeBySIMKeepsStrongerSignal(t *testing.T) {
	p := New(Config{Logger: slog.Default()})
	weak := &fakeSession{desc: descWithIMSI("460001234567890"), signal: 18}
	strong := &fakeSession{desc: descWithIMSI("460001234567890"), signal: 27}
	p.sessions["/dev/ttyUSB0"] = weak
	p.sessions["/dev/ttyUSB1"] = strong

	p.dedupeBySIM()

	assert.Equal(t, 1, p.Len())
	assert.True(t, weak.closed)
	assert.False(t, strong.closed)
}

func TestDedupeBySIMIgnoresDistinctIMSIs(t *testing.T) {
	p := New(Config{Logger: slog.Default()})
	p.sessions["/dev/ttyUSB0"] = &fakeSession{desc: descWithIMSI("1")}
	p.sessions["/dev/ttyUSB1"] = &fakeSession{desc: descWithIMSI("2")}

	p.dedupeBySIM()

	assert.Equal(t, 2, p.Len())
}

func TestEvictFaultedRemovesSession(t *testing.T) {
	p := New(Config{Logger: slog.Default()})
	healthy := &fakeSession{eligible: true}
	dead := &fakeSession{faulted: true}
	p.sessions["/dev/ttyUSB0"] = healthy
	p.sessions["/dev/ttyUSB1"] = dead

	p.evictFaulted()

	assert.Equal(t, 1, p.Len())
	assert.True(t, dead.closed)
}

func TestCloseShutsDownAllSessions(t *testing.T) {
	p := New(Config{Logger: slog.Default()})
	a := &fakeSession{}
	b := &fakeSession{}
	p.sessions["/dev/ttyUSB0"] = a
	p.sessions["/dev/ttyUSB1"] = b

	assert.NoError(t, p.Close())
	assert.Equal(t, 0, p.Len())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestHealthCheckAllEvictsFaultedAfterCheck(t *testing.T) {
	p := New(Config{Logger: slog.Default()})
	p.sessions["/dev/ttyUSB0"] = &fakeSession{faulted: true}
	p.healthCheckAll(context.Background())
	assert.Equal(t, 0, p.Len())
}

func descWithIMSI(imsi string) modem.Descriptor {
	return modem.Descriptor{IMSI: imsi}
}
