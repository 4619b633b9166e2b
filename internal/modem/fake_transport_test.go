package modem

import (
	"fmt"
)

// scriptedTransport is a canned-response io.ReadWriteCloser used to drive
// the AT engine without a real serial port. Write looks up the exact bytes
// written in cmdSet and pushes the canned response lines to the read
// channel synchronously, following the mockModem pattern in
// github.com/warthog618/modem/at's own test suite.
type scriptedTransport struct {
	cmdSet map[string][]string
	closed bool
	r      chan []byte
}

func newScriptedTransport(cmdSet map[string][]string) *scriptedTransport {
	return &scriptedTransport{cmdSet: cmdSet, r: make(chan []byte, 16)}
}

func (m *scriptedTransport) Read(p []byte) (int, error) {
	data, ok := <-m.r
	if !ok {
		return 0, fmt.Errorf("closed")
	}
	copy(p, data)
	return len(data), nil
}

func (m *scriptedTransport) Write(p []byte) (int, error) {
	if m.closed {
		return 0, fmt.Errorf("closed")
	}
	v := m.cmdSet[string(p)]
	if len(v) == 0 {
		m.r <- []byte("\r\nERROR\r\n")
		return len(p), nil
	}
	for _, l := range v {
		if len(l) == 0 {
			continue
		}
		m.r <- []byte(l)
	}
	return len(p), nil
}

func (m *scriptedTransport) Close() error {
	if !m.closed {
		m.closed = true
		close(m.r)
	}
	return nil
}
