// Package modem implements the Modem Session component (spec.md §4.4): it
// owns one physical modem bound to a serial port, drives it through the AT
// dialogue to transmit text-mode UCS-2 SMS (segmenting long bodies per
// internal/smscodec), tracks liveness, and enforces the error-count/
// availability failure policy.
//
// The AT command/response engine itself (flushing, terminator recognition,
// the SMS prompt dance) is provided by github.com/warthog618/modem/at; this
// package adds the domain semantics spec.md requires on top of it.
package modem

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/modem/at"
	"github.com/warthog618/modem/info"
	modemserial "github.com/warthog618/modem/serial"
	"github.com/warthog618/modem/trace"

	"github.com/echowing/smsgw/internal/smscodec"
)

// errorThreshold is the consecutive-failure count at which a session flips
// unavailable (spec.md §4.4).
const errorThreshold = 3

// lifecycle is the state machine of spec.md §4.4.
type lifecycle int

const (
	lifecycleClosed lifecycle = iota
	lifecycleProbed
	lifecycleReady
	lifecycleFaulted
)

// Config parameterizes Open.
type Config struct {
	Port        string
	BaudRate    int
	SettleDelay time.Duration // time to allow USB re-enumeration before first AT (default 2s)
	Trace       *slog.Logger  // if set, wraps the transport in a wire-level trace
}

func (c *Config) setDefaults() {
	if c.SettleDelay == 0 {
		c.SettleDelay = 2 * time.Second
	}
}

// Session owns one physical modem.
type Session struct {
	mu         sync.Mutex
	transport  io.ReadWriteCloser
	at         *at.AT
	descriptor Descriptor
	state      State
	lifecycle  lifecycle
	logger     *slog.Logger
}

// Open connects to the serial port, settles, and confirms the modem responds
// to a bare AT (spec.md §4.4 open()). It does not yet configure the modem;
// call Configure next.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	cfg.setDefaults()

	port, err := modemserial.New(cfg.Port, cfg.BaudRate)
	if err != nil {
		return nil, errors.Wrapf(ErrPortUnavailable, "open %s: %v", cfg.Port, err)
	}

	select {
	case <-time.After(cfg.SettleDelay):
	case <-ctx.Done():
		port.Close()
		return nil, ctx.Err()
	}

	s, err := newSession(ctx, port, cfg.Port, cfg.Trace)
	if err != nil {
		port.Close()
		return nil, err
	}
	return s, nil
}

// newSession wires the AT engine over an already-open transport and probes
// it with a bare AT. Factored out of Open so tests can supply a fake
// transport without dialing a real serial port.
func newSession(ctx context.Context, transport io.ReadWriteCloser, port string, traceLogger *slog.Logger) (*Session, error) {
	var rw io.ReadWriter = transport
	if traceLogger != nil {
		rw = trace.New(transport, slog.NewLogLogger(traceLogger.Handler(), slog.LevelDebug))
	}

	engine := at.New(rw)
	s := &Session{
		transport:  transport,
		at:         engine,
		descriptor: Descriptor{Port: port},
		state:      State{Signal: -1},
		lifecycle:  lifecycleClosed,
		logger:     traceLogger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	if _, err := engine.Command(ctx, ""); err != nil {
		return nil, errors.Wrap(ErrPortUnavailable, "modem did not respond to AT")
	}
	s.lifecycle = lifecycleProbed
	return s, nil
}

// Configure drives the modem through the setup dialogue of spec.md §4.4
// configure(): disable echo, enable verbose errors, detect vendor, set
// storage/text-mode/charset preferences, and collect the Descriptor.
func (s *Session) Configure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lifecycle != lifecycleProbed {
		return ErrNotReady
	}

	steps := []string{"E0", "+CMEE=2"}
	for _, cmd := range steps {
		if _, err := s.at.Command(ctx, cmd); err != nil {
			s.fault()
			return errors.Wrapf(ErrTransportBroken, "configure %s: %v", cmd, err)
		}
	}

	atiLines, err := s.at.Command(ctx, "I")
	if err != nil {
		s.fault()
		return errors.Wrap(ErrTransportBroken, "ATI failed")
	}
	s.descriptor.Vendor = detectVendor(atiLines)
	s.descriptor.Manufacturer, s.descriptor.Model = splitManufacturerModel(atiLines)

	postSteps := []string{`+CPMS="SM","SM","SM"`, "+CMGF=1", `+CSCS="UCS2"`}
	for _, cmd := range postSteps {
		if _, err := s.at.Command(ctx, cmd); err != nil {
			s.fault()
			return errors.Wrapf(ErrTransportBroken, "configure %s: %v", cmd, err)
		}
	}

	if imei, err := s.queryLine(ctx, "+GSN", "+GSN"); err == nil {
		s.descriptor.IMEI = imei
	}
	if imsi, err := s.queryLine(ctx, "+CIMI", "+CIMI"); err == nil {
		s.descriptor.IMSI = imsi
	}
	if sca, err := s.queryLine(ctx, "+CSCA?", "+CSCA"); err == nil {
		s.descriptor.ServiceCentre = sca
	}

	s.refreshSignalAndNetworkLocked(ctx)

	s.state.Available = true
	s.lifecycle = lifecycleReady
	return nil
}

// Descriptor returns the immutable modem identity collected during Configure.
func (s *Session) Descriptor() Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptor
}

// State returns a snapshot of the session's mutable health.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MarkInUse sets or clears the in-use flag and, when clearing, stamps
// LastUsed (spec.md §3 ModemLease invariant). The pool calls this, not
// callers of Send directly.
func (s *Session) MarkInUse(inUse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.InUse = inUse
	if !inUse {
		s.state.LastUsed = time.Now()
	}
}

// Eligible reports whether the session may currently accept a lease
// (spec.md §4.5: is_available && !in_use && error_count < threshold).
func (s *Session) Eligible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle == lifecycleReady && s.state.Available && !s.state.InUse && s.state.ErrorCount < errorThreshold
}

// Faulted reports whether the session has transitioned to the terminal
// Faulted state and must be evicted by the pool.
func (s *Session) Faulted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle == lifecycleFaulted
}

// Send transmits body to destination, segmenting as needed (spec.md §4.4
// send()). destination must already be E.164-normalized by the caller.
func (s *Session) Send(ctx context.Context, destination, body string) SendResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lifecycle != lifecycleReady {
		return SendResult{Kind: KindUnavailable, Err: ErrNotReady}
	}
	if !s.state.Available || s.state.ErrorCount >= errorThreshold {
		return SendResult{Kind: KindUnavailable, Err: ErrUnavailable}
	}

	segments, err := smscodec.Plan(body)
	if err != nil {
		return SendResult{Kind: KindEncodingRejected, Err: err}
	}

	destHex := smscodec.EncodePhone(destination, s.descriptor.Vendor.hexEncodesDestination(), s.descriptor.Vendor.preservesPlus())
	result := SendResult{SegmentsTotal: len(segments)}

	for _, seg := range segments {
		wait := sendWait(len(segments))
		sctx, cancel := context.WithTimeout(ctx, wait)
		cmd := fmt.Sprintf(`+CMGS="%s"`, destHex)
		info, err := s.at.SMSCommand(sctx, cmd, seg.Hex)
		cancel()

		if err != nil {
			kind, decoded := classifySendError(err)
			result.Kind = kind
			result.Err = decoded
			if kind != KindCancelled {
				s.recordFailureLocked()
			}
			return result
		}

		ref := extractReference(info)
		result.References = append(result.References, ref)
		result.SegmentsSent++
	}

	result.Success = true
	s.recordSuccessLocked()
	return result
}

// HealthCheck issues a cheap AT+CSQ, refreshes signal/network, and restores
// availability when the session was tripped unavailable (spec.md §4.5
// Health loop).
func (s *Session) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lifecycle == lifecycleFaulted {
		return ErrFaulted
	}
	if err := s.refreshSignalAndNetworkLocked(ctx); err != nil {
		s.fault()
		return err
	}
	s.state.Available = s.state.Signal > 0 && s.lifecycle != lifecycleFaulted
	if s.state.Available {
		s.state.ErrorCount = 0
	}
	return nil
}

// Close releases the underlying transport. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lifecycle = lifecycleClosed
	return s.transport.Close()
}

func (s *Session) recordSuccessLocked() {
	if s.state.ErrorCount > 0 {
		s.state.ErrorCount--
	}
}

func (s *Session) recordFailureLocked() {
	s.state.ErrorCount++
	if s.state.ErrorCount >= errorThreshold {
		s.state.Available = false
	}
}

func (s *Session) fault() {
	s.lifecycle = lifecycleFaulted
	s.state.Available = false
}

func (s *Session) refreshSignalAndNetworkLocked(ctx context.Context) error {
	if sig, err := s.queryLine(ctx, "+CSQ", "+CSQ"); err == nil {
		s.state.Signal = parseSignal(sig)
	} else {
		return err
	}
	if net, err := s.queryLine(ctx, "+COPS?", "+COPS"); err == nil {
		s.state.Network = parseNetwork(net)
	}
	return nil
}

// queryLine issues cmd and returns the first info line with the given
// prefix, trimmed. cmdName is the command passed to the AT engine (may
// differ from prefix when the command carries "?" or "=" suffixes).
func (s *Session) queryLine(ctx context.Context, cmdName, prefix string) (string, error) {
	lines, err := s.at.Command(ctx, cmdName)
	if err != nil {
		return "", err
	}
	for _, l := range lines {
		if info.HasPrefix(l, prefix) {
			return info.TrimPrefix(l, prefix), nil
		}
	}
	if len(lines) > 0 {
		return strings.TrimSpace(lines[0]), nil
	}
	return "", fmt.Errorf("modem: no response to AT%s", cmdName)
}

// sendWait scales the per-send AT wait with segment count, per spec.md
// §4.4: "roughly 5s base plus 3s per additional segment, capped at 30s".
func sendWait(segments int) time.Duration {
	wait := 5*time.Second + time.Duration(segments-1)*3*time.Second
	if wait > 30*time.Second {
		wait = 30 * time.Second
	}
	return wait
}

// classifySendError maps an error returned from the AT engine to the
// failure taxonomy of spec.md §7.
func classifySendError(err error) (Kind, error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled, err
	}
	switch e := err.(type) {
	case at.CMSError:
		code, perr := strconv.Atoi(strings.TrimSpace(string(e)))
		if perr != nil {
			return KindAtProtocol, err
		}
		decoded := smscodec.DecodeCMSError(code)
		return KindCmsError, fmt.Errorf("cms error %d: %s", decoded.Code, decoded.Meaning)
	case at.CMEError:
		return KindAtProtocol, err
	}
	if errors.Is(err, at.ErrClosed) {
		return KindTransportBroken, ErrTransportBroken
	}
	return KindAtProtocol, err
}

func extractReference(infoLines []string) string {
	for _, l := range infoLines {
		if info.HasPrefix(l, "+CMGS") {
			return strings.TrimSpace(info.TrimPrefix(l, "+CMGS"))
		}
	}
	return ""
}

func parseSignal(s string) int {
	parts := strings.SplitN(s, ",", 2)
	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return -1
	}
	if n == 99 {
		return -1
	}
	return n
}

func parseNetwork(s string) string {
	parts := strings.Split(s, ",")
	if len(parts) < 3 {
		return ""
	}
	return strings.Trim(strings.TrimSpace(parts[2]), `"`)
}

func splitManufacturerModel(lines []string) (manufacturer, model string) {
	if len(lines) > 0 {
		manufacturer = strings.TrimSpace(lines[0])
	}
	if len(lines) > 1 {
		model = strings.TrimSpace(lines[1])
	}
	return manufacturer, model
}
