package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/echowing/smsgw/internal/journal"
	"github.com/echowing/smsgw/internal/pool"
)

// Config parameterizes the pipeline (spec.md §4.6).
type Config struct {
	RedeliveryThreshold int // R, default 3
	DefaultCountryCode  string
	Logger              *slog.Logger
}

func (c *Config) setDefaults() {
	if c.RedeliveryThreshold == 0 {
		c.RedeliveryThreshold = 3
	}
	if c.DefaultCountryCode == "" {
		c.DefaultCountryCode = "+86"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Pipeline drives the Shared-subscription consume loop of spec.md §4.6.
type Pipeline struct {
	consumer Consumer
	pool     *pool.Pool
	journal  *journal.Journal
	cfg      Config
}

// New constructs a Pipeline over an already-subscribed Consumer and a pool
// capable of leasing modem sessions.
func New(consumer Consumer, p *pool.Pool, j *journal.Journal, cfg Config) *Pipeline {
	cfg.setDefaults()
	return &Pipeline{consumer: consumer, pool: p, journal: j, cfg: cfg}
}

// Run consumes messages until ctx is cancelled, at which point the loop
// exits after the in-flight message completes or is negative-acked
// (spec.md §4.8 shutdown sequence, §5 cancellation).
func (p *Pipeline) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := p.consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.cfg.Logger.Warn("bus: receive failed", "error", err)
			continue
		}
		p.process(ctx, msg)
	}
}

// process implements the per-message procedure of spec.md §4.6. A panic
// anywhere in the processing function is converted to a negative-ack rather
// than crashing the loop (spec.md §4.6 "exceptions ... must not crash the
// loop").
func (p *Pipeline) process(ctx context.Context, msg Message) {
	attemptID := uuid.NewString()
	log := p.cfg.Logger.With("attempt_id", attemptID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("bus: panic while processing message, negative-acking", "panic", r)
			msg.Nack()
		}
	}()

	if msg.RedeliveryCount() >= p.cfg.RedeliveryThreshold {
		log.Warn("bus: redelivery cap reached, routing to DLQ", "count", msg.RedeliveryCount())
		msg.Nack()
		return
	}

	req, err := DecodeRequest(msg.Payload(), p.cfg.DefaultCountryCode)
	if err != nil {
		log.Warn("bus: payload malformed, negative-acking", "error", err)
		msg.Nack()
		return
	}

	lease, err := p.pool.AcquireWait(ctx)
	if err != nil {
		log.Warn("bus: lease acquire failed, negative-acking", "error", err)
		msg.Nack()
		return
	}
	defer lease.Release()

	body := req.Body
	if metadataTableEnabled {
		body = spliceMetadataTable(body, req.Metadata)
	}

	imei := lease.Session().Descriptor().IMEI
	start := time.Now()
	result := lease.Session().Send(ctx, req.Destination, body)
	elapsed := time.Since(start)
	log.Info("bus: send attempt complete", "destination", req.Destination, "success", result.Success,
		"kind", result.Kind.String(), "imei", imei, "elapsed_ms", elapsed.Milliseconds())
	if p.journal != nil {
		if err := p.journal.Record(journal.Outcome{
			AttemptID:     attemptID,
			Destination:   req.Destination,
			Success:       result.Success,
			Kind:          result.Kind.String(),
			IMEI:          imei,
			ElapsedMillis: elapsed.Milliseconds(),
			SegmentsTotal: result.SegmentsTotal,
			SegmentsSent:  result.SegmentsSent,
		}); err != nil {
			log.Warn("bus: journal record failed", "error", err)
		}
	}

	if result.Success {
		msg.Ack()
		return
	}
	msg.Nack()
}

// metadataTableEnabled gates the cosmetic metadata-splicing step of spec.md
// §4.6 step 5, described there as "governed by a compile-time knob".
const metadataTableEnabled = false

// spliceMetadataTable appends a small table of select metadata fields to the
// body, when enabled (spec.md §4.6 step 5).
func spliceMetadataTable(body string, metadata map[string]interface{}) string {
	if len(metadata) == 0 {
		return body
	}
	var table string
	for _, key := range []string{"user_id", "app_id", "function"} {
		if v, ok := metadata[key]; ok {
			table += fmt.Sprintf("\n%s: %v", key, v)
		}
	}
	return body + table
}
