package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ArbPull/internal/domain/models"
	domrepo "ArbPull/internal/domain/repository"
)

var ErrRecordInvalid = errors.New("invalid tick record")

// RecordPipeline sits between the orchestrator and the audit backend.
// It validates finalized records, writes them through and buffers them
// for retry when the backend is unavailable. It implements TickRecorder.
type RecordPipeline struct {
	sink     domrepo.TickRecorder
	metrics  domrepo.Metrics
	bufSize  int
	bufCh    chan *models.TickRecord
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeq  uint64
	maxDelay time.Duration
}

type PipelineOption func(*RecordPipeline)

// WithBufferSize sets the retry buffer size.
func WithBufferSize(n int) PipelineOption {
	return func(p *RecordPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithMaxRetryDelay caps the retry backoff.
func WithMaxRetryDelay(d time.Duration) PipelineOption {
	return func(p *RecordPipeline) {
		if d > 0 {
			p.maxDelay = d
		}
	}
}

// NewRecordPipeline creates a new pipeline.
func NewRecordPipeline(sink domrepo.TickRecorder, metrics domrepo.Metrics, opts ...PipelineOption) *RecordPipeline {
	p := &RecordPipeline{
		sink:     sink,
		metrics:  metrics,
		bufSize:  256,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		maxDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.TickRecord, p.bufSize)
	return p
}

// Start launches background retry of buffered records.
func (p *RecordPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.doneCh)
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case rec := <-p.bufCh:
				if err := p.sink.Record(ctx, rec); err != nil {
					// exponential backoff with cap
					if backoff < p.maxDelay {
						backoff *= 2
					}
					p.metrics.RecordError("record_retry")
					select {
					case <-p.stopCh:
						p.requeue(rec)
						return
					case <-time.After(backoff):
					}
					p.requeue(rec)
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Record validates rec and forwards it downstream, buffering on errors.
func (p *RecordPipeline) Record(ctx context.Context, rec *models.TickRecord) error {
	start := time.Now()
	if err := p.validate(rec); err != nil {
		p.metrics.RecordError("record_validate")
		return err
	}

	if err := p.sink.Record(ctx, rec); err != nil {
		p.metrics.RecordError("record_write")
		p.requeue(rec)
		return fmt.Errorf("record downstream: %w", err)
	}
	p.metrics.RecordLatency("record_write", time.Since(start).Seconds())
	return nil
}

// Buffered returns the number of records waiting for retry.
func (p *RecordPipeline) Buffered() int { return len(p.bufCh) }

// Close stops retrying, makes one last attempt at buffered records and
// closes the backend.
func (p *RecordPipeline) Close() error {
	p.mu.Lock()
	started := p.started
	p.started = false
	p.mu.Unlock()
	if started {
		close(p.stopCh)
		<-p.doneCh
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case rec := <-p.bufCh:
			if err := p.sink.Record(ctx, rec); err != nil {
				p.metrics.RecordError("record_drop")
			}
		default:
			return p.sink.Close()
		}
	}
}

func (p *RecordPipeline) requeue(rec *models.TickRecord) {
	select {
	case p.bufCh <- rec:
	default:
		p.metrics.RecordError("record_buffer_full")
	}
}

func (p *RecordPipeline) validate(rec *models.TickRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil", ErrRecordInvalid)
	}
	if !rec.Finalized {
		return fmt.Errorf("%w: tick %d not finalized", ErrRecordInvalid, rec.Seq)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec.Seq <= p.lastSeq {
		return fmt.Errorf("%w: tick %d already recorded", ErrRecordInvalid, rec.Seq)
	}
	p.lastSeq = rec.Seq
	return nil
}
