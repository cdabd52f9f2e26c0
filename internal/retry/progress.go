package retry

import (
	"sync"
	"time"

	"github.com/citegraph/layout-engine/pkg/utils"
	"github.com/google/uuid"
)

// ProgressEvent is a single structured progress notification.
type ProgressEvent struct {
	ID       string
	Phase    string
	Message  string
	Count    int64
	Total    int64
	Emitted  time.Time
}

// ProgressSink is a bounded, non-blocking, throttled progress emitter. A
// slow consumer never stalls the engine: emissions faster than
// minInterval are dropped, and events are delivered over a buffered
// channel that discards the oldest entry rather than blocking the caller.
type ProgressSink struct {
	mu            sync.Mutex
	minInterval   time.Duration
	clock         utils.Clock
	lastEmit      time.Time
	noProgressRun int
	stallAfter    int
	out           chan ProgressEvent
	onStall       func()
}

// NewProgressSink creates a sink throttled to minInterval between
// emissions, with a buffered channel of the given capacity. stallAfter
// consecutive NoteStall(false) calls trigger onStall, if set; Emit itself
// does not count stalls.
func NewProgressSink(minInterval time.Duration, bufferSize, stallAfter int, clock utils.Clock, onStall func()) *ProgressSink {
	if clock == nil {
		clock = utils.NewRealClock()
	}
	return &ProgressSink{
		minInterval: minInterval,
		clock:       clock,
		stallAfter:  stallAfter,
		out:         make(chan ProgressEvent, bufferSize),
		onStall:     onStall,
	}
}

// Events returns the channel progress events are delivered on.
func (p *ProgressSink) Events() <-chan ProgressEvent {
	return p.out
}

// Emit reports progress. Calls within minInterval of the previous emission
// are dropped silently. Emit does not compare counts between events and
// never fires onStall; stalls are tracked only through NoteStall.
func (p *ProgressSink) Emit(phase, message string, count, total int64) {
	p.mu.Lock()
	now := p.clock.Now()
	if !p.lastEmit.IsZero() && now.Sub(p.lastEmit) < p.minInterval {
		p.mu.Unlock()
		return
	}
	p.lastEmit = now
	p.mu.Unlock()

	event := ProgressEvent{
		ID:      uuid.NewString(),
		Phase:   phase,
		Message: message,
		Count:   count,
		Total:   total,
		Emitted: now,
	}

	select {
	case p.out <- event:
	default:
		// Buffer full: drop the oldest event to make room rather than
		// block the caller.
		select {
		case <-p.out:
		default:
		}
		select {
		case p.out <- event:
		default:
		}
	}
}

// NoteStall should be called by the caller once per unit of work when the
// progress counter did not advance; it is distinct from Emit's own
// throttling because stall detection is about semantic progress, not wall
// clock.
func (p *ProgressSink) NoteStall(advanced bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if advanced {
		p.noProgressRun = 0
		return
	}
	p.noProgressRun++
	if p.stallAfter > 0 && p.noProgressRun >= p.stallAfter && p.onStall != nil {
		p.onStall()
		p.noProgressRun = 0
	}
}

// Close closes the output channel. Safe to call once.
func (p *ProgressSink) Close() {
	close(p.out)
}
