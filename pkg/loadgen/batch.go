package loadgen

// BatchLimits describes a transport's per-batch capacity. Zero means
// unbounded for that dimension.
type BatchLimits struct {
	MaxEvents int
	MaxBytes  int
	// EventOverhead is added to every event's length when counting bytes,
	// to account for per-message framing on the wire.
	EventOverhead int
}

// BatchState is the capacity accounting for one batch.
type BatchState struct {
	Limits BatchLimits
	Count  int
	Bytes  int
}

// TryAdd returns the state after adding event, or the unchanged state and
// false when the event does not fit.
func TryAdd(state BatchState, event []byte) (BatchState, bool) {
	size := len(event) + state.Limits.EventOverhead
	if state.Limits.MaxEvents > 0 && state.Count >= state.Limits.MaxEvents {
		return state, false
	}
	if state.Limits.MaxBytes > 0 && state.Bytes+size > state.Limits.MaxBytes {
		return state, false
	}
	state.Count++
	state.Bytes += size
	return state, true
}

// Batch is an EventBatch backed by BatchState. Transports hand these out
// from CreateBatch and read Events back in Send.
type Batch struct {
	state  BatchState
	events [][]byte
}

func NewBatch(limits BatchLimits) *Batch {
	return &Batch{state: BatchState{Limits: limits}}
}

func (b *Batch) TryAdd(event []byte) bool {
	next, ok := TryAdd(b.state, event)
	if !ok {
		return false
	}
	b.state = next
	b.events = append(b.events, event)
	return true
}

func (b *Batch) Count() int { return b.state.Count }

// Bytes is the accounted size of the batch including per-event overhead.
func (b *Batch) Bytes() int { return b.state.Bytes }

// Events returns the accepted events in insertion order.
func (b *Batch) Events() [][]byte { return b.events }
