package emit

// MultiEmitter sends events to multiple emitters (fan-out pattern).
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates a fan-out over emitters. Nil entries are skipped.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	m := &MultiEmitter{}
	for _, e := range emitters {
		if e != nil {
			m.emitters = append(m.emitters, e)
		}
	}
	return m
}

// Emit forwards the event to every emitter in order.
func (m *MultiEmitter) Emit(event Event) {
	for _, emitter := range m.emitters {
		emitter.Emit(event)
	}
}

// Len returns the number of wrapped emitters.
func (m *MultiEmitter) Len() int {
	return len(m.emitters)
}
