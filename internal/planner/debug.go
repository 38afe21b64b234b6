package planner

// DebugEvent is one entry in a planning attempt's tagged event stream (spec
// §4.3 "plan debugging"), grounded on the teacher's
// internal/optimizer/optimizer.go decision-log pattern: every cost decision
// the planner makes is recorded, not just the winner, so a caller can see
// why one flip pattern beat another.
type DebugEvent struct {
	Tag  string
	Data map[string]interface{}
}

// AccumulatorDebugger collects DebugEvents in emission order. A nil
// *AccumulatorDebugger is valid and Emit on it is a no-op, so planners that
// don't want debug output can pass nil.
type AccumulatorDebugger struct {
	Events []DebugEvent
}

// Emit appends one event. Safe to call on a nil receiver.
func (d *AccumulatorDebugger) Emit(tag string, data map[string]interface{}) {
	if d == nil {
		return
	}
	d.Events = append(d.Events, DebugEvent{Tag: tag, Data: data})
}
