package orders

// transitions maps each status to the statuses reachable from it.
var transitions = map[string][]string{
	StatusPending:    {StatusProcessing, StatusConfirmed, StatusCancelled, StatusFailed},
	StatusProcessing: {StatusConfirmed, StatusCancelled, StatusFailed},
	StatusConfirmed:  {StatusShipped, StatusCancelled, StatusRefunded},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  {StatusCancelled, StatusRefunded},
	StatusCancelled:  {StatusRefunded},
	StatusFailed:     {StatusProcessing, StatusCancelled},
	StatusRefunded:   {},
}

// canTransition reports whether from -> to is a legal edge. A same-status
// transition is handled by the caller as a redelivery no-op, not here.
func canTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// stockEffect is the inventory side effect of a transition.
type stockEffect int

const (
	effectNone stockEffect = iota
	effectReserve
	effectReduce
	effectRestore
	effectRelease
)

// stockCommitted reports whether a status implies committed stock was
// decremented for the order. Processing only holds a reservation, so it is
// deliberately excluded: an order cancelled out of processing releases its
// hold rather than restoring stock it never consumed.
func stockCommitted(status string) bool {
	switch status {
	case StatusConfirmed, StatusShipped, StatusDelivered:
		return true
	}
	return false
}

// stockEffectFor decides the inventory mutation for a transition. The
// effect is strictly a function of the (from, to) pair so that at-least-
// once redelivery of a transition can never decrement or restore twice:
// a repeated "confirmed" delivery arrives with from already confirmed-
// equivalent and maps to no effect.
func stockEffectFor(from, to string) stockEffect {
	switch {
	case to == StatusProcessing && from == StatusPending:
		return effectReserve
	case to == StatusConfirmed && !stockCommitted(from):
		return effectReduce
	case to == StatusCancelled && stockCommitted(from):
		return effectRestore
	case to == StatusCancelled && (from == StatusProcessing || from == StatusFailed):
		return effectRelease
	}
	return effectNone
}
