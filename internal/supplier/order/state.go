package order

// State is a step of the order flow. A flow only ever moves forward.
type State int

const (
	AwaitingLogin State = iota
	AwaitingOrderPage
	AwaitingConfirmation
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingLogin:
		return "awaiting-login"
	case AwaitingOrderPage:
		return "awaiting-order-page"
	case AwaitingConfirmation:
		return "awaiting-confirmation"
	case Done:
		return "done"
	}
	return "unknown"
}
