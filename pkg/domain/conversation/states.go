package conversation

// State is the position of an order conversation along its lifecycle.
type State string

const (
	StateInitial           State = "initial"
	StateMenuBrowsing      State = "menu_browsing"
	StateOrderConfirmation State = "order_confirmation"
	StatePaymentPending    State = "payment_pending"
	StatePaymentConfirmed  State = "payment_confirmed"
	StateKitchenAssigned   State = "kitchen_assigned"
	StatePreparing         State = "preparing"
	StateDriverAssigned    State = "driver_assigned"
	StateInDelivery        State = "in_delivery"
	StateDelivered         State = "delivered"
	StateCompleted         State = "completed"
)

// stateOrder fixes the linear transition graph. Transitions may only move
// forward along this sequence, never backward and never past the terminal.
var stateOrder = []State{
	StateInitial,
	StateMenuBrowsing,
	StateOrderConfirmation,
	StatePaymentPending,
	StatePaymentConfirmed,
	StateKitchenAssigned,
	StatePreparing,
	StateDriverAssigned,
	StateInDelivery,
	StateDelivered,
	StateCompleted,
}

// AllStates returns the lifecycle states in transition order.
func AllStates() []State {
	out := make([]State, len(stateOrder))
	copy(out, stateOrder)
	return out
}

func (s State) String() string { return string(s) }

// Index returns the state's position in the lifecycle, or -1 if unknown.
func (s State) Index() int {
	for i, st := range stateOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid returns true if the state belongs to the lifecycle.
func (s State) Valid() bool { return s.Index() >= 0 }

// Terminal returns true for the final lifecycle state.
func (s State) Terminal() bool { return s == StateCompleted }

// Before reports whether s comes strictly earlier than other in the lifecycle.
func (s State) Before(other State) bool {
	si, oi := s.Index(), other.Index()
	return si >= 0 && oi >= 0 && si < oi
}
