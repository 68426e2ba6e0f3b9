package conversation

import (
	"strings"

	"github.com/mealkitz/orderflow/pkg/domain"
)

// ---------------------------------------------------------------------------
// Trigger rules — content-matched state transitions
// ---------------------------------------------------------------------------

// Rule advances a conversation to Target when a message from Actor contains
// one of the Cues (case-insensitive substring match). When From is empty the
// rule applies from any state strictly before Target; otherwise only from the
// listed states. Rules are evaluated in order and the first applicable match
// wins, so at most one transition fires per message.
type Rule struct {
	Actor  domain.ActorType
	Cues   []string
	From   []State
	Target State
}

// Matches reports whether the rule fires for the given state, actor and content.
func (r Rule) Matches(current State, actor domain.ActorType, content string) bool {
	return r.CueMatches(actor, content) && r.applicableFrom(current)
}

// CueMatches reports whether the actor and content match the rule, without
// the state gate.
func (r Rule) CueMatches(actor domain.ActorType, content string) bool {
	if actor != r.Actor {
		return false
	}
	lowered := strings.ToLower(content)
	for _, cue := range r.Cues {
		if strings.Contains(lowered, cue) {
			return true
		}
	}
	return false
}

func (r Rule) applicableFrom(current State) bool {
	if len(r.From) == 0 {
		// Forward-only: firing from a state at or past the target would
		// break the monotonic lifecycle.
		return current.Before(r.Target)
	}
	for _, s := range r.From {
		if s == current {
			return true
		}
	}
	return false
}

// RuleTable is an ordered set of transition rules.
type RuleTable []Rule

// MatchCue returns the target of the first rule whose actor and cues match
// the content, ignoring the state gate. Notification routing uses this so a
// repeated cue for a step already reached still reaches its audience, even
// though the state machine does not move.
func (rt RuleTable) MatchCue(actor domain.ActorType, content string) (State, bool) {
	for _, r := range rt {
		if r.CueMatches(actor, content) {
			return r.Target, true
		}
	}
	return "", false
}

// Evaluate returns the target state of the first applicable rule, or the
// current state and false when no rule matches.
func (rt RuleTable) Evaluate(current State, actor domain.ActorType, content string) (State, bool) {
	for _, r := range rt {
		if r.Matches(current, actor, content) {
			return r.Target, true
		}
	}
	return current, false
}

// DefaultRules returns the reference trigger table. Spanish cues come from
// the production WhatsApp flows; English synonyms sit alongside them.
func DefaultRules() RuleTable {
	return RuleTable{
		// Customer-driven ordering steps. These are pinned to explicit source
		// states: a stray "gracias" must not fast-forward a fresh order.
		{Actor: domain.ActorCustomer, Cues: []string{"menú", "menu"}, From: []State{StateInitial}, Target: StateMenuBrowsing},
		{Actor: domain.ActorCustomer, Cues: []string{"confirmo", "confirm"}, From: []State{StateMenuBrowsing}, Target: StateOrderConfirmation},
		{Actor: domain.ActorCustomer, Cues: []string{"pagar", "pay"}, From: []State{StateOrderConfirmation}, Target: StatePaymentPending},
		{Actor: domain.ActorCustomer, Cues: []string{"pagado", "paid", "yappy"}, From: []State{StatePaymentPending}, Target: StatePaymentConfirmed},
		{Actor: domain.ActorCustomer, Cues: []string{"gracias", "thank"}, From: []State{StateDelivered}, Target: StateCompleted},

		// Kitchen and driver progress cues apply from any earlier state:
		// staff often report a step the system never saw begin.
		{Actor: domain.ActorKitchen, Cues: []string{"recibido", "received"}, Target: StateKitchenAssigned},
		{Actor: domain.ActorKitchen, Cues: []string{"tiempo", "minuto", "min", "time"}, Target: StatePreparing},
		{Actor: domain.ActorKitchen, Cues: []string{"listo", "ready"}, Target: StateDriverAssigned},
		{Actor: domain.ActorDriver, Cues: []string{"confirmo", "confirm"}, Target: StateDriverAssigned},
		{Actor: domain.ActorDriver, Cues: []string{"recogido", "camino", "picked up", "on the way"}, Target: StateInDelivery},
		{Actor: domain.ActorDriver, Cues: []string{"entregado", "delivered"}, Target: StateDelivered},
	}
}
