package conversation

import "time"

type Intent string

const (
	IntentChat    Intent = "chat"
	IntentPropose Intent = "propose"
	IntentConfirm Intent = "confirm"
	IntentDecline Intent = "decline"
)

func (i Intent) Valid() bool {
	switch i {
	case IntentChat, IntentPropose, IntentConfirm, IntentDecline:
		return true
	}
	return false
}

// Strategy selects how a message is interpreted.
type Strategy string

const (
	StrategyGenerative    Strategy = "generative"
	StrategyDeterministic Strategy = "deterministic"
)

// ParseStrategy maps a wire value to a Strategy. Empty input returns def.
func ParseStrategy(raw string, def Strategy) (Strategy, bool) {
	switch Strategy(raw) {
	case "":
		return def, true
	case StrategyGenerative, StrategyDeterministic:
		return Strategy(raw), true
	}
	return "", false
}

// Outcome records what an assistant turn did to the negotiation.
type Outcome string

const (
	OutcomeChat      Outcome = "chat"
	OutcomeProposed  Outcome = "proposed"
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeDeclined  Outcome = "declined"
	OutcomeConflict  Outcome = "conflict"
	// OutcomeExpired closes a proposal whose slot passed before it was confirmed.
	OutcomeExpired Outcome = "expired"
)

// TurnMetadata is attached to assistant turns and drives state reconstruction.
type TurnMetadata struct {
	Intent            Intent     `json:"intent,omitempty"`
	Candidate         *time.Time `json:"candidate,omitempty"`
	Confidence        float64    `json:"confidence,omitempty"`
	NeedsConfirmation bool       `json:"needs_confirmation"`
	Strategy          Strategy   `json:"strategy,omitempty"`
	FellBack          bool       `json:"fell_back,omitempty"`
	FallbackReason    string     `json:"fallback_reason,omitempty"`
	Outcome           Outcome    `json:"outcome,omitempty"`
	AppointmentID     string     `json:"appointment_id,omitempty"`
}

// Turn is one immutable entry in a session transcript.
type Turn struct {
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	Metadata  *TurnMetadata `json:"metadata,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

func validRole(role string) bool {
	switch role {
	case ChatRoleUser, ChatRoleAssistant, ChatRoleSystem:
		return true
	}
	return false
}

func lastTurns(turns []Turn, n int) []Turn {
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
