package conversation

import "time"

type NegotiationState string

const (
	StateIdle     NegotiationState = "idle"
	StateProposed NegotiationState = "proposed"
)

// SessionState is derived from the transcript, never stored.
type SessionState struct {
	State   NegotiationState `json:"state"`
	Pending *time.Time       `json:"pending,omitempty"`
}

const (
	askForTimeReply = "There's no appointment waiting for confirmation. What day and time would work best for you?"
	declinedReply   = "No problem at all! What day and time would work better for you? I have availability throughout the week."
)

// Reconstruct walks the transcript backwards to the most recent assistant
// turn that moved the negotiation. A proposal leaves the session Proposed;
// a confirmation, decline, conflict or expiry resolves it. Chat turns do neither.
func Reconstruct(turns []Turn) SessionState {
	for i := len(turns) - 1; i >= 0; i-- {
		turn := turns[i]
		if turn.Role != ChatRoleAssistant || turn.Metadata == nil {
			continue
		}
		md := turn.Metadata
		switch md.Outcome {
		case OutcomeConfirmed, OutcomeDeclined, OutcomeConflict, OutcomeExpired:
			return SessionState{State: StateIdle}
		case OutcomeProposed:
			if md.Candidate != nil {
				pending := *md.Candidate
				return SessionState{State: StateProposed, Pending: &pending}
			}
		case "":
			// Turns written without an outcome fall back to the raw flags.
			if md.NeedsConfirmation && md.Candidate != nil {
				pending := *md.Candidate
				return SessionState{State: StateProposed, Pending: &pending}
			}
		}
	}
	return SessionState{State: StateIdle}
}

// Decision is what the state machine wants done for one message.
type Decision struct {
	Next              SessionState
	Outcome           Outcome
	Intent            Intent
	Reply             string
	Candidate         *time.Time
	NeedsConfirmation bool
	// Commit asks the caller to book Candidate. The final reply depends on
	// whether the commit wins; see ConfirmedReply and ConflictReply.
	Commit bool
}

// Decide applies one extraction to the current state.
func Decide(state SessionState, ex ExtractionResult) Decision {
	intent := ex.Intent
	// Agreeing to a time other than the pending one is a fresh proposal.
	if intent == IntentConfirm && ex.Candidate != nil && !sameInstant(ex.Candidate, state.Pending) {
		intent = IntentPropose
	}

	switch {
	case intent == IntentPropose && ex.Candidate != nil:
		candidate := *ex.Candidate
		return Decision{
			Next:              SessionState{State: StateProposed, Pending: &candidate},
			Outcome:           OutcomeProposed,
			Intent:            IntentPropose,
			Reply:             ex.Reply,
			Candidate:         &candidate,
			NeedsConfirmation: true,
		}

	case intent == IntentConfirm && state.State == StateProposed && state.Pending != nil:
		pending := *state.Pending
		return Decision{
			Next:      SessionState{State: StateIdle},
			Outcome:   OutcomeConfirmed,
			Intent:    IntentConfirm,
			Candidate: &pending,
			Commit:    true,
		}

	case intent == IntentDecline && state.State == StateProposed:
		return Decision{
			Next:    SessionState{State: StateIdle},
			Outcome: OutcomeDeclined,
			Intent:  IntentDecline,
			Reply:   declinedReply,
		}

	case intent == IntentConfirm || intent == IntentDecline:
		// Nothing pending to resolve.
		return Decision{
			Next:    state,
			Outcome: OutcomeChat,
			Intent:  IntentChat,
			Reply:   askForTimeReply,
		}
	}

	reply := ex.Reply
	if reply == "" {
		reply = "I'm here to help with your appointment needs. What day and time would work best for you?"
	}
	return Decision{
		Next:    state,
		Outcome: OutcomeChat,
		Intent:  IntentChat,
		Reply:   reply,
	}
}

// ConfirmedReply acknowledges a successful booking.
func ConfirmedReply(at time.Time) string {
	return "Perfect! Your appointment is confirmed for " + FormatSlot(at) + ". I look forward to seeing you then!"
}

// ConflictReply tells the patient the slot was taken and asks for another.
func ConflictReply(at time.Time) string {
	return "Sorry, " + FormatSlot(at) + " was just booked by another patient. What other day and time would work for you?"
}

// Resolve turns a Commit decision into its final form once the booking
// attempt finished. taken reports whether another confirm won the slot.
func (d Decision) Resolve(taken bool) Decision {
	if !d.Commit || d.Candidate == nil {
		return d
	}
	d.Commit = false
	d.Next = SessionState{State: StateIdle}
	if taken {
		d.Outcome = OutcomeConflict
		d.Reply = ConflictReply(*d.Candidate)
		return d
	}
	d.Outcome = OutcomeConfirmed
	d.Reply = ConfirmedReply(*d.Candidate)
	return d
}
