package journey

import (
	"fmt"
	"time"
)

// Context is the runtime instantiation of a journey for one session:
// current state, variables, history. execute_transition, complete, and
// set_variable (spec §4.7) are its only mutation entry points; callers must
// persist via Store.UpdateContext after each mutation.
type Context struct {
	ID          string
	SessionID   string
	JourneyID   string
	JourneyName string

	CurrentState string
	Variables    map[string]any
	StateHistory []Event

	ActivatedAt time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewContext creates a context activated at def's initial state, appending
// the journey_activated event to its history (spec §4.7 step 1).
func NewContext(id, sessionID string, def *Definition, variables map[string]any, now time.Time) *Context {
	if variables == nil {
		variables = map[string]any{}
	}
	c := &Context{
		ID:           id,
		SessionID:    sessionID,
		JourneyID:    def.ID,
		JourneyName:  def.Name,
		CurrentState: def.InitialState,
		Variables:    variables,
		ActivatedAt:  now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	c.StateHistory = append(c.StateHistory, Event{
		Kind:      EventJourneyActivated,
		To:        def.InitialState,
		Reason:    "journey activated",
		Timestamp: now,
	})
	return c
}

// IsActive reports whether the context has not yet completed.
func (c *Context) IsActive() bool {
	return c.CompletedAt == nil
}

// ExecuteTransition moves the context to toState, appending a
// state_transition event (spec §8 invariant 5). now must be monotonically
// non-decreasing relative to UpdatedAt; callers pass the wall-clock time of
// the turn being processed.
func (c *Context) ExecuteTransition(toState, reason string, now time.Time) {
	from := c.CurrentState
	c.CurrentState = toState
	c.StateHistory = append(c.StateHistory, Event{
		Kind:      EventStateTransition,
		From:      from,
		To:        toState,
		Reason:    reason,
		Timestamp: now,
	})
	c.UpdatedAt = now
}

// Complete marks the context completed. A second call is a no-op (spec §8
// invariant 6, §4.7 "no-op with a warning").
func (c *Context) Complete(now time.Time) (warned bool) {
	if c.CompletedAt != nil {
		return true
	}
	t := now
	c.CompletedAt = &t
	c.StateHistory = append(c.StateHistory, Event{
		Kind:      EventJourneyCompleted,
		From:      c.CurrentState,
		Reason:    "journey completed",
		Timestamp: now,
	})
	c.UpdatedAt = now
	return false
}

// SetVariable assigns a session variable and updates UpdatedAt.
func (c *Context) SetVariable(key string, value any, now time.Time) {
	if c.Variables == nil {
		c.Variables = map[string]any{}
	}
	c.Variables[key] = value
	c.UpdatedAt = now
}

// String renders a short diagnostic identity for logging.
func (c *Context) String() string {
	return fmt.Sprintf("context{id=%s session=%s journey=%s state=%s}", c.ID, c.SessionID, c.JourneyID, c.CurrentState)
}
