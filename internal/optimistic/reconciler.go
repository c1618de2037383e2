// Package optimistic holds the client-side half of meeting navigation: a
// local replica that applies transitions immediately using the shared
// engine rules, then reconciles against each authoritative envelope as it
// arrives. Reconciliation is a pure state reduction; it never blocks and
// has no cancellation, an in-flight prediction is simply overwritten by
// the authoritative result.
package optimistic

import (
	"reflect"

	"github.com/convenehq/convene/internal/meeting"
	"github.com/convenehq/convene/internal/navigation"
)

// Client is one participant's local view of a meeting.
type Client struct {
	// SocketID identifies this client as a mutator; envelopes carrying it
	// describe actions this client already applied optimistically.
	SocketID      string
	IsFacilitator bool

	// Meeting is the local replica. Its FacilitatorStageID is the client's
	// base record of where the facilitator authoritatively was.
	Meeting *meeting.Meeting

	// LocalStageID is where this viewer is looking right now. It tracks
	// the facilitator while the viewer follows along and diverges when
	// the viewer jumps elsewhere.
	LocalStageID string

	typing        bool
	pendingFollow string
}

// NewClient builds a client replica from an authoritative snapshot. The
// viewer starts on the facilitator's stage.
func NewClient(m *meeting.Meeting, socketID string, isFacilitator bool) *Client {
	return &Client{
		SocketID:      socketID,
		IsFacilitator: isFacilitator,
		Meeting:       m.Clone(),
		LocalStageID:  m.FacilitatorStageID,
	}
}

// BeginInteraction marks the viewer as mid-edit (typing). While set, a
// facilitator move through an interruption-sensitive phase is deferred
// instead of yanking the viewer's position.
func (c *Client) BeginInteraction() {
	c.typing = true
}

// EndInteraction clears the typing flag and applies any deferred follow.
func (c *Client) EndInteraction() {
	c.typing = false
	if c.pendingFollow != "" {
		c.LocalStageID = c.pendingFollow
		c.pendingFollow = ""
	}
}

// PredictNavigate applies a transition to the local replica immediately,
// without waiting for the authority. Only the facilitator's client may
// predict authoritative moves; the returned delta mirrors what the
// authority is expected to produce.
func (c *Client) PredictNavigate(req navigation.Request) (*navigation.Delta, error) {
	actor := navigation.Actor{UserID: c.SocketID, IsFacilitator: c.IsFacilitator}
	delta, err := navigation.Compute(c.Meeting, actor, req)
	if err != nil {
		return nil, err
	}
	navigation.Apply(c.Meeting, delta)
	c.LocalStageID = delta.FacilitatorStageID
	return delta, nil
}

// JumpLocal moves only this viewer's local position. It never touches
// authoritative state.
func (c *Client) JumpLocal(stageID string) error {
	if err := navigation.CanJump(c.Meeting, stageID, c.IsFacilitator); err != nil {
		return err
	}
	c.LocalStageID = stageID
	return nil
}

// ApplyAuthoritative reconciles the local replica against an authoritative
// delta. Policy:
//   - Phases the transition touched are compared against the local
//     prediction and replaced only where they diverge; untouched phases
//     keep their local state.
//   - A viewer who was following the facilitator (local position equals
//     the old authoritative facilitator stage) is force-moved to the new
//     facilitator stage, unless they are mid-edit on an
//     interruption-sensitive phase, in which case the move is deferred
//     until EndInteraction.
//   - mutatorID equal to this client's socket id means the update was
//     already applied optimistically here; the follow step is skipped.
func (c *Client) ApplyAuthoritative(d *navigation.Delta, mutatorID string) {
	wasFollowing := c.LocalStageID == d.OldFacilitatorStage.ID

	for _, ap := range d.AffectedPhases {
		for pi := range c.Meeting.Phases {
			if c.Meeting.Phases[pi].ID != ap.ID {
				continue
			}
			if !reflect.DeepEqual(c.Meeting.Phases[pi], ap) {
				cp := ap
				cp.Stages = append([]meeting.Stage(nil), ap.Stages...)
				c.Meeting.Phases[pi] = cp
			}
			break
		}
	}
	c.Meeting.FacilitatorStageID = d.FacilitatorStageID

	if mutatorID == c.SocketID {
		// Echo: the optimistic prediction already moved the local stage.
		return
	}
	if !wasFollowing {
		return
	}
	if c.typing {
		if _, phase, ok := c.Meeting.StageByID(c.LocalStageID); ok && phase.PhaseType.InterruptionSensitive() {
			c.pendingFollow = d.FacilitatorStageID
			return
		}
	}
	c.LocalStageID = d.FacilitatorStageID
}
