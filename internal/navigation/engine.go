// Package navigation computes meeting stage transitions. Compute is pure:
// it takes a meeting snapshot and returns a delta without touching the
// input, so the same rules drive both the server authority and client-side
// optimistic prediction.
package navigation

import (
	"fmt"
	"sort"

	"github.com/convenehq/convene/internal/meeting"
)

// Actor describes who is requesting a transition.
type Actor struct {
	UserID        string
	IsFacilitator bool
}

// Request asks to move the facilitator pointer and/or mark a stage complete.
// At least one field must be set. Setting CompletedStageID to the current
// facilitator stage is the "complete current and advance" operation.
type Request struct {
	FacilitatorStageID string
	CompletedStageID   string
}

// StageRef is a minimal stage reference carried in a delta.
type StageRef struct {
	ID         string `json:"id"`
	IsComplete bool   `json:"isComplete"`
}

// UnlockedStage reports navigability flags granted by a transition.
type UnlockedStage struct {
	ID                       string `json:"id"`
	IsNavigable              bool   `json:"isNavigable"`
	IsNavigableByFacilitator bool   `json:"isNavigableByFacilitator"`
}

// Delta is the authoritative result of a transition. It carries full
// snapshots of every phase the transition touched so receivers can replace
// exactly the divergent slice of their local state and nothing else.
type Delta struct {
	MeetingID           string          `json:"meetingId"`
	FacilitatorStageID  string          `json:"facilitatorStageId"`
	OldFacilitatorStage StageRef        `json:"oldFacilitatorStage"`
	CompletedStageID    string          `json:"completedStageId,omitempty"`
	UnlockedStages      []UnlockedStage `json:"unlockedStages,omitempty"`
	// CompletedPhases lists the phase types whose last remaining stage was
	// completed by this transition.
	CompletedPhases []meeting.PhaseType `json:"completedPhases,omitempty"`
	AffectedPhases  []meeting.Phase     `json:"affectedPhases,omitempty"`
}

// Compute validates and computes a transition against a meeting snapshot.
// It never mutates m; the caller persists the returned delta via Apply.
func Compute(m *meeting.Meeting, actor Actor, req Request) (*Delta, error) {
	if m.Ended() {
		return nil, meeting.ErrMeetingAlreadyEnded
	}
	if !actor.IsFacilitator {
		return nil, meeting.ErrNotFacilitator
	}
	if req.FacilitatorStageID == "" && req.CompletedStageID == "" {
		return nil, fmt.Errorf("%w: empty transition request", meeting.ErrInvalidStage)
	}

	work := m.Clone()
	affected := map[string]bool{}

	d := &Delta{
		MeetingID:          m.ID,
		FacilitatorStageID: m.FacilitatorStageID,
	}

	if req.CompletedStageID != "" {
		completed, phase, ok := work.StageByID(req.CompletedStageID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", meeting.ErrInvalidStage, req.CompletedStageID)
		}
		if !completed.IsComplete {
			completed.IsComplete = true
			affected[phase.ID] = true
		}
		d.CompletedStageID = completed.ID
		if phaseComplete(phase) {
			d.CompletedPhases = append(d.CompletedPhases, phase.PhaseType)
		}

		// Completing the terminal vote stage materializes the discuss
		// phase from vote results. Guarded on the discuss phase being
		// empty so a replayed completion cannot duplicate stages.
		if phase.PhaseType == meeting.PhaseVote && isTerminalStage(phase, completed.ID) {
			if discuss, ok := work.PhaseByType(meeting.PhaseDiscuss); ok && len(discuss.Stages) == 0 {
				discuss.Stages = materializeDiscussStages(work)
				affected[discuss.ID] = true
			}
		}

		// Unlock the next sequential stage after the completed one.
		if next, ok := work.StageAfter(completed.ID); ok {
			if !next.IsNavigable || !next.IsNavigableByFacilitator {
				next.IsNavigable = true
				next.IsNavigableByFacilitator = true
				_, nextPhase, _ := work.StageByID(next.ID)
				affected[nextPhase.ID] = true
			}
			d.UnlockedStages = append(d.UnlockedStages, UnlockedStage{
				ID:                       next.ID,
				IsNavigable:              next.IsNavigable,
				IsNavigableByFacilitator: next.IsNavigableByFacilitator,
			})
		}
	}

	if req.FacilitatorStageID != "" {
		target, _, ok := work.StageByID(req.FacilitatorStageID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", meeting.ErrInvalidStage, req.FacilitatorStageID)
		}
		if !target.IsNavigable && !target.IsNavigableByFacilitator {
			return nil, fmt.Errorf("%w: stage %s is locked", meeting.ErrInvalidTransition, target.ID)
		}
		if target.IsComplete && target.ID != req.CompletedStageID {
			return nil, fmt.Errorf("%w: stage %s is complete", meeting.ErrInvalidTransition, target.ID)
		}
		d.FacilitatorStageID = target.ID
	}

	oldStage, _, ok := work.StageByID(m.FacilitatorStageID)
	if ok {
		d.OldFacilitatorStage = StageRef{ID: oldStage.ID, IsComplete: oldStage.IsComplete}
	}

	for pi := range work.Phases {
		if affected[work.Phases[pi].ID] {
			d.AffectedPhases = append(d.AffectedPhases, clonePhase(work.Phases[pi]))
		}
	}
	return d, nil
}

// Apply folds a delta into a meeting, replacing affected phases wholesale
// and moving the facilitator pointer. Used by the authority before
// persisting and by clients adopting an authoritative envelope.
func Apply(m *meeting.Meeting, d *Delta) {
	for _, ap := range d.AffectedPhases {
		for pi := range m.Phases {
			if m.Phases[pi].ID == ap.ID {
				m.Phases[pi] = clonePhase(ap)
				break
			}
		}
	}
	m.FacilitatorStageID = d.FacilitatorStageID
}

// CanJump reports whether a viewer may move their local position to the
// given stage. Facilitator-only stages stay locked for plain viewers.
func CanJump(m *meeting.Meeting, stageID string, isFacilitator bool) error {
	stage, _, ok := m.StageByID(stageID)
	if !ok {
		return fmt.Errorf("%w: %s", meeting.ErrInvalidStage, stageID)
	}
	if stage.IsNavigable {
		return nil
	}
	if stage.IsNavigableByFacilitator && isFacilitator {
		return nil
	}
	return fmt.Errorf("%w: stage %s is locked", meeting.ErrInvalidTransition, stageID)
}

// DiscussStageID derives the deterministic id of the discuss stage for a
// reflection group, so replays and optimistic predictions agree.
func DiscussStageID(meetingID, reflectionGroupID string) string {
	return meetingID + ":discuss:" + reflectionGroupID
}

func phaseComplete(p *meeting.Phase) bool {
	for _, s := range p.Stages {
		if !s.IsComplete {
			return false
		}
	}
	return len(p.Stages) > 0
}

func isTerminalStage(p *meeting.Phase, stageID string) bool {
	return len(p.Stages) > 0 && p.Stages[len(p.Stages)-1].ID == stageID
}

// materializeDiscussStages builds one discuss stage per reflection group
// with at least one vote, ordered by descending vote count; ties go to the
// earlier-created group. The first stage is unlocked so the facilitator can
// advance straight into discussion.
func materializeDiscussStages(m *meeting.Meeting) []meeting.Stage {
	groups := make([]meeting.ReflectionGroup, 0, len(m.ReflectionGroups))
	for _, g := range m.ReflectionGroups {
		if g.VoteCount > 0 {
			groups = append(groups, g)
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].VoteCount != groups[j].VoteCount {
			return groups[i].VoteCount > groups[j].VoteCount
		}
		return groups[i].SortOrder < groups[j].SortOrder
	})
	stages := make([]meeting.Stage, len(groups))
	for i, g := range groups {
		stages[i] = meeting.Stage{
			ID:                       DiscussStageID(m.ID, g.ID),
			PhaseType:                meeting.PhaseDiscuss,
			SortOrder:                i,
			IsNavigable:              i == 0,
			IsNavigableByFacilitator: i == 0,
			ReflectionGroupID:        g.ID,
		}
	}
	return stages
}

func clonePhase(p meeting.Phase) meeting.Phase {
	cp := p
	cp.Stages = append([]meeting.Stage(nil), p.Stages...)
	return cp
}
