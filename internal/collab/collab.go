// Package collab declares the external collaborators the core consumes as
// black boxes: task ordering, archival, telemetry, chat and email side
// channels, and suggested-action bookkeeping. The default implementations
// here are enough for local development and tests; production wires real
// services behind the same interfaces.
package collab

import (
	"context"

	"github.com/convenehq/convene/internal/logger"
	"github.com/convenehq/convene/internal/meeting"
)

// OrderingService assigns a stable sort order to snapshot tasks.
type OrderingService interface {
	ComputeSortOrders(ctx context.Context, tasks []meeting.TaskSnapshot) ([]meeting.TaskSnapshot, error)
}

// ArchiveCandidate is a done-but-not-archived task handed to archival.
type ArchiveCandidate struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// ArchivedTask is the archival service's record of an archived task.
type ArchivedTask struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// ArchivalService archives completed tasks and returns their summaries.
type ArchivalService interface {
	ArchiveTasks(ctx context.Context, candidates []ArchiveCandidate) ([]ArchivedTask, error)
}

// Telemetry records analytics events; fire-and-forget from the caller's
// point of view.
type Telemetry interface {
	RecordEvent(ctx context.Context, name string, userIDs []string, props map[string]interface{}) error
}

// ChatNotifier pings the team's external chat integration.
type ChatNotifier interface {
	NotifyMeetingEnded(ctx context.Context, meetingID, teamID string) error
}

// EmailSender delivers the closed-meeting summary email.
type EmailSender interface {
	SendSummaryEmail(ctx context.Context, m *meeting.Meeting) error
}

// Suggested action types.
const SuggestedActionTryActionMeeting = "tryActionMeeting"

// SuggestedActionService clears onboarding prompts. RemoveSuggestedAction
// returns the removed action's id, or "" when the user had none pending.
type SuggestedActionService interface {
	RemoveSuggestedAction(ctx context.Context, userID, actionType string) (string, error)
}

// StepOrdering is the default OrderingService: snapshot order becomes sort
// order, spaced out so later inserts can land between neighbors.
type StepOrdering struct{}

func (StepOrdering) ComputeSortOrders(_ context.Context, tasks []meeting.TaskSnapshot) ([]meeting.TaskSnapshot, error) {
	out := append([]meeting.TaskSnapshot(nil), tasks...)
	for i := range out {
		out[i].SortOrder = float64(i)
	}
	return out, nil
}

// TagArchival is the default ArchivalService: it marks each candidate with
// the archived tag and echoes it back as the summary.
type TagArchival struct{}

func (TagArchival) ArchiveTasks(_ context.Context, candidates []ArchiveCandidate) ([]ArchivedTask, error) {
	out := make([]ArchivedTask, len(candidates))
	for i, c := range candidates {
		out[i] = ArchivedTask{
			ID:      c.ID,
			Content: c.Content,
			Tags:    append(append([]string(nil), c.Tags...), meeting.TagArchived),
		}
	}
	return out, nil
}

// LogSideEffects implements the telemetry, chat and email collaborators by
// logging; the real transports live outside this repo.
type LogSideEffects struct {
	Log *logger.Logger
}

func (s *LogSideEffects) RecordEvent(_ context.Context, name string, userIDs []string, props map[string]interface{}) error {
	s.Log.Info("telemetry event", "event", name, "user_count", len(userIDs), "props", props)
	return nil
}

func (s *LogSideEffects) NotifyMeetingEnded(_ context.Context, meetingID, teamID string) error {
	s.Log.Info("chat notification", "meeting_id", meetingID, "team_id", teamID)
	return nil
}

func (s *LogSideEffects) SendSummaryEmail(_ context.Context, m *meeting.Meeting) error {
	s.Log.Info("summary email", "meeting_id", m.ID, "invitees", len(m.Invitees))
	return nil
}

// MemorySuggestedActions tracks pending suggested actions in memory.
type MemorySuggestedActions struct {
	// Pending maps userID -> actionType -> actionID.
	Pending map[string]map[string]string
}

func NewMemorySuggestedActions() *MemorySuggestedActions {
	return &MemorySuggestedActions{Pending: make(map[string]map[string]string)}
}

// Add registers a pending suggested action.
func (m *MemorySuggestedActions) Add(userID, actionType, actionID string) {
	if m.Pending[userID] == nil {
		m.Pending[userID] = make(map[string]string)
	}
	m.Pending[userID][actionType] = actionID
}

func (m *MemorySuggestedActions) RemoveSuggestedAction(_ context.Context, userID, actionType string) (string, error) {
	actions := m.Pending[userID]
	id, ok := actions[actionType]
	if !ok {
		return "", nil
	}
	delete(actions, actionType)
	return id, nil
}
