package meeting

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus enumerates the task board columns.
type TaskStatus string

const (
	StatusActive TaskStatus = "active"
	StatusStuck  TaskStatus = "stuck"
	StatusFuture TaskStatus = "future"
	StatusDone   TaskStatus = "done"
)

// Well-known task tags.
const (
	TagPrivate  = "private"
	TagArchived = "archived"
)

// Task is a team task on the canonical board.
type Task struct {
	ID         string     `json:"id"`
	TeamID     string     `json:"teamId"`
	Content    string     `json:"content"`
	Status     TaskStatus `json:"status"`
	Tags       []string   `json:"tags"`
	AssigneeID string     `json:"assigneeId"`
	CreatedAt  time.Time  `json:"createdAt"`
	SortOrder  float64    `json:"sortOrder"`
}

// HasTag reports whether the task carries the given tag.
func (t Task) HasTag(tag string) bool {
	for _, have := range t.Tags {
		if have == tag {
			return true
		}
	}
	return false
}

// SnapshotTaskID identifies a meeting-time copy of a task. The canonical
// task id is never mutated; the snapshot is keyed meetingId::taskId.
type SnapshotTaskID struct {
	MeetingID string
	TaskID    string
}

func (id SnapshotTaskID) String() string {
	return id.MeetingID + "::" + id.TaskID
}

// ParseSnapshotTaskID splits a composite snapshot id back into its parts.
func ParseSnapshotTaskID(s string) (SnapshotTaskID, error) {
	meetingID, taskID, ok := strings.Cut(s, "::")
	if !ok || meetingID == "" || taskID == "" {
		return SnapshotTaskID{}, fmt.Errorf("malformed snapshot task id %q", s)
	}
	return SnapshotTaskID{MeetingID: meetingID, TaskID: taskID}, nil
}

// TaskSnapshot is the slice of a task frozen into a completed meeting.
type TaskSnapshot struct {
	ID         string     `json:"id"`
	Content    string     `json:"content"`
	Status     TaskStatus `json:"status"`
	Tags       []string   `json:"tags"`
	AssigneeID string     `json:"assigneeId"`
	SortOrder  float64    `json:"sortOrder"`
}

// SnapshotTask freezes a task into a meeting under its composite id.
func SnapshotTask(meetingID string, t Task) TaskSnapshot {
	return TaskSnapshot{
		ID:         SnapshotTaskID{MeetingID: meetingID, TaskID: t.ID}.String(),
		Content:    t.Content,
		Status:     t.Status,
		Tags:       append([]string(nil), t.Tags...),
		AssigneeID: t.AssigneeID,
	}
}
