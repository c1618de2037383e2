package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convenehq/convene/internal/logger"
)

type testPayload struct {
	MeetingID string `json:"meetingId"`
}

func (testPayload) PayloadType() string { return "TestPayload" }

func TestTopicKey(t *testing.T) {
	assert.Equal(t, "team:team-1", Topic{Kind: TopicTeam, ID: "team-1"}.Key())

	parsed, ok := parseTopicKey("task:user-9")
	require.True(t, ok)
	assert.Equal(t, Topic{Kind: TopicTask, ID: "user-9"}, parsed)

	_, ok = parseTopicKey("garbage")
	assert.False(t, ok)
	_, ok = parseTopicKey(":id")
	assert.False(t, ok)
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	ctx := context.Background()
	opts := SubOptions{MutatorID: "socket-1", OperationID: NewOperationID()}

	rec.Publish(ctx, Topic{Kind: TopicTeam, ID: "team-1"}, testPayload{MeetingID: "m1"}, opts)
	rec.Publish(ctx, Topic{Kind: TopicTask, ID: "user-1"}, testPayload{MeetingID: "m1"}, opts)

	require.Len(t, rec.Envelopes(), 2)
	teamEnvs := rec.ByTopic(Topic{Kind: TopicTeam, ID: "team-1"})
	require.Len(t, teamEnvs, 1)

	env := teamEnvs[0]
	assert.Equal(t, "TestPayload", env.Type)
	assert.Equal(t, "socket-1", env.MutatorID)
	assert.Equal(t, opts.OperationID, env.OperationID)

	var payload testPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "m1", payload.MeetingID)
}

func TestHub_RoutesToSubscribedClientsOnly(t *testing.T) {
	hub := NewHub(logger.NewNop())
	teamTopic := Topic{Kind: TopicTeam, ID: "team-1"}
	otherTopic := Topic{Kind: TopicTeam, ID: "team-2"}

	subscriber := NewClient(hub, nil, "socket-1", "user-1")
	bystander := NewClient(hub, nil, "socket-2", "user-2")
	hub.Subscribe(subscriber, teamTopic)
	hub.Subscribe(bystander, otherTopic)

	hub.Publish(context.Background(), teamTopic, testPayload{MeetingID: "m1"}, SubOptions{
		MutatorID:   "socket-1",
		OperationID: NewOperationID(),
	})

	select {
	case raw := <-subscriber.Send:
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		assert.Equal(t, teamTopic, env.Topic)
		// The originating socket receives its own envelope; suppression
		// is the receiver's call.
		assert.Equal(t, "socket-1", env.MutatorID)
	default:
		t.Fatal("subscriber did not receive the envelope")
	}

	select {
	case <-bystander.Send:
		t.Fatal("bystander must not receive the envelope")
	default:
	}

	assert.Equal(t, 1, hub.SubscriberCount(teamTopic))
	hub.Unsubscribe(subscriber, teamTopic)
	assert.Zero(t, hub.SubscriberCount(teamTopic))
}

func TestClient_CanSubscribe_UserScopedTopicsRequireOwnership(t *testing.T) {
	hub := NewHub(logger.NewNop())
	client := NewClient(hub, nil, "socket-1", "user-1")

	assert.True(t, client.canSubscribe(Topic{Kind: TopicNotification, ID: "user-1"}))
	assert.True(t, client.canSubscribe(Topic{Kind: TopicTask, ID: "user-1"}))
	assert.False(t, client.canSubscribe(Topic{Kind: TopicNotification, ID: "user-2"}))
	assert.False(t, client.canSubscribe(Topic{Kind: TopicTask, ID: "user-2"}))

	// Team and org streams are gated by the verified token, not here.
	assert.True(t, client.canSubscribe(Topic{Kind: TopicTeam, ID: "team-1"}))
	assert.True(t, client.canSubscribe(Topic{Kind: TopicOrganization, ID: "org-1"}))
}
