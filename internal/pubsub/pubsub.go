// Package pubsub is the notification fan-out protocol. State-changing
// operations publish typed payloads to narrowly scoped topics; every
// receiver subscribed to a topic gets the envelope unconditionally, and
// echo suppression against the originating client happens receiver-side
// using the envelope's mutator id.
package pubsub

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// TopicKind scopes a topic to an entity type.
type TopicKind string

const (
	TopicTeam         TopicKind = "team"
	TopicOrganization TopicKind = "organization"
	// TopicNotification addresses a single user's notification stream.
	TopicNotification TopicKind = "notification"
	TopicInvitation   TopicKind = "invitation"
	TopicOrgApproval  TopicKind = "orgApproval"
	// TopicTask addresses a single user's task stream.
	TopicTask TopicKind = "task"
)

// Topic addresses one entity's subscription channel.
type Topic struct {
	Kind TopicKind `json:"kind"`
	ID   string    `json:"id"`
}

// Key returns the routing key clients subscribe on.
func (t Topic) Key() string {
	return string(t.Kind) + ":" + t.ID
}

// Payload is implemented by every notification payload variant.
type Payload interface {
	PayloadType() string
}

// SubOptions carries the routing metadata emitted with every envelope of
// one logical server operation.
type SubOptions struct {
	// MutatorID identifies the client socket that originated the action.
	// Receivers compare it against their own socket id to skip an update
	// they already applied optimistically.
	MutatorID string `json:"mutatorId,omitempty"`
	// OperationID groups all envelopes emitted by one server operation so
	// receivers can batch read-repopulation.
	OperationID string `json:"operationId"`
}

// NewOperationID mints the id shared by all envelopes of one operation.
func NewOperationID() string {
	return uuid.NewString()
}

// Envelope is the unit of delivery.
type Envelope struct {
	Topic       Topic           `json:"topic"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	MutatorID   string          `json:"mutatorId,omitempty"`
	OperationID string          `json:"operationId"`
}

// Publisher fans out an envelope to every subscriber of a topic. The
// publish must happen only after the state mutation it describes has
// durably committed; the publisher itself gives no cross-operation
// ordering guarantee.
type Publisher interface {
	Publish(ctx context.Context, topic Topic, payload Payload, opts SubOptions)
}

func newEnvelope(topic Topic, payload Payload, opts SubOptions) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Topic:       topic,
		Type:        payload.PayloadType(),
		Payload:     raw,
		MutatorID:   opts.MutatorID,
		OperationID: opts.OperationID,
	}, nil
}
