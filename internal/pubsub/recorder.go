package pubsub

import (
	"context"
	"sync"
)

// Recorder is an in-memory Publisher that captures envelopes for tests.
type Recorder struct {
	mu        sync.Mutex
	envelopes []Envelope
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish records the envelope.
func (r *Recorder) Publish(_ context.Context, topic Topic, payload Payload, opts SubOptions) {
	env, err := newEnvelope(topic, payload, opts)
	if err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes = append(r.envelopes, env)
}

// Envelopes returns a copy of everything published so far.
func (r *Recorder) Envelopes() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.envelopes...)
}

// ByTopic returns the envelopes published to one topic, in publish order.
func (r *Recorder) ByTopic(topic Topic) []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Envelope
	for _, env := range r.envelopes {
		if env.Topic == topic {
			out = append(out, env)
		}
	}
	return out
}

// ByKind returns the envelopes published to any topic of the given kind.
func (r *Recorder) ByKind(kind TopicKind) []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Envelope
	for _, env := range r.envelopes {
		if env.Topic.Kind == kind {
			out = append(out, env)
		}
	}
	return out
}
