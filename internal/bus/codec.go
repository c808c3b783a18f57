package bus

import (
	"encoding/json"
	"fmt"

	"searchgate.io/internal/ids"
	"searchgate.io/internal/model"
)

const (
	classKey      = "class"
	envelopeIDKey = "envelope_id"
)

// Envelope is the serialised form of a message on a queue: a JSON object with a class
// discriminator and the message fields flattened at the top level.
type Envelope struct {
	ID    string
	Class Variant
	Data  []byte
}

// Encode serialises msg with a fresh envelope id.
func Encode(msg Message) (Envelope, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", msg.Variant(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", msg.Variant(), err)
	}
	id := ids.New()
	class, _ := json.Marshal(string(msg.Variant()))
	envID, _ := json.Marshal(id)
	fields[classKey] = class
	fields[envelopeIDKey] = envID

	data, err := json.Marshal(fields)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", msg.Variant(), err)
	}
	return Envelope{ID: id, Class: msg.Variant(), Data: data}, nil
}

// Decode rebuilds a message from its envelope bytes.
func Decode(data []byte) (Message, Envelope, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, Envelope{}, fmt.Errorf("%w: envelope: %v", model.ErrInvalidFormat, err)
	}
	var env Envelope
	env.Data = data
	if raw, ok := fields[classKey]; ok {
		var class string
		if err := json.Unmarshal(raw, &class); err != nil {
			return nil, env, fmt.Errorf("%w: class: %v", model.ErrInvalidFormat, err)
		}
		env.Class = Variant(class)
	}
	if raw, ok := fields[envelopeIDKey]; ok {
		_ = json.Unmarshal(raw, &env.ID)
	}
	factory, ok := factories[env.Class]
	if !ok {
		return nil, env, fmt.Errorf("%w: unknown class %q", model.ErrInvalidFormat, env.Class)
	}
	delete(fields, classKey)
	delete(fields, envelopeIDKey)
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, env, err
	}
	msg := factory()
	if err := json.Unmarshal(body, msg); err != nil {
		return nil, env, fmt.Errorf("%w: %s: %v", model.ErrInvalidFormat, env.Class, err)
	}
	return msg, env, nil
}
