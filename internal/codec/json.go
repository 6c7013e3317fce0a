package codec

import (
	"encoding/json"
	"fmt"
)

func init() { Register("json", func() Codec { return &jsonCodec{} }) }

// jsonCodec decodes JSON payloads. With schemas enabled every payload is an
// envelope {"schema": …, "payload": …}; without, payloads are plain JSON and
// decoded values carry no schema.
type jsonCodec struct {
	schemas bool
}

func (c *jsonCodec) Configure(props map[string]any) error {
	if v, ok := props["schemas_enable"]; ok {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("codec: json: schemas_enable must be a bool, got %T", v)
		}
		c.schemas = b
	}
	return nil
}

type jsonEnvelope struct {
	Schema  *Schema         `json:"schema"`
	Payload json.RawMessage `json:"payload"`
}

func (c *jsonCodec) Decode(_ string, data []byte) (SchemaAndValue, error) {
	if len(data) == 0 {
		return SchemaAndValue{}, nil
	}
	if !c.schemas {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return SchemaAndValue{}, fmt.Errorf("codec: json: %w", err)
		}
		return SchemaAndValue{Value: v}, nil
	}
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return SchemaAndValue{}, fmt.Errorf("codec: json: %w", err)
	}
	if env.Schema == nil {
		return SchemaAndValue{}, fmt.Errorf("codec: json: schemas enabled but no schema/payload envelope")
	}
	var v any
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &v); err != nil {
			return SchemaAndValue{}, fmt.Errorf("codec: json: payload: %w", err)
		}
	}
	return SchemaAndValue{Schema: env.Schema, Value: v}, nil
}

func (c *jsonCodec) Encode(_ string, sv SchemaAndValue) ([]byte, error) {
	if !c.schemas {
		if sv.Value == nil {
			return nil, nil
		}
		b, err := json.Marshal(sv.Value)
		if err != nil {
			return nil, fmt.Errorf("codec: json: %w", err)
		}
		return b, nil
	}
	payload, err := json.Marshal(sv.Value)
	if err != nil {
		return nil, fmt.Errorf("codec: json: %w", err)
	}
	b, err := json.Marshal(jsonEnvelope{Schema: sv.Schema, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("codec: json: %w", err)
	}
	return b, nil
}
