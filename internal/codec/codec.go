// Package codec converts raw Kafka payloads to schema'd values and back.
//
// Codecs are registered by name and instantiated per task, mirroring the
// driver registry in source/kafka. The decode side feeds the source task,
// the encode side feeds destination sinks.
package codec

import (
	"errors"
	"fmt"
)

// Type tags the shape of a decoded value.
type Type string

const (
	TypeBytes   Type = "bytes"
	TypeString  Type = "string"
	TypeBool    Type = "boolean"
	TypeInt64   Type = "int64"
	TypeFloat64 Type = "float64"
	TypeArray   Type = "array"
	TypeMap     Type = "map"
)

// Schema describes a decoded value. A nil *Schema means schemaless.
type Schema struct {
	Type     Type `json:"type"`
	Optional bool `json:"optional,omitempty"`
}

// Shared schema singletons; codecs hand these out rather than allocating.
var (
	Bytes          = &Schema{Type: TypeBytes}
	OptionalBytes  = &Schema{Type: TypeBytes, Optional: true}
	String         = &Schema{Type: TypeString}
	OptionalString = &Schema{Type: TypeString, Optional: true}
)

// SchemaAndValue pairs a decoded value with its schema.
type SchemaAndValue struct {
	Schema *Schema
	Value  any
}

// Codec turns raw bytes into schema'd values and back. Configure runs once
// before any Decode or Encode. The topic argument is the codec's converter
// topic, a fixed configured label, never the topic a record arrived on.
type Codec interface {
	Configure(props map[string]any) error
	Decode(topic string, data []byte) (SchemaAndValue, error)
	Encode(topic string, sv SchemaAndValue) ([]byte, error)
}

// ErrUnknown is wrapped by New for unregistered codec names.
var ErrUnknown = errors.New("codec: unknown codec")

// Factory builds an unconfigured Codec.
type Factory func() Codec

var registry = map[string]Factory{}

// Register is called from each builtin’s init().
func Register(name string, f Factory) {
	registry[name] = f
}

// New returns a fresh, unconfigured codec by name.
func New(name string) (Codec, error) {
	if f, ok := registry[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknown, name)
}
