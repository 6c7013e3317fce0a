package kafka

import (
	"errors"
	"fmt"
)

// ErrUnknownDriver is wrapped by NewClient for unregistered driver names.
var ErrUnknownDriver = errors.New("kafka: unsupported driver")

// Factory builds a Client (e.g., SaramaDriver, KgoDriver, …).
type Factory func() Client

var registry = map[string]Factory{}

// Register is called from each driver’s init().
func Register(name string, f Factory) {
	registry[name] = f
}

// NewClient returns a driver by name (“sarama”, “kgo”…).
func NewClient(name string) (Client, error) {
	if f, ok := registry[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownDriver, name)
}
