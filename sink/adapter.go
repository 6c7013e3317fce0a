package sink

import (
	"fmt"

	"relay/internal/task"
)

// Adapter is the common behaviour every destination exposes. Push must not
// return before the record is handed off durably; the engine commits the
// record's source offset right after.
type Adapter interface {
	Configure(any) error           // driver-specific YAML ⇒ struct
	Push(*task.SourceRecord) error // deliver one record
	Close() error                  // idempotent
}

/*──────── registry ───────*/

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}
