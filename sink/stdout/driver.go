package stdout

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"relay/internal/codec"
	"relay/internal/task"
	"relay/sink"
)

/* ────────── public YAML config ────────── */
type Config struct {
	DelayMS      int  `yaml:"delay_ms"`      // artificial per-record delay
	PrintCounter bool `yaml:"print_counter"` // prepend seq#
	TruncateAt   int  `yaml:"truncate_at"`   // clip rendered key/value, 0 = off
}

/* ────────── driver ────────── */
type driver struct {
	cfg Config
}

var seq uint64

/* ────────── sink.Adapter ────────── */
func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	d.cfg = c
	return nil
}

func (d *driver) Push(r *task.SourceRecord) error {
	if d.cfg.DelayMS > 0 {
		time.Sleep(time.Duration(d.cfg.DelayMS) * time.Millisecond)
	}

	line := fmt.Sprintf("%s@%d %s key=%s value=%s headers=%d",
		r.SourcePartition, r.SourceOffset, r.Topic,
		d.render(r.Key), d.render(r.Value), len(r.Headers))
	if d.cfg.PrintCounter {
		line = fmt.Sprintf("[sink %06d] %s", atomic.AddUint64(&seq, 1), line)
	}
	fmt.Println(line)
	return nil
}

func (d *driver) Close() error { return nil }

/* ────────── rendering ────────── */

func (d *driver) render(sv codec.SchemaAndValue) string {
	var s string
	switch v := sv.Value.(type) {
	case nil:
		return "<nil>"
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		s = fmt.Sprintf("%v", v)
	}
	s = strings.ToValidUTF8(s, "?")
	if d.cfg.TruncateAt > 0 && len(s) > d.cfg.TruncateAt {
		s = s[:d.cfg.TruncateAt] + "…"
	}
	return s
}

/* ────────── auto-register ────────── */
func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
