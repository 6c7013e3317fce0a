package kafka

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/plugin/kslog"

	"relay/internal/logging"
)

func init() { Register("kgo", func() Client { return &KgoDriver{} }) }

// KgoDriver reads explicitly assigned partitions through franz-go's direct
// (group-less) consumer. A wakeup cancels the in-flight poll's context.
type KgoDriver struct {
	cfg Config
	cl  *kgo.Client
	adm *kadm.Client

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu          sync.Mutex
	assigned    map[TopicPartition]bool
	consuming   map[TopicPartition]bool
	pollCancel  context.CancelFunc
	wakePending bool
	woken       bool
	shut        bool
}

func (d *KgoDriver) Configure(config Config) error {
	d.cfg = config
	d.assigned = make(map[TopicPartition]bool)
	d.consuming = make(map[TopicPartition]bool)
	d.baseCtx, d.baseCancel = context.WithCancel(context.Background())

	opts := []kgo.Opt{
		kgo.SeedBrokers(config.Brokers...),
		kgo.ClientID(config.ClientID),
		kgo.WithLogger(kslog.New(logging.L())),
	}
	if config.TLSEn {
		opts = append(opts, kgo.DialTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	}
	if config.SASLUser != "" {
		opts = append(opts, kgo.SASL(plain.Auth{
			User: config.SASLUser,
			Pass: config.SASLPass,
		}.AsMechanism()))
	}

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return fmt.Errorf("kafka: kgo client: %w", err)
	}
	d.cl = cl
	d.adm = kadm.NewClient(cl)
	return nil
}

func (d *KgoDriver) Assign(tps []TopicPartition) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := make(map[TopicPartition]bool, len(tps))
	for _, tp := range tps {
		next[tp] = true
	}
	drop := make(map[string][]int32)
	for tp := range d.consuming {
		if !next[tp] {
			drop[tp.Topic] = append(drop[tp.Topic], tp.Partition)
			delete(d.consuming, tp)
		}
	}
	if len(drop) > 0 {
		d.cl.RemoveConsumePartitions(drop)
	}
	d.assigned = next
	return nil
}

func (d *KgoDriver) Seek(tp TopicPartition, offset int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.assigned[tp] {
		return fmt.Errorf("kafka: seek on unassigned partition %s", tp)
	}
	if d.consuming[tp] {
		d.cl.RemoveConsumePartitions(map[string][]int32{tp.Topic: {tp.Partition}})
	}
	d.cl.AddConsumePartitions(map[string]map[int32]kgo.Offset{
		tp.Topic: {tp.Partition: kgo.NewOffset().At(offset)},
	})
	d.consuming[tp] = true
	return nil
}

func (d *KgoDriver) Fetch(timeout time.Duration) ([]Record, error) {
	d.mu.Lock()
	if d.wakePending {
		d.wakePending = false
		d.mu.Unlock()
		return nil, ErrWakeup
	}
	ctx, cancel := context.WithTimeout(d.baseCtx, timeout)
	d.pollCancel = cancel
	d.woken = false
	d.mu.Unlock()
	defer cancel()

	fetches := d.cl.PollRecords(ctx, d.cfg.MaxPollRecords)

	d.mu.Lock()
	d.pollCancel = nil
	woken := d.woken
	d.mu.Unlock()
	if woken {
		return nil, ErrWakeup
	}

	for _, ferr := range fetches.Errors() {
		if errors.Is(ferr.Err, context.DeadlineExceeded) || errors.Is(ferr.Err, context.Canceled) {
			continue
		}
		return nil, fmt.Errorf("kafka: fetch %s:%d: %w", ferr.Topic, ferr.Partition, ferr.Err)
	}

	krecs := fetches.Records()
	if len(krecs) == 0 {
		return nil, nil
	}
	out := make([]Record, 0, len(krecs))
	for _, r := range krecs {
		out = append(out, fromKgoRecord(r))
	}
	return out, nil
}

func (d *KgoDriver) Wakeup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pollCancel != nil {
		d.woken = true
		d.pollCancel()
		return
	}
	d.wakePending = true
}

func (d *KgoDriver) BeginningOffsets(tps []TopicPartition) (map[TopicPartition]int64, error) {
	ctx, cancel := context.WithTimeout(d.baseCtx, d.cfg.TopicListTimeout)
	defer cancel()
	listed, err := d.adm.ListStartOffsets(ctx, topicsOf(tps)...)
	if err != nil {
		return nil, fmt.Errorf("kafka: list start offsets: %w", err)
	}
	return pickListed(listed, tps)
}

func (d *KgoDriver) EndOffsets(tps []TopicPartition) (map[TopicPartition]int64, error) {
	ctx, cancel := context.WithTimeout(d.baseCtx, d.cfg.TopicListTimeout)
	defer cancel()
	listed, err := d.adm.ListEndOffsets(ctx, topicsOf(tps)...)
	if err != nil {
		return nil, fmt.Errorf("kafka: list end offsets: %w", err)
	}
	return pickListed(listed, tps)
}

func (d *KgoDriver) Committed(tp TopicPartition) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(d.baseCtx, d.cfg.TopicListTimeout)
	defer cancel()
	resp, err := d.adm.FetchOffsets(ctx, d.cfg.GroupID)
	if err != nil {
		return 0, false, fmt.Errorf("kafka: fetch offsets for group %q: %w", d.cfg.GroupID, err)
	}
	o, ok := resp.Lookup(tp.Topic, tp.Partition)
	if !ok || o.At < 0 {
		return 0, false, nil
	}
	if o.Err != nil {
		return 0, false, fmt.Errorf("kafka: committed offset for %s: %w", tp, o.Err)
	}
	return o.At, true, nil
}

func (d *KgoDriver) Close(timeout time.Duration) error {
	d.mu.Lock()
	if d.shut {
		d.mu.Unlock()
		return nil
	}
	d.shut = true
	d.mu.Unlock()

	d.baseCancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.cl.Close()
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("kafka: close timed out after %s", timeout)
	}
}

func topicsOf(tps []TopicPartition) []string {
	seen := make(map[string]bool, len(tps))
	var topics []string
	for _, tp := range tps {
		if !seen[tp.Topic] {
			seen[tp.Topic] = true
			topics = append(topics, tp.Topic)
		}
	}
	return topics
}

func pickListed(listed kadm.ListedOffsets, tps []TopicPartition) (map[TopicPartition]int64, error) {
	out := make(map[TopicPartition]int64, len(tps))
	for _, tp := range tps {
		lo, ok := listed.Lookup(tp.Topic, tp.Partition)
		if !ok {
			return nil, fmt.Errorf("kafka: no listed offset for %s", tp)
		}
		if lo.Err != nil {
			return nil, fmt.Errorf("kafka: list offset for %s: %w", tp, lo.Err)
		}
		out[tp] = lo.Offset
	}
	return out, nil
}

func fromKgoRecord(r *kgo.Record) Record {
	rec := Record{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       r.Key,
		Value:     r.Value,
		Timestamp: r.Timestamp,
	}
	if len(r.Headers) > 0 {
		rec.Headers = make([]Header, 0, len(r.Headers))
		for _, h := range r.Headers {
			rec.Headers = append(rec.Headers, Header{Key: []byte(h.Key), Value: h.Value})
		}
	}
	return rec
}
