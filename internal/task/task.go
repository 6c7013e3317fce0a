// Package task implements the source-side poll loop. A Task owns one bus
// client over a fixed set of partitions: it resolves where to start reading,
// turns fetched records into SourceRecords, and tears the client down within
// a bounded shutdown budget.
package task

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"relay/internal/codec"
	"relay/internal/logging"
	"relay/internal/offsets"
	"relay/internal/telemetry"
	"relay/internal/version"
	"relay/source/kafka"
)

// Task drives one bus client. Start, Poll and Stop may be called from
// different goroutines; Poll is not meant to run concurrently with Poll.
type Task struct {
	id     string
	client kafka.Client
	store  offsets.Reader

	cfg        kafka.Config
	keyCodec   codec.Codec
	valueCodec codec.Codec

	mu        sync.Mutex
	state     State
	fetching  bool
	fetchDone chan struct{} // per-cycle, closed when the in-flight cycle drains
	stopped   chan struct{} // closed once the client is closed
}

// New builds a Task around an unconfigured client. The task owns the client
// from here on: Start configures it, Stop closes it.
func New(id string, client kafka.Client, store offsets.Reader) *Task {
	return &Task{
		id:      id,
		client:  client,
		store:   store,
		stopped: make(chan struct{}),
	}
}

func (t *Task) String() string { return "task/" + t.id }

// State reports the task's lifecycle position.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Version reports the build identity, for diagnostics.
func (t *Task) Version() string { return version.String() }

// Start configures the client, resolves a seek position for every assignment
// and moves the task to Running. Unknown or misconfigured codecs are fatal,
// as is a missing committed offset under auto_offset_reset=none.
func (t *Task) Start(assignments []kafka.Assignment, cfg kafka.Config) error {
	t.mu.Lock()
	if t.state != Created {
		s := t.state
		t.mu.Unlock()
		return fmt.Errorf("task: cannot start from state %s", s)
	}
	t.mu.Unlock()

	log := logging.With("task")
	log.Info("starting", "task", t.id, "assignments", len(assignments))
	t.cfg = cfg

	kc, err := codec.New(cfg.KeyCodec.Name)
	if err != nil {
		return fmt.Errorf("task: key codec: %w", err)
	}
	if err := kc.Configure(cfg.KeyCodec.Props); err != nil {
		return fmt.Errorf("task: key codec: %w", err)
	}
	vc, err := codec.New(cfg.ValueCodec.Name)
	if err != nil {
		return fmt.Errorf("task: value codec: %w", err)
	}
	if err := vc.Configure(cfg.ValueCodec.Props); err != nil {
		return fmt.Errorf("task: value codec: %w", err)
	}
	t.keyCodec, t.valueCodec = kc, vc

	partitions := make([]kafka.TopicPartition, len(assignments))
	keys := make([]string, len(assignments))
	for i, a := range assignments {
		partitions[i] = a.TopicPartition()
		keys[i] = partitions[i].String()
	}
	stored, err := t.store.Offsets(keys)
	if err != nil {
		return fmt.Errorf("task: offset lookup: %w", err)
	}

	if err := t.client.Configure(cfg); err != nil {
		return fmt.Errorf("task: configure client: %w", err)
	}

	resolved, skipped, err := resolveOffsets(partitions, stored, cfg.ResetPolicy, t.client)
	if err != nil {
		_ = t.client.Close(cfg.MaxShutdownWait)
		return err
	}
	if len(skipped) > 0 {
		telemetry.PartitionsSkipped.Add(float64(len(skipped)))
	}

	assign := make([]kafka.TopicPartition, 0, len(resolved))
	for tp := range resolved {
		assign = append(assign, tp)
	}
	if err := t.client.Assign(assign); err != nil {
		_ = t.client.Close(cfg.MaxShutdownWait)
		return fmt.Errorf("task: assign: %w", err)
	}
	for tp, off := range resolved {
		log.Debug("seek", "task", t.id, "partition", tp.String(), "offset", off)
		if err := t.client.Seek(tp, off); err != nil {
			_ = t.client.Close(cfg.MaxShutdownWait)
			return fmt.Errorf("task: seek %s to %d: %w", tp, off, err)
		}
	}

	t.mu.Lock()
	t.state = Running
	t.mu.Unlock()
	log.Info("running", "task", t.id, "partitions", len(assign), "skipped", len(skipped))
	return nil
}

// Poll runs one fetch-transform cycle and returns the batch in fetch order.
// Unless the task is Running it returns an empty batch immediately, so no
// new fetch starts once a stop has been requested. A fetch interrupted by
// Stop's wakeup is an empty cycle, not an error.
func (t *Task) Poll() ([]SourceRecord, error) {
	t.mu.Lock()
	if t.state != Running {
		t.mu.Unlock()
		return nil, nil
	}
	t.fetching = true
	done := make(chan struct{})
	t.fetchDone = done
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.fetching = false
		t.mu.Unlock()
		close(done)
	}()

	raw, err := t.client.Fetch(t.cfg.PollTimeout)
	if err != nil {
		if errors.Is(err, kafka.ErrWakeup) {
			logging.With("task").Info("fetch woken up, probably shutting down", "task", t.id)
			telemetry.PollCycles.WithLabelValues(t.id, "wakeup").Inc()
			return nil, nil
		}
		telemetry.PollCycles.WithLabelValues(t.id, "error").Inc()
		return nil, fmt.Errorf("task: fetch: %w", err)
	}

	records := make([]SourceRecord, 0, len(raw))
	for _, r := range raw {
		rec, err := t.transform(r)
		if err != nil {
			telemetry.PollCycles.WithLabelValues(t.id, "error").Inc()
			return nil, err
		}
		records = append(records, rec)
		telemetry.Records.WithLabelValues(r.Topic).Inc()
	}
	if len(records) == 0 {
		telemetry.PollCycles.WithLabelValues(t.id, "empty").Inc()
	} else {
		telemetry.PollCycles.WithLabelValues(t.id, "ok").Inc()
	}
	return records, nil
}

// Stop is idempotent: however many goroutines call it, the first to arrive
// performs the shutdown and every caller returns within roughly the
// configured max_shutdown_wait. An in-flight cycle is woken and allowed to
// drain before the client is closed.
func (t *Task) Stop() error {
	start := time.Now()
	log := logging.With("task")

	t.mu.Lock()
	switch t.state {
	case Stopped:
		t.mu.Unlock()
		return nil
	case Created:
		// never started, nothing to close
		t.state = Stopped
		close(t.stopped)
		t.mu.Unlock()
		return nil
	case Stopping:
		t.mu.Unlock()
		select {
		case <-t.stopped:
		case <-time.After(t.cfg.MaxShutdownWait):
			log.Warn("timed out waiting for concurrent stop", "task", t.id)
		}
		return nil
	}

	// Running: this caller owns the shutdown.
	t.state = Stopping
	fetching := t.fetching
	done := t.fetchDone
	t.mu.Unlock()

	log.Info("stop requested, waking up client", "task", t.id)
	t.client.Wakeup()
	if fetching {
		log.Info("cycle in flight, waiting for it to drain", "task", t.id)
		select {
		case <-done:
		case <-time.After(remainingWait(start, t.cfg.MaxShutdownWait)):
			log.Warn("gave up waiting for in-flight cycle", "task", t.id)
		}
	}
	log.Info("closing client", "task", t.id)
	err := t.client.Close(remainingWait(start, t.cfg.MaxShutdownWait))

	t.mu.Lock()
	t.state = Stopped
	close(t.stopped)
	t.mu.Unlock()
	log.Info("stopped", "task", t.id)
	if err != nil {
		return fmt.Errorf("task: close client: %w", err)
	}
	return nil
}

// remainingWait is the shutdown budget left since start, floored at zero.
func remainingWait(start time.Time, budget time.Duration) time.Duration {
	r := budget - time.Since(start)
	if r < 0 {
		return 0
	}
	return r
}
