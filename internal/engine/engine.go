package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"relay/internal/logging"
	"relay/internal/offsets"
	"relay/internal/spec"
	"relay/internal/task"
	"relay/internal/telemetry"
	"relay/source/kafka"
)

// Engine runs the source tasks, fans their records out to the sinks and
// commits a resume offset once every sink has accepted the record.
type Engine struct {
	file  spec.File
	kc    kafka.Config
	mon   *kafka.Monitor
	store offsets.Store
	sinks []namedSink
	log   *slog.Logger

	initial []kafka.Assignment
	gen     *generation
}

// generation is one set of running tasks. A partition change retires the
// whole set and starts a fresh one against the same offset store.
type generation struct {
	tasks []*task.Task
	stop  chan struct{}
	wg    sync.WaitGroup
}

var errGenerationStopped = errors.New("engine: generation stopped")

func newEngine(file spec.File, kc kafka.Config, mon *kafka.Monitor, store offsets.Store, sinks []namedSink, initial []kafka.Assignment) *Engine {
	return &Engine{
		file:    file,
		kc:      kc,
		mon:     mon,
		store:   store,
		sinks:   sinks,
		initial: initial,
		log:     logging.With("engine"),
	}
}

// Run blocks until ctx is cancelled or task startup fails. On the way out
// every task is stopped within its shutdown budget, then the monitor, sinks
// and offset store are closed.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.startTasks(ctx, e.initial); err != nil {
		e.shutdown()
		return err
	}

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case asg := <-e.mon.Changes():
			e.log.Info("matched partitions changed, restarting tasks", "partitions", len(asg))
			e.stopTasks()
			if err := e.startTasks(ctx, asg); err != nil {
				e.shutdown()
				return err
			}
		}
	}
}

/*──────── task lifecycle ───────*/

func (e *Engine) startTasks(ctx context.Context, asg []kafka.Assignment) error {
	gen := &generation{stop: make(chan struct{})}
	for i, slot := range splitAssignments(asg, e.file.Tasks) {
		if len(slot) == 0 {
			continue
		}
		client, err := kafka.NewClient(e.file.Source.Driver)
		if err != nil {
			stopAll(gen.tasks)
			return err
		}
		t := task.New(strconv.Itoa(i), client, e.store)
		if err := t.Start(slot, e.kc); err != nil {
			stopAll(gen.tasks)
			return fmt.Errorf("start %s: %w", t, err)
		}
		gen.tasks = append(gen.tasks, t)

		gen.wg.Add(1)
		go func() {
			defer gen.wg.Done()
			e.schedule(ctx, gen, t)
		}()
	}
	e.gen = gen
	return nil
}

func (e *Engine) stopTasks() {
	if e.gen == nil {
		return
	}
	close(e.gen.stop)
	stopAll(e.gen.tasks)
	e.gen.wg.Wait()
	e.gen = nil
}

func stopAll(tasks []*task.Task) {
	for _, t := range tasks {
		if err := t.Stop(); err != nil {
			logging.With("engine").Error("stop failed", "task", t.String(), "error", err)
		}
	}
}

func (e *Engine) shutdown() {
	e.stopTasks()
	if err := e.mon.Close(); err != nil {
		e.log.Error("monitor close failed", "error", err)
	}
	for _, s := range e.sinks {
		if err := s.Close(); err != nil {
			e.log.Error("sink close failed", "sink", s.name, "error", err)
		}
	}
	if err := e.store.Close(); err != nil {
		e.log.Error("offset store close failed", "error", err)
	}
}

/*──────── record flow ───────*/

// schedule repeats poll → deliver → commit until the task leaves Running.
func (e *Engine) schedule(ctx context.Context, gen *generation, t *task.Task) {
	for t.State() == task.Running && ctx.Err() == nil {
		batch, err := t.Poll()
		if err != nil {
			e.log.Error("poll failed", "task", t.String(), "error", err)
			select {
			case <-ctx.Done():
			case <-gen.stop:
			case <-time.After(time.Second):
			}
			continue
		}
		for i := range batch {
			if err := e.deliver(ctx, gen, &batch[i]); err != nil {
				return
			}
			e.commit(&batch[i])
		}
	}
}

// deliver pushes one record to every sink, retrying until all of them accept
// it or the generation ends. An offset is committed only after deliver
// returns nil, so an abandoned record is re-read on the next start.
func (e *Engine) deliver(ctx context.Context, gen *generation, rec *task.SourceRecord) error {
	for {
		err := e.pushAll(rec)
		if err == nil {
			return nil
		}
		e.log.Error("sink push failed, will retry",
			"source", rec.SourcePartition, "offset", rec.SourceOffset, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-gen.stop:
			return errGenerationStopped
		case <-time.After(time.Second):
		}
	}
}

func (e *Engine) pushAll(rec *task.SourceRecord) error {
	for _, s := range e.sinks {
		if err := s.Push(rec); err != nil {
			return fmt.Errorf("sink %s: %w", s.name, err)
		}
		telemetry.SinkPushes.WithLabelValues(s.name).Inc()
	}
	return nil
}

// commit stores offset+1, the position the partition resumes from.
func (e *Engine) commit(rec *task.SourceRecord) {
	next := rec.SourceOffset + 1
	if err := e.store.Commit(rec.SourcePartition, next); err != nil {
		e.log.Error("offset commit failed", "source", rec.SourcePartition, "offset", next, "error", err)
		return
	}
	tp, err := kafka.ParseTopicPartition(rec.SourcePartition)
	if err != nil {
		return
	}
	p := strconv.Itoa(int(tp.Partition))
	telemetry.OffsetCommits.WithLabelValues(tp.Topic, p).Inc()
	telemetry.LastOffset.WithLabelValues(tp.Topic, p).Set(float64(next))
}

// splitAssignments deals partitions round-robin across n task slots. Slots
// beyond the partition count come back empty.
func splitAssignments(asg []kafka.Assignment, n int) [][]kafka.Assignment {
	if n < 1 {
		n = 1
	}
	out := make([][]kafka.Assignment, n)
	for i, a := range asg {
		out[i%n] = append(out[i%n], a)
	}
	return out
}
