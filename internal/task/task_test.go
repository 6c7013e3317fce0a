package task

import (
	"errors"
	"sync"
	"testing"
	"time"

	"relay/internal/codec"
	"relay/internal/offsets"
	"relay/source/kafka"
)

// fakeClient is an in-memory kafka.Client. Fetch serves canned batches, or
// blocks on wake/release channels for the shutdown tests.
type fakeClient struct {
	mu sync.Mutex

	cfg       kafka.Config
	assigned  []kafka.TopicPartition
	seeks     map[kafka.TopicPartition]int64
	beginning map[kafka.TopicPartition]int64
	end       map[kafka.TopicPartition]int64
	committed map[kafka.TopicPartition]int64

	beginningCalls int
	endCalls       int
	committedCalls int

	batches [][]kafka.Record
	fetches int

	blockOnWake bool          // Fetch waits for Wakeup (or timeout)
	release     chan struct{} // non-nil: Fetch waits here and ignores Wakeup

	wake     chan struct{}
	wakeOnce sync.Once
	wakeups  int

	closed bool
	events []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		seeks: map[kafka.TopicPartition]int64{},
		wake:  make(chan struct{}),
	}
}

func (f *fakeClient) event(name string) {
	f.mu.Lock()
	f.events = append(f.events, name)
	f.mu.Unlock()
}

func (f *fakeClient) Configure(cfg kafka.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	return nil
}

func (f *fakeClient) Assign(tps []kafka.TopicPartition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned = append([]kafka.TopicPartition(nil), tps...)
	return nil
}

func (f *fakeClient) Seek(tp kafka.TopicPartition, off int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks[tp] = off
	return nil
}

func (f *fakeClient) Fetch(timeout time.Duration) ([]kafka.Record, error) {
	f.mu.Lock()
	f.fetches++
	blockOnWake := f.blockOnWake
	release := f.release
	f.mu.Unlock()

	defer f.event("fetch-return")
	if release != nil {
		<-release
		return nil, nil
	}
	if blockOnWake {
		select {
		case <-f.wake:
			return nil, kafka.ErrWakeup
		case <-time.After(timeout):
			return nil, nil
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeClient) Wakeup() {
	f.mu.Lock()
	f.wakeups++
	f.mu.Unlock()
	f.wakeOnce.Do(func() { close(f.wake) })
}

func (f *fakeClient) BeginningOffsets(tps []kafka.TopicPartition) (map[kafka.TopicPartition]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beginningCalls++
	out := map[kafka.TopicPartition]int64{}
	for _, tp := range tps {
		out[tp] = f.beginning[tp]
	}
	return out, nil
}

func (f *fakeClient) EndOffsets(tps []kafka.TopicPartition) (map[kafka.TopicPartition]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endCalls++
	out := map[kafka.TopicPartition]int64{}
	for _, tp := range tps {
		out[tp] = f.end[tp]
	}
	return out, nil
}

func (f *fakeClient) Committed(tp kafka.TopicPartition) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committedCalls++
	off, ok := f.committed[tp]
	return off, ok, nil
}

func (f *fakeClient) Close(timeout time.Duration) error {
	f.event("close")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func testConfig() kafka.Config {
	return kafka.Config{
		Brokers:         []string{"localhost:9092"},
		ResetPolicy:     kafka.ResetEarliest,
		PollTimeout:     5 * time.Second,
		MaxShutdownWait: 500 * time.Millisecond,
		IncludeHeaders:  true,
		KeyCodec:        kafka.CodecCfg{Name: "bytes", Topic: "keys"},
		ValueCodec:      kafka.CodecCfg{Name: "bytes", Topic: "values"},
	}
}

func TestStartSeeksStoredOffset(t *testing.T) {
	store := offsets.NewMemory()
	if err := store.Commit("orders:0", 42); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	fc := newFakeClient()
	tk := New("0", fc, store)

	err := tk.Start([]kafka.Assignment{{Leader: 1, Topic: "orders", Partition: 0}}, testConfig())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tk.Stop()

	tp := kafka.TopicPartition{Topic: "orders", Partition: 0}
	if got := fc.seeks[tp]; got != 42 {
		t.Fatalf("want seek to 42, got %d", got)
	}
	if len(fc.assigned) != 1 || fc.assigned[0] != tp {
		t.Fatalf("unexpected assignment: %v", fc.assigned)
	}
	if fc.beginningCalls+fc.endCalls+fc.committedCalls != 0 {
		t.Fatal("stored offset must win without any broker offset lookups")
	}
	if tk.State() != Running {
		t.Fatalf("want Running, got %s", tk.State())
	}
}

func TestStartUnknownCodecIsFatal(t *testing.T) {
	cfg := testConfig()
	cfg.KeyCodec.Name = "nope"
	tk := New("0", newFakeClient(), offsets.NewMemory())
	err := tk.Start([]kafka.Assignment{{Topic: "orders", Partition: 0}}, cfg)
	if !errors.Is(err, codec.ErrUnknown) {
		t.Fatalf("want codec.ErrUnknown, got %v", err)
	}
	if tk.State() != Created {
		t.Fatalf("failed start must not advance state, got %s", tk.State())
	}
}

func TestStartTwiceRejected(t *testing.T) {
	tk := New("0", newFakeClient(), offsets.NewMemory())
	if err := tk.Start([]kafka.Assignment{{Topic: "orders", Partition: 0}}, testConfig()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tk.Stop()
	if err := tk.Start(nil, testConfig()); err == nil {
		t.Fatal("second Start must fail")
	}
}

func TestPollPreservesFetchOrder(t *testing.T) {
	fc := newFakeClient()
	fc.batches = [][]kafka.Record{{
		{Topic: "orders", Partition: 0, Offset: 10, Value: []byte("a")},
		{Topic: "orders", Partition: 1, Offset: 3, Value: []byte("b")},
		{Topic: "orders", Partition: 0, Offset: 11, Value: []byte("c")},
	}}
	store := offsets.NewMemory()
	store.Commit("orders:0", 10)
	store.Commit("orders:1", 3)
	tk := New("0", fc, store)
	if err := tk.Start([]kafka.Assignment{
		{Topic: "orders", Partition: 0},
		{Topic: "orders", Partition: 1},
	}, testConfig()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tk.Stop()

	recs, err := tk.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("want 3 records, got %d", len(recs))
	}
	wantOffsets := []int64{10, 3, 11}
	wantParts := []string{"orders:0", "orders:1", "orders:0"}
	for i, r := range recs {
		if r.SourceOffset != wantOffsets[i] || r.SourcePartition != wantParts[i] {
			t.Fatalf("record %d out of order: %s@%d", i, r.SourcePartition, r.SourceOffset)
		}
	}
}

func TestPollBeforeStartIsEmpty(t *testing.T) {
	tk := New("0", newFakeClient(), offsets.NewMemory())
	recs, err := tk.Poll()
	if err != nil || recs != nil {
		t.Fatalf("want empty cycle, got %v, %v", recs, err)
	}
}

func TestNoFetchAfterStop(t *testing.T) {
	fc := newFakeClient()
	store := offsets.NewMemory()
	store.Commit("orders:0", 0)
	tk := New("0", fc, store)
	if err := tk.Start([]kafka.Assignment{{Topic: "orders", Partition: 0}}, testConfig()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tk.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if tk.State() != Stopped {
		t.Fatalf("want Stopped, got %s", tk.State())
	}
	if !fc.closed {
		t.Fatal("client must be closed")
	}

	before := fc.fetches
	for i := 0; i < 3; i++ {
		recs, err := tk.Poll()
		if err != nil || len(recs) != 0 {
			t.Fatalf("poll after stop must be empty, got %v, %v", recs, err)
		}
	}
	if fc.fetches != before {
		t.Fatalf("no fetch may start after stop, got %d new", fc.fetches-before)
	}
}

func TestStopWakesBlockedFetch(t *testing.T) {
	fc := newFakeClient()
	fc.blockOnWake = true
	store := offsets.NewMemory()
	store.Commit("orders:0", 0)
	tk := New("0", fc, store)
	if err := tk.Start([]kafka.Assignment{{Topic: "orders", Partition: 0}}, testConfig()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	type pollResult struct {
		recs []SourceRecord
		err  error
	}
	resCh := make(chan pollResult, 1)
	go func() {
		recs, err := tk.Poll()
		resCh <- pollResult{recs, err}
	}()

	// give the poll a moment to reach the blocking fetch
	time.Sleep(20 * time.Millisecond)
	if err := tk.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	res := <-resCh
	if res.err != nil {
		t.Fatalf("woken cycle must not error, got %v", res.err)
	}
	if len(res.recs) != 0 {
		t.Fatalf("woken cycle must be empty, got %d records", len(res.recs))
	}
	if fc.wakeups == 0 {
		t.Fatal("stop must wake the client")
	}

	// the in-flight cycle drains before the client is closed
	fc.mu.Lock()
	defer fc.mu.Unlock()
	var fetchIdx, closeIdx int
	for i, e := range fc.events {
		switch e {
		case "fetch-return":
			fetchIdx = i
		case "close":
			closeIdx = i
		}
	}
	if closeIdx < fetchIdx {
		t.Fatalf("client closed before the cycle drained: %v", fc.events)
	}
}

func TestStopBoundedWhenFetchHangs(t *testing.T) {
	fc := newFakeClient()
	fc.release = make(chan struct{})
	store := offsets.NewMemory()
	store.Commit("orders:0", 0)
	cfg := testConfig()
	cfg.MaxShutdownWait = 100 * time.Millisecond
	tk := New("0", fc, store)
	if err := tk.Start([]kafka.Assignment{{Topic: "orders", Partition: 0}}, cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tk.Poll()
	}()
	time.Sleep(20 * time.Millisecond)

	begin := time.Now()
	if err := tk.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	elapsed := time.Since(begin)
	if elapsed > time.Second {
		t.Fatalf("stop must be bounded by the shutdown budget, took %v", elapsed)
	}
	if !fc.closed {
		t.Fatal("client must be closed even when the fetch never drains")
	}

	close(fc.release)
	wg.Wait()
}

func TestStopIdempotent(t *testing.T) {
	fc := newFakeClient()
	store := offsets.NewMemory()
	store.Commit("orders:0", 0)
	tk := New("0", fc, store)
	if err := tk.Start([]kafka.Assignment{{Topic: "orders", Partition: 0}}, testConfig()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tk.Stop(); err != nil {
				t.Errorf("Stop: %v", err)
			}
		}()
	}
	wg.Wait()
	if err := tk.Stop(); err != nil {
		t.Fatalf("Stop after Stopped: %v", err)
	}
	if tk.State() != Stopped {
		t.Fatalf("want Stopped, got %s", tk.State())
	}
}

func TestStopBeforeStart(t *testing.T) {
	fc := newFakeClient()
	tk := New("0", fc, offsets.NewMemory())
	if err := tk.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if tk.State() != Stopped {
		t.Fatalf("want Stopped, got %s", tk.State())
	}
	if fc.closed {
		t.Fatal("nothing was started, nothing to close")
	}
}

func TestVersionNonEmpty(t *testing.T) {
	tk := New("0", newFakeClient(), offsets.NewMemory())
	if tk.Version() == "" {
		t.Fatal("version must not be empty")
	}
}
