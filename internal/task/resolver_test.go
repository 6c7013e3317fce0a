package task

import (
	"errors"
	"testing"

	"relay/source/kafka"
)

var (
	tpA = kafka.TopicPartition{Topic: "orders", Partition: 0}
	tpB = kafka.TopicPartition{Topic: "orders", Partition: 1}
	tpC = kafka.TopicPartition{Topic: "payments", Partition: 0}
)

func TestResolveStoredOffsetWins(t *testing.T) {
	fc := newFakeClient()
	fc.beginning = map[kafka.TopicPartition]int64{tpB: 0, tpC: 5}
	stored := map[string]int64{tpA.String(): 42}

	resolved, skipped, err := resolveOffsets(
		[]kafka.TopicPartition{tpA, tpB, tpC}, stored, kafka.ResetEarliest, fc)
	if err != nil {
		t.Fatalf("resolveOffsets: %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("nothing should be skipped, got %v", skipped)
	}
	if len(resolved) != 3 {
		t.Fatalf("every partition must resolve, got %d of 3", len(resolved))
	}
	if resolved[tpA] != 42 {
		t.Fatalf("stored offset must be used verbatim, got %d", resolved[tpA])
	}
	if resolved[tpB] != 0 || resolved[tpC] != 5 {
		t.Fatalf("missing partitions must fall back to beginning offsets: %v", resolved)
	}
	if fc.beginningCalls != 1 {
		t.Fatalf("beginning offsets must be one batched call, got %d", fc.beginningCalls)
	}
	if fc.endCalls != 0 || fc.committedCalls != 0 {
		t.Fatal("only the configured policy's lookup may run")
	}
}

func TestResolveAllStoredSkipsBroker(t *testing.T) {
	fc := newFakeClient()
	stored := map[string]int64{tpA.String(): 1, tpB.String(): 2}
	resolved, _, err := resolveOffsets([]kafka.TopicPartition{tpA, tpB}, stored, kafka.ResetLatest, fc)
	if err != nil {
		t.Fatalf("resolveOffsets: %v", err)
	}
	if resolved[tpA] != 1 || resolved[tpB] != 2 {
		t.Fatalf("got %v", resolved)
	}
	if fc.beginningCalls+fc.endCalls+fc.committedCalls != 0 {
		t.Fatal("no broker lookups when every offset is stored")
	}
}

func TestResolveLatest(t *testing.T) {
	fc := newFakeClient()
	fc.end = map[kafka.TopicPartition]int64{tpA: 100}
	resolved, _, err := resolveOffsets([]kafka.TopicPartition{tpA}, nil, kafka.ResetLatest, fc)
	if err != nil {
		t.Fatalf("resolveOffsets: %v", err)
	}
	if resolved[tpA] != 100 {
		t.Fatalf("want end offset 100, got %d", resolved[tpA])
	}
	if fc.endCalls != 1 || fc.beginningCalls != 0 {
		t.Fatalf("latest must use one batched end-offsets call, got %d/%d", fc.endCalls, fc.beginningCalls)
	}
}

func TestResolveNoneUsesCommitted(t *testing.T) {
	fc := newFakeClient()
	fc.committed = map[kafka.TopicPartition]int64{tpA: 7}
	resolved, _, err := resolveOffsets([]kafka.TopicPartition{tpA}, nil, kafka.ResetNone, fc)
	if err != nil {
		t.Fatalf("resolveOffsets: %v", err)
	}
	if resolved[tpA] != 7 {
		t.Fatalf("want committed offset 7, got %d", resolved[tpA])
	}
}

func TestResolveNoneWithoutCommittedIsFatal(t *testing.T) {
	fc := newFakeClient()
	_, _, err := resolveOffsets([]kafka.TopicPartition{tpA}, nil, kafka.ResetNone, fc)
	if !errors.Is(err, ErrNoCommittedOffset) {
		t.Fatalf("want ErrNoCommittedOffset, got %v", err)
	}
}

func TestResolveUnknownPolicySkipsQuietly(t *testing.T) {
	fc := newFakeClient()
	stored := map[string]int64{tpA.String(): 42}
	resolved, skipped, err := resolveOffsets(
		[]kafka.TopicPartition{tpA, tpB}, stored, kafka.ResetPolicy("bogus"), fc)
	if err != nil {
		t.Fatalf("unknown policy must not be fatal, got %v", err)
	}
	if len(resolved) != 1 || resolved[tpA] != 42 {
		t.Fatalf("stored offsets must still resolve: %v", resolved)
	}
	if len(skipped) != 1 || skipped[0] != tpB {
		t.Fatalf("partition without stored offset must be reported skipped, got %v", skipped)
	}
	if fc.beginningCalls+fc.endCalls+fc.committedCalls != 0 {
		t.Fatal("unknown policy must not hit the broker")
	}
}
