package kafka

import (
	"errors"
	"time"
)

// ErrWakeup is returned by a Fetch that was interrupted by Wakeup. Callers
// treat it as an empty cycle, not a failure.
var ErrWakeup = errors.New("kafka: fetch woken up")

// Client is the bus capability a source task drives. Implementations wrap a
// concrete Kafka library behind manual partition assignment: no consumer
// groups, no automatic offset commits.
type Client interface {
	// Configure prepares the client and must run before any other call.
	Configure(Config) error

	// Assign replaces the set of partitions Fetch reads from.
	Assign([]TopicPartition) error

	// Seek positions the next fetch on one assigned partition.
	Seek(TopicPartition, int64) error

	// Fetch blocks up to timeout for the next batch of records, in
	// per-partition offset order. A Wakeup arriving before or during the
	// call makes it return ErrWakeup.
	Fetch(timeout time.Duration) ([]Record, error)

	// Wakeup interrupts one blocked Fetch. Safe from any goroutine.
	Wakeup()

	// BeginningOffsets returns the first available offset per partition.
	BeginningOffsets([]TopicPartition) (map[TopicPartition]int64, error)

	// EndOffsets returns the next-to-be-written offset per partition.
	EndOffsets([]TopicPartition) (map[TopicPartition]int64, error)

	// Committed returns the group-committed offset for one partition and
	// ok=false when the group has none.
	Committed(TopicPartition) (offset int64, ok bool, err error)

	// Close releases the client, waiting at most timeout for a clean
	// teardown.
	Close(timeout time.Duration) error
}
