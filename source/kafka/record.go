package kafka

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TopicPartition identifies one partition on the source cluster. Its String
// form ("topic:partition") doubles as the offset-store key.
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return tp.Topic + ":" + strconv.FormatInt(int64(tp.Partition), 10)
}

// ParseTopicPartition is the inverse of TopicPartition.String.
func ParseTopicPartition(s string) (TopicPartition, error) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return TopicPartition{}, fmt.Errorf("kafka: malformed partition key %q", s)
	}
	p, err := strconv.ParseInt(s[i+1:], 10, 32)
	if err != nil {
		return TopicPartition{}, fmt.Errorf("kafka: malformed partition key %q: %w", s, err)
	}
	return TopicPartition{Topic: s[:i], Partition: int32(p)}, nil
}

// Assignment is one partition handed to a task. The leader id rides along so
// the monitor can tell a leader move apart from a membership change.
type Assignment struct {
	Leader    int32
	Topic     string
	Partition int32
}

func (a Assignment) String() string {
	return fmt.Sprintf("%d:%s:%d", a.Leader, a.Topic, a.Partition)
}

func (a Assignment) TopicPartition() TopicPartition {
	return TopicPartition{Topic: a.Topic, Partition: a.Partition}
}

// ParseAssignment parses the "leader:topic:partition" form produced by
// Assignment.String. Kafka topic names cannot contain ':'.
func ParseAssignment(s string) (Assignment, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Assignment{}, fmt.Errorf("kafka: malformed assignment %q", s)
	}
	leader, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return Assignment{}, fmt.Errorf("kafka: malformed assignment %q: %w", s, err)
	}
	partition, err := strconv.ParseInt(parts[2], 10, 32)
	if err != nil {
		return Assignment{}, fmt.Errorf("kafka: malformed assignment %q: %w", s, err)
	}
	return Assignment{Leader: int32(leader), Topic: parts[1], Partition: int32(partition)}, nil
}

// Header is a raw record header. Value may be nil; a nil Key marks a header
// the task drops during transform.
type Header struct {
	Key   []byte
	Value []byte
}

// Record is one raw record as fetched from the source cluster, before any
// decoding.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
	Headers   []Header
}
