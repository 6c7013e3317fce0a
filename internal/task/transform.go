package task

import (
	"fmt"

	"relay/internal/codec"
	"relay/source/kafka"
)

// transform turns one raw record into a SourceRecord. The destination topic
// is the source topic; codecs decode against their fixed converter topics,
// never against the record's own.
func (t *Task) transform(r kafka.Record) (SourceRecord, error) {
	key, err := t.keyCodec.Decode(t.cfg.KeyCodec.Topic, r.Key)
	if err != nil {
		return SourceRecord{}, fmt.Errorf("task: decode key %s:%d@%d: %w", r.Topic, r.Partition, r.Offset, err)
	}
	value, err := t.valueCodec.Decode(t.cfg.ValueCodec.Topic, r.Value)
	if err != nil {
		return SourceRecord{}, fmt.Errorf("task: decode value %s:%d@%d: %w", r.Topic, r.Partition, r.Offset, err)
	}

	rec := SourceRecord{
		SourcePartition: kafka.TopicPartition{Topic: r.Topic, Partition: r.Partition}.String(),
		SourceOffset:    r.Offset,
		Topic:           r.Topic,
		Key:             key,
		Value:           value,
		Timestamp:       r.Timestamp,
	}
	if t.cfg.IncludeHeaders {
		rec.Headers = make([]Header, 0, len(r.Headers))
		for _, h := range r.Headers {
			if h.Key == nil {
				continue
			}
			hv := codec.SchemaAndValue{Schema: codec.OptionalBytes}
			if h.Value != nil {
				hv.Value = h.Value
			}
			rec.Headers = append(rec.Headers, Header{Key: string(h.Key), Value: hv})
		}
	}
	return rec, nil
}
