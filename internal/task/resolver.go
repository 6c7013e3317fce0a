package task

import (
	"errors"
	"fmt"

	"relay/internal/logging"
	"relay/source/kafka"
)

// ErrNoCommittedOffset is returned from Start when the reset policy is
// "none" and a partition has neither a stored offset nor a group-committed
// one. There is no sane position to invent, so the task refuses to run.
var ErrNoCommittedOffset = errors.New("task: no committed offset")

// resolveOffsets decides the seek position for every partition. Stored
// offsets win unconditionally; the reset policy only governs partitions the
// store knows nothing about. An unrecognized policy is not an error: those
// partitions come back in skipped and are simply not consumed.
func resolveOffsets(
	partitions []kafka.TopicPartition,
	stored map[string]int64,
	policy kafka.ResetPolicy,
	client kafka.Client,
) (resolved map[kafka.TopicPartition]int64, skipped []kafka.TopicPartition, err error) {
	log := logging.With("task")

	resolved = make(map[kafka.TopicPartition]int64, len(partitions))
	var missing []kafka.TopicPartition
	for _, tp := range partitions {
		if off, ok := stored[tp.String()]; ok {
			resolved[tp] = off
			continue
		}
		missing = append(missing, tp)
	}
	if len(missing) == 0 {
		return resolved, nil, nil
	}
	log.Info("partitions without stored offsets", "partitions", len(missing), "policy", policy)

	switch policy {
	case kafka.ResetEarliest:
		defaults, err := client.BeginningOffsets(missing)
		if err != nil {
			return nil, nil, fmt.Errorf("task: beginning offsets: %w", err)
		}
		for tp, off := range defaults {
			resolved[tp] = off
		}
	case kafka.ResetLatest:
		defaults, err := client.EndOffsets(missing)
		if err != nil {
			return nil, nil, fmt.Errorf("task: end offsets: %w", err)
		}
		for tp, off := range defaults {
			resolved[tp] = off
		}
	case kafka.ResetNone:
		for _, tp := range missing {
			off, ok, err := client.Committed(tp)
			if err != nil {
				return nil, nil, fmt.Errorf("task: committed offset for %s: %w", tp, err)
			}
			if !ok {
				return nil, nil, fmt.Errorf("%w for %s with auto_offset_reset=none", ErrNoCommittedOffset, tp)
			}
			resolved[tp] = off
		}
	default:
		log.Warn("unknown auto_offset_reset, partitions without stored offsets will not be consumed",
			"policy", policy, "partitions", len(missing))
		return resolved, missing, nil
	}
	return resolved, nil, nil
}
