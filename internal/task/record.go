package task

import (
	"time"

	"relay/internal/codec"
)

// Header is one transformed record header. Values are raw bytes tagged
// optional-bytes; a nil value survives the trip.
type Header struct {
	Key   string
	Value codec.SchemaAndValue
}

// SourceRecord is one record ready for the destination pipeline.
//
// SourcePartition and SourceOffset locate the record on the source cluster.
// The engine commits SourceOffset+1 under SourcePartition once every sink has
// taken the record, so a restart resumes at the next unread position.
type SourceRecord struct {
	SourcePartition string
	SourceOffset    int64

	Topic     string
	Key       codec.SchemaAndValue
	Value     codec.SchemaAndValue
	Timestamp time.Time

	// Headers is nil when header propagation is off, non-nil (possibly
	// empty) when it is on.
	Headers []Header
}
