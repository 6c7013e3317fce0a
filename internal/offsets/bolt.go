package offsets

import (
	"encoding/binary"
	"fmt"
	"time"

	bb "go.etcd.io/bbolt"
)

var boltBucket = []byte("offsets")

// Bolt is a bbolt-backed Store. Offsets are stored as big-endian int64 so
// the file stays inspectable with plain bbolt tooling.
type Bolt struct {
	handle *bb.DB
}

func OpenBolt(path string) (*Bolt, error) {
	db, err := bb.Open(path, 0o600, &bb.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("offsets: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bb.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("offsets: init %s: %w", path, err)
	}
	return &Bolt{handle: db}, nil
}

func (s *Bolt) Offsets(keys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	err := s.handle.View(func(tx *bb.Tx) error {
		bk := tx.Bucket(boltBucket)
		for _, k := range keys {
			v := bk.Get([]byte(k))
			if v == nil {
				continue
			}
			if len(v) != 8 {
				return fmt.Errorf("offsets: corrupt entry for %q", k)
			}
			out[k] = int64(binary.BigEndian.Uint64(v))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Bolt) Commit(key string, offset int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(offset))
	return s.handle.Update(func(tx *bb.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), buf[:])
	})
}

func (s *Bolt) Close() error { return s.handle.Close() }
