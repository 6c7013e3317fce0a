package kafka

import (
	"fmt"

	"github.com/IBM/sarama"

	"relay/internal/codec"
	"relay/internal/task"
	"relay/sink"
)

// Records land on the destination cluster under their source topic name;
// the relay never renames topics.
type Config struct {
	Brokers    []string `yaml:"brokers"`
	Acks       int16    `yaml:"required_acks"` // 0,1,-1
	Version    string   `yaml:"version"`
	KeyCodec   CodecRef `yaml:"key_codec"`
	ValueCodec CodecRef `yaml:"value_codec"`
}

// CodecRef names a registered codec plus the converter topic it encodes for.
type CodecRef struct {
	Name  string         `yaml:"name"`
	Topic string         `yaml:"topic"`
	Props map[string]any `yaml:"props"`
}

type driver struct {
	cfg        Config
	keyCodec   codec.Codec
	valueCodec codec.Codec
	p          sarama.SyncProducer
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: want Config")
	}
	if cfg.KeyCodec.Name == "" {
		cfg.KeyCodec.Name = "bytes"
	}
	if cfg.ValueCodec.Name == "" {
		cfg.ValueCodec.Name = "bytes"
	}
	d.cfg = cfg

	var err error
	if d.keyCodec, err = newCodec(cfg.KeyCodec); err != nil {
		return fmt.Errorf("kafka-sink: key codec: %w", err)
	}
	if d.valueCodec, err = newCodec(cfg.ValueCodec); err != nil {
		return fmt.Errorf("kafka-sink: value codec: %w", err)
	}

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Successes = true // SyncProducer needs the ack channel
	if cfg.Version != "" {
		v, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return fmt.Errorf("kafka-sink: version: %w", err)
		}
		sc.Version = v
	}
	d.p, err = sarama.NewSyncProducer(cfg.Brokers, sc)
	return err
}

// Push blocks until the broker acknowledges the message, so the caller may
// commit the record's source offset as soon as it returns.
func (d *driver) Push(r *task.SourceRecord) error {
	key, err := d.keyCodec.Encode(d.cfg.KeyCodec.Topic, r.Key)
	if err != nil {
		return fmt.Errorf("kafka-sink: encode key: %w", err)
	}
	value, err := d.valueCodec.Encode(d.cfg.ValueCodec.Topic, r.Value)
	if err != nil {
		return fmt.Errorf("kafka-sink: encode value: %w", err)
	}

	msg := &sarama.ProducerMessage{Topic: r.Topic, Timestamp: r.Timestamp}
	if key != nil {
		msg.Key = sarama.ByteEncoder(key)
	}
	if value != nil {
		msg.Value = sarama.ByteEncoder(value)
	}
	for _, h := range r.Headers {
		hv, _ := h.Value.Value.([]byte) // header values stay raw bytes end to end
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(h.Key), Value: hv})
	}

	_, _, err = d.p.SendMessage(msg)
	return err
}

func (d *driver) Close() error {
	if d.p == nil {
		return nil
	}
	return d.p.Close()
}

func newCodec(ref CodecRef) (codec.Codec, error) {
	c, err := codec.New(ref.Name)
	if err != nil {
		return nil, err
	}
	if err := c.Configure(ref.Props); err != nil {
		return nil, err
	}
	return c, nil
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
