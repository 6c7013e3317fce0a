package kafka

import (
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

func init() { Register("sarama", func() Client { return &SaramaDriver{} }) }

// SaramaDriver reads explicitly assigned partitions through sarama partition
// consumers. Every open partition gets a forwarder goroutine that funnels
// messages into one merged channel; Fetch drains that channel. Closing the
// driver unblocks a stuck Fetch the same way a wakeup does.
type SaramaDriver struct {
	cfg      Config
	cl       sarama.Client
	consumer sarama.Consumer

	mu       sync.Mutex
	assigned map[TopicPartition]bool
	pending  map[TopicPartition]int64 // seek positions waiting for a consumer
	open     map[TopicPartition]sarama.PartitionConsumer
	om       sarama.OffsetManager
	shut     bool

	msgCh  chan *sarama.ConsumerMessage
	errCh  chan error
	wakeCh chan struct{}
	closed chan struct{}
	wg     sync.WaitGroup
}

func (d *SaramaDriver) Configure(config Config) error {
	d.cfg = config
	d.assigned = make(map[TopicPartition]bool)
	d.pending = make(map[TopicPartition]int64)
	d.open = make(map[TopicPartition]sarama.PartitionConsumer)
	d.msgCh = make(chan *sarama.ConsumerMessage, config.MaxPollRecords)
	d.errCh = make(chan error, 1)
	d.wakeCh = make(chan struct{}, 1)
	d.closed = make(chan struct{})

	sc := sarama.NewConfig()
	sc.ClientID = config.ClientID
	sc.Consumer.Return.Errors = true
	if config.Version != "" {
		ver, err := sarama.ParseKafkaVersion(config.Version)
		if err != nil {
			return err
		}
		sc.Version = ver
	}
	if config.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if config.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = config.SASLUser, config.SASLPass
	}

	var err error
	if d.cl, err = sarama.NewClient(config.Brokers, sc); err != nil {
		return err
	}
	if d.consumer, err = sarama.NewConsumerFromClient(d.cl); err != nil {
		_ = d.cl.Close()
		return err
	}
	return nil
}

func (d *SaramaDriver) Assign(tps []TopicPartition) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := make(map[TopicPartition]bool, len(tps))
	for _, tp := range tps {
		next[tp] = true
	}
	for tp, pc := range d.open {
		if !next[tp] {
			pc.AsyncClose()
			delete(d.open, tp)
		}
	}
	for tp := range d.pending {
		if !next[tp] {
			delete(d.pending, tp)
		}
	}
	d.assigned = next
	return nil
}

func (d *SaramaDriver) Seek(tp TopicPartition, offset int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.assigned[tp] {
		return fmt.Errorf("kafka: seek on unassigned partition %s", tp)
	}
	if pc, ok := d.open[tp]; ok {
		pc.AsyncClose()
		delete(d.open, tp)
	}
	d.pending[tp] = offset
	return nil
}

// ensureConsumers opens a partition consumer for every seeked partition that
// does not have one yet.
func (d *SaramaDriver) ensureConsumers() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.shut {
		return nil
	}
	for tp, off := range d.pending {
		pc, err := d.consumer.ConsumePartition(tp.Topic, tp.Partition, off)
		if err != nil {
			return fmt.Errorf("kafka: consume %s from %d: %w", tp, off, err)
		}
		d.open[tp] = pc
		delete(d.pending, tp)
		d.wg.Add(2)
		go d.forwardMessages(pc)
		go d.forwardErrors(pc)
	}
	return nil
}

func (d *SaramaDriver) forwardMessages(pc sarama.PartitionConsumer) {
	defer d.wg.Done()
	for msg := range pc.Messages() {
		select {
		case d.msgCh <- msg:
		case <-d.closed:
			return
		}
	}
}

func (d *SaramaDriver) forwardErrors(pc sarama.PartitionConsumer) {
	defer d.wg.Done()
	for cerr := range pc.Errors() {
		select {
		case d.errCh <- cerr:
		case <-d.closed:
			return
		default:
		}
	}
}

func (d *SaramaDriver) Fetch(timeout time.Duration) ([]Record, error) {
	if err := d.ensureConsumers(); err != nil {
		return nil, err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var out []Record
	for {
		select {
		case <-d.wakeCh:
			return nil, ErrWakeup
		case <-d.closed:
			return nil, ErrWakeup
		case err := <-d.errCh:
			return nil, fmt.Errorf("kafka: fetch: %w", err)
		case msg := <-d.msgCh:
			out = append(out, fromSaramaMessage(msg))
			for len(out) < d.cfg.MaxPollRecords {
				select {
				case msg := <-d.msgCh:
					out = append(out, fromSaramaMessage(msg))
				default:
					return out, nil
				}
			}
			return out, nil
		case <-timer.C:
			return out, nil
		}
	}
}

func (d *SaramaDriver) Wakeup() {
	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
}

func (d *SaramaDriver) BeginningOffsets(tps []TopicPartition) (map[TopicPartition]int64, error) {
	return d.listOffsets(tps, sarama.OffsetOldest)
}

func (d *SaramaDriver) EndOffsets(tps []TopicPartition) (map[TopicPartition]int64, error) {
	return d.listOffsets(tps, sarama.OffsetNewest)
}

func (d *SaramaDriver) listOffsets(tps []TopicPartition, at int64) (map[TopicPartition]int64, error) {
	out := make(map[TopicPartition]int64, len(tps))
	for _, tp := range tps {
		off, err := d.cl.GetOffset(tp.Topic, tp.Partition, at)
		if err != nil {
			return nil, fmt.Errorf("kafka: get offset for %s: %w", tp, err)
		}
		out[tp] = off
	}
	return out, nil
}

func (d *SaramaDriver) Committed(tp TopicPartition) (int64, bool, error) {
	d.mu.Lock()
	if d.om == nil {
		om, err := sarama.NewOffsetManagerFromClient(d.cfg.GroupID, d.cl)
		if err != nil {
			d.mu.Unlock()
			return 0, false, fmt.Errorf("kafka: offset manager: %w", err)
		}
		d.om = om
	}
	om := d.om
	d.mu.Unlock()

	pom, err := om.ManagePartition(tp.Topic, tp.Partition)
	if err != nil {
		return 0, false, fmt.Errorf("kafka: committed offset for %s: %w", tp, err)
	}
	off, _ := pom.NextOffset()
	pom.AsyncClose()
	if off < 0 {
		// sarama reports Consumer.Offsets.Initial when the group has
		// nothing committed
		return 0, false, nil
	}
	return off, true, nil
}

func (d *SaramaDriver) Close(timeout time.Duration) error {
	d.mu.Lock()
	if d.shut {
		d.mu.Unlock()
		return nil
	}
	d.shut = true
	close(d.closed)
	pcs := make([]sarama.PartitionConsumer, 0, len(d.open))
	for _, pc := range d.open {
		pcs = append(pcs, pc)
	}
	d.open = map[TopicPartition]sarama.PartitionConsumer{}
	d.pending = map[TopicPartition]int64{}
	om := d.om
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, pc := range pcs {
			pc.AsyncClose()
		}
		d.wg.Wait()
		if om != nil {
			_ = om.Close()
		}
		if d.consumer != nil {
			_ = d.consumer.Close()
		}
		if d.cl != nil {
			_ = d.cl.Close()
		}
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("kafka: close timed out after %s", timeout)
	}
}

func fromSaramaMessage(msg *sarama.ConsumerMessage) Record {
	rec := Record{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Timestamp: msg.Timestamp,
	}
	if len(msg.Headers) > 0 {
		rec.Headers = make([]Header, 0, len(msg.Headers))
		for _, h := range msg.Headers {
			if h == nil {
				continue
			}
			rec.Headers = append(rec.Headers, Header{Key: h.Key, Value: h.Value})
		}
	}
	return rec
}
