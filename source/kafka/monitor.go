package kafka

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"relay/internal/logging"
)

// Monitor periodically resolves the topic whitelist against the source
// cluster and reports the resulting partition assignments. A change in the
// partition set (or, when configured, in partition leadership) is pushed on
// Changes so the engine can restart its tasks with the new layout.
type Monitor struct {
	cfg Config
	re  *regexp.Regexp
	cl  sarama.Client

	current  []Assignment
	changes  chan []Assignment
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	stopOnce sync.Once
}

func NewMonitor(cfg Config) (*Monitor, error) {
	re, err := cfg.WhitelistRegex()
	if err != nil {
		return nil, err
	}
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID + "-monitor"
	sc.Net.DialTimeout = cfg.TopicListTimeout
	sc.Net.ReadTimeout = cfg.TopicListTimeout
	if cfg.Version != "" {
		ver, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, err
		}
		sc.Version = ver
	}
	if cfg.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if cfg.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = cfg.SASLUser, cfg.SASLPass
	}
	cl, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka: monitor client: %w", err)
	}
	return &Monitor{
		cfg:     cfg,
		re:      re,
		cl:      cl,
		changes: make(chan []Assignment, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start takes the initial snapshot, launches the re-query loop and returns
// the starting assignments.
func (m *Monitor) Start() ([]Assignment, error) {
	initial, err := m.snapshot()
	if err != nil {
		return nil, err
	}
	if len(initial) == 0 {
		return nil, fmt.Errorf("kafka: no partitions match topic whitelist %v", m.cfg.TopicWhitelist)
	}
	m.current = initial
	m.started = true
	go m.loop()
	return initial, nil
}

// Changes delivers the most recent assignment list after a change. Only the
// latest unread snapshot is retained.
func (m *Monitor) Changes() <-chan []Assignment { return m.changes }

func (m *Monitor) loop() {
	defer close(m.doneCh)
	log := logging.With("monitor")
	ticker := time.NewTicker(m.cfg.TopicListInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
		}
		next, err := m.snapshot()
		if err != nil {
			log.Error("partition re-query failed", "err", err)
			continue
		}
		if assignmentsEqual(m.current, next, m.cfg.ReconfigureOnLeaderChange) {
			continue
		}
		log.Info("partition layout changed",
			"before", len(m.current), "after", len(next))
		m.current = next
		select {
		case m.changes <- next:
		default:
			select {
			case <-m.changes:
			default:
			}
			m.changes <- next
		}
	}
}

// snapshot lists whitelisted topics with their partitions and leaders,
// sorted for stable comparison.
func (m *Monitor) snapshot() ([]Assignment, error) {
	if err := m.cl.RefreshMetadata(); err != nil {
		return nil, fmt.Errorf("kafka: refresh metadata: %w", err)
	}
	topics, err := m.cl.Topics()
	if err != nil {
		return nil, fmt.Errorf("kafka: list topics: %w", err)
	}
	var out []Assignment
	for _, topic := range topics {
		if !m.re.MatchString(topic) {
			continue
		}
		parts, err := m.cl.Partitions(topic)
		if err != nil {
			return nil, fmt.Errorf("kafka: partitions of %s: %w", topic, err)
		}
		for _, p := range parts {
			leader := int32(-1)
			if b, err := m.cl.Leader(topic, p); err == nil {
				leader = b.ID()
			}
			out = append(out, Assignment{Leader: leader, Topic: topic, Partition: p})
		}
	}
	sortAssignments(out)
	return out, nil
}

// Close is safe to call whether or not Start succeeded.
func (m *Monitor) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	if m.started {
		<-m.doneCh
	}
	return m.cl.Close()
}

func sortAssignments(as []Assignment) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].Topic != as[j].Topic {
			return as[i].Topic < as[j].Topic
		}
		return as[i].Partition < as[j].Partition
	})
}

// assignmentsEqual compares two sorted assignment lists. Leader ids only
// count when leaderSensitive is set.
func assignmentsEqual(a, b []Assignment, leaderSensitive bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Topic != b[i].Topic || a[i].Partition != b[i].Partition {
			return false
		}
		if leaderSensitive && a[i].Leader != b[i].Leader {
			return false
		}
	}
	return true
}
