// Seeds a topic with numbered test records so a relay run has something to
// move. Keys are k-<n>, values carry a seq header.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/IBM/sarama"
)

func main() {
	brokers := flag.String("brokers", "localhost:9092", "comma-separated broker list")
	topic := flag.String("topic", "relay-demo", "topic to seed")
	count := flag.Int("count", 100, "records to produce")
	flag.Parse()

	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true

	p, err := sarama.NewSyncProducer(strings.Split(*brokers, ","), cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "producer:", err)
		os.Exit(1)
	}
	defer p.Close()

	for i := 0; i < *count; i++ {
		seq := strconv.Itoa(i)
		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder("k-" + seq),
			Value: sarama.StringEncoder(fmt.Sprintf(`{"seq":%d,"note":"seeded"}`, i)),
			Headers: []sarama.RecordHeader{
				{Key: []byte("seq"), Value: []byte(seq)},
			},
		}
		if _, _, err := p.SendMessage(msg); err != nil {
			fmt.Fprintln(os.Stderr, "send:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded %d records into %s\n", *count, *topic)
}
