package kafka

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"numflow/internal/job"
	"numflow/internal/logging"
	"numflow/sink"
)

type Config struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	Acks    int16    `yaml:"required_acks"` // 0,1,-1
}

type driver struct {
	cfg  Config
	p    sarama.AsyncProducer
	log  *slog.Logger
	done chan struct{}
	once sync.Once
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: want Config, got %T", c)
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return fmt.Errorf("kafka-sink: brokers and topic are required")
	}

	sc := sarama.NewConfig()
	sc.ClientID = "numflow"
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Errors = true
	p, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return fmt.Errorf("kafka-sink: %w", err)
	}
	d.attach(cfg, p)
	return nil
}

// attach wires an already built producer; tests hand in a mock.
func (d *driver) attach(cfg Config, p sarama.AsyncProducer) {
	d.cfg = cfg
	d.p = p
	d.log = logging.With("sink.kafka")
	d.done = make(chan struct{})
	go d.drainErrors()
}

func (d *driver) drainErrors() {
	defer close(d.done)
	for pe := range d.p.Errors() {
		d.log.Warn("publish failed", "topic", pe.Msg.Topic, "err", pe.Err)
	}
}

// Push keys messages by job id so every event for one job lands on the
// same partition.
func (d *driver) Push(r job.Result) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("kafka-sink: %w", err)
	}
	d.p.Input() <- &sarama.ProducerMessage{
		Topic: d.cfg.Topic,
		Key:   sarama.StringEncoder(r.JobID),
		Value: sarama.ByteEncoder(b),
	}
	return nil
}

func (d *driver) Close() error {
	d.once.Do(func() {
		if d.p == nil {
			return
		}
		d.p.AsyncClose()
		<-d.done
	})
	return nil
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
