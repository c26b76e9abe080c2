package kafka

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/durationpb"

	"framepump/internal/media"
	"framepump/sink"
)

const (
	HeaderPTS      = "pts"
	HeaderDuration = "duration"
	HeaderRunID    = "run_id"
)

type Config struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
	Acks    int16    `koanf:"required_acks"` // 0,1,-1
	RunID   string   `koanf:"-"`
}

type producerFactory func(brokers []string, sc *sarama.Config) (sarama.SyncProducer, error)

// driver publishes one message per decoded unit. The key is the unit's
// sequence number; timing travels in protobuf Duration headers.
type driver struct {
	cfg         Config
	newProducer producerFactory
	p           sarama.SyncProducer
	seq         uint64
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: expected Config, got %T", c)
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return errors.New("kafka-sink: brokers and topic are required")
	}
	d.cfg = cfg

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Successes = true
	newProducer := d.newProducer
	if newProducer == nil {
		newProducer = sarama.NewSyncProducer
	}
	var err error
	d.p, err = newProducer(cfg.Brokers, sc)
	return err
}

func (d *driver) Push(u media.Unit) error {
	pts, err := proto.Marshal(durationpb.New(u.PresentationTime.Duration()))
	if err != nil {
		return err
	}
	dur, err := proto.Marshal(durationpb.New(u.Duration.Duration()))
	if err != nil {
		return err
	}
	d.seq++
	msg := &sarama.ProducerMessage{
		Topic: d.cfg.Topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(d.seq, 10)),
		Value: sarama.ByteEncoder(u.Data),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderPTS), Value: pts},
			{Key: []byte(HeaderDuration), Value: dur},
		},
	}
	if d.cfg.RunID != "" {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(HeaderRunID), Value: []byte(d.cfg.RunID)})
	}
	if _, _, err := d.p.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka-sink: unit %d: %w", d.seq, err)
	}
	return nil
}

func (d *driver) Close() error {
	if d.p == nil {
		return nil
	}
	err := d.p.Close()
	d.p = nil
	return err
}

// DecodeDuration reads a timing header written by the sink.
func DecodeDuration(b []byte) (media.Tick, error) {
	var pb durationpb.Duration
	if err := proto.Unmarshal(b, &pb); err != nil {
		return 0, err
	}
	return media.TicksFromDuration(pb.AsDuration()), nil
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
