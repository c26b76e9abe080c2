// Package kafka replays an encoded stream stored as a sequence of messages
// on one Kafka partition.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"framepump/internal/logging"
	"framepump/source"
)

type consumerFactory func(brokers []string, sc *sarama.Config) (sarama.Consumer, error)

// SaramaDriver serves the values of consecutive partition messages as one
// byte stream. An empty message value, a closed partition or IdleTimeout
// without traffic ends the stream.
type SaramaDriver struct {
	cfg         Config
	newConsumer consumerFactory
	log         *slog.Logger

	consumer sarama.Consumer
	pc       sarama.PartitionConsumer

	buf     []byte
	eos     bool
	lastOff int64
}

func (d *SaramaDriver) Configure(raw any) error {
	cfg, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("kafka-source: expected Config, got %T", raw)
	}
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return err
	}
	d.cfg = cfg
	if d.log == nil {
		d.log = logging.For("kafka-source")
	}

	ver, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.Consumer.Return.Errors = true
	if cfg.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if cfg.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = cfg.SASLUser, cfg.SASLPass
	}
	offset := sarama.OffsetOldest
	if cfg.StartFrom == "newest" {
		offset = sarama.OffsetNewest
	}

	newConsumer := d.newConsumer
	if newConsumer == nil {
		newConsumer = sarama.NewConsumer
	}
	if d.consumer, err = newConsumer(cfg.Brokers, sc); err != nil {
		return fmt.Errorf("kafka-source: %w", err)
	}
	if d.pc, err = d.consumer.ConsumePartition(cfg.Topic, cfg.Partition, offset); err != nil {
		_ = d.consumer.Close()
		return fmt.Errorf("kafka-source: consume %s[%d]: %w", cfg.Topic, cfg.Partition, err)
	}
	d.log.Info("replaying partition", "topic", cfg.Topic, "partition", cfg.Partition, "start_from", cfg.StartFrom)
	return nil
}

func (d *SaramaDriver) Read(ctx context.Context, max int) ([]byte, error) {
	if d.pc == nil {
		return nil, errors.New("kafka-source: not configured")
	}
	if err := d.fill(ctx); err != nil {
		return nil, err
	}
	if len(d.buf) == 0 {
		return nil, io.EOF
	}
	n := min(max, len(d.buf))
	out := d.buf[:n:n]
	d.buf = d.buf[n:]
	return out, nil
}

func (d *SaramaDriver) fill(ctx context.Context) error {
	if len(d.buf) > 0 || d.eos {
		return nil
	}
	idle := time.NewTimer(d.cfg.IdleTimeout)
	defer idle.Stop()
	for len(d.buf) == 0 && !d.eos {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-d.pc.Messages():
			if !ok {
				d.eos = true
				break
			}
			d.lastOff = msg.Offset
			if len(msg.Value) == 0 {
				d.log.Info("end-of-stream marker", "offset", msg.Offset)
				d.eos = true
				break
			}
			d.buf = msg.Value
		case err, ok := <-d.pc.Errors():
			if !ok {
				d.eos = true
				break
			}
			return fmt.Errorf("kafka-source: %w", err)
		case <-idle.C:
			d.log.Info("partition idle, ending stream", "after", d.cfg.IdleTimeout, "last_offset", d.lastOff)
			d.eos = true
		}
	}
	return nil
}

func (d *SaramaDriver) Close() error {
	var errs []error
	if d.pc != nil {
		errs = append(errs, d.pc.Close())
		d.pc = nil
	}
	if d.consumer != nil {
		errs = append(errs, d.consumer.Close())
		d.consumer = nil
	}
	return errors.Join(errs...)
}

func init() { source.Register("kafka", func() source.Adapter { return &SaramaDriver{} }) }
