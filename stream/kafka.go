package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"

	appconfig "forexflow/config"
	"forexflow/logger"
)

// KafkaClient implements Client on top of one partition of a Kafka topic.
// Cursors are decimal partition offsets.
type KafkaClient struct {
	brokers   []string
	topic     string
	partition int
	readWait  time.Duration

	writer *kafka.Writer

	mu   sync.Mutex
	conn *kafka.Conn

	log *logger.Log
}

// NewKafkaClient builds a Kafka-backed stream client for the configured
// topic partition.
func NewKafkaClient(cfg *appconfig.Config) (*KafkaClient, error) {
	if len(cfg.Stream.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	log := logger.GetLogger()

	kc := &KafkaClient{
		brokers:   cfg.Stream.Kafka.Brokers,
		topic:     cfg.Stream.Kafka.Topic,
		partition: cfg.Stream.Kafka.Partition,
		readWait:  time.Duration(cfg.Stream.Kafka.ReadWaitMs) * time.Millisecond,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Stream.Kafka.Brokers...),
			Topic:    cfg.Stream.Kafka.Topic,
			Balancer: &kafka.LeastBytes{},
		},
		log: log,
	}
	if kc.readWait <= 0 {
		kc.readWait = 2 * time.Second
	}

	log.WithComponent("kafka_client").WithFields(logger.Fields{
		"brokers":   cfg.Stream.Kafka.Brokers,
		"topic":     cfg.Stream.Kafka.Topic,
		"partition": cfg.Stream.Kafka.Partition,
	}).Info("kafka client initialized")

	return kc, nil
}

func (k *KafkaClient) Publish(ctx context.Context, partitionKey string, data []byte) error {
	err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(partitionKey),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (k *KafkaClient) OpenCursor(ctx context.Context, pos Position) (Cursor, error) {
	if !pos.Latest && pos.Token != "" {
		after, err := strconv.ParseInt(pos.Token, 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid resume offset %q: %w", pos.Token, err)
		}
		return Cursor(strconv.FormatInt(after+1, 10)), nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	conn, err := k.leaderConnLocked(ctx)
	if err != nil {
		return "", err
	}
	last, err := conn.ReadLastOffset()
	if err != nil {
		k.dropConnLocked()
		return "", fmt.Errorf("read last offset: %w", err)
	}
	return Cursor(strconv.FormatInt(last, 10)), nil
}

func (k *KafkaClient) Pull(ctx context.Context, cur Cursor, maxRecords int) ([]Record, Cursor, error) {
	offset, err := strconv.ParseInt(string(cur), 10, 64)
	if err != nil {
		return nil, cur, fmt.Errorf("invalid cursor %q: %w", cur, err)
	}

	// The leader connection carries the read offset, so the lock must span
	// the whole seek-and-read sequence: several consumers share one client,
	// and an interleaved Seek would hand this pull another cursor's offset.
	k.mu.Lock()
	defer k.mu.Unlock()

	conn, err := k.leaderConnLocked(ctx)
	if err != nil {
		return nil, cur, err
	}

	if _, err := conn.Seek(offset, kafka.SeekAbsolute); err != nil {
		k.dropConnLocked()
		return nil, cur, fmt.Errorf("seek offset %d: %w", offset, err)
	}

	deadline := time.Now().Add(k.readWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		k.dropConnLocked()
		return nil, cur, fmt.Errorf("set read deadline: %w", err)
	}

	batch := conn.ReadBatch(1, 10*1024*1024)
	defer batch.Close()

	records := make([]Record, 0, maxRecords)
	next := offset
	for len(records) < maxRecords {
		msg, err := batch.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) || isTimeout(err) {
				// No more data before the deadline; an empty pull is normal.
				break
			}
			k.dropConnLocked()
			return nil, cur, fmt.Errorf("read message: %w", err)
		}
		records = append(records, Record{
			PartitionKey: string(msg.Key),
			Data:         msg.Value,
			Sequence:     strconv.FormatInt(msg.Offset, 10),
			ArrivedAt:    msg.Time,
		})
		next = msg.Offset + 1
	}
	if next < offset {
		next = offset
	}

	return records, Cursor(strconv.FormatInt(next, 10)), nil
}

// leaderConnLocked returns the cached partition leader connection, dialing
// on first use. Callers hold k.mu.
func (k *KafkaClient) leaderConnLocked(ctx context.Context) (*kafka.Conn, error) {
	if k.conn != nil {
		return k.conn, nil
	}

	conn, err := kafka.DialLeader(ctx, "tcp", k.brokers[0], k.topic, k.partition)
	if err != nil {
		return nil, fmt.Errorf("dial leader: %w", err)
	}
	k.conn = conn
	return conn, nil
}

func (k *KafkaClient) dropConnLocked() {
	if k.conn != nil {
		k.conn.Close()
		k.conn = nil
	}
}

// Close releases the writer and any open leader connection.
func (k *KafkaClient) Close() error {
	k.mu.Lock()
	k.dropConnLocked()
	k.mu.Unlock()
	return k.writer.Close()
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
