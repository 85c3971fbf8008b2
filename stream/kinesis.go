package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"

	appconfig "forexflow/config"
	"forexflow/logger"
)

// KinesisClient implements Client on top of one shard of an Amazon Kinesis
// data stream. Cursors are shard iterators.
type KinesisClient struct {
	client     *kinesis.Client
	streamName string
	shardID    string
	log        *logger.Log
}

// NewKinesisClient builds a Kinesis-backed stream client from the service
// configuration. Static credentials from the config take precedence over the
// default AWS credential chain.
func NewKinesisClient(ctx context.Context, cfg *appconfig.Config) (*KinesisClient, error) {
	log := logger.GetLogger()

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Stream.Region)}
	if cfg.Stream.AccessKeyID != "" && cfg.Stream.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Stream.AccessKeyID,
				cfg.Stream.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := kinesis.NewFromConfig(awsConfig, func(o *kinesis.Options) {
		if cfg.Stream.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Stream.Endpoint)
		}
	})

	log.WithComponent("kinesis_client").WithFields(logger.Fields{
		"stream": cfg.Stream.Name,
		"shard":  cfg.Stream.ShardID,
		"region": cfg.Stream.Region,
	}).Info("kinesis client initialized")

	return &KinesisClient{
		client:     client,
		streamName: cfg.Stream.Name,
		shardID:    cfg.Stream.ShardID,
		log:        log,
	}, nil
}

func (k *KinesisClient) Publish(ctx context.Context, partitionKey string, data []byte) error {
	_, err := k.client.PutRecord(ctx, &kinesis.PutRecordInput{
		StreamName:   aws.String(k.streamName),
		PartitionKey: aws.String(partitionKey),
		Data:         data,
	})
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

func (k *KinesisClient) OpenCursor(ctx context.Context, pos Position) (Cursor, error) {
	input := &kinesis.GetShardIteratorInput{
		StreamName:        aws.String(k.streamName),
		ShardId:           aws.String(k.shardID),
		ShardIteratorType: types.ShardIteratorTypeLatest,
	}
	if !pos.Latest && pos.Token != "" {
		input.ShardIteratorType = types.ShardIteratorTypeAfterSequenceNumber
		input.StartingSequenceNumber = aws.String(pos.Token)
	}

	out, err := k.client.GetShardIterator(ctx, input)
	if err != nil {
		return "", fmt.Errorf("get shard iterator: %w", err)
	}
	if out.ShardIterator == nil {
		return "", fmt.Errorf("shard %s has no iterator", k.shardID)
	}
	return Cursor(*out.ShardIterator), nil
}

func (k *KinesisClient) Pull(ctx context.Context, cur Cursor, maxRecords int) ([]Record, Cursor, error) {
	out, err := k.client.GetRecords(ctx, &kinesis.GetRecordsInput{
		ShardIterator: aws.String(string(cur)),
		Limit:         aws.Int32(int32(maxRecords)),
	})
	if err != nil {
		var throttled *types.ProvisionedThroughputExceededException
		if errors.As(err, &throttled) {
			return nil, cur, ErrThrottled
		}
		return nil, cur, fmt.Errorf("get records: %w", err)
	}

	records := make([]Record, 0, len(out.Records))
	for _, r := range out.Records {
		rec := Record{Data: r.Data}
		if r.PartitionKey != nil {
			rec.PartitionKey = *r.PartitionKey
		}
		if r.SequenceNumber != nil {
			rec.Sequence = *r.SequenceNumber
		}
		if r.ApproximateArrivalTimestamp != nil {
			rec.ArrivedAt = *r.ApproximateArrivalTimestamp
		}
		records = append(records, rec)
	}

	next := cur
	if out.NextShardIterator != nil {
		next = Cursor(*out.NextShardIterator)
	}
	return records, next, nil
}
