package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"drift-gateway/internal/logic/decoder"
	"drift-gateway/pkg/logger"
)

const (
	defaultBatchSize = 32 * 1024
	defaultLingerMs  = 5
	deliveryTimeout  = 10 * time.Second
)

// Publisher 将标准化动作记录投递到 Kafka，供下游风控/对账消费。
// brokers 未配置时网关不创建 Publisher，审计流整体可选。
type Publisher struct {
	producer *kafka.Producer
	topic    string
}

// NewPublisher 创建生产者并确保 topic 存在。
func NewPublisher(brokers, topic string, partitions int) (*Publisher, error) {
	if partitions <= 0 {
		partitions = 1
	}

	// 1. 管理员客户端检查/创建 topic
	adminClient, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create admin client: %w", err)
	}
	defer adminClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	meta, err := adminClient.GetMetadata(nil, true, 10000)
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}
	replicationFactor := 1
	if len(meta.Brokers) > 1 {
		replicationFactor = 2
	}

	exists := false
	for _, t := range meta.Topics {
		if t.Topic == topic {
			exists = true
			break
		}
	}
	if !exists {
		results, err := adminClient.CreateTopics(ctx, []kafka.TopicSpecification{{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: replicationFactor,
		}})
		if err != nil {
			return nil, fmt.Errorf("failed to create topic %s: %w", topic, err)
		}
		for _, result := range results {
			if result.Error.Code() != kafka.ErrNoError {
				return nil, fmt.Errorf("failed to create topic %s: %w", result.Topic, result.Error)
			}
		}
	}

	// 2. 创建生产者（幂等 + acks=all，保证审计流不丢不重）
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"client.id":         "drift-gateway-publisher",

		"acks":                                  "all",
		"enable.idempotence":                    true,
		"max.in.flight.requests.per.connection": 5,

		"delivery.timeout.ms": 30000,
		"request.timeout.ms":  30000,
		"retries":             5,
		"retry.backoff.ms":    100,

		"batch.size":       defaultBatchSize,
		"linger.ms":        defaultLingerMs,
		"compression.type": "none",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return &Publisher{producer: producer, topic: topic}, nil
}

// PublishActions 逐条投递动作记录，key 为交易签名（同签名路由到同分区，保序）。
// 投递失败仅记日志不回传：审计流是旁路，不能反过来阻断主链路。
func (p *Publisher) PublishActions(ctx context.Context, records []*decoder.ActionRecord) {
	if p == nil || len(records) == 0 {
		return
	}
	for _, record := range records {
		value, err := json.Marshal(record)
		if err != nil {
			logger.Errorf("[Publisher] 序列化动作记录失败: signature=%s err=%v", record.Signature, err)
			continue
		}
		if err := p.send(ctx, []byte(record.Signature), value); err != nil {
			logger.Errorf("[Publisher] 投递失败: signature=%s#%d err=%v",
				record.Signature, record.InstructionIndex, err)
		}
	}
}

func (p *Publisher) send(ctx context.Context, key, value []byte) error {
	deliveryChan := make(chan kafka.Event, 1)
	err := p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &p.topic,
			Partition: kafka.PartitionAny,
		},
		Key:   key,
		Value: value,
	}, deliveryChan)
	if err != nil {
		return fmt.Errorf("produce error: %w", err)
	}

	select {
	case e, ok := <-deliveryChan:
		if !ok {
			return fmt.Errorf("delivery channel closed unexpectedly")
		}
		msg, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("invalid message type: %T", e)
		}
		return msg.TopicPartition.Error
	case <-time.After(deliveryTimeout):
		return fmt.Errorf("delivery timeout (>%v)", deliveryTimeout)
	case <-ctx.Done():
		return fmt.Errorf("ctx cancelled: %w", ctx.Err())
	}
}

// Close 刷出未投递消息并关闭生产者。
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.producer.Flush(5000)
	p.producer.Close()
}
