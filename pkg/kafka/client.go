// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"nuvaru-go/internal/config"
	"nuvaru-go/pkg/database"
	"nuvaru-go/pkg/log"
	"nuvaru-go/pkg/tasks"
)

// EventProcessor 定义了消费文档事件的接口。
// 把消费者与具体的重建实现解耦。
type EventProcessor interface {
	Process(ctx context.Context, event tasks.DocumentIndexEvent) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
}

// ProduceDocumentEvent 发布一条文档索引事件。
// 生产者未初始化（单机部署不接 Kafka）时静默跳过。
func ProduceDocumentEvent(event tasks.DocumentIndexEvent) error {
	if producer == nil {
		return nil
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return producer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(event.DocID),
			Value: eventBytes,
		},
	)
}

// StartConsumer 启动一个 Kafka 消费者处理文档事件。
func StartConsumer(cfg config.KafkaConfig, processor EventProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  "nuvaru-go-consumer",
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(context.Background())
		if err != nil {
			log.Error("从 Kafka 读取消息失败", err)
			break
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var event tasks.DocumentIndexEvent
		if err := json.Unmarshal(m.Value, &event); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		if event.Type != tasks.EventDocumentReindex {
			// indexed/deleted 只做审计记录，无需处理
			log.Infof("文档事件: type=%s, doc_id=%s, chunks=%d", event.Type, event.DocID, event.ChunksCount)
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理重建任务: doc_id=%s, file=%s", event.DocID, event.FileName)
		if err := processor.Process(context.Background(), event); err != nil {
			log.Errorf("处理重建任务失败: doc_id=%s, error: %v", event.DocID, err)
			// 使用 Redis 计数失败次数，达到阈值后提交 offset 终止重试
			attemptsKey := fmt.Sprintf("kafka:attempts:%s", event.DocID)
			attempts, incErr := database.RDB.Incr(context.Background(), attemptsKey).Result()
			if incErr == nil {
				_ = database.RDB.Expire(context.Background(), attemptsKey, 24*time.Hour).Err()
			}
			if incErr != nil {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			if attempts >= 3 {
				log.Errorf("重建任务多次失败(>=3)，提交 offset 终止重试: doc_id=%s", event.DocID)
				if err := r.CommitMessages(context.Background(), m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
		} else {
			log.Infof("重建任务处理成功: doc_id=%s", event.DocID)
			_ = database.RDB.Del(context.Background(), fmt.Sprintf("kafka:attempts:%s", event.DocID)).Err()
			if err := r.CommitMessages(context.Background(), m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Fatalf("关闭 Kafka 消费者失败: %v", err)
	}
}
