package relay

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/IBM/sarama"

	"sessionRelay/internal/editlog"
)

// KafkaRelay：本地有界队列 + worker 异步发送 + 有限重试。
// 实现 editlog.Relay。
// 目标：
//   - 绝不阻塞捕获链路（Broadcast 只是非阻塞入队，队列满直接丢）
//   - Kafka 短暂抖动靠队列吸收，后台补发
//   - 重试耗尽就丢弃打日志 —— 尽力广播，失败永远不往上抛
type KafkaRelay struct {
	producer sarama.SyncProducer
	topic    string

	queue chan RelayEvent

	// 限制并发 SendMessage 数量
	limiter *sendLimiter

	workers     int
	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type KafkaRelayOptions struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// 并发发送上限，0 取默认
	MaxInflight int
}

func NewKafkaRelay(producer sarama.SyncProducer, topic string, opt KafkaRelayOptions) *KafkaRelay {
	if opt.QueueSize <= 0 {
		opt.QueueSize = 10_000
	}
	if opt.Workers <= 0 {
		opt.Workers = 4
	}
	r := &KafkaRelay{
		producer:    producer,
		topic:       topic,
		queue:       make(chan RelayEvent, opt.QueueSize),
		limiter:     newSendLimiter(opt.MaxInflight),
		workers:     opt.Workers,
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}
	r.start()
	return r
}

// BroadcastBatch 尽力广播一个批次。队列满就丢（降级，不阻塞提交方）。
func (r *KafkaRelay) BroadcastBatch(sessionID string, b editlog.Batch) {
	r.enqueue(RelayEvent{
		EventType: EventTypeBatch,
		SessionID: sessionID,
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
		Events:    b.Events,
	})
}

// BroadcastContent 未录制时的轻量内容同步
func (r *KafkaRelay) BroadcastContent(sessionID string, content string, timestamp int64) {
	r.enqueue(RelayEvent{
		EventType: EventTypeContentSync,
		SessionID: sessionID,
		Content:   content,
		Timestamp: timestamp,
	})
}

func (r *KafkaRelay) enqueue(evt RelayEvent) {
	select {
	case r.queue <- evt:
	default:
		// 队列满：丢弃，避免内存无限增长
		log.Printf("relay queue full, drop event session=%s type=%s", evt.SessionID, evt.EventType)
	}
}

func (r *KafkaRelay) start() {
	for i := 0; i < r.workers; i++ {
		go r.workerLoop(i)
	}
}

func (r *KafkaRelay) workerLoop(workerID int) {
	for evt := range r.queue {
		r.sendWithRetry(workerID, evt)
	}
}

func (r *KafkaRelay) sendWithRetry(workerID int, evt RelayEvent) {
	for attempt := 0; attempt <= r.maxRetry; attempt++ {
		// worker 允许一直等（不影响主链路）
		_ = r.limiter.Acquire(context.Background())
		err := r.sendOnce(evt)
		r.limiter.Release()

		if err == nil {
			return
		}
		if attempt == r.maxRetry {
			log.Printf("%v: drop event session=%s type=%s worker=%d err=%v",
				editlog.ErrRelayUnavailable, evt.SessionID, evt.EventType, workerID, err)
			return
		}
		// 指数退避，封顶
		backoff := r.baseBackoff * time.Duration(1<<attempt)
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
		time.Sleep(backoff)
	}
}

func (r *KafkaRelay) sendOnce(evt RelayEvent) error {
	if r.producer == nil || r.topic == "" {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: r.topic,
		Key:   sarama.StringEncoder(evt.SessionID),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = r.producer.SendMessage(msg)
	return err
}
