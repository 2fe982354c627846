package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/sirupsen/logrus"

	"github.com/LENAX/eoflow/internal/logger"
)

// topic 所有事件发布到同一个topic，订阅方按类型过滤
const topic = "eoflow.events"

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// Bus 基于 watermill gochannel 的进程内事件总线（对外导出）
type Bus struct {
	pubsub *gochannel.GoChannel
	log    logrus.FieldLogger
}

// NewBus 创建事件总线
func NewBus(l logrus.FieldLogger) *Bus {
	if l == nil {
		l = logger.Discard()
	}
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            64,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		NewWatermillLogger(l),
	)
	return &Bus{pubsub: pubsub, log: l}
}

// Publish 发布事件
func (b *Bus) Publish(_ context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("事件不能为空")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("execution_id", event.ExecutionID)
	msg.Metadata.Set("timestamp", event.Timestamp.Format(time.RFC3339Nano))

	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("发布事件失败: %w", err)
	}
	return nil
}

// Subscribe 订阅事件，types 为空时订阅所有类型
// 返回的channel在ctx结束或总线关闭时被关闭
func (b *Bus) Subscribe(ctx context.Context, types ...EventType) (<-chan *Event, error) {
	messages, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("订阅事件失败: %w", err)
	}

	filter := make(map[EventType]bool, len(types))
	for _, t := range types {
		filter[t] = true
	}

	out := make(chan *Event, 16)
	go func() {
		defer close(out)
		for msg := range messages {
			var event Event
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				b.log.WithError(err).Warn("无法解析事件")
				msg.Ack()
				continue
			}
			msg.Ack()
			if len(filter) > 0 && !filter[event.Type] {
				continue
			}
			select {
			case out <- &event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close 关闭事件总线
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// watermillLogger 把 watermill 日志转发到 logrus
type watermillLogger struct {
	log logrus.FieldLogger
}

// NewWatermillLogger 创建 watermill 日志适配器
func NewWatermillLogger(l logrus.FieldLogger) watermill.LoggerAdapter {
	return &watermillLogger{log: l}
}

func (w *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.log.WithFields(logrus.Fields(fields)).WithError(err).Error(msg)
}

func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.log.WithFields(logrus.Fields(fields)).Info(msg)
}

func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.log.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (w *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.log.WithFields(logrus.Fields(fields)).Trace(msg)
}

func (w *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{log: w.log.WithFields(logrus.Fields(fields))}
}
