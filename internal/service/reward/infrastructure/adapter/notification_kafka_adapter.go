package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"rewardhub/internal/pkg/mq"
	"rewardhub/internal/service/reward/domain"
)

// NotificationKafkaSender 实现了 port.NotificationSender，把通知事件写入 Kafka，
// 由下游推送服务负责真正的投递。
type NotificationKafkaSender struct {
	writer *kafka.Writer
}

func NewNotificationKafkaSender(writer *kafka.Writer) *NotificationKafkaSender {
	return &NotificationKafkaSender{writer: writer}
}

// Send 以用户 ID 作为消息 key，保证同一用户的通知有序。
func (a *NotificationKafkaSender) Send(ctx context.Context, n domain.Notification) error {
	eventBytes, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(strconv.FormatInt(n.UserID, 10)), eventBytes)
}

// Close 关闭底层的 Kafka writer。
func (a *NotificationKafkaSender) Close() error {
	return a.writer.Close()
}
