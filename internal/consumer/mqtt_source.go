package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tankwatch-chart/common/config"
	mqttcommon "tankwatch-chart/common/mqtt"
)

// mqttConn subset of the MQTT client a subscription needs.
type mqttConn interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
	Disconnect()
}

type mqttDialer func(onLost mqttcommon.ConnectionLostHandler) (mqttConn, error)

// MQTTSource live feed over an MQTT topic carrying the change JSON as payload.
// Each subscription owns its own connection so a drop surfaces as Lost.
type MQTTSource struct {
	topic  string
	qos    byte
	dial   mqttDialer
	logger *zap.Logger
}

// NewMQTTSource creates a source for topic on the configured broker.
func NewMQTTSource(cfg *config.MQTTConfig, topic string, logger *zap.Logger) *MQTTSource {
	return &MQTTSource{
		topic: topic,
		qos:   byte(cfg.QoS),
		dial: func(onLost mqttcommon.ConnectionLostHandler) (mqttConn, error) {
			perSub := *cfg
			perSub.ClientID = cfg.ClientID + "-" + uuid.NewString()[:8]
			return mqttcommon.NewClient(&perSub, logger, onLost)
		},
		logger: logger,
	}
}

// Subscribe connects and subscribes to the topic.
func (s *MQTTSource) Subscribe(ctx context.Context) (Subscription, error) {
	sub := &mqttSubscription{feed: newFeed(64), topic: s.topic}

	conn, err := s.dial(func(err error) {
		sub.fail(fmt.Errorf("mqtt connection lost: %w", err))
	})
	if err != nil {
		return nil, err
	}
	sub.conn = conn

	handler := func(_ string, payload []byte) error {
		if !sub.deliver(Delivery{Payload: payload, ReceivedAt: time.Now()}) {
			return ErrSubscriptionClosed
		}
		return nil
	}
	if err := conn.Subscribe(s.topic, s.qos, handler); err != nil {
		conn.Disconnect()
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	s.logger.Info("Live topic subscribed", zap.String("topic", s.topic))
	return sub, nil
}

type mqttSubscription struct {
	*feed
	conn  mqttConn
	topic string
	once  sync.Once
}

func (s *mqttSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Unsubscribe(s.topic)
		s.conn.Disconnect()
	})
	return err
}
