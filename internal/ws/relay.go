package ws

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	logger "github.com/Gopher0727/ProjectChat/middleware/log"
)

const DefaultRelayChannel = "chat:events"

// Relay 通过 Redis Pub/Sub 把投递广播到所有节点，每个节点的订阅者再交给本地 Hub
type Relay struct {
	rdb     redis.UniversalClient
	channel string
	local   Deliverer
	logger  *logger.Logger
}

func NewRelay(rdb redis.UniversalClient, channel string, local Deliverer, log *logger.Logger) *Relay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Relay{rdb: rdb, channel: channel, local: local, logger: log.Named("relay")}
}

// Deliver 发布失败时退化为本地投递
func (r *Relay) Deliver(d Delivery) {
	raw, err := json.Marshal(d)
	if err != nil {
		r.logger.Error("failed to encode delivery", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.rdb.Publish(ctx, r.channel, raw).Err(); err != nil {
		r.logger.Warn("relay publish failed, delivering locally", zap.Error(err))
		r.local.Deliver(d)
	}
}

// Run 订阅中继频道直到 ctx 结束。订阅确认后才返回 ready。
func (r *Relay) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}
	r.logger.Info("relay subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var d Delivery
			if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
				r.logger.Warn("dropping malformed relay payload", zap.Error(err))
				continue
			}
			r.local.Deliver(d)
		}
	}
}
