package bus

import "context"

// TopicAll is the firehose topic carrying every packet update. Gateway
// processes hold a single subscription here and route locally.
const TopicAll = "packets/all"

// TopicPacket returns the bus topic scoped to one packet.
func TopicPacket(packetID string) string {
	return "packets/" + packetID
}

// Handler receives payloads delivered for a subscription.
type Handler func(topic string, payload []byte)

// Publisher broadcasts advisory packet updates to all subscribed
// processes. Delivery is best-effort: the payload is a hint to refresh,
// never the source of truth.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Subscriber produces payloads for a topic until ctx is cancelled.
// A lapsed subscription is restartable only via a fresh Subscribe.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, h Handler) error
}

// Bus combines both ends of the fan-out channel.
type Bus interface {
	Publisher
	Subscriber
	Close()
}
