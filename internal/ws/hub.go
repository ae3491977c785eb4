package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Topic names. Each carries a full JSON snapshot of the thing it names.
func ChatTopic(chatID string) string       { return "chat:" + chatID }
func GroupTopic(chatID string) string      { return "group:" + chatID }
func UserChatsTopic(userID string) string  { return "userchats:" + userID }
func UserGroupsTopic(userID string) string { return "usergroupchats:" + userID }
func SessionTopic(userID string) string    { return "session:" + userID }

var ErrHubStopped = errors.New("hub stopped")

// Frame is what subscribers receive.
type Frame struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

type publication struct {
	topic string
	data  []byte
}

// Subscription is a stream of frames for one topic. Updates is closed after
// Unsubscribe, when the hub stops, or when the subscriber fell too far behind.
type Subscription struct {
	topic string
	send  chan []byte
	hub   *Hub
	once  sync.Once
}

func (s *Subscription) Topic() string { return s.topic }

func (s *Subscription) Updates() <-chan []byte { return s.send }

// Unsubscribe detaches the subscription. Calling it more than once is fine.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
	})
}

type Hub struct {
	// Subscriptions by topic.
	topics map[string]map[*Subscription]bool

	// Published snapshots.
	broadcast chan publication

	register   chan *Subscription
	unregister chan *Subscription

	done chan struct{}
	log  zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		topics:     make(map[string]map[*Subscription]bool),
		broadcast:  make(chan publication),
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run serves the hub until ctx is done. All open subscriptions are closed on
// return.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for _, subs := range h.topics {
			for sub := range subs {
				close(sub.send)
			}
		}
		h.topics = nil
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case sub := <-h.register:
			subs, ok := h.topics[sub.topic]
			if !ok {
				subs = make(map[*Subscription]bool)
				h.topics[sub.topic] = subs
			}
			subs[sub] = true
		case sub := <-h.unregister:
			h.remove(sub)
		case pub := <-h.broadcast:
			for sub := range h.topics[pub.topic] {
				select {
				case sub.send <- pub.data:
				default:
					h.log.Warn().Str("topic", pub.topic).Msg("dropping slow subscriber")
					h.remove(sub)
				}
			}
		}
	}
}

func (h *Hub) remove(sub *Subscription) {
	subs, ok := h.topics[sub.topic]
	if !ok || !subs[sub] {
		return
	}
	delete(subs, sub)
	close(sub.send)
	if len(subs) == 0 {
		delete(h.topics, sub.topic)
	}
}

// Subscribe starts a subscription on topic. If the hub has stopped, the
// returned subscription is already closed.
func (h *Hub) Subscribe(topic string) *Subscription {
	sub := &Subscription{topic: topic, send: make(chan []byte, 16), hub: h}
	select {
	case h.register <- sub:
	case <-h.done:
		close(sub.send)
	}
	return sub
}

// Publish sends v, encoded as JSON, to every subscriber of topic.
func (h *Hub) Publish(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "ws.Publish.Marshal")
	}
	frame, err := json.Marshal(Frame{Topic: topic, Data: data})
	if err != nil {
		return errors.Wrap(err, "ws.Publish.Marshal")
	}

	select {
	case h.broadcast <- publication{topic: topic, data: frame}:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}
