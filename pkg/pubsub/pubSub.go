// Package pubsub fans live feed messages out to the command link and any
// local debug taps.
package pubsub

import (
	"encoding/json"
	"io"
	"sync"
)

type BytesChan = chan []byte
type Subscriber = BytesChan

type TopicMap map[any]struct{}

type PubSub struct {
	subscribers sync.Map
}

// NewSubscriber pumps published bytes into conn until closeChan fires, the
// channel is poisoned with nil or a write fails. conn is closed on exit.
func NewSubscriber(closeChan <-chan struct{}, conn io.WriteCloser) Subscriber {
	ch := make(BytesChan, 10)
	go func() {
		defer func() { _ = conn.Close() }()
		for {
			select {
			case <-closeChan:
				return
			case bytes := <-ch:
				if bytes == nil {
					return
				}
				if _, err := conn.Write(bytes); err != nil {
					return
				}
			}
		}
	}()
	return ch
}

func NewPubSub() *PubSub {
	return new(PubSub)
}

// SubscribeTopic add or modify subscriber. A nil topic map subscribes to
// everything.
func (p *PubSub) SubscribeTopic(subscriber Subscriber, topics TopicMap) {
	p.subscribers.Store(subscriber, topics)
}

// Evict delete the subscriber
func (p *PubSub) Evict(subscriber Subscriber) {
	p.subscribers.Delete(subscriber)
}

// EvictAndClose delete the subscriber and close the subscriber
func (p *PubSub) EvictAndClose(subscriber Subscriber) {
	if _, loaded := p.subscribers.LoadAndDelete(subscriber); loaded {
		subscriber <- nil // make the subscriber exit the loop
	}
}

// Publish data to the subscribers that subscribed to the topic. If topic is
// nil, it will be sent to all subscribers. The payload is marshaled at most
// once. A subscriber with a full channel is evicted and closed rather than
// blocking the feed.
func (p *PubSub) Publish(data any, topic any) (err error) {
	var mb []byte
	p.subscribers.Range(func(key, value any) bool {
		if topic != nil {
			if topics := value.(TopicMap); topics != nil { // make sure topics not nil
				if _, ok := topics[topic]; !ok {
					return true
				}
			}
		}
		if mb == nil {
			if mb, err = json.Marshal(data); err != nil {
				return false
			}
		}
		subscriber := key.(Subscriber)
		select {
		case subscriber <- mb:
		default:
			p.EvictAndClose(subscriber)
		}
		return true
	})
	return err
}
