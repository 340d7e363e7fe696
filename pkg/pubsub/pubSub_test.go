package pubsub

import (
	"encoding/json"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubSub_SubscribeTopic(t *testing.T) {
	var (
		conn1, _ = net.Pipe()
		p        = NewPubSub()
	)
	subscriber := NewSubscriber(nil, conn1)
	p.SubscribeTopic(subscriber, TopicMap{"fan_status": struct{}{}})
	_, ok := p.subscribers.Load(subscriber)
	assert.True(t, ok)
}

func TestPubSub_Evict(t *testing.T) {
	var (
		conn1, _ = net.Pipe()
		p        = NewPubSub()
	)
	subscriber := NewSubscriber(nil, conn1)
	p.SubscribeTopic(subscriber, TopicMap{"fan_status": struct{}{}})
	p.Evict(subscriber)
	_, ok := p.subscribers.Load(subscriber)
	assert.False(t, ok)
}

func TestPubSub_EvictAndClose(t *testing.T) {
	var (
		conn1, _ = net.Pipe()
		p        = NewPubSub()
	)
	subscriber := NewSubscriber(nil, conn1)
	p.SubscribeTopic(subscriber, TopicMap{"fan_status": struct{}{}})
	p.EvictAndClose(subscriber)
	_, ok := p.subscribers.Load(subscriber)
	assert.False(t, ok)
	_, err := conn1.Write([]byte{0})
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestPubSub_Publish(t *testing.T) {
	tests := []struct {
		name string
		test func(t *testing.T)
	}{
		{
			name: "topic match",
			test: func(t *testing.T) {
				var key = "item_status"
				var data = "change"
				p := NewPubSub()
				conn1, conn2 := net.Pipe()
				subscriber := NewSubscriber(nil, conn1)
				ch := make(chan any, 1)
				go func() {
					var val any
					err := json.NewDecoder(conn2).Decode(&val)
					require.NoError(t, err)
					ch <- val
				}()
				p.SubscribeTopic(subscriber, TopicMap{key: struct{}{}})
				err := p.Publish(data, key)
				assert.NoError(t, err)
				assert.Equal(t, data, <-ch)
			},
		},
		{
			name: "nil topics receives everything",
			test: func(t *testing.T) {
				p := NewPubSub()
				conn1, conn2 := net.Pipe()
				subscriber := NewSubscriber(nil, conn1)
				ch := make(chan any, 1)
				go func() {
					var val any
					err := json.NewDecoder(conn2).Decode(&val)
					require.NoError(t, err)
					ch <- val
				}()
				p.SubscribeTopic(subscriber, nil)
				err := p.Publish("boot", nil)
				assert.NoError(t, err)
				assert.Equal(t, "boot", <-ch)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.test(t)
		})
	}
}
