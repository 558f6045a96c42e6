package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSubscriber struct {
	messages [][]byte
}

func (r *recordingSubscriber) Deliver(message []byte) {
	r.messages = append(r.messages, message)
}

func TestBroker_PublishDeliversToSubscriber(t *testing.T) {
	b := New()
	sub := &recordingSubscriber{}

	b.Subscribe(ClientTopic(42), sub)
	delivered := b.Publish(ClientTopic(42), []byte("set_temperature 21.5"))

	assert.True(t, delivered)
	assert.Equal(t, [][]byte{[]byte("set_temperature 21.5")}, sub.messages)
}

func TestBroker_PublishToUnsubscribedTopicIsNoop(t *testing.T) {
	b := New()
	delivered := b.Publish(ClientTopic(1), []byte("hi"))
	assert.False(t, delivered)
}

func TestBroker_UnsubscribeOnlyRemovesCurrentSubscriber(t *testing.T) {
	b := New()
	first := &recordingSubscriber{}
	second := &recordingSubscriber{}

	topic := FarmTopic(7)
	b.Subscribe(topic, first)
	b.Subscribe(topic, second) // second claims the topic

	b.Unsubscribe(topic, first) // stale unsubscribe, must not evict second
	assert.True(t, b.Publish(topic, []byte("ping")))
	assert.Len(t, second.messages, 1)

	b.Unsubscribe(topic, second)
	assert.False(t, b.Publish(topic, []byte("ping")))
}

func TestTopicNaming(t *testing.T) {
	assert.Equal(t, "client_42", ClientTopic(42))
	assert.Equal(t, "arduino_7", FarmTopic(7))
}
