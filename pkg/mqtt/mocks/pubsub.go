package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/stretchr/testify/mock"
)

var _ mqtt.PubSub = (*MockPubSub)(nil)

// MockPubSub is a testify mock of mqtt.PubSub.
type MockPubSub struct {
	mock.Mock
}

func (m *MockPubSub) Publish(ctx context.Context, topic string, msg any) error {
	args := m.Called(ctx, topic, msg)

	return args.Error(0)
}

func (m *MockPubSub) Subscribe(ctx context.Context, topic string, handler mqtt.Handler) error {
	args := m.Called(ctx, topic, handler)

	return args.Error(0)
}

func (m *MockPubSub) Unsubscribe(ctx context.Context, topic string) error {
	args := m.Called(ctx, topic)

	return args.Error(0)
}

func (m *MockPubSub) Disconnect(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

var errDisconnected = errors.New("loopback disconnected")

// Broker routes messages between Loopback clients in process. Topics match
// exactly; payloads go through the same CBOR codec as the real client and
// handlers run on their own goroutine like paho's.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[*Loopback]mqtt.Handler
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*Loopback]mqtt.Handler)}
}

func (b *Broker) Client() *Loopback {
	return &Loopback{broker: b}
}

type Loopback struct {
	broker *Broker
	mu     sync.Mutex
	closed bool
}

var _ mqtt.PubSub = (*Loopback)(nil)

func (l *Loopback) Publish(_ context.Context, topic string, msg any) error {
	if l.isClosed() {
		return errDisconnected
	}
	data, err := mqtt.Encode(msg)
	if err != nil {
		return err
	}

	l.broker.mu.RLock()
	handlers := make([]mqtt.Handler, 0, len(l.broker.subs[topic]))
	for _, h := range l.broker.subs[topic] {
		handlers = append(handlers, h)
	}
	l.broker.mu.RUnlock()

	for _, h := range handlers {
		go func() {
			_ = h(topic, data)
		}()
	}

	return nil
}

func (l *Loopback) Subscribe(_ context.Context, topic string, handler mqtt.Handler) error {
	if l.isClosed() {
		return errDisconnected
	}
	l.broker.mu.Lock()
	defer l.broker.mu.Unlock()

	if l.broker.subs[topic] == nil {
		l.broker.subs[topic] = make(map[*Loopback]mqtt.Handler)
	}
	l.broker.subs[topic][l] = handler

	return nil
}

func (l *Loopback) Unsubscribe(_ context.Context, topic string) error {
	l.broker.mu.Lock()
	defer l.broker.mu.Unlock()

	delete(l.broker.subs[topic], l)

	return nil
}

func (l *Loopback) Disconnect(_ context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.broker.mu.Lock()
	defer l.broker.mu.Unlock()
	for _, subs := range l.broker.subs {
		delete(subs, l)
	}

	return nil
}

func (l *Loopback) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.closed
}
