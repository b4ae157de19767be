package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventContributionAdded = "contribution-added"
	RealtimeEventResonanceUpdated  = "resonance-updated"
	RealtimeEventCollectionChanged = "collection-changed"
	realtimeEventHeartbeat         = "heartbeat"
	realtimeSourceBackend          = "contribcast-backend"

	// RealtimeTopicAll receives every event regardless of project.
	RealtimeTopicAll    = "all"
	realtimeTopicPrefix = "project:"
)

// ProjectTopic names the topic carrying events for a single project.
func ProjectTopic(projectID string) string {
	return realtimeTopicPrefix + projectID
}

type RealtimeMessage struct {
	EventType       string
	ProjectID       string
	ContributionIDs []string
	Timestamp       time.Time
}

// topics fans a message out to the global topic and, when set, its project topic.
func (m RealtimeMessage) topics() []string {
	if m.ProjectID == "" {
		return []string{RealtimeTopicAll}
	}
	return []string{RealtimeTopicAll, ProjectTopic(m.ProjectID)}
}

type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, topic string) (<-chan RealtimeMessage, func()) {
	if topic == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(topic, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregisterSubscriber(topic, subscriber.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers message to every matching subscriber. Slow subscribers drop messages
// rather than block the publisher.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	d.mu.RLock()
	copies := make([]*realtimeSubscriber, 0)
	for _, topic := range message.topics() {
		for _, subscriber := range d.subscribers[topic] {
			copies = append(copies, subscriber)
		}
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the number of live subscriptions on topic.
func (d *RealtimeDispatcher) SubscriberCount(topic string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[topic])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(topic string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[topic]; !ok {
		d.subscribers[topic] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[topic][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(topic string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[topic]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, topic)
		}
	}
	d.mu.Unlock()
}
