// Package broker fans live upload fragments out from publishers to
// subscribers. Channels are keyed by player name; a subscriber that joins
// mid-battle is backfilled with everything the publisher sent so far, so
// its parser sees the stream from the first byte.
package broker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// mailboxDepth bounds how far a slow subscriber may lag before fragments
// are dropped for it.
const mailboxDepth = 256

// ErrChannelBusy is returned when a second live publisher claims a channel.
var ErrChannelBusy = errors.New("channel already has a live publisher")

type Broker struct {
	mu          sync.Mutex
	publishers  map[string]*Publisher
	subscribers map[string][]*Mailbox
}

func New() *Broker {
	return &Broker{
		publishers:  map[string]*Publisher{},
		subscribers: map[string][]*Mailbox{},
	}
}

// Subscribe opens a mailbox on a channel. If the channel has a live
// publisher, the mailbox is immediately backfilled with its history. The
// mailbox survives publisher turnover: it keeps receiving from whichever
// publisher next claims the channel.
func (b *Broker) Subscribe(channel string) *Mailbox {
	m := &Mailbox{
		broker:  b,
		channel: channel,
		ch:      make(chan []byte, mailboxDepth),
	}
	b.mu.Lock()
	b.subscribers[channel] = append(b.subscribers[channel], m)
	pub := b.publishers[channel]
	b.mu.Unlock()
	if pub != nil {
		pub.addSubscriber(m)
	}
	return m
}

// Publish creates a publisher. It is anonymous until SetChannel names the
// channel it feeds; data uploaded before that is kept as history only.
func (b *Broker) Publish() *Publisher {
	return &Publisher{broker: b}
}

// Publisher accepts upload fragments and forwards them to the channel's
// mailboxes, keeping a full history for late subscribers.
type Publisher struct {
	broker *Broker

	mu      sync.Mutex
	channel string
	history [][]byte
	subs    []*Mailbox
	closed  bool
}

// SetChannel binds the publisher to a channel and adopts the channel's
// existing subscribers. Only one live publisher may hold a channel; a
// closed predecessor is displaced silently.
func (p *Publisher) SetChannel(channel string) error {
	b := p.broker
	b.mu.Lock()
	if old, ok := b.publishers[channel]; ok && !old.isClosed() {
		b.mu.Unlock()
		return ErrChannelBusy
	}
	b.publishers[channel] = p
	subs := append([]*Mailbox(nil), b.subscribers[channel]...)
	b.mu.Unlock()

	p.mu.Lock()
	p.channel = channel
	p.mu.Unlock()
	for _, m := range subs {
		p.addSubscriber(m)
	}
	return nil
}

// Upload forwards one fragment to every subscriber and appends it to the
// history. Delivery never blocks: a mailbox whose buffer is full misses the
// fragment.
func (p *Publisher) Upload(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	live := p.subs[:0]
	for _, m := range p.subs {
		if m.isClosed() {
			continue
		}
		live = append(live, m)
		select {
		case m.ch <- data:
		default:
			log.Warn().Str("channel", p.channel).Msg("subscriber lagging, dropping fragment")
		}
	}
	p.subs = live
	p.history = append(p.history, data)
}

// Close releases the publisher's channel. Subscribers stay registered and
// pick up the channel's next publisher.
func (p *Publisher) Close() {
	p.mu.Lock()
	p.closed = true
	channel := p.channel
	p.subs = nil
	p.mu.Unlock()
	if channel == "" {
		return
	}
	b := p.broker
	b.mu.Lock()
	if b.publishers[channel] == p {
		delete(b.publishers, channel)
	}
	b.mu.Unlock()
}

func (p *Publisher) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Publisher) addSubscriber(m *Mailbox) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, item := range p.history {
		select {
		case m.ch <- item:
		default:
			log.Warn().Str("channel", p.channel).Msg("subscriber lagging during backfill, dropping fragment")
		}
	}
	p.subs = append(p.subs, m)
}

// Mailbox receives the fragments of one channel.
type Mailbox struct {
	broker  *Broker
	channel string
	ch      chan []byte

	mu     sync.Mutex
	closed bool
}

// C exposes the receive channel for use in select loops. It is never
// closed; use Close plus context cancellation to stop receiving.
func (m *Mailbox) C() <-chan []byte {
	return m.ch
}

// Recv returns the next fragment, blocking until one arrives or the
// context ends.
func (m *Mailbox) Recv(ctx context.Context) ([]byte, error) {
	select {
	case data := <-m.ch:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unregisters the mailbox. Fragments already buffered remain
// readable from C.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	b := m.broker
	b.mu.Lock()
	subs := b.subscribers[m.channel]
	for i, sub := range subs {
		if sub == m {
			b.subscribers[m.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[m.channel]) == 0 {
		delete(b.subscribers, m.channel)
	}
	b.mu.Unlock()
}

func (m *Mailbox) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
