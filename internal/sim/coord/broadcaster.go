// Package coord holds the in-tick coordination primitives behavior modules
// use to talk to each other without direct references: a publish/subscribe
// Broadcaster and a deferred mutation Queue.
//
// Both are owned by one world and touched only from its tick goroutine.
package coord

import (
	"errors"
	"strings"
)

// Owner identifies a subscriber for targeted delivery and unsubscription.
type Owner interface {
	Name() string
}

// Reply is handed to a handler so it can answer the broadcaster's sender.
// It is nil when the sender did not ask for a reply.
type Reply func(v any)

type Handler func(arg any)

type HandlerWithReply func(arg any, reply Reply)

var ErrNilHandler = errors.New("nil handler")

type subscription struct {
	owner Owner
	fn    HandlerWithReply
}

// Broadcaster maps case-insensitive message names to ordered subscriptions.
type Broadcaster struct {
	subs map[string][]subscription
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: map[string][]subscription{}}
}

func key(message string) string { return strings.ToLower(message) }

func (b *Broadcaster) Subscribe(message string, owner Owner, h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	return b.SubscribeWithCallback(message, owner, func(arg any, _ Reply) { h(arg) })
}

func (b *Broadcaster) SubscribeWithCallback(message string, owner Owner, h HandlerWithReply) error {
	if h == nil {
		return ErrNilHandler
	}
	k := key(message)
	b.subs[k] = append(b.subs[k], subscription{owner: owner, fn: h})
	return nil
}

// Unsubscribe removes the first subscription to message held by owner.
func (b *Broadcaster) Unsubscribe(message string, owner Owner) {
	k := key(message)
	list := b.subs[k]
	for i, s := range list {
		if s.owner == owner {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.subs, k)
		return
	}
	b.subs[k] = list
}

// UnsubscribeAll drops every subscription held by owner.
func (b *Broadcaster) UnsubscribeAll(owner Owner) {
	for k, list := range b.subs {
		kept := list[:0:0]
		for _, s := range list {
			if s.owner != owner {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(b.subs, k)
		} else {
			b.subs[k] = kept
		}
	}
}

// Broadcast invokes every handler subscribed to message synchronously, in
// registration order, and returns how many ran. A non-empty target restricts
// delivery to subscriptions whose owner has that name. The sender is not
// excluded; an agent may negotiate with its own parts.
func (b *Broadcaster) Broadcast(message string, arg any, sender Owner, reply Reply, target string) int {
	list := b.subs[key(message)]
	if len(list) == 0 {
		return 0
	}
	// Handlers may subscribe or unsubscribe while we iterate.
	snapshot := append([]subscription(nil), list...)
	n := 0
	for _, s := range snapshot {
		if target != "" && (s.owner == nil || s.owner.Name() != target) {
			continue
		}
		s.fn(arg, reply)
		n++
	}
	return n
}

func (b *Broadcaster) Subscribers(message string) int {
	return len(b.subs[key(message)])
}
