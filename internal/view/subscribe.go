package view

import (
	"time"

	"github.com/tinytelemetry/logdeck/internal/model"
)

// ChangeKind identifies what triggered a Change.
type ChangeKind string

const (
	ChangeReplaced ChangeKind = "replaced"
	ChangeAppended ChangeKind = "appended"
	ChangeCriteria ChangeKind = "criteria"
	ChangeSettings ChangeKind = "settings"
)

// Change is published after every state mutation.
type Change struct {
	Kind     ChangeKind           `json:"kind"`
	At       time.Time            `json:"at"`
	Criteria model.FilterCriteria `json:"criteria"`
	Total    int                  `json:"total"`
	Visible  int                  `json:"visible"`
	Rejected int                  `json:"rejected"`
	// Alerts lists appended records that the notification settings select.
	Alerts []model.LogRecord `json:"alerts,omitempty"`
}

const subscriberBuffer = 16

// Subscribe registers a change listener. The returned function unsubscribes
// and closes the channel. A subscriber that falls behind misses changes
// rather than blocking writers.
func (c *Coordinator) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	unsubscribe := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if existing, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(existing)
		}
	}
	return ch, unsubscribe
}

func (c *Coordinator) changeLocked(kind ChangeKind, alerts []model.LogRecord) Change {
	return Change{
		Kind:     kind,
		At:       c.now().UTC(),
		Criteria: c.criteria,
		Total:    len(c.records),
		Visible:  len(c.visible),
		Rejected: c.rejected,
		Alerts:   alerts,
	}
}

func (c *Coordinator) publish(ch Change) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, sub := range c.subs {
		select {
		case sub <- ch:
		default:
		}
	}
}
