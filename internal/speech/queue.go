package speech

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/cortexface/internal/viseme"
)

// Animator is the face side of playback. All calls arrive on the dispatch
// goroutine.
type Animator interface {
	Accept(tl viseme.Timeline)
	Start(now time.Time)
	Discard()
}

type Hooks struct {
	OnStarted       func(item *Item)
	OnFinished      func(item *Item)
	OnPlaybackError func(item *Item, err error)
	OnTurnComplete  func()
	OnStale         func(event string)
}

type QueueOptions struct {
	// Dispatch runs fn on the goroutine that owns the queue. Player callbacks
	// are marshalled through it. Nil runs fn inline with the wall clock.
	Dispatch func(fn func(now time.Time)) bool
	Hooks    Hooks
	Logger   zerolog.Logger
}

// Queue plays items strictly in arrival order with at most one playing. The
// head is removed only when its audio ends or fails to start. Every method
// except Submit and Depth must be called on the dispatch goroutine.
type Queue struct {
	player   Player
	animator Animator
	dispatch func(fn func(now time.Time)) bool
	hooks    Hooks
	log      zerolog.Logger

	items   []*Item
	current *Item
	handle  Handle
	played  int
	closed  bool

	depth atomic.Int64
}

func NewQueue(player Player, animator Animator, opts QueueOptions) *Queue {
	dispatch := opts.Dispatch
	if dispatch == nil {
		dispatch = func(fn func(now time.Time)) bool {
			fn(time.Now())
			return true
		}
	}
	return &Queue{
		player:   player,
		animator: animator,
		dispatch: dispatch,
		hooks:    opts.Hooks,
		log:      opts.Logger.With().Str("component", "speech").Logger(),
	}
}

// Submit enqueues item from any goroutine.
func (q *Queue) Submit(item *Item) bool {
	return q.dispatch(func(time.Time) { q.Enqueue(item) })
}

// Enqueue appends item and starts it when the queue was idle.
func (q *Queue) Enqueue(item *Item) {
	if q.closed {
		q.log.Debug().Str("item", item.ID.String()).Msg("enqueue after close dropped")
		return
	}
	wasEmpty := len(q.items) == 0
	q.items = append(q.items, item)
	q.depth.Store(int64(len(q.items)))
	q.log.Debug().
		Str("item", item.ID.String()).
		Int("events", item.Timeline.Len()).
		Int("depth", len(q.items)).
		Msg("utterance queued")
	if wasEmpty {
		q.playNext()
	}
}

func (q *Queue) playNext() {
	if q.closed || q.current != nil || len(q.items) == 0 {
		return
	}

	item := q.items[0]
	q.current = item
	q.animator.Accept(item.Timeline)

	handle, err := q.player.Play(item.Clip, PlaybackEvents{
		OnStart: func() {
			q.dispatch(func(now time.Time) { q.started(item, now) })
		},
		OnEnd: func() {
			q.dispatch(func(time.Time) { q.finished(item) })
		},
	})
	if err != nil {
		q.fail(item, err)
		return
	}
	if q.current == item {
		q.handle = handle
	}
}

func (q *Queue) started(item *Item, now time.Time) {
	if q.current != item {
		q.stale("start", item)
		return
	}
	q.animator.Start(now)
	q.log.Debug().
		Str("item", item.ID.String()).
		Dur("latency", now.Sub(item.ReceivedAt)).
		Msg("playback started")
	if q.hooks.OnStarted != nil {
		q.hooks.OnStarted(item)
	}
}

func (q *Queue) finished(item *Item) {
	if q.current != item {
		q.stale("end", item)
		return
	}
	q.dequeue()
	q.played++
	if q.hooks.OnFinished != nil {
		q.hooks.OnFinished(item)
	}
	q.advance()
}

func (q *Queue) fail(item *Item, err error) {
	perr := &PlaybackError{ItemID: item.ID, Err: err}
	q.log.Warn().Err(perr).Msg("skipping utterance")

	q.dequeue()
	q.animator.Discard()
	if q.hooks.OnPlaybackError != nil {
		q.hooks.OnPlaybackError(item, perr)
	}
	q.advance()
}

func (q *Queue) dequeue() {
	q.items[0] = nil
	q.items = q.items[1:]
	q.current = nil
	q.handle = nil
	q.depth.Store(int64(len(q.items)))
}

func (q *Queue) advance() {
	if len(q.items) > 0 {
		q.playNext()
		return
	}
	// A turn counts only when something was heard; a queue emptied purely
	// by failures ends silently.
	if q.played > 0 {
		q.played = 0
		q.log.Debug().Msg("turn complete")
		if q.hooks.OnTurnComplete != nil {
			q.hooks.OnTurnComplete()
		}
	}
}

func (q *Queue) stale(event string, item *Item) {
	q.log.Debug().Str("event", event).Str("item", item.ID.String()).Msg("stale playback callback ignored")
	if q.hooks.OnStale != nil {
		q.hooks.OnStale(event)
	}
}

// Close stops the current clip and drops everything queued. It is safe to
// call more than once.
func (q *Queue) Close() {
	if q.closed {
		return
	}
	q.closed = true
	handle := q.handle
	q.items = nil
	q.current = nil
	q.handle = nil
	q.depth.Store(0)
	if handle != nil {
		handle.Stop()
	}
}

func (q *Queue) Len() int { return len(q.items) }

// Depth is Len readable from any goroutine.
func (q *Queue) Depth() int { return int(q.depth.Load()) }

// Playing returns the item whose audio is in flight, or nil.
func (q *Queue) Playing() *Item { return q.current }
