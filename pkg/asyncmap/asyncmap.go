// Package asyncmap implements the scheduler core:
// a sharded concurrent map whose values are produced by a caller-supplied
// value-creator, invoked at most once per key, with sub-caller continuations
// and cycle detection. It is shaped after pkg/cache.LRUBlobCache's
// sharding/locking idiom (minus eviction — entries here are never evicted,
// only ever computed once) and reuses pkg/toposort for cycle reporting.
package asyncmap

import (
	"errors"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/Sumatoshi-tech/codefang/pkg/tasksystem"
	"github.com/Sumatoshi-tech/codefang/pkg/toposort"
)

// ErrFailed is wrapped into the error reported for any key whose
// value-creator called Logger with fatal=true.
var ErrFailed = errors.New("asyncmap: value creation failed")

// Logger is passed to a ValueCreator; fatal=true marks the key permanently
// failed. It may be called multiple times; only the first fatal call wins.
type Logger func(msg string, fatal bool)

// Setter publishes a key's value. Calling it more than once for the same
// key is a contract violation by the value-creator and is ignored after the
// first call.
type Setter[V any] func(value V)

// Subcaller enqueues a task that waits for keys to become ready (recursively
// driving their value-creators) before invoking continuation with the
// resolved values, in the same order as keys.
type Subcaller[K comparable, V any] func(keys []K, continuation func(values []*V), logger Logger)

// ValueCreator computes the value for key, publishing it via setter exactly
// once on success, and reporting errors (possibly fatal) via logger.
// subcaller lets it depend on other keys in this or a related map.
type ValueCreator[K comparable, V any] func(
	ts *tasksystem.Pool,
	setter Setter[V],
	logger Logger,
	subcaller Subcaller[K, V],
	key K,
)

// entry is one key's in-flight or completed state.
type entry[V any] struct {
	mu       sync.Mutex
	started  bool
	done     bool
	failed   bool
	value    V
	waiting  []chan struct{}
	waitKeys []string // not populated by this package; DetectCycle takes its edges from its caller
}

// Map is a sharded, at-most-once map of futures.
type Map[K comparable, V any] struct {
	creator ValueCreator[K, V]
	ts      *tasksystem.Pool
	keyStr  func(K) string

	shards []shard[K, V]
	width  int
}

type shard[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
}

// New constructs a Map with width = max(1, 2*jobs+1) shards.
func New[K comparable, V any](jobs int, ts *tasksystem.Pool, keyStr func(K) string, creator ValueCreator[K, V]) *Map[K, V] {
	width := 2*jobs + 1
	if width < 1 {
		width = 1
	}

	m := &Map[K, V]{
		creator: creator,
		ts:      ts,
		keyStr:  keyStr,
		width:   width,
		shards:  make([]shard[K, V], width),
	}

	for i := range m.shards {
		m.shards[i].entries = make(map[K]*entry[V])
	}

	return m
}

func (m *Map[K, V]) shardFor(k K) *shard[K, V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(m.keyStr(k)))

	return &m.shards[int(h.Sum32())%m.width]
}

// getOrCreate returns the entry for k, creating it (and scheduling its
// value-creator) on first access.
func (m *Map[K, V]) getOrCreate(k K) *entry[V] {
	s := m.shardFor(k)

	s.mu.Lock()
	e, ok := s.entries[k]
	if !ok {
		e = &entry[V]{}
		s.entries[k] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	needStart := !e.started
	e.started = true
	e.mu.Unlock()

	if needStart {
		m.ts.QueueTask(func() { m.run(k, e) })
	}

	return e
}

func (m *Map[K, V]) run(k K, e *entry[V]) {
	setter := func(value V) {
		e.mu.Lock()
		if e.done || e.failed {
			e.mu.Unlock()

			return
		}

		e.value = value
		e.done = true
		waiters := e.waiting
		e.waiting = nil
		e.mu.Unlock()

		for _, ch := range waiters {
			close(ch)
		}
	}

	logger := func(_ string, fatal bool) {
		if !fatal {
			return
		}

		e.mu.Lock()
		if e.done || e.failed {
			e.mu.Unlock()

			return
		}

		e.failed = true
		waiters := e.waiting
		e.waiting = nil
		e.mu.Unlock()

		for _, ch := range waiters {
			close(ch)
		}
	}

	subcaller := func(keys []K, continuation func(values []*V), subLogger Logger) {
		m.ts.QueueTask(func() {
			values := make([]*V, len(keys))
			ok := true

			for i, key := range keys {
				sub := m.getOrCreate(key)
				sub.waitFor()

				sub.mu.Lock()
				if sub.failed {
					ok = false
				} else {
					values[i] = &sub.value
				}
				sub.mu.Unlock()
			}

			if !ok {
				subLogger("dependency failed", true)

				return
			}

			continuation(values)
		})
	}

	m.creator(m.ts, setter, logger, subcaller, k)
}

// waitFor blocks until e is done or failed.
func (e *entry[V]) waitFor() {
	e.mu.Lock()
	if e.done || e.failed {
		e.mu.Unlock()

		return
	}

	ch := make(chan struct{})
	e.waiting = append(e.waiting, ch)
	e.mu.Unlock()

	<-ch
}

// ConsumeAfterKeysReady blocks until every key in keys has either published
// a value or failed, then reports the ready values (nil for a failed key).
// failureReporter is called once per failed key.
func (m *Map[K, V]) ConsumeAfterKeysReady(keys []K, failureReporter func(k K)) []*V {
	entries := make([]*entry[V], len(keys))
	for i, k := range keys {
		entries[i] = m.getOrCreate(k)
	}

	values := make([]*V, len(keys))

	for i, e := range entries {
		e.waitFor()

		e.mu.Lock()
		failed := e.failed
		if !failed {
			values[i] = &e.value
		}
		e.mu.Unlock()

		if failed {
			failureReporter(keys[i])
		}
	}

	return values
}

// DetectCycle builds the pending-set dependency graph from pendingWaits
// (each pending key mapped to the keys its subcalls are blocked on) and
// reports a shortest cycle among the pending keys via printer, preferring
// one through seed when it is no longer than the others; printer receives
// an empty slice when there is no cycle. It reuses pkg/toposort's
// cycle-finding.
func DetectCycle(pendingWaits map[string][]string, seed string, printer func(cycle []string)) {
	g := toposort.NewGraph()

	for from := range pendingWaits {
		g.AddNode(from)
	}

	for from, tos := range pendingWaits {
		for _, to := range tos {
			g.AddEdge(from, to)
		}
	}

	cycle := g.FindCycle(seed)

	keys := make([]string, 0, len(pendingWaits))
	for k := range pendingWaits {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		if c := g.FindCycle(k); len(c) > 0 && (len(cycle) == 0 || len(c) < len(cycle)) {
			cycle = c
		}
	}

	printer(cycle)
}
