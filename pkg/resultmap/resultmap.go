// Package resultmap implements the sharded, insert-once deduplication map:
// per-shard storage of analysed targets keyed by (target, effective
// configuration), counters incremented only on first insertion, and
// export-cache-key tracking for cache write-through. Sharding and its
// atomic action/blob/tree counters are shaped after
// pkg/cache/lru.go (atomic counters alongside a mutex-guarded map),
// generalised from a single global mutex to a sharded one since the result
// map, unlike a single in-process blob cache, is written from
// every analysis worker concurrently.
package resultmap

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Sumatoshi-tech/codefang/pkg/analysis"
)

// Map is the sharded ResultTargetMap.
type Map struct {
	shards []shard
	width  int

	actions atomic.Int64
	blobs   atomic.Int64
	trees   atomic.Int64

	exportMu sync.Mutex
	exported map[string]analysis.AnalysedTarget

	actionMu sync.Mutex
	byID     map[string]analysis.Action
}

type shard struct {
	mu      sync.Mutex
	entries map[string]analysis.AnalysedTarget
	origin  map[string]string // action/blob/tree id -> the ConfiguredTarget key that first produced it
}

// New constructs a Map with width = max(1, 2*jobs+1) shards, matching
// pkg/asyncmap's sharding so the two maps scale with the same job count.
func New(jobs int) *Map {
	width := 2*jobs + 1
	if width < 1 {
		width = 1
	}

	m := &Map{
		width:    width,
		shards:   make([]shard, width),
		exported: map[string]analysis.AnalysedTarget{},
		byID:     map[string]analysis.Action{},
	}

	for i := range m.shards {
		m.shards[i].entries = map[string]analysis.AnalysedTarget{}
		m.shards[i].origin = map[string]string{}
	}

	return m
}

func (m *Map) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))

	return &m.shards[int(h.Sum32())%m.width]
}

// Insert records target under ct's key if not already present, reporting
// whether this call performed the insertion. Counters for
// actions/blobs/trees are bumped only when inserted is true.
func (m *Map) Insert(ct analysis.ConfiguredTarget, target analysis.AnalysedTarget) (inserted bool) {
	key := ct.Key()
	s := m.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; ok {
		return false
	}

	s.entries[key] = target

	for _, a := range target.Actions {
		if _, ok := s.origin[a.ID]; !ok {
			s.origin[a.ID] = key
			m.actions.Add(1)

			m.actionMu.Lock()
			m.byID[a.ID] = a
			m.actionMu.Unlock()
		}
	}

	for _, b := range target.Blobs {
		if _, ok := s.origin["blob:"+b.Hash]; !ok {
			s.origin["blob:"+b.Hash] = key
			m.blobs.Add(1)
		}
	}

	for _, t := range target.Trees {
		if _, ok := s.origin["tree:"+t.Hash]; !ok {
			s.origin["tree:"+t.Hash] = key
			m.trees.Add(1)
		}
	}

	return true
}

// Get returns the target previously inserted under ct's key, if any.
func (m *Map) Get(ct analysis.ConfiguredTarget) (analysis.AnalysedTarget, bool) {
	key := ct.Key()
	s := m.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.entries[key]

	return t, ok
}

// Origin returns the ConfiguredTarget key that first produced actionOrBlobOrTreeID.
func (m *Map) Origin(ct analysis.ConfiguredTarget, id string) (string, bool) {
	s := m.shardFor(ct.Key())

	s.mu.Lock()
	defer s.mu.Unlock()

	origin, ok := s.origin[id]

	return origin, ok
}

// ActionByID returns the Action previously recorded under id by Insert, if
// any. Used by pkg/buildgraph to resolve a traverser action node back into
// its full argv/env/inputs before running it.
func (m *Map) ActionByID(id string) (analysis.Action, bool) {
	m.actionMu.Lock()
	defer m.actionMu.Unlock()

	a, ok := m.byID[id]

	return a, ok
}

// Counters returns the running action/blob/tree counts, incremented only
// on first insertion.
func (m *Map) Counters() (actions, blobs, trees int64) {
	return m.actions.Load(), m.blobs.Load(), m.trees.Load()
}

// RecordExport associates an export target's TargetCacheKey with its
// analysed result for cache write-through.
func (m *Map) RecordExport(cacheKey string, target analysis.AnalysedTarget) {
	m.exportMu.Lock()
	defer m.exportMu.Unlock()

	m.exported[cacheKey] = target
}

// Exported looks up a previously recorded export by its TargetCacheKey.
func (m *Map) Exported(cacheKey string) (analysis.AnalysedTarget, bool) {
	m.exportMu.Lock()
	defer m.exportMu.Unlock()

	t, ok := m.exported[cacheKey]

	return t, ok
}

// actionGraphEntry is the stable, JSON-serialisable projection of one
// inserted ConfiguredTarget, field order fixed by struct tag order and
// every nested collection explicitly sorted (Go map iteration order is
// undefined; dumps must be stable).
type actionGraphEntry struct {
	Target    string   `json:"target"`
	Artifacts []string `json:"artifacts"`
	Runfiles  []string `json:"runfiles"`
	Actions   []string `json:"actions"`
	Vars      []string `json:"vars"`
}

// DumpActionGraph renders every currently-inserted target as stable,
// deterministically-ordered JSON.
func (m *Map) DumpActionGraph() ([]byte, error) {
	var entries []actionGraphEntry

	for i := range m.shards {
		s := &m.shards[i]

		s.mu.Lock()

		for key, t := range s.entries {
			entries = append(entries, actionGraphEntry{
				Target:    key,
				Artifacts: sortedStagePaths(t.Result.ArtifactStage),
				Runfiles:  sortedStagePaths(t.Result.Runfiles),
				Actions:   sortedActionIDs(t.Actions),
				Vars:      t.SortedVars(),
			})
		}

		s.mu.Unlock()
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Target < entries[j].Target })

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("resultmap: marshal action graph: %w", err)
	}

	return out, nil
}

func sortedStagePaths(s analysis.Stage) []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}

	sort.Strings(out)

	return out
}

func sortedActionIDs(actions []analysis.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.ID
	}

	sort.Strings(out)

	return out
}
