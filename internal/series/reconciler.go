package series

import (
	"sort"
	"time"

	"tankwatch-chart/internal/models"
)

// EntryState distinguishes optimistic live copies from fetched rows.
type EntryState int

const (
	// Confirmed came from an authoritative window fetch.
	Confirmed EntryState = iota
	// Provisional was applied from a live event and awaits the next fetch.
	Provisional
)

func (s EntryState) String() string {
	if s == Provisional {
		return "provisional"
	}
	return "confirmed"
}

// Entry one record of the merged series.
type Entry struct {
	Record models.ReadingRecord
	State  EntryState

	seq     uint64 // first-insertion order, kept across replacements
	arrival uint64 // arrival counter of the last write
}

// Mark arrival position of the reconciler; tag a fetch with the Mark taken
// when it was issued.
type Mark uint64

type entryKey struct {
	ts  time.Time
	seq uint64
}

// Reconciler the in-memory merged series of one view.
//
// Invariants after every call: entries ascend by (Timestamp, seq) and each
// record ID appears at most once. Not safe for concurrent use; the owning view
// loop serializes access.
type Reconciler struct {
	entries []Entry
	keys    map[string]entryKey
	nextSeq uint64
	arrival uint64
}

// NewReconciler creates an empty series.
func NewReconciler() *Reconciler {
	return &Reconciler{keys: make(map[string]entryKey)}
}

// Mark returns the current arrival position.
func (r *Reconciler) Mark() Mark {
	return Mark(r.arrival)
}

// Apply upserts a live event as a provisional entry. It reports whether the
// ID was new to the series.
func (r *Reconciler) Apply(evt models.LiveEvent) bool {
	return r.upsert(evt.Record, Provisional)
}

// Replace swaps in a fetched window wholesale. Provisional entries written
// after issuedAt and missing from the snapshot survive, since the fetch could
// not have seen them; everything else is dropped. Replaying the same snapshot
// is a no-op.
func (r *Reconciler) Replace(snapshot []models.ReadingRecord, issuedAt Mark) {
	inSnapshot := make(map[string]struct{}, len(snapshot))
	for _, rec := range snapshot {
		inSnapshot[rec.ID] = struct{}{}
	}

	var carried []Entry
	for _, e := range r.entries {
		if e.State != Provisional || e.arrival <= uint64(issuedAt) {
			continue
		}
		if _, ok := inSnapshot[e.Record.ID]; ok {
			continue
		}
		carried = append(carried, e)
	}

	r.entries = r.entries[:0]
	r.keys = make(map[string]entryKey, len(snapshot)+len(carried))
	for _, e := range carried {
		r.insert(e)
	}
	for _, rec := range snapshot {
		r.upsertWithArrival(rec, Confirmed, r.arrival)
	}
}

// Reset drops everything, used when the view's scope changes.
func (r *Reconciler) Reset() {
	r.entries = nil
	r.keys = make(map[string]entryKey)
}

// Len number of entries.
func (r *Reconciler) Len() int {
	return len(r.entries)
}

// ProvisionalCount number of entries not yet confirmed by a fetch.
func (r *Reconciler) ProvisionalCount() int {
	n := 0
	for _, e := range r.entries {
		if e.State == Provisional {
			n++
		}
	}
	return n
}

// Records returns a copy of the ordered series.
func (r *Reconciler) Records() []models.ReadingRecord {
	out := make([]models.ReadingRecord, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Record
	}
	return out
}

// Entries returns a copy of the ordered entries with their states.
func (r *Reconciler) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Reconciler) upsert(rec models.ReadingRecord, state EntryState) bool {
	r.arrival++
	return r.upsertWithArrival(rec, state, r.arrival)
}

func (r *Reconciler) upsertWithArrival(rec models.ReadingRecord, state EntryState, arrival uint64) bool {
	seq := r.nextSeq
	isNew := true
	if key, ok := r.keys[rec.ID]; ok {
		seq = key.seq
		isNew = false
		r.remove(rec.ID, key)
	} else {
		r.nextSeq++
	}

	r.insert(Entry{Record: rec, State: state, seq: seq, arrival: arrival})
	return isNew
}

func (r *Reconciler) insert(e Entry) {
	key := entryKey{ts: e.Record.Timestamp, seq: e.seq}
	i := sort.Search(len(r.entries), func(i int) bool {
		return !lessKey(keyOf(r.entries[i]), key)
	})
	r.entries = append(r.entries, Entry{})
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = e
	r.keys[e.Record.ID] = key
	if e.seq >= r.nextSeq {
		r.nextSeq = e.seq + 1
	}
}

func (r *Reconciler) remove(id string, key entryKey) {
	i := sort.Search(len(r.entries), func(i int) bool {
		return !lessKey(keyOf(r.entries[i]), key)
	})
	if i < len(r.entries) && r.entries[i].Record.ID == id {
		r.entries = append(r.entries[:i], r.entries[i+1:]...)
	}
	delete(r.keys, id)
}

func keyOf(e Entry) entryKey {
	return entryKey{ts: e.Record.Timestamp, seq: e.seq}
}

func lessKey(a, b entryKey) bool {
	if a.ts.Equal(b.ts) {
		return a.seq < b.seq
	}
	return a.ts.Before(b.ts)
}

// Merge seeds a series from a window snapshot and applies live events in
// arrival order.
func Merge(snapshot []models.ReadingRecord, events []models.LiveEvent) []models.ReadingRecord {
	r := NewReconciler()
	r.Replace(snapshot, r.Mark())
	for _, evt := range events {
		r.Apply(evt)
	}
	return r.Records()
}
