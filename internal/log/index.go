package log

import "github.com/google/btree"

// commandPos identifies the byte extent [Pos, Pos+Len) inside segment
// Gen holding a single Set record that is the current value for some
// key. Remove records are never pointed to from the index.
type commandPos struct {
	Gen uint64
	Pos uint64
	Len uint64
}

// indexEntry is the btree's element type: a key paired with the
// position of its latest Set record. The tree orders entries by Key
// alone, so two entries are equal from the tree's point of view
// whenever their keys match.
type indexEntry struct {
	Key string
	Pos commandPos
}

func lessIndexEntry(a, b indexEntry) bool {
	return a.Key < b.Key
}

// index is the in-memory map from key to commandPos. It is backed by
// an ordered B-tree rather than a bare Go map so that
// compaction visits keys in a stable, ascending order instead of Go's
// randomized map iteration order; the
// mapping semantics (unique keys, last write wins) are identical either
// way. The index is never persisted: it is rebuilt by replaying segments
// every time the store is opened.
type index struct {
	tree *btree.BTreeG[indexEntry]
}

func newIndex() *index {
	return &index{tree: btree.NewG(32, lessIndexEntry)}
}

func (ix *index) get(key string) (commandPos, bool) {
	entry, ok := ix.tree.Get(indexEntry{Key: key})
	if !ok {
		return commandPos{}, false
	}
	return entry.Pos, true
}

// set inserts or overwrites the entry for key, returning the previous
// position if one existed.
func (ix *index) set(key string, pos commandPos) (commandPos, bool) {
	old, had := ix.tree.ReplaceOrInsert(indexEntry{Key: key, Pos: pos})
	return old.Pos, had
}

// delete removes key's entry, returning it if one existed.
func (ix *index) delete(key string) (commandPos, bool) {
	old, had := ix.tree.Delete(indexEntry{Key: key})
	return old.Pos, had
}

func (ix *index) len() int {
	return ix.tree.Len()
}

// forEach visits every entry in ascending key order. visit may mutate
// the commandPos it's handed; compaction relies on this to rewrite
// entries in place. The tree must not be modified while an Ascend is in
// flight, so entries are collected first and written back after.
func (ix *index) forEach(visit func(key string, pos *commandPos)) {
	entries := make([]indexEntry, 0, ix.tree.Len())
	ix.tree.Ascend(func(entry indexEntry) bool {
		entries = append(entries, entry)
		return true
	})
	for i := range entries {
		visit(entries[i].Key, &entries[i].Pos)
		ix.tree.ReplaceOrInsert(entries[i])
	}
}
