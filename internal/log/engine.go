// Package log implements the log-structured storage engine: segment and
// generation management, index reconstruction on open, the write path,
// and online compaction.
package log

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/kartpop/kvs/internal/engine"
	"github.com/kartpop/kvs/internal/kvserr"
)

// DefaultCompactionThreshold is the number of uncompacted bytes that
// triggers a compaction after a Set.
const DefaultCompactionThreshold = 1024 * 1024

// Engine is the log-structured key-value store. A value is a thin
// handle (a single pointer) around the shared state; Clone hands out
// another handle to the same state rather than copying any data, so
// many goroutines can hold independent Engine values that all observe
// the same store.
//
// Giving each piece of mutable state (the index, the segment readers,
// the writer, the current generation, the uncompacted counter) its own
// mutex opens a race: compaction could retire a generation that a
// concurrent Set has already read as current but not yet written to.
// Rather than chase that race across five separate locks, the whole
// critical path of Set/Get/Remove/compact is serialized behind one
// mutex, acquired and released per public operation.
type Engine struct {
	shared *shared
}

type shared struct {
	mu sync.Mutex

	dir         string
	readers     map[uint64]*segmentReader
	writer      *segmentWriter
	currentGen  uint64
	index       *index
	uncompacted uint64
	threshold   uint64
	closed      bool
}

var _ engine.Engine = (*Engine)(nil)

// Open opens (or creates) a store rooted at dir. It replays every
// existing segment to rebuild the index and the uncompacted counter,
// then starts a fresh segment one generation past the highest one
// found.
func Open(dir string) (*Engine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, kvserr.Wrap("create store directory", err)
	}

	gens, err := sortedGenerations(dir)
	if err != nil {
		return nil, kvserr.Wrap("scan segments", err)
	}

	ix := newIndex()
	readers := make(map[uint64]*segmentReader, len(gens)+1)
	var uncompacted uint64

	for _, gen := range gens {
		f, err := os.Open(segmentPath(dir, gen))
		if err != nil {
			return nil, kvserr.Wrap("open segment", err)
		}
		reader, err := newSegmentReader(f)
		if err != nil {
			return nil, kvserr.Wrap("open segment", err)
		}
		n, err := replay(gen, reader, ix)
		if err != nil {
			return nil, kvserr.Wrap("replay segment", err)
		}
		uncompacted += n
		readers[gen] = reader
	}

	var currentGen uint64
	if len(gens) > 0 {
		currentGen = gens[len(gens)-1] + 1
	} else {
		currentGen = 1
	}
	writer, err := createSegment(dir, currentGen, readers)
	if err != nil {
		return nil, kvserr.Wrap("create active segment", err)
	}

	return &Engine{shared: &shared{
		dir:         dir,
		readers:     readers,
		writer:      writer,
		currentGen:  currentGen,
		index:       ix,
		uncompacted: uncompacted,
		threshold:   DefaultCompactionThreshold,
	}}, nil
}

// SetCompactionThreshold overrides the default 1MiB threshold. The
// server applies its configured threshold through it, and tests use it
// to make compaction trigger on a much smaller workload.
func (e *Engine) SetCompactionThreshold(n uint64) {
	e.shared.mu.Lock()
	defer e.shared.mu.Unlock()
	e.shared.threshold = n
}

// createSegment creates generation gen's segment file, opens both a
// writer and a reader over it, and registers the reader.
func createSegment(dir string, gen uint64, readers map[uint64]*segmentReader) (*segmentWriter, error) {
	path := segmentPath(dir, gen)
	wf, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	writer, err := newSegmentWriter(wf)
	if err != nil {
		return nil, err
	}
	rf, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	reader, err := newSegmentReader(rf)
	if err != nil {
		return nil, err
	}
	readers[gen] = reader
	return writer, nil
}

// replay streams every command out of reader starting at byte 0,
// folding each one into ix and returning the number of bytes made
// newly reclaimable: superseded Set records, plus Remove records
// themselves, which are always garbage.
func replay(gen uint64, reader *segmentReader, ix *index) (uint64, error) {
	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	stream := newCommandStream(reader)

	var pos int64
	var uncompacted uint64
	for {
		cmd, newPos, err := stream.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, kvserr.Wrap("decode command", err)
		}
		length := uint64(newPos - pos)
		switch {
		case cmd.isSet():
			if old, had := ix.set(cmd.Key, commandPos{Gen: gen, Pos: uint64(pos), Len: length}); had {
				uncompacted += old.Len
			}
		case cmd.isRemove():
			if old, had := ix.delete(cmd.Key); had {
				uncompacted += old.Len
			}
			uncompacted += length
		}
		pos = newPos
	}
	return uncompacted, nil
}

// Set encodes and appends a Set command, updates the index, and
// triggers a compaction if the uncompacted counter has crossed the
// configured threshold.
func (e *Engine) Set(key, value string) error {
	needCompact := false
	err := func() error {
		s := e.shared
		s.mu.Lock()
		defer s.mu.Unlock()

		pos0 := s.writer.pos
		if err := encodeCommand(s.writer, newSetCommand(key, value)); err != nil {
			return kvserr.Wrap("encode set command", err)
		}
		if err := s.writer.Flush(); err != nil {
			return kvserr.Wrap("flush segment", err)
		}

		entry := commandPos{Gen: s.currentGen, Pos: pos0, Len: s.writer.pos - pos0}
		if old, had := s.index.set(key, entry); had {
			s.uncompacted += old.Len
		}
		if s.uncompacted > s.threshold {
			needCompact = true
		}
		return nil
	}()
	if err != nil {
		return err
	}
	if needCompact {
		return e.compact()
	}
	return nil
}

// Get looks the key up in the index and, on a hit, reads exactly the
// indexed extent back out of its segment. A miss is not an error.
func (e *Engine) Get(key string) (string, bool, error) {
	s := e.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index.get(key)
	if !ok {
		return "", false, nil
	}

	reader, ok := s.readers[pos.Gen]
	if !ok {
		return "", false, kvserr.Wrap("get", errors.New("missing reader for generation"))
	}
	if _, err := reader.Seek(int64(pos.Pos), io.SeekStart); err != nil {
		return "", false, kvserr.Wrap("seek segment", err)
	}

	stream := newCommandStream(boundedReader(reader, pos.Len))
	cmd, _, err := stream.next()
	if err != nil {
		return "", false, kvserr.Wrap("decode command", err)
	}
	if !cmd.isSet() {
		return "", false, kvserr.ErrUnexpectedCommandType
	}
	return cmd.Value, true, nil
}

// Remove deletes key. It is an error to remove a key that is not
// present, unlike Get of an absent key.
func (e *Engine) Remove(key string) error {
	s := e.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index.get(key); !ok {
		return kvserr.ErrKeyNotFound
	}

	if err := encodeCommand(s.writer, newRemoveCommand(key)); err != nil {
		return kvserr.Wrap("encode remove command", err)
	}
	if err := s.writer.Flush(); err != nil {
		return kvserr.Wrap("flush segment", err)
	}
	// The write path does not add the Remove record's own length to
	// uncompacted; compaction drops it along with everything else in a
	// retired generation regardless, and replay counts it on the next
	// open. Under-counting only delays compaction.
	s.index.delete(key)
	return nil
}

// compact rewrites every live value into a fresh segment and retires
// every older generation. The caller must not hold shared.mu.
func (e *Engine) compact() error {
	s := e.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	compactionGen := s.currentGen + 1
	newCurrentGen := s.currentGen + 2

	newWriter, err := createSegment(s.dir, newCurrentGen, s.readers)
	if err != nil {
		return kvserr.Wrap("create segment", err)
	}
	compactionWriter, err := createSegment(s.dir, compactionGen, s.readers)
	if err != nil {
		return kvserr.Wrap("create segment", err)
	}

	var copyErr error
	var offset uint64
	s.index.forEach(func(key string, pos *commandPos) {
		if copyErr != nil {
			return
		}
		reader, ok := s.readers[pos.Gen]
		if !ok {
			copyErr = kvserr.Wrap("compact", errors.New("missing reader for generation"))
			return
		}
		if _, err := reader.Seek(int64(pos.Pos), io.SeekStart); err != nil {
			copyErr = kvserr.Wrap("seek segment", err)
			return
		}
		n, err := io.Copy(compactionWriter, boundedReader(reader, pos.Len))
		if err != nil {
			copyErr = kvserr.Wrap("copy record", err)
			return
		}
		*pos = commandPos{Gen: compactionGen, Pos: offset, Len: uint64(n)}
		offset += uint64(n)
	})
	if copyErr != nil {
		return copyErr
	}
	// Nothing writes to the compaction generation after this point, so
	// its write handle is flushed and closed; its reader stays open.
	if err := compactionWriter.Close(); err != nil {
		return kvserr.Wrap("close compaction segment writer", err)
	}

	// The old writer's file descriptor is distinct from its generation's
	// reader (each was opened separately in createSegment), so closing it
	// here only drops the write handle; the reader stays open until its
	// generation is retired below.
	if err := s.writer.Close(); err != nil {
		return kvserr.Wrap("close old segment writer", err)
	}

	for gen, reader := range s.readers {
		if gen >= compactionGen {
			continue
		}
		if err := reader.Close(); err != nil {
			return kvserr.Wrap("close retired segment", err)
		}
		delete(s.readers, gen)
		if err := os.Remove(segmentPath(s.dir, gen)); err != nil {
			return kvserr.Wrap("remove retired segment", err)
		}
	}

	s.writer = newWriter
	s.currentGen = newCurrentGen
	s.uncompacted = 0
	return nil
}

// Clone returns a handle to the same underlying store.
func (e *Engine) Clone() engine.Engine {
	return &Engine{shared: e.shared}
}

// Close flushes and closes every open segment file. Calling it again
// after the first close is a no-op, so a signal handler and the normal
// shutdown path can both call it without tripping over each other.
func (e *Engine) Close() error {
	s := e.shared
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.writer.Close(); err != nil {
		return kvserr.Wrap("close writer", err)
	}
	for gen, reader := range s.readers {
		if err := reader.Close(); err != nil {
			return kvserr.Wrap("close reader", err)
		}
		delete(s.readers, gen)
	}
	return nil
}

// Stats reports a snapshot of the store's bookkeeping, consumed by the
// admin HTTP surface.
type Stats struct {
	Keys              int
	UncompactedBytes  uint64
	CurrentGeneration uint64
}

func (e *Engine) Stats() Stats {
	s := e.shared
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Keys:              s.index.len(),
		UncompactedBytes:  s.uncompacted,
		CurrentGeneration: s.currentGen,
	}
}
