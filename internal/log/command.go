package log

import (
	"encoding/json"
	"io"
)

// Command is the single record type appended to a segment. Only two
// variants exist: Set assigns a value to a key, Remove deletes a key.
// The Op field is the tag that tells them apart; Value is empty for a
// Remove record.
//
// Commands are encoded as one JSON object per record with no length
// prefix. encoding/json's streaming Decoder already knows where one
// object ends and the next begins, and reports the byte offset of that
// boundary through InputOffset, so concatenating records back to back
// and replaying them is just a matter of calling Decode in a loop.
type Command struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

const (
	opSet    = "set"
	opRemove = "rm"
)

func newSetCommand(key, value string) Command {
	return Command{Op: opSet, Key: key, Value: value}
}

func newRemoveCommand(key string) Command {
	return Command{Op: opRemove, Key: key}
}

func (c Command) isSet() bool    { return c.Op == opSet }
func (c Command) isRemove() bool { return c.Op == opRemove }

// encodeCommand writes cmd to w as a single JSON object followed by a
// newline. The trailing newline is not required for correct decoding
// (json.Decoder resyncs on object boundaries) but it keeps each record
// on its own line, which makes a raw segment file readable with a text
// viewer while debugging.
func encodeCommand(w io.Writer, cmd Command) error {
	enc := json.NewEncoder(w)
	return enc.Encode(cmd)
}

// commandStream decodes a back-to-back sequence of Command records from
// r, reporting the byte offset immediately after each one. The caller
// doesn't need to know record boundaries up front, only where the
// stream currently stands after each read.
type commandStream struct {
	dec *json.Decoder
}

func newCommandStream(r io.Reader) *commandStream {
	return &commandStream{dec: json.NewDecoder(r)}
}

// next returns the next command and the stream's byte offset immediately
// after it. io.EOF is returned once the stream is exhausted.
func (s *commandStream) next() (Command, int64, error) {
	var cmd Command
	if err := s.dec.Decode(&cmd); err != nil {
		return Command{}, 0, err
	}
	return cmd, s.dec.InputOffset(), nil
}
