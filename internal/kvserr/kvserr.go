// Package kvserr defines the error values shared by the log engine, the
// server, and the client. Keeping them in one package lets the server
// translate an engine failure into a wire response and lets the client
// recognize the same failure after it comes back over the socket.
package kvserr

import "golang.org/x/xerrors"

// ErrKeyNotFound is returned by Remove when the target key is absent.
// Unlike Get, an absent key on Remove is an error: Get of an absent key is
// a normal "no value" outcome, but removing something that was never there
// indicates the caller's view of the store is stale.
var ErrKeyNotFound = xerrors.New("key not found")

// ErrUnexpectedCommandType is returned when a CommandPos resolves to a
// record that is not a Set. Only Set records are ever indexed, so seeing
// anything else at a recorded position means the log or the index is
// corrupted, or the engine has a bug.
var ErrUnexpectedCommandType = xerrors.New("unexpected command type")

// StringError wraps an error message that arrived over the wire from a
// remote server. The client cannot reconstruct the server's original
// error value, only its Error() string, so it is carried opaquely.
type StringError string

func (e StringError) Error() string { return string(e) }

// Wrap annotates err with a message, preserving it for errors.Is/As the
// way xerrors.Errorf's %w verb does.
func Wrap(msg string, err error) error {
	if err == nil {
		return nil
	}
	return xerrors.Errorf("%s: %w", msg, err)
}
