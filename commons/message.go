// Package commons defines the wire protocol between sessions and the
// hub. Every message is a JSON tuple with a string tag first, e.g.
// ["commit", {...}, 3].
package commons

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cowrite/scribe/ot"
)

// MessageType tags a wire tuple.
type MessageType string

// The protocol has one request/response pair per direction at a time
// within a session, plus the update broadcast:
// - open/openDone (session handshake, optional catch-up)
// - commit/commitDone (fast path or rebase path)
// - update (server push of another session's commit)
// - close (no response)
// - error (fatal failure, the hub drops the session after sending it)
const (
	OpenMessage       MessageType = "open"
	OpenDoneMessage   MessageType = "openDone"
	CommitMessage     MessageType = "commit"
	CommitDoneMessage MessageType = "commitDone"
	UpdateMessage     MessageType = "update"
	CloseMessage      MessageType = "close"
	ErrorMessage      MessageType = "error"
)

var ErrBadMessage = errors.New("commons: malformed message tuple")

// Message is one wire tuple. Which fields are meaningful depends on
// the tag; the rest stay zero.
type Message struct {
	Type    MessageType
	DocID   string       // open, close
	Version int          // open, openDone, commit, commitDone, update
	Change  *ot.Change   // commit, update
	Rebased *ot.Change   // commitDone on the rebase path
	Catchup []*ot.Change // openDone, commitDone on the rebase path
	Reason  string       // error
}

// NewOpen opens docID at the client's last known version.
func NewOpen(docID string, version int) *Message {
	return &Message{Type: OpenMessage, DocID: docID, Version: version}
}

// NewOpenDone acknowledges an open. Catchup carries the changes the
// client missed, oldest first; it is empty for an up-to-date client.
func NewOpenDone(version int, catchup []*ot.Change) *Message {
	return &Message{Type: OpenDoneMessage, Version: version, Catchup: catchup}
}

// NewCommit submits a change produced against the given version.
func NewCommit(change *ot.Change, version int) *Message {
	return &Message{Type: CommitMessage, Change: change, Version: version}
}

// NewCommitDone acknowledges a fast-path commit.
func NewCommitDone(version int) *Message {
	return &Message{Type: CommitDoneMessage, Version: version}
}

// NewCommitDoneRebase acknowledges a rebased commit: rebased is the
// transformed form of the client's own change, catchup what the client
// must apply to reach version.
func NewCommitDoneRebase(version int, rebased *ot.Change, catchup []*ot.Change) *Message {
	return &Message{Type: CommitDoneMessage, Version: version, Rebased: rebased, Catchup: catchup}
}

// NewUpdate broadcasts a committed change to the other sessions.
func NewUpdate(version int, change *ot.Change) *Message {
	return &Message{Type: UpdateMessage, Version: version, Change: change}
}

// NewClose announces the session is going away.
func NewClose(docID string) *Message {
	return &Message{Type: CloseMessage, DocID: docID}
}

// NewError reports a fatal session failure.
func NewError(reason string) *Message {
	return &Message{Type: ErrorMessage, Reason: reason}
}

// MarshalJSON encodes the tuple form for the message's tag.
func (m *Message) MarshalJSON() ([]byte, error) {
	var tuple []any
	switch m.Type {
	case OpenMessage:
		tuple = []any{m.Type, m.DocID, m.Version}
	case OpenDoneMessage:
		if len(m.Catchup) > 0 {
			tuple = []any{m.Type, m.Version, m.Catchup}
		} else {
			tuple = []any{m.Type, m.Version}
		}
	case CommitMessage:
		tuple = []any{m.Type, m.Change, m.Version}
	case CommitDoneMessage:
		if m.Rebased != nil {
			tuple = []any{m.Type, m.Version, m.Rebased, m.Catchup}
		} else {
			tuple = []any{m.Type, m.Version}
		}
	case UpdateMessage:
		tuple = []any{m.Type, m.Version, m.Change}
	case CloseMessage:
		tuple = []any{m.Type, m.DocID}
	case ErrorMessage:
		tuple = []any{m.Type, m.Reason}
	default:
		return nil, fmt.Errorf("%w: unknown tag %q", ErrBadMessage, m.Type)
	}
	return json.Marshal(tuple)
}

// UnmarshalJSON decodes a tuple, dispatching on its tag.
func (m *Message) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if len(parts) == 0 {
		return fmt.Errorf("%w: empty tuple", ErrBadMessage)
	}
	var tag MessageType
	if err := json.Unmarshal(parts[0], &tag); err != nil {
		return fmt.Errorf("%w: bad tag: %v", ErrBadMessage, err)
	}
	out := Message{Type: tag}
	rest := parts[1:]
	var err error
	switch tag {
	case OpenMessage:
		err = decodeTuple(rest, &out.DocID, &out.Version)
	case OpenDoneMessage:
		if len(rest) > 1 {
			err = decodeTuple(rest, &out.Version, &out.Catchup)
		} else {
			err = decodeTuple(rest, &out.Version)
		}
	case CommitMessage:
		err = decodeTuple(rest, &out.Change, &out.Version)
	case CommitDoneMessage:
		if len(rest) > 1 {
			err = decodeTuple(rest, &out.Version, &out.Rebased, &out.Catchup)
		} else {
			err = decodeTuple(rest, &out.Version)
		}
	case UpdateMessage:
		err = decodeTuple(rest, &out.Version, &out.Change)
	case CloseMessage:
		err = decodeTuple(rest, &out.DocID)
	case ErrorMessage:
		err = decodeTuple(rest, &out.Reason)
	default:
		return fmt.Errorf("%w: unknown tag %q", ErrBadMessage, tag)
	}
	if err != nil {
		return err
	}
	*m = out
	return nil
}

// decodeTuple unmarshals positional elements into the given targets.
func decodeTuple(parts []json.RawMessage, targets ...any) error {
	if len(parts) != len(targets) {
		return fmt.Errorf("%w: want %d elements, have %d", ErrBadMessage, len(targets), len(parts))
	}
	for i, p := range parts {
		if err := json.Unmarshal(p, targets[i]); err != nil {
			return fmt.Errorf("%w: element %d: %v", ErrBadMessage, i+1, err)
		}
	}
	return nil
}
