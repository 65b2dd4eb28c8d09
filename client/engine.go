package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/cowrite/scribe/commons"
	"github.com/cowrite/scribe/ot"
)

// handleInput turns one console command into a change and commits it
// through the session. Returning a nil message means nothing to send.
func handleInput(line string) (*commons.Message, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}

	switch fields[0] {
	case "set":
		// set <path> <json>
		if len(fields) < 3 {
			return nil, fmt.Errorf("usage: set <path> <json>")
		}
		path := parsePath(fields[1])
		val, err := parseJSON(strings.Join(fields[2:], " "))
		if err != nil {
			return nil, err
		}
		original, _ := sess.Get(path)
		op, err := ot.Set(path, val, original)
		if err != nil {
			return nil, err
		}
		return commitOps(op)

	case "del":
		// del <path>
		if len(fields) != 2 {
			return nil, fmt.Errorf("usage: del <path>")
		}
		path := parsePath(fields[1])
		prior, ok := sess.Get(path)
		if !ok {
			return nil, fmt.Errorf("nothing at %s", path)
		}
		op, err := ot.Delete(path, prior)
		if err != nil {
			return nil, err
		}
		return commitOps(op)

	case "ins":
		// ins <path> <pos> <text>
		if len(fields) < 4 {
			return nil, fmt.Errorf("usage: ins <path> <pos> <text>")
		}
		path := parsePath(fields[1])
		pos, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("bad position %q", fields[2])
		}
		text := strings.Join(fields[3:], " ")
		if _, ok := sess.Get(path); !ok {
			// First write to an absent property creates it.
			op, err := ot.Create(path, text)
			if err != nil {
				return nil, err
			}
			return commitOps(op)
		}
		op, err := ot.Update(path, ot.NewTextInsert(pos, text))
		if err != nil {
			return nil, err
		}
		return commitOps(op)

	case "cut":
		// cut <path> <pos> <len>
		if len(fields) != 4 {
			return nil, fmt.Errorf("usage: cut <path> <pos> <len>")
		}
		path := parsePath(fields[1])
		pos, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("bad position %q", fields[2])
		}
		n, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("bad length %q", fields[3])
		}
		cur, ok := sess.Get(path)
		if !ok {
			return nil, fmt.Errorf("nothing at %s", path)
		}
		s, ok := cur.(string)
		if !ok {
			return nil, fmt.Errorf("%s is not a string", path)
		}
		runes := []rune(s)
		if pos < 0 || pos+n > len(runes) {
			return nil, fmt.Errorf("cannot cut [%d,%d) at %s", pos, pos+n, path)
		}
		op, err := ot.Update(path, ot.NewTextDelete(pos, string(runes[pos:pos+n])))
		if err != nil {
			return nil, err
		}
		return commitOps(op)

	case "push":
		// push <path> <json> — append an element to an array property.
		if len(fields) < 3 {
			return nil, fmt.Errorf("usage: push <path> <json>")
		}
		path := parsePath(fields[1])
		val, err := parseJSON(strings.Join(fields[2:], " "))
		if err != nil {
			return nil, err
		}
		cur, ok := sess.Get(path)
		if !ok {
			op, err := ot.Create(path, []any{val})
			if err != nil {
				return nil, err
			}
			return commitOps(op)
		}
		arr, ok := cur.([]any)
		if !ok {
			return nil, fmt.Errorf("%s is not an array", path)
		}
		op, err := ot.Update(path, ot.NewArrayInsert(len(arr), val))
		if err != nil {
			return nil, err
		}
		return commitOps(op)

	case "pop":
		// pop <path> <idx>
		if len(fields) != 3 {
			return nil, fmt.Errorf("usage: pop <path> <idx>")
		}
		path := parsePath(fields[1])
		idx, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("bad index %q", fields[2])
		}
		cur, ok := sess.Get(path)
		if !ok {
			return nil, fmt.Errorf("nothing at %s", path)
		}
		arr, ok := cur.([]any)
		if !ok || idx < 0 || idx >= len(arr) {
			return nil, fmt.Errorf("no element %d at %s", idx, path)
		}
		op, err := ot.Update(path, ot.NewArrayDelete(idx, arr[idx]))
		if err != nil {
			return nil, err
		}
		return commitOps(op)

	case "!doc":
		color.Cyan("%s", sess.Document())
		return nil, nil

	case "!q":
		return sess.Close(), nil
	}

	return nil, fmt.Errorf("unknown command %q", fields[0])
}

// commitOps wraps ops into a change stamped with author metadata and
// runs it through the session.
func commitOps(ops ...*ot.ObjectOp) (*commons.Message, error) {
	change := ot.NewChange(ops...)
	change.Meta = &ot.Meta{Author: flags.Author, At: time.Now().UTC()}
	return sess.Commit(change)
}

// handleMsg feeds a server message through the session and echoes the
// result.
func handleMsg(msg *commons.Message) error {
	if err := sess.Handle(msg); err != nil {
		return err
	}

	switch msg.Type {
	case commons.OpenDoneMessage:
		color.Green("synced at version %d", sess.Version())
	case commons.CommitDoneMessage:
		logger.Infof("commit acknowledged at version %d", msg.Version)
	case commons.UpdateMessage:
		logger.Infof("remote change at version %d", msg.Version)
		color.Magenta("v%d %s", sess.Version(), sess.Document())
	}
	return nil
}

// parsePath splits a dotted property path.
func parsePath(s string) ot.Path {
	return ot.Path(strings.Split(s, "."))
}

// parseJSON decodes a JSON value, falling back to a bare string so
// `set title Hello` works without quotes.
func parseJSON(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s, nil
	}
	return v, nil
}
