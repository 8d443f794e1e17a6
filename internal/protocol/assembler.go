package protocol

import (
	"errors"
	"io"
	"log"
)

// MaxBuffered bounds the bytes an Assembler keeps while waiting for the rest
// of a frame.
const MaxBuffered = 1 << 20

// Assembler reassembles messages from a byte stream split across reads.
// It is owned by a single receive loop and is not safe for concurrent use.
type Assembler struct {
	buf []byte
	log *log.Logger

	dropped int
}

func NewAssembler(logger *log.Logger) *Assembler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Assembler{log: logger}
}

// Feed appends b to the pending bytes and returns every message now complete.
// Malformed frames are logged and skipped.
func (a *Assembler) Feed(b []byte) []Message {
	a.buf = append(a.buf, b...)

	var out []Message
	for len(a.buf) > 0 {
		msg, rem, err := Parse(a.buf)
		if errors.Is(err, ErrIncomplete) {
			break
		}
		if err != nil {
			a.dropped++
			a.log.Printf("drop frame: %v", err)
			a.buf = append(a.buf[:0], rem...)
			continue
		}
		out = append(out, msg)
		if corruptTail(rem) {
			a.dropped++
			a.log.Printf("drop corrupted remainder: %d bytes", len(rem))
			rem = nil
		}
		a.buf = append(a.buf[:0], rem...)
	}

	if len(a.buf) > MaxBuffered {
		a.dropped++
		a.log.Printf("drop oversized pending frame: %d bytes", len(a.buf))
		a.buf = a.buf[:0]
	}
	return out
}

// Pending returns the number of buffered bytes not yet parsed.
func (a *Assembler) Pending() int { return len(a.buf) }

// Dropped returns how many frames or tails were discarded.
func (a *Assembler) Dropped() int { return a.dropped }
