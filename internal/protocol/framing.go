package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrIncomplete = errors.New("incomplete message")
	ErrBadHeader  = errors.New("bad length header")
	ErrBadEnum    = errors.New("bad message type or format")
)

// Parse reads one message from the front of buf.
//
// On ErrIncomplete the returned remainder is buf itself. On ErrBadHeader the
// remainder starts at the next well-formed length line (or is the unterminated
// tail). On ErrBadEnum the frame has been consumed.
func Parse(buf []byte) (Message, []byte, error) {
	nl := bytes.IndexByte(buf, '\n')
	if nl < 0 {
		return Message{}, buf, ErrIncomplete
	}
	n, ok := lengthLine(buf[:nl])
	if !ok {
		return Message{}, skipToHeader(buf[nl+1:]), fmt.Errorf("%w: %q", ErrBadHeader, bytes.TrimSpace(buf[:nl]))
	}
	rest := buf[nl+1:]
	if len(rest) < n {
		return Message{}, buf, ErrIncomplete
	}
	data, rem := rest[:n], rest[n:]

	msg, err := decodeData(data)
	if err != nil {
		return Message{}, rem, err
	}
	return msg, rem, nil
}

func decodeData(data []byte) (Message, error) {
	i := bytes.IndexByte(data, '\n')
	if i < 0 {
		return Message{}, fmt.Errorf("%w: missing type line", ErrBadEnum)
	}
	typeText := string(data[:i])
	data = data[i+1:]

	j := bytes.IndexByte(data, '\n')
	var formatText, body string
	if j < 0 {
		formatText = string(data)
	} else {
		formatText = string(data[:j])
		body = string(data[j+1:])
	}

	t, ok := ParseType(typeText)
	if !ok {
		return Message{}, fmt.Errorf("%w: type %q", ErrBadEnum, typeText)
	}
	f, ok := ParseFormat(formatText)
	if !ok {
		return Message{}, fmt.Errorf("%w: format %q", ErrBadEnum, formatText)
	}
	return Message{Type: t, Format: f, Body: body}, nil
}

func lengthLine(line []byte) (int, bool) {
	n, err := strconv.Atoi(string(bytes.TrimSpace(line)))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func skipToHeader(b []byte) []byte {
	for {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			return b
		}
		if _, ok := lengthLine(b[:i]); ok {
			return b
		}
		b = b[i+1:]
	}
}

// corruptTail reports whether rem starts with a complete line that cannot be
// a length header.
func corruptTail(rem []byte) bool {
	i := bytes.IndexByte(rem, '\n')
	if i < 0 {
		return false
	}
	_, err := strconv.Atoi(string(bytes.TrimSpace(rem[:i])))
	return err != nil
}
