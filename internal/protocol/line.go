// Package protocol implements the line-framed wire format shared by
// chatserver and chatclient: newline-terminated records classified as
// control markers, user commands, or plain chat text.
package protocol

import (
	"bufio"
	"io"
	"strings"
)

// Kind tags a decoded record with its wire classification (spec.md §4.1).
type Kind int

const (
	// KindControl marks a record beginning with '$' (e.g. "$User:", "$Quit").
	KindControl Kind = iota
	// KindCommand marks a record beginning with '/' (e.g. "/list", "/whisper").
	KindCommand
	// KindChat marks any other record, including the empty record.
	KindChat
)

func (k Kind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindCommand:
		return "command"
	default:
		return "chat"
	}
}

// Record is one classified, newline-stripped line from the wire.
type Record struct {
	Text string
	Kind Kind
}

// Classify inspects the first byte of a newline-stripped line and returns
// its Kind. An empty line classifies as KindChat — spec.md §4.1 states a
// bare newline is valid input ("means quit on the client; no-op for some
// admin validators").
func Classify(line string) Record {
	switch {
	case strings.HasPrefix(line, "$"):
		return Record{Text: line, Kind: KindControl}
	case strings.HasPrefix(line, "/"):
		return Record{Text: line, Kind: KindCommand}
	default:
		return Record{Text: line, Kind: KindChat}
	}
}

// Reader decodes newline-terminated records from a byte stream, buffering
// across read boundaries so a single underlying read may contain multiple
// records or only a partial one. It mirrors the bufio.Reader.ReadBytes('\n')
// idiom the retrieved corpus uses for its own line-delimited control streams.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r for record-at-a-time decoding.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// ReadRecord returns the next classified record, with the trailing newline
// (and any trailing carriage return) stripped. It returns io.EOF or the
// underlying read error — including a deadline-exceeded error — unchanged,
// so callers can distinguish idle timeout from abrupt disconnect.
func (r *Reader) ReadRecord() (Record, error) {
	line, err := r.br.ReadString('\n')
	if err != nil {
		// A partial line delivered alongside the error (e.g. peer closed
		// mid-record) carries no well-formed record; surface the error only.
		return Record{}, err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return Classify(line), nil
}
