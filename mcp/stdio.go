package mcp

import (
	"bufio"
	"bytes"
	"io"
	"sync"
)

// maxFrameSize bounds a single newline-delimited message (10MB).
const maxFrameSize = 10 * 1024 * 1024

// StdioTransport frames newline-delimited UTF-8 JSON over a reader/writer
// pair, normally stdin/stdout. Every outbound frame ends in a single '\n'
// and is flushed immediately; inbound reads buffer until a full line has
// arrived. Lines are handed up verbatim even when they are not valid JSON,
// so the dispatcher can still attempt raw-ID extraction on them.
type StdioTransport struct {
	scanner *bufio.Scanner
	writer  *bufio.Writer
	writeMu sync.Mutex
	closer  io.Closer
}

// NewStdioTransport wraps the supplied streams. closer may be nil.
func NewStdioTransport(r io.Reader, w io.Writer, closer io.Closer) *StdioTransport {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	return &StdioTransport{
		scanner: scanner,
		writer:  bufio.NewWriter(w),
		closer:  closer,
	}
}

// Send writes one frame plus the newline terminator and flushes.
func (t *StdioTransport) Send(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.writer.Write(data); err != nil {
		return err
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return err
	}
	return t.writer.Flush()
}

// Receive yields the next non-empty line from the stream.
func (t *StdioTransport) Receive() ([]byte, error) {
	for t.scanner.Scan() {
		line := bytes.TrimSpace(t.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		return frame, nil
	}
	if err := t.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (t *StdioTransport) Close() error {
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}
