package rpc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// HeaderSize is the width, in bytes, of the big-endian length prefix
// in front of every JSON body on the wire.
const HeaderSize = 4

// MaxFrameBytes bounds a single frame to guard against a malformed or
// hostile length prefix exhausting memory.
const MaxFrameBytes = 64 * 1024 * 1024

// WriteFrame writes a length-prefixed JSON-encoded body to w.
func WriteFrame(w io.Writer, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rpc: marshal frame: %w", err)
	}
	header := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(header, uint32(len(body)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("rpc: write header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("rpc: write body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON body from r and unmarshals
// it into v.
func ReadFrame(r io.Reader, v interface{}) error {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("rpc: read header: %w", err)
	}
	n := binary.BigEndian.Uint32(header)
	if n > MaxFrameBytes {
		return fmt.Errorf("rpc: frame of %d bytes exceeds max %d", n, MaxFrameBytes)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("rpc: read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("rpc: unmarshal frame: %w", err)
	}
	return nil
}
