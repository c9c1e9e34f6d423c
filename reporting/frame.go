package reporting

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
)

const frameHeaderSize = 4

// FrameWriter writes length-prefixed JSON messages: a 4-byte big-endian
// payload length followed by the UTF-8 JSON payload.
type FrameWriter struct {
	w io.Writer
}

func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame encodes v and writes it as one frame. It returns the number of
// bytes written including the header. Header and payload go out in a single
// Write so a reader never sees a header without its payload.
func (fw *FrameWriter) WriteFrame(v any) (int, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("failed to encode frame: %w", err)
	}
	if len(payload) > math.MaxUint32 {
		return 0, fmt.Errorf("frame payload too large: %d bytes", len(payload))
	}

	buf := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[frameHeaderSize:], payload)

	n, err := fw.w.Write(buf)
	if err != nil {
		return n, err
	}
	if n != len(buf) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// FrameReader reads frames written by FrameWriter
type FrameReader struct {
	r io.Reader
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: r}
}

// ReadFrame returns the raw payload of the next frame. io.EOF is returned
// only when the stream ends on a frame boundary.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(fr.r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("truncated frame header: %w", err)
		}
		return nil, err
	}

	payload := make([]byte, binary.BigEndian.Uint32(header[:]))
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("truncated frame payload: %w", err)
	}
	return payload, nil
}

// Decode reads the next frame into v
func (fr *FrameReader) Decode(v any) error {
	payload, err := fr.ReadFrame()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	return nil
}
