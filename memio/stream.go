package memio

import (
	"fmt"
	"io"
	"math"

	"github.com/tetratelabs/wazero/api"
)

// pageSize is the WebAssembly page size.
const pageSize = 65536

// Stream reads and writes guest memory at a movable position.
type Stream struct {
	Mem api.Memory
	pos int64
	// Grow lets writes past the end grow memory instead of failing.
	Grow bool
}

// New returns a stream positioned at address 0, or nil for a nil memory.
func New(mem api.Memory) *Stream {
	return NewAt(mem, 0)
}

// NewAt returns a stream positioned at offset.
func NewAt(mem api.Memory, offset uint32) *Stream {
	if mem == nil {
		return nil
	}
	return &Stream{Mem: mem, pos: int64(offset)}
}

// Pos returns the current address.
func (s *Stream) Pos() uint32 { return uint32(s.pos) }

func (s *Stream) Read(p []byte) (int, error) {
	size := int64(s.Mem.Size())
	if s.pos >= size {
		return 0, io.EOF
	}
	n := min(int64(len(p)), size-s.pos)
	data, ok := s.Mem.Read(uint32(s.pos), uint32(n))
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d, length=%d", s.pos, n)
	}
	copy(p, data)
	s.pos += n
	return int(n), nil
}

func (s *Stream) Write(p []byte) (int, error) {
	end := s.pos + int64(len(p))
	if end > math.MaxUint32 {
		return 0, fmt.Errorf("memory write out of bounds: offset=%d, length=%d", s.pos, len(p))
	}
	if s.Grow && end > int64(s.Mem.Size()) {
		need := (end - int64(s.Mem.Size()) + pageSize - 1) / pageSize
		if _, ok := s.Mem.Grow(uint32(need)); !ok {
			return 0, fmt.Errorf("memory grow failed: %d pages", need)
		}
	}
	if !s.Mem.Write(uint32(s.pos), p) {
		return 0, fmt.Errorf("memory write out of bounds: offset=%d, length=%d", s.pos, len(p))
	}
	s.pos = end
	return len(p), nil
}

func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = s.pos
	case io.SeekEnd:
		base = int64(s.Mem.Size())
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	pos := base + offset
	if pos < 0 || pos > math.MaxUint32 {
		return 0, fmt.Errorf("seek to %d outside the 32-bit address space", pos)
	}
	s.pos = pos
	return pos, nil
}
