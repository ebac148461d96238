package id

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"
)

// ID is a 128-bit identifier: 8 bytes of unix milliseconds followed by an
// 8-byte per-process counter, both big-endian. String order equals byte order
// equals generation order.
type ID [16]byte

// String returns the 32-character lowercase hex form used in object keys.
func (i ID) String() string {
	const digits = "0123456789abcdef"
	out := make([]byte, 32)
	for idx, v := range i {
		out[idx*2] = digits[v>>4]
		out[idx*2+1] = digits[v&0x0f]
	}
	return string(out)
}

// Millis returns the timestamp component.
func (i ID) Millis() int64 { return int64(binary.BigEndian.Uint64(i[0:8])) }

// Compare returns -1, 0, or 1 ordering by generation time then counter.
func (i ID) Compare(other ID) int {
	for idx := 0; idx < len(i); idx++ {
		if i[idx] < other[idx] {
			return -1
		}
		if i[idx] > other[idx] {
			return 1
		}
	}
	return 0
}

// Parse reverses String.
func Parse(s string) (ID, error) {
	var out ID
	if len(s) != 32 {
		return out, fmt.Errorf("id: want 32 hex chars, got %d", len(s))
	}
	for idx := 0; idx < 16; idx++ {
		hi, ok1 := hexVal(s[idx*2])
		lo, ok2 := hexVal(s[idx*2+1])
		if !ok1 || !ok2 {
			return out, fmt.Errorf("id: invalid hex at %d", idx*2)
		}
		out[idx] = hi<<4 | lo
	}
	return out, nil
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}

// NowMs is overridable in tests.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Generator produces strictly increasing IDs within a process. A wall-clock
// regression reuses the last observed millisecond so ordering never reverses.
type Generator struct {
	mu      sync.Mutex
	lastMs  int64
	counter uint64
}

// NewGenerator creates a Generator.
func NewGenerator() *Generator { return &Generator{} }

// Next returns the next ID. If the counter would overflow within one
// millisecond it waits for the clock to advance.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}
	if ms == g.lastMs {
		if g.counter == math.MaxUint64 {
			for {
				ms = NowMs()
				if ms > g.lastMs {
					break
				}
				time.Sleep(time.Millisecond / 8)
			}
			g.counter = 0
		} else {
			g.counter++
		}
	} else {
		g.counter = 0
	}
	g.lastMs = ms

	var out ID
	binary.BigEndian.PutUint64(out[0:8], uint64(ms))
	binary.BigEndian.PutUint64(out[8:16], g.counter)
	return out
}
