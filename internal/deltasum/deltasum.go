// Package deltasum implements SPEC_FULL §4.D: a rolling-hash (Adler-32)
// signature index over a base buffer, generation of a byte-level delta
// script against new content, and application of that script during
// object reads. Ported directly from exodus-anchor-weaver.c's
// SignatureMap / generate_byte_delta_script / patch_from_byte_delta, with
// size_t pinned to a fixed 64-bit little-endian width per SPEC_FULL's
// endianness note (the C original used the native width).
package deltasum

import (
	"encoding/binary"
	"fmt"

	"github.com/anchorweave/anchorweave/internal/awerr"
	"github.com/anchorweave/anchorweave/internal/hashutil"
)

// WindowSize is the fixed block size used both for signing the base and
// for scanning the new content.
const WindowSize = 4096

// signatureBuckets is the bucket count of the weak-hash table (~16k, per
// SPEC_FULL §4.D).
const signatureBuckets = 16381

const (
	opCopy   = 'C'
	opInsert = 'I'
)

type sigEntry struct {
	strong hashutil.Hash
	offset uint64
}

// SignatureMap is the weak+strong signature index built over a base
// buffer.
type SignatureMap struct {
	buckets [][]sigEntry
	base    []byte
}

// BuildSignatureMap signs base in non-overlapping WindowSize blocks.
func BuildSignatureMap(base []byte) *SignatureMap {
	sm := &SignatureMap{buckets: make([][]sigEntry, signatureBuckets), base: base}
	for off := 0; off+WindowSize <= len(base); off += WindowSize {
		window := base[off : off+WindowSize]
		weak := hashutil.Adler32(window)
		strong := hashutil.SumSHA256(window)
		bucket := weak % signatureBuckets
		sm.buckets[bucket] = append(sm.buckets[bucket], sigEntry{strong: strong, offset: uint64(off)})
	}
	return sm
}

func (sm *SignatureMap) find(weak uint32, strong hashutil.Hash) (uint64, bool) {
	bucket := weak % signatureBuckets
	for _, e := range sm.buckets[bucket] {
		if e.strong == strong {
			return e.offset, true
		}
	}
	return 0, false
}

// Generate scans newContent against a signature map built over base and
// produces a delta script. The caller is responsible for applying the
// 75%-of-new-size acceptance rule via Accept before committing to a delta.
func Generate(base, newContent []byte) []byte {
	sm := BuildSignatureMap(base)
	var script []byte
	lastMatchEnd := 0
	i := 0

	var weak uint32
	haveWeak := false

	for i+WindowSize <= len(newContent) {
		window := newContent[i : i+WindowSize]
		if !haveWeak {
			weak = hashutil.Adler32(window)
			haveWeak = true
		}
		strong := hashutil.SumSHA256(window)
		if off, ok := sm.find(weak, strong); ok {
			if i > lastMatchEnd {
				script = appendInsert(script, newContent[lastMatchEnd:i])
			}
			script = appendCopy(script, off, WindowSize)
			i += WindowSize
			lastMatchEnd = i
			haveWeak = false
			continue
		}
		if i+WindowSize < len(newContent) {
			weak = hashutil.RollAdler32(weak, newContent[i], newContent[i+WindowSize], WindowSize)
		}
		i++
	}
	if lastMatchEnd < len(newContent) {
		script = appendInsert(script, newContent[lastMatchEnd:])
	}
	return script
}

// Accept applies SPEC_FULL §4.D's 75% rule: a delta is used only if its
// script is strictly smaller than 75% of the new content's length.
func Accept(scriptLen, newContentLen int) bool {
	if newContentLen == 0 {
		return false
	}
	return float64(scriptLen) < 0.75*float64(newContentLen)
}

func appendCopy(script []byte, offset, length uint64) []byte {
	script = append(script, opCopy)
	script = appendU64(script, offset)
	script = appendU64(script, length)
	return script
}

func appendInsert(script, data []byte) []byte {
	script = append(script, opInsert)
	script = appendU64(script, uint64(len(data)))
	script = append(script, data...)
	return script
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// Apply reconstructs content from base and a delta script, the inverse of
// Generate: each Copy op reads from base, each Insert op appends its
// inline bytes. Any out-of-bounds copy, malformed op, or truncated script
// fails with ErrCorruptObject.
func Apply(base, script []byte) ([]byte, error) {
	var out []byte
	pos := 0
	for pos < len(script) {
		op := script[pos]
		pos++
		switch op {
		case opCopy:
			offset, length, next, err := readTwoU64(script, pos)
			if err != nil {
				return nil, err
			}
			pos = next
			if offset > uint64(len(base)) || length > uint64(len(base))-offset {
				return nil, awerr.Wrap(awerr.ErrCorruptObject, "delta copy out of bounds",
					fmt.Errorf("offset=%d length=%d base_len=%d", offset, length, len(base)))
			}
			out = append(out, base[offset:offset+length]...)
		case opInsert:
			length, next, err := readU64(script, pos)
			if err != nil {
				return nil, err
			}
			pos = next
			if uint64(len(script)-pos) < length {
				return nil, awerr.Wrap(awerr.ErrCorruptObject, "delta insert length exceeds script", fmt.Errorf("length=%d remaining=%d", length, len(script)-pos))
			}
			out = append(out, script[pos:pos+int(length)]...)
			pos += int(length)
		default:
			return nil, awerr.Wrap(awerr.ErrCorruptObject, "malformed delta op", fmt.Errorf("byte=0x%02x at %d", op, pos-1))
		}
	}
	return out, nil
}

func readU64(script []byte, pos int) (uint64, int, error) {
	if pos+8 > len(script) {
		return 0, 0, awerr.Wrap(awerr.ErrCorruptObject, "truncated delta length field", fmt.Errorf("at %d", pos))
	}
	return binary.LittleEndian.Uint64(script[pos : pos+8]), pos + 8, nil
}

func readTwoU64(script []byte, pos int) (uint64, uint64, int, error) {
	offset, next, err := readU64(script, pos)
	if err != nil {
		return 0, 0, 0, err
	}
	length, next, err := readU64(script, next)
	if err != nil {
		return 0, 0, 0, err
	}
	return offset, length, next, nil
}
