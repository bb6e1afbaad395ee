// Package ebof implements the EBOF v4 binary framing format (SPEC_FULL
// §3/§4.B) used for binary-block (bblk) and manifest (mobj) objects, and
// the fan-out on-disk layout for both under <node>/.log/objects/{b,m}.
// Field widths and byte order are pinned to little-endian per SPEC_FULL's
// endianness note, ported from exodus-anchor-weaver.c's
// write_bblk_object/read_bblk_object/write_mobj_object/read_mobj_object.
package ebof

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/anchorweave/anchorweave/internal/awerr"
	"github.com/anchorweave/anchorweave/internal/hashutil"
)

const (
	// Magic identifies an EBOF v4 frame.
	Magic uint32 = 0xE7B0B0E8
	// Version is the only version this implementation produces or reads.
	Version uint16 = 0x0400

	// TypeBlock marks a binary-block payload.
	TypeBlock uint16 = 0x0010
	// TypeManifest marks a manifest payload.
	TypeManifest uint16 = 0x0011
)

const headerLen = 16 // magic(4) + version(2) + type(2) + payload_size(8)

// WriteFrame writes the 16-byte EBOF header followed by payload.
func WriteFrame(w io.Writer, frameType uint16, payload []byte) error {
	var hdr [headerLen]byte
	binary.LittleEndian.PutUint32(hdr[0:4], Magic)
	binary.LittleEndian.PutUint16(hdr[4:6], Version)
	binary.LittleEndian.PutUint16(hdr[6:8], frameType)
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads and validates an EBOF v4 header, returning its type and
// raw payload bytes.
func ReadFrame(r io.Reader) (frameType uint16, payload []byte, err error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, awerr.Wrap(awerr.ErrCorruptObject, "read EBOF header", err)
	}
	magic := binary.LittleEndian.Uint32(hdr[0:4])
	version := binary.LittleEndian.Uint16(hdr[4:6])
	frameType = binary.LittleEndian.Uint16(hdr[6:8])
	size := binary.LittleEndian.Uint64(hdr[8:16])
	if magic != Magic {
		return 0, nil, awerr.Wrap(awerr.ErrCorruptObject, "bad EBOF magic", fmt.Errorf("got 0x%x", magic))
	}
	if version != Version {
		return 0, nil, awerr.Wrap(awerr.ErrCorruptObject, "unsupported EBOF version", fmt.Errorf("got 0x%x", version))
	}
	payload = make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, awerr.Wrap(awerr.ErrCorruptObject, "read EBOF payload", err)
	}
	return frameType, payload, nil
}

// BlockHeader precedes the raw bytes of a binary block.
type BlockHeader struct {
	ParentBlockHash hashutil.Hash // zero if no parent
	Entropy         float32
	OriginalOffset  uint64
	OriginalLength  uint64
	CRC32           uint32
}

const blockHeaderLen = 32 + 4 + 8 + 8 + 4 // 56 bytes

// EncodeBlock serializes header and raw, padding the raw region to an
// 8-byte boundary per SPEC_FULL §3.
func EncodeBlock(header BlockHeader, raw []byte) []byte {
	buf := make([]byte, 0, blockHeaderLen+len(raw)+7)
	buf = append(buf, header.ParentBlockHash[:]...)
	buf = appendF32(buf, header.Entropy)
	buf = appendU64(buf, header.OriginalOffset)
	buf = appendU64(buf, header.OriginalLength)
	buf = appendU32(buf, header.CRC32)
	buf = append(buf, raw...)
	for len(buf)%8 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

// DecodeBlock parses a binary-block payload and verifies its CRC-32
// against the stored checksum.
func DecodeBlock(payload []byte) (BlockHeader, []byte, error) {
	if len(payload) < blockHeaderLen {
		return BlockHeader{}, nil, awerr.Wrap(awerr.ErrCorruptObject, "truncated block header", fmt.Errorf("len=%d", len(payload)))
	}
	var h BlockHeader
	copy(h.ParentBlockHash[:], payload[0:32])
	h.Entropy = readF32(payload[32:36])
	h.OriginalOffset = binary.LittleEndian.Uint64(payload[36:44])
	h.OriginalLength = binary.LittleEndian.Uint64(payload[44:52])
	h.CRC32 = binary.LittleEndian.Uint32(payload[52:56])

	if uint64(len(payload)-blockHeaderLen) < h.OriginalLength {
		return BlockHeader{}, nil, awerr.Wrap(awerr.ErrCorruptObject, "block payload shorter than declared length", fmt.Errorf("have=%d want=%d", len(payload)-blockHeaderLen, h.OriginalLength))
	}
	raw := payload[blockHeaderLen : blockHeaderLen+int(h.OriginalLength)]
	if hashutil.CRC32(raw) != h.CRC32 {
		return BlockHeader{}, nil, awerr.Wrap(awerr.ErrCorruptObject, "block CRC-32 mismatch", fmt.Errorf("expected 0x%x", h.CRC32))
	}
	return h, raw, nil
}

// ManifestEntry is one block reference in a manifest's block table.
type ManifestEntry struct {
	Hash   hashutil.Hash
	Offset uint64
	Length uint64
}

// ManifestHeader precedes the path and block table in a manifest payload.
type ManifestHeader struct {
	FileMode     uint32
	TotalSize    uint64
	EntropyMean  float32
	FileSignature [64]byte
}

// ManifestData is the fully decoded in-memory form of a manifest object.
type ManifestData struct {
	Header  ManifestHeader
	Path    string
	Entries []ManifestEntry
}

const manifestEntryLen = 32 + 8 + 8 // 48 bytes

// entryBytes serializes the raw block-entry array, the buffer whose
// SHA-256 becomes the manifest's file signature.
func entryBytes(entries []ManifestEntry) []byte {
	buf := make([]byte, 0, len(entries)*manifestEntryLen)
	for _, e := range entries {
		buf = append(buf, e.Hash[:]...)
		buf = appendU64(buf, e.Offset)
		buf = appendU64(buf, e.Length)
	}
	return buf
}

// ComputeFileSignature hashes the raw block-entry array, zero-filling
// when there are no blocks, per SPEC_FULL §3.
func ComputeFileSignature(entries []ManifestEntry) [64]byte {
	var sig [64]byte
	if len(entries) == 0 {
		return sig
	}
	h := hashutil.SumSHA256(entryBytes(entries))
	copy(sig[:32], h[:])
	return sig
}

// EncodeManifest serializes a manifest's header, path, and block table
// into the payload that is hashed and stored; that same hash identifies
// the manifest object (hash of the entire serialized payload, not just
// the block list).
func EncodeManifest(m *ManifestData) []byte {
	pathBytes := []byte(m.Path)
	buf := make([]byte, 0, 2+4+8+4+4+64+len(pathBytes)+len(m.Entries)*manifestEntryLen)
	buf = appendU16(buf, uint16(len(pathBytes)))
	buf = appendU32(buf, m.Header.FileMode)
	buf = appendU64(buf, m.Header.TotalSize)
	buf = appendU32(buf, uint32(len(m.Entries)))
	buf = appendF32(buf, m.Header.EntropyMean)
	buf = append(buf, m.Header.FileSignature[:]...)
	buf = append(buf, pathBytes...)
	buf = append(buf, entryBytes(m.Entries)...)
	return buf
}

// DecodeManifest parses a manifest payload into its struct form.
func DecodeManifest(payload []byte) (*ManifestData, error) {
	if len(payload) < 2+4+8+4+4+64 {
		return nil, awerr.Wrap(awerr.ErrCorruptObject, "truncated manifest header", fmt.Errorf("len=%d", len(payload)))
	}
	pos := 0
	pathLen := binary.LittleEndian.Uint16(payload[pos : pos+2])
	pos += 2
	fileMode := binary.LittleEndian.Uint32(payload[pos : pos+4])
	pos += 4
	totalSize := binary.LittleEndian.Uint64(payload[pos : pos+8])
	pos += 8
	blockCount := binary.LittleEndian.Uint32(payload[pos : pos+4])
	pos += 4
	entropyMean := readF32(payload[pos : pos+4])
	pos += 4
	var sig [64]byte
	copy(sig[:], payload[pos:pos+64])
	pos += 64

	if len(payload)-pos < int(pathLen) {
		return nil, awerr.Wrap(awerr.ErrCorruptObject, "manifest path truncated", fmt.Errorf("want=%d have=%d", pathLen, len(payload)-pos))
	}
	path := string(payload[pos : pos+int(pathLen)])
	pos += int(pathLen)

	need := int(blockCount) * manifestEntryLen
	if len(payload)-pos < need {
		return nil, awerr.Wrap(awerr.ErrCorruptObject, "manifest block table truncated", fmt.Errorf("want=%d have=%d", need, len(payload)-pos))
	}
	entries := make([]ManifestEntry, blockCount)
	for i := range entries {
		var e ManifestEntry
		copy(e.Hash[:], payload[pos:pos+32])
		pos += 32
		e.Offset = binary.LittleEndian.Uint64(payload[pos : pos+8])
		pos += 8
		e.Length = binary.LittleEndian.Uint64(payload[pos : pos+8])
		pos += 8
		entries[i] = e
	}

	return &ManifestData{
		Header: ManifestHeader{
			FileMode:      fileMode,
			TotalSize:     totalSize,
			EntropyMean:   entropyMean,
			FileSignature: sig,
		},
		Path:    path,
		Entries: entries,
	}, nil
}

// Store is the fan-out on-disk layout for one framed object kind (binary
// blocks or manifests), mirroring the non-framed Store in internal/objstore
// but without zlib compression (EBOF frames carry their own size).
type Store struct {
	Root      string // .../objects/b or .../objects/m
	Extension string // ".bblk" or ".mobj"
	FrameType uint16
}

// NewBlockStore returns a Store for binary-block objects rooted at root
// (<node>/.log/objects/b).
func NewBlockStore(root string) *Store {
	return &Store{Root: root, Extension: ".bblk", FrameType: TypeBlock}
}

// NewManifestStore returns a Store for manifest objects rooted at root
// (<node>/.log/objects/m).
func NewManifestStore(root string) *Store {
	return &Store{Root: root, Extension: ".mobj", FrameType: TypeManifest}
}

// Path returns the fan-out path for a hash hex string.
func (s *Store) Path(hashHex string) string {
	return filepath.Join(s.Root, hashHex[:2], hashHex[2:]+s.Extension)
}

// Has reports whether a framed object already exists.
func (s *Store) Has(hashHex string) bool {
	_, err := os.Stat(s.Path(hashHex))
	return err == nil
}

// Write writes payload framed under hashHex, doing nothing if it already
// exists (write-once idempotency).
func (s *Store) Write(hashHex string, payload []byte) error {
	path := s.Path(hashHex)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return awerr.Wrap(awerr.ErrIO, "create framed object directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-ebof-*")
	if err != nil {
		return awerr.Wrap(awerr.ErrIO, "create temp framed object", err)
	}
	tmpName := tmp.Name()
	if err := WriteFrame(tmp, s.FrameType, payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return awerr.Wrap(awerr.ErrIO, "write EBOF frame", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return awerr.Wrap(awerr.ErrIO, "close temp framed object", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return awerr.Wrap(awerr.ErrIO, "rename framed object into place", err)
	}
	return nil
}

// Read reads back a framed object's raw payload, verifying its frame
// type matches this Store's kind.
func (s *Store) Read(hashHex string) ([]byte, error) {
	path := s.Path(hashHex)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, awerr.Wrap(awerr.ErrObjectNotFound, "read framed object", fmt.Errorf("hash %s", hashHex))
		}
		return nil, awerr.Wrap(awerr.ErrIO, "open framed object", err)
	}
	defer f.Close()
	frameType, payload, err := ReadFrame(f)
	if err != nil {
		return nil, err
	}
	if frameType != s.FrameType {
		return nil, awerr.Wrap(awerr.ErrCorruptObject, "unexpected EBOF frame type", fmt.Errorf("got 0x%x want 0x%x", frameType, s.FrameType))
	}
	return payload, nil
}

func appendU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendF32(buf []byte, v float32) []byte {
	return appendU32(buf, math.Float32bits(v))
}

func readF32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
