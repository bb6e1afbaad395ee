// Package objstore implements SPEC_FULL §4.B/§4.C: the loose-object codec
// (full blobs, byte-level deltas, and read-back of the deprecated
// line-oriented delta format) and its on-disk fan-out layout under
// <node>/.log/objects. The write/read idioms are adapted from the
// teacher's internal/cas (FileCAS fan-out, atomic rename, existence-check
// idempotency), generalized from BLAKE3 identifiers to SHA-256 and
// extended with the header-prefix framing exodus-anchor-weaver.c uses.
package objstore

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/anchorweave/anchorweave/internal/awerr"
	"github.com/anchorweave/anchorweave/internal/deltasum"
	"github.com/anchorweave/anchorweave/internal/diag"
	"github.com/anchorweave/anchorweave/internal/hashutil"
)

const (
	headerBlob      = "BLOB\x00"
	headerDeltaByte = "DELTA-BYTE\x00"
	headerDeltaLCS  = "DELTA-LCS\x00"
)

// HashHexLen is the length of a hash rendered as lowercase hex.
const HashHexLen = 64

// Store is the loose-object store rooted at <node>/.log/objects.
type Store struct {
	Root string // <node>/.log/objects

	// Logger receives a warning each time ReadObject resolves a
	// deprecated DELTA-LCS object. Defaults to a stderr-writing Logger
	// when nil.
	Logger *diag.Logger
}

// New returns a Store rooted at root, which is created lazily on first
// write.
func New(root string) *Store {
	return &Store{Root: root}
}

func (s *Store) logger() *diag.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return diag.NewLogger(nil)
}

// HashHex renders a hash as the lowercase hex string used as an object
// identifier and in text objects.
func HashHex(h hashutil.Hash) string {
	return hex.EncodeToString(h[:])
}

// ObjectPath returns the fan-out path for a hash hex string: first two
// hex chars as a subdirectory, remaining 62 as the filename.
func (s *Store) ObjectPath(hashHex string) string {
	return filepath.Join(s.Root, hashHex[:2], hashHex[2:])
}

// Has reports whether an object with this hash already exists.
func (s *Store) Has(hashHex string) bool {
	_, err := os.Stat(s.ObjectPath(hashHex))
	return err == nil
}

// writeRaw writes the deflated framed payload under hashHex's fan-out
// path, doing nothing if the object already exists (write-once
// idempotency, SPEC_FULL §3 Lifecycle).
func (s *Store) writeRaw(hashHex string, framed []byte) error {
	path := s.ObjectPath(hashHex)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return awerr.Wrap(awerr.ErrIO, "create object directory", err)
	}

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	if _, err := w.Write(framed); err != nil {
		w.Close()
		return awerr.Wrap(awerr.ErrIO, "deflate object", err)
	}
	if err := w.Close(); err != nil {
		return awerr.Wrap(awerr.ErrIO, "finalize deflate", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-obj-*")
	if err != nil {
		return awerr.Wrap(awerr.ErrIO, "create temp object file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(compressed.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return awerr.Wrap(awerr.ErrIO, "write temp object file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return awerr.Wrap(awerr.ErrIO, "close temp object file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return awerr.Wrap(awerr.ErrIO, "rename object into place", err)
	}
	return nil
}

// WriteBlob writes content as a full-blob object ("BLOB\0" + content),
// addressed by the hash of content itself. Idempotent.
func (s *Store) WriteBlob(hashHex string, content []byte) error {
	framed := make([]byte, 0, len(headerBlob)+len(content))
	framed = append(framed, headerBlob...)
	framed = append(framed, content...)
	return s.writeRaw(hashHex, framed)
}

// WriteBlobStream writes a full-blob object by streaming r through the
// deflater instead of buffering the whole file, used by the mid-size
// (512 MiB - 5 GiB) ingestion path.
func (s *Store) WriteBlobStream(hashHex string, r io.Reader) error {
	path := s.ObjectPath(hashHex)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return awerr.Wrap(awerr.ErrIO, "create object directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-obj-*")
	if err != nil {
		return awerr.Wrap(awerr.ErrIO, "create temp object file", err)
	}
	tmpName := tmp.Name()
	w := zlib.NewWriter(tmp)
	if _, err := w.Write([]byte(headerBlob)); err != nil {
		w.Close()
		tmp.Close()
		os.Remove(tmpName)
		return awerr.Wrap(awerr.ErrIO, "write blob header", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		tmp.Close()
		os.Remove(tmpName)
		return awerr.Wrap(awerr.ErrIO, "stream blob content", err)
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return awerr.Wrap(awerr.ErrIO, "finalize stream deflate", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return awerr.Wrap(awerr.ErrIO, "close temp object file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return awerr.Wrap(awerr.ErrIO, "rename object into place", err)
	}
	return nil
}

// WriteDelta writes script as a byte-level delta object against baseHex,
// addressed by newHashHex (the hash of the content the delta reconstructs
// to, per SPEC_FULL §3).
func (s *Store) WriteDelta(newHashHex, baseHex string, script []byte) error {
	if len(baseHex) != HashHexLen {
		return awerr.Wrap(awerr.ErrMalformedInput, "base hash must be 64 hex chars", fmt.Errorf("got %d", len(baseHex)))
	}
	framed := make([]byte, 0, len(headerDeltaByte)+HashHexLen+1+len(script))
	framed = append(framed, headerDeltaByte...)
	framed = append(framed, baseHex...)
	framed = append(framed, 0)
	framed = append(framed, script...)
	return s.writeRaw(newHashHex, framed)
}

// ReadObject reads and returns the canonical content of the object at
// hashHex: a full blob's bytes, a delta's reconstructed content (reading
// the base recursively), or a deprecated DELTA-LCS patch applied against
// its base.
func (s *Store) ReadObject(hashHex string) ([]byte, error) {
	return s.readObjectDepth(hashHex, 0)
}

const maxDeltaChainDepth = 256

func (s *Store) readObjectDepth(hashHex string, depth int) ([]byte, error) {
	if depth > maxDeltaChainDepth {
		return nil, awerr.Wrap(awerr.ErrCorruptObject, "delta chain too deep", fmt.Errorf("hash %s", hashHex))
	}
	path := s.ObjectPath(hashHex)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, awerr.Wrap(awerr.ErrObjectNotFound, "read object", fmt.Errorf("hash %s", hashHex))
		}
		return nil, awerr.Wrap(awerr.ErrIO, "read object file", err)
	}

	framed, err := inflate(raw)
	if err != nil {
		return nil, awerr.Wrap(awerr.ErrCorruptObject, "inflate object", err)
	}

	switch {
	case bytes.HasPrefix(framed, []byte(headerBlob)):
		return framed[len(headerBlob):], nil

	case bytes.HasPrefix(framed, []byte(headerDeltaByte)):
		rest := framed[len(headerDeltaByte):]
		if len(rest) < HashHexLen+1 {
			return nil, awerr.Wrap(awerr.ErrCorruptObject, "truncated delta header", fmt.Errorf("hash %s", hashHex))
		}
		baseHex := string(rest[:HashHexLen])
		if rest[HashHexLen] != 0 {
			return nil, awerr.Wrap(awerr.ErrCorruptObject, "malformed delta base terminator", fmt.Errorf("hash %s", hashHex))
		}
		script := rest[HashHexLen+1:]
		base, err := s.readObjectDepth(baseHex, depth+1)
		if err != nil {
			return nil, err
		}
		return deltasum.Apply(base, script)

	case bytes.HasPrefix(framed, []byte(headerDeltaLCS)):
		rest := framed[len(headerDeltaLCS):]
		if len(rest) < HashHexLen+1 {
			return nil, awerr.Wrap(awerr.ErrCorruptObject, "truncated legacy delta header", fmt.Errorf("hash %s", hashHex))
		}
		baseHex := string(rest[:HashHexLen])
		patch := rest[HashHexLen+1:]
		s.logger().Warn("reading deprecated DELTA-LCS object %s", hashHex)
		base, err := s.readObjectDepth(baseHex, depth+1)
		if err != nil {
			return nil, err
		}
		return applyLineDelta(base, patch)

	default:
		return nil, awerr.Wrap(awerr.ErrCorruptObject, "unrecognized object header", fmt.Errorf("hash %s", hashHex))
	}
}

// inflate decompresses raw. The C reference retries with a doubled output
// buffer on a too-small allocation; io.ReadAll's growable buffer makes that
// retry loop unnecessary in Go, but a zlib structural error (the other
// failure the reference distinguishes) still propagates as-is.
func inflate(raw []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// applyLineDelta applies the deprecated DELTA-LCS line-oriented patch
// format (read-back only; never produced by this implementation). Patch
// lines: "S <n>\n" copies n unchanged lines from base, "A <text>\n" inserts
// a line, "D\n" drops the next base line.
func applyLineDelta(base, patch []byte) ([]byte, error) {
	baseLines := splitLines(base)
	var out bytes.Buffer
	baseIdx := 0

	lines := strings.Split(string(patch), "\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "S "):
			n, err := strconv.Atoi(strings.TrimSpace(line[2:]))
			if err != nil {
				return nil, awerr.Wrap(awerr.ErrCorruptObject, "malformed legacy delta skip count", err)
			}
			for i := 0; i < n; i++ {
				if baseIdx >= len(baseLines) {
					return nil, awerr.Wrap(awerr.ErrCorruptObject, "legacy delta skip past end of base", fmt.Errorf("at %d", baseIdx))
				}
				out.WriteString(baseLines[baseIdx])
				baseIdx++
			}
		case strings.HasPrefix(line, "A "):
			out.WriteString(line[2:])
			out.WriteByte('\n')
		case line == "D":
			if baseIdx >= len(baseLines) {
				return nil, awerr.Wrap(awerr.ErrCorruptObject, "legacy delta delete past end of base", fmt.Errorf("at %d", baseIdx))
			}
			baseIdx++
		default:
			return nil, awerr.Wrap(awerr.ErrCorruptObject, "unknown legacy delta op", fmt.Errorf("line %q", line))
		}
	}
	return out.Bytes(), nil
}

func splitLines(buf []byte) []string {
	if len(buf) == 0 {
		return nil
	}
	s := string(buf)
	parts := strings.SplitAfter(s, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}
