// Package chunker implements SPEC_FULL §4.E: the content-defined chunker
// that splits a large file into variable-size blocks at rolling-hash
// boundaries, writes each as a binary-block (bblk) object, and records
// parent-block linkage against a previous manifest for the same path.
// Ported from exodus-anchor-weaver.c's deconstruct_file. The reference
// memory-maps the file; this implementation streams it through a buffered
// reader instead (no mmap package appears anywhere in the example
// corpus), which is observationally identical for the
// boundary algorithm since mmap is only a paging strategy there.
package chunker

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/anchorweave/anchorweave/internal/awerr"
	"github.com/anchorweave/anchorweave/internal/ebof"
	"github.com/anchorweave/anchorweave/internal/hashutil"
)

const (
	// WindowSize is the rolling-hash window used to decide boundaries.
	WindowSize = 4096
	// MinBlock is the smallest block the chunker will emit before a
	// boundary must be forced by reaching MaxBlock or EOF.
	MinBlock = 2048
	// MaxBlock is the largest block the chunker will ever emit.
	MaxBlock = 65536
	// mask selects the low 13 bits of the rolling hash; a boundary is
	// declared when they equal the mask itself (the target value).
	mask uint32 = (1 << 13) - 1
)

// Result is the outcome of deconstructing one file: its ordered block
// table (ready to embed in a manifest) and the mean per-block entropy.
type Result struct {
	Entries     []ebof.ManifestEntry
	MeanEntropy float32
}

// Deconstruct streams path through the content-defined chunker, writing
// one binary-block object per emitted chunk to blockStore. oldManifest,
// when non-nil, is the parent manifest for the same working-tree path;
// its block hashes and offsets feed the parent-block-linkage annotation
// (informational only, per SPEC_FULL §4.E — it does not affect
// reconstruction).
func Deconstruct(path string, blockStore *ebof.Store, oldManifest *ebof.ManifestData) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, awerr.Wrap(awerr.ErrIO, "open file for deconstruction", err)
	}
	defer f.Close()

	reused, byOffset := indexOldManifest(oldManifest)

	r := bufio.NewReaderSize(f, 1<<20)
	var (
		blockBuf       []byte
		blockStart     uint64
		scanPos        uint64
		rollingSum     uint32
		haveWindow     bool
		entries        []ebof.ManifestEntry
		entropySum     float64
		blockCount     int
	)

	emit := func() error {
		if len(blockBuf) == 0 {
			return nil
		}
		hash := hashutil.SumSHA256(blockBuf)
		entropy := hashutil.ShannonEntropy(blockBuf)
		crc := hashutil.CRC32(blockBuf)

		var parent hashutil.Hash
		if _, ok := reused[hash]; !ok {
			if oldHash, ok := byOffset[blockStart]; ok {
				parent = oldHash
			}
		}

		header := ebof.BlockHeader{
			ParentBlockHash: parent,
			Entropy:         float32(entropy),
			OriginalOffset:  blockStart,
			OriginalLength:  uint64(len(blockBuf)),
			CRC32:           crc,
		}
		payload := ebof.EncodeBlock(header, blockBuf)
		hashHex := fmt.Sprintf("%x", hash[:])
		if err := blockStore.Write(hashHex, payload); err != nil {
			return err
		}
		entries = append(entries, ebof.ManifestEntry{Hash: hash, Offset: blockStart, Length: uint64(len(blockBuf))})
		entropySum += entropy
		blockCount++

		blockStart = scanPos
		blockBuf = blockBuf[:0]
		rollingSum = 0
		haveWindow = false
		return nil
	}

	for {
		b, readErr := r.ReadByte()
		atEOF := readErr == io.EOF
		if readErr != nil && !atEOF {
			return Result{}, awerr.Wrap(awerr.ErrIO, "read file for deconstruction", readErr)
		}
		if atEOF {
			if err := emit(); err != nil {
				return Result{}, err
			}
			break
		}

		blockBuf = append(blockBuf, b)
		scanPos++
		curLen := len(blockBuf)

		switch {
		case curLen < WindowSize:
			// Not enough bytes yet to evaluate a boundary.
		case curLen == WindowSize:
			rollingSum = hashutil.Adler32(blockBuf)
			haveWindow = true
		default:
			outgoing := blockBuf[curLen-WindowSize-1]
			incoming := blockBuf[curLen-1]
			rollingSum = hashutil.RollAdler32(rollingSum, outgoing, incoming, WindowSize)
		}

		atMax := curLen >= MaxBlock
		atTarget := haveWindow && (rollingSum&mask == mask)
		atMin := curLen >= MinBlock
		if atMax || (atMin && atTarget) {
			if err := emit(); err != nil {
				return Result{}, err
			}
		}
	}

	var mean float32
	if blockCount > 0 {
		mean = float32(entropySum / float64(blockCount))
	}
	return Result{Entries: entries, MeanEntropy: mean}, nil
}

// indexOldManifest builds the two lookup structures the parent-block
// linkage rule needs: the set of hashes already present anywhere in the
// old manifest (a "reused" block gets no parent link) and a by-offset map
// (a new block at the same offset as an old one gets that old block as
// its parent, unless it was reused).
func indexOldManifest(old *ebof.ManifestData) (reused map[hashutil.Hash]struct{}, byOffset map[uint64]hashutil.Hash) {
	reused = make(map[hashutil.Hash]struct{})
	byOffset = make(map[uint64]hashutil.Hash)
	if old == nil {
		return reused, byOffset
	}
	for _, e := range old.Entries {
		reused[e.Hash] = struct{}{}
		byOffset[e.Offset] = e.Hash
	}
	return reused, byOffset
}
