// Package segment persists index snapshots as .spdx files.
//
// Layout:
//
//	header   64 bytes, little endian
//	postings one JSON array per term, in term order
//	dict     JSON array of DictEntry, sorted by term
//	docs     JSON array of indexed book ids, ascending
//	meta     JSON Meta
//	footer   CRC-32 (IEEE) of everything before it, then the magic
//
// Files are written to a .tmp path and renamed, so a reader never sees a
// partial snapshot under its final name.
package segment

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/booksearch/internal/index"
)

const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 8
	fileExt              = ".spdx"
	filePrefix           = "snap_"
)

// Header is the fixed-size prefix of every snapshot file.
type Header struct {
	Magic           uint32
	Format          uint32
	TermCount       uint32
	DocCount        uint32
	SnapshotVersion uint64
	PostSize        uint64
	DictSize        uint64
	DocsSize        uint64
	MetaSize        uint32
}

func (h Header) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Format)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], h.SnapshotVersion)
	binary.LittleEndian.PutUint64(b[24:32], h.PostSize)
	binary.LittleEndian.PutUint64(b[32:40], h.DictSize)
	binary.LittleEndian.PutUint64(b[40:48], h.DocsSize)
	binary.LittleEndian.PutUint32(b[48:52], h.MetaSize)
	return b
}

func decodeHeader(b []byte) Header {
	return Header{
		Magic:           binary.LittleEndian.Uint32(b[0:4]),
		Format:          binary.LittleEndian.Uint32(b[4:8]),
		TermCount:       binary.LittleEndian.Uint32(b[8:12]),
		DocCount:        binary.LittleEndian.Uint32(b[12:16]),
		SnapshotVersion: binary.LittleEndian.Uint64(b[16:24]),
		PostSize:        binary.LittleEndian.Uint64(b[24:32]),
		DictSize:        binary.LittleEndian.Uint64(b[32:40]),
		DocsSize:        binary.LittleEndian.Uint64(b[40:48]),
		MetaSize:        binary.LittleEndian.Uint32(b[48:52]),
	}
}

func (h Header) bodySize() int64 {
	return int64(h.PostSize) + int64(h.DictSize) + int64(h.DocsSize) + int64(h.MetaSize)
}

// DictEntry locates a term's postings relative to the start of the postings
// section.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// Meta describes the snapshot a file holds.
type Meta struct {
	Version     uint64    `json:"version"`
	PublishedAt time.Time `json:"published_at"`
	Cause       string    `json:"cause"`
}

// FileName returns the name a snapshot of the given version is stored
// under. Names sort in version order.
func FileName(version uint64) string {
	return fmt.Sprintf("%s%020d%s", filePrefix, version, fileExt)
}

// Writer writes snapshot files into one directory.
type Writer struct {
	dataDir string
	logger  *slog.Logger
}

func NewWriter(dataDir string) *Writer {
	return &Writer{
		dataDir: dataDir,
		logger:  slog.Default().With("component", "segment-writer"),
	}
}

// Write stores ix under meta.Version and returns the file name. Writing the
// same content twice produces identical bytes.
func (w *Writer) Write(meta Meta, ix *index.Index) (string, error) {
	entries := ix.Entries()
	docIDs := ix.DocIDs()

	var postings bytes.Buffer
	dict := make([]DictEntry, 0, len(entries))
	for _, entry := range entries {
		data, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: int64(postings.Len()),
			PostLen:    len(data),
			DocFreq:    len(entry.Postings),
		})
		postings.Write(data)
	}
	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if docIDs == nil {
		docIDs = []uint32{}
	}
	docsData, err := json.Marshal(docIDs)
	if err != nil {
		return "", fmt.Errorf("marshaling document table: %w", err)
	}
	meta.PublishedAt = meta.PublishedAt.UTC()
	metaData, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshaling snapshot meta: %w", err)
	}

	header := Header{
		Magic:           MagicBytes,
		Format:          FormatVersion,
		TermCount:       uint32(len(entries)),
		DocCount:        uint32(len(docIDs)),
		SnapshotVersion: meta.Version,
		PostSize:        uint64(postings.Len()),
		DictSize:        uint64(len(dictData)),
		DocsSize:        uint64(len(docsData)),
		MetaSize:        uint32(len(metaData)),
	}

	var file bytes.Buffer
	file.Write(header.encode())
	file.Write(postings.Bytes())
	file.Write(dictData)
	file.Write(docsData)
	file.Write(metaData)
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(file.Bytes()))
	binary.LittleEndian.PutUint32(footer[4:8], MagicBytes)
	file.Write(footer)

	name := FileName(meta.Version)
	if err := w.writeAtomic(name, file.Bytes()); err != nil {
		return "", err
	}
	w.logger.Info("snapshot written",
		"file", name,
		"version", meta.Version,
		"terms", len(entries),
		"docs", len(docIDs),
		"bytes", file.Len(),
	)
	return name, nil
}

func (w *Writer) writeAtomic(name string, data []byte) error {
	if err := os.MkdirAll(w.dataDir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming snapshot file: %w", err)
	}
	return nil
}

// Prune removes all but the newest keep snapshot files and any leftover
// temp files. It returns the names removed.
func (w *Writer) Prune(keep int) ([]string, error) {
	if keep < 1 {
		keep = 1
	}
	names, err := List(w.dataDir)
	if err != nil {
		return nil, err
	}
	var removed []string
	if len(names) > keep {
		for _, name := range names[:len(names)-keep] {
			if err := os.Remove(filepath.Join(w.dataDir, name)); err != nil && !os.IsNotExist(err) {
				return removed, fmt.Errorf("removing old snapshot %s: %w", name, err)
			}
			removed = append(removed, name)
		}
	}
	tmps, _ := filepath.Glob(filepath.Join(w.dataDir, filePrefix+"*"+fileExt+".tmp"))
	for _, tmp := range tmps {
		os.Remove(tmp)
	}
	if len(removed) > 0 {
		w.logger.Debug("old snapshots pruned", "removed", removed)
	}
	return removed, nil
}
