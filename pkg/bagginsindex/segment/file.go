package segment

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"io"
	"os"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/fields"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
)

// Segment file layout:
//
//	header   "SGI1"
//	docs     sorted by primary key: pk | flags byte | encoded document
//	terms    sorted by term key: key | uint32 count | pk...
//	docIdx   uint32 count | (key | int64 offset)...   every sparseInterval-th doc
//	termIdx  uint32 count | (key | int64 offset)...   every sparseInterval-th term
//	bloom    uint32 length | gob encoded filter over primary keys
//	footer   termStart | docIdxOffset | termIdxOffset | bloomOffset (int64 each) | "SGIF"
//
// Byte strings are prefixed with a big-endian uint32 length.
const (
	headerMagic = "SGI1"
	footerMagic = "SGIF"
	footerSize  = 4*8 + 4

	docLive    byte = 0
	docDeleted byte = 1
)

// IndexEntry is one sparse index entry.
type IndexEntry struct {
	Key    []byte
	Offset int64
}

type termEntry struct {
	key []byte
	pks [][]byte
}

type docEntry struct {
	pk  []byte
	doc fields.Document
	del bool
}

// segment is an immutable, flushed part of an index.
type segment struct {
	id            uint64
	filePath      string
	file          *os.File
	docIndex      []IndexEntry
	termIndex     []IndexEntry
	bloom         *bloom.BloomFilter
	docStart      int64
	termStart     int64
	docIdxOffset  int64
	termIdxOffset int64
}

func writeBytesWithPrefix(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytesWithPrefix(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// countingWriter tracks the offset of a buffered file writer.
type countingWriter struct {
	w   *bufio.Writer
	off int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.off += int64(n)
	return n, err
}

// writeSegment writes docs and terms, both sorted by key, to filePath.
func writeSegment(filePath string, id uint64, docs []docEntry, terms []termEntry, sparseInterval int, falsePositiveRate float64) (*segment, error) {
	if sparseInterval <= 0 {
		sparseInterval = 16
	}
	f, err := os.Create(filePath)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(f)
	w := &countingWriter{w: bw}

	fail := func(err error) (*segment, error) {
		f.Close()
		os.Remove(filePath)
		return nil, indexerr.Wrap(err, indexerr.CodeStorage, "segment.write", "%s", filePath)
	}

	if _, err := w.Write([]byte(headerMagic)); err != nil {
		return fail(err)
	}

	bf := bloom.NewWithEstimates(uint(max(len(docs), 1)), falsePositiveRate)
	var docIndex []IndexEntry
	for i, d := range docs {
		if i%sparseInterval == 0 {
			docIndex = append(docIndex, IndexEntry{Key: d.pk, Offset: w.off})
		}
		bf.Add(d.pk)
		if err := writeBytesWithPrefix(w, d.pk); err != nil {
			return fail(err)
		}
		flag := docLive
		var body []byte
		if d.del {
			flag = docDeleted
		} else {
			body = encodeDocument(d.doc)
		}
		if _, err := w.Write([]byte{flag}); err != nil {
			return fail(err)
		}
		if err := writeBytesWithPrefix(w, body); err != nil {
			return fail(err)
		}
	}

	termStart := w.off
	var termIndex []IndexEntry
	for i, t := range terms {
		if i%sparseInterval == 0 {
			termIndex = append(termIndex, IndexEntry{Key: t.key, Offset: w.off})
		}
		if err := writeBytesWithPrefix(w, t.key); err != nil {
			return fail(err)
		}
		if err := binary.Write(w, binary.BigEndian, uint32(len(t.pks))); err != nil {
			return fail(err)
		}
		for _, pk := range t.pks {
			if err := writeBytesWithPrefix(w, pk); err != nil {
				return fail(err)
			}
		}
	}

	writeIndex := func(entries []IndexEntry) (int64, error) {
		off := w.off
		if err := binary.Write(w, binary.LittleEndian, uint32(len(entries))); err != nil {
			return 0, err
		}
		for _, e := range entries {
			if err := writeBytesWithPrefix(w, e.Key); err != nil {
				return 0, err
			}
			if err := binary.Write(w, binary.LittleEndian, e.Offset); err != nil {
				return 0, err
			}
		}
		return off, nil
	}
	docIdxOffset, err := writeIndex(docIndex)
	if err != nil {
		return fail(err)
	}
	termIdxOffset, err := writeIndex(termIndex)
	if err != nil {
		return fail(err)
	}

	bfOffset := w.off
	var bfBuffer bytes.Buffer
	if err := gob.NewEncoder(&bfBuffer).Encode(bf); err != nil {
		return fail(err)
	}
	if err := writeBytesWithPrefix(w, bfBuffer.Bytes()); err != nil {
		return fail(err)
	}

	for _, off := range []int64{termStart, docIdxOffset, termIdxOffset, bfOffset} {
		if err := binary.Write(w, binary.LittleEndian, off); err != nil {
			return fail(err)
		}
	}
	if _, err := w.Write([]byte(footerMagic)); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(filePath)
		return nil, indexerr.Wrap(err, indexerr.CodeStorage, "segment.write", "%s", filePath)
	}
	return loadSegment(filePath, id)
}

// loadSegment opens a segment file and reads its indexes and bloom filter.
func loadSegment(filePath string, id uint64) (*segment, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, indexerr.Wrap(err, indexerr.CodeStorage, "segment.load", "%s", filePath)
	}
	s, err := readSegmentMeta(f)
	if err != nil {
		f.Close()
		return nil, indexerr.Wrap(err, indexerr.CodeStorage, "segment.load", "%s", filePath)
	}
	s.id = id
	s.filePath = filePath
	s.file = f
	return s, nil
}

func readSegmentMeta(f *os.File) (*segment, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size < int64(len(headerMagic))+footerSize {
		return nil, errors.New("file too small to be a valid segment")
	}
	header := make([]byte, len(headerMagic))
	if _, err := f.ReadAt(header, 0); err != nil {
		return nil, err
	}
	if string(header) != headerMagic {
		return nil, errors.New("invalid header magic")
	}

	footer := make([]byte, footerSize)
	if _, err := f.ReadAt(footer, size-footerSize); err != nil {
		return nil, err
	}
	if string(footer[32:]) != footerMagic {
		return nil, errors.New("invalid footer magic")
	}
	s := &segment{
		docStart:      int64(len(headerMagic)),
		termStart:     int64(binary.LittleEndian.Uint64(footer[0:])),
		docIdxOffset:  int64(binary.LittleEndian.Uint64(footer[8:])),
		termIdxOffset: int64(binary.LittleEndian.Uint64(footer[16:])),
	}
	bfOffset := int64(binary.LittleEndian.Uint64(footer[24:]))
	if !(s.docStart <= s.termStart && s.termStart <= s.docIdxOffset &&
		s.docIdxOffset <= s.termIdxOffset && s.termIdxOffset <= bfOffset && bfOffset <= size-footerSize) {
		return nil, errors.New("corrupt footer offsets")
	}

	readIndex := func(off, end int64) ([]IndexEntry, error) {
		r := bufio.NewReader(io.NewSectionReader(f, off, end-off))
		var count uint32
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return nil, err
		}
		entries := make([]IndexEntry, 0, count)
		for i := uint32(0); i < count; i++ {
			key, err := readBytesWithPrefix(r)
			if err != nil {
				return nil, err
			}
			var offset int64
			if err := binary.Read(r, binary.LittleEndian, &offset); err != nil {
				return nil, err
			}
			entries = append(entries, IndexEntry{Key: key, Offset: offset})
		}
		return entries, nil
	}
	if s.docIndex, err = readIndex(s.docIdxOffset, s.termIdxOffset); err != nil {
		return nil, err
	}
	if s.termIndex, err = readIndex(s.termIdxOffset, bfOffset); err != nil {
		return nil, err
	}

	bfBytes, err := readBytesWithPrefix(io.NewSectionReader(f, bfOffset, size-footerSize-bfOffset))
	if err != nil {
		return nil, err
	}
	var bf bloom.BloomFilter
	if err := gob.NewDecoder(bytes.NewReader(bfBytes)).Decode(&bf); err != nil {
		return nil, err
	}
	s.bloom = &bf
	return s, nil
}

func (s *segment) close() error {
	return s.file.Close()
}

// regionStart returns the offset to start scanning from for key: the last
// sparse index entry not after key, or start.
func regionStart(index []IndexEntry, key []byte, start int64) int64 {
	i := sort.Search(len(index), func(i int) bool {
		return bytes.Compare(index[i].Key, key) > 0
	})
	if i == 0 {
		return start
	}
	return index[i-1].Offset
}

func readDoc(r io.Reader) (docEntry, error) {
	pk, err := readBytesWithPrefix(r)
	if err != nil {
		return docEntry{}, err
	}
	var flag [1]byte
	if _, err := io.ReadFull(r, flag[:]); err != nil {
		return docEntry{}, err
	}
	body, err := readBytesWithPrefix(r)
	if err != nil {
		return docEntry{}, err
	}
	d := docEntry{pk: pk, del: flag[0] == docDeleted}
	if !d.del {
		if d.doc, err = decodeDocument(body); err != nil {
			return docEntry{}, err
		}
	}
	return d, nil
}

// get returns the entry stored for pk.
func (s *segment) get(pk []byte) (docEntry, bool, error) {
	if !s.bloom.Test(pk) {
		return docEntry{}, false, nil
	}
	start := regionStart(s.docIndex, pk, s.docStart)
	r := bufio.NewReader(io.NewSectionReader(s.file, start, s.termStart-start))
	for {
		d, err := readDoc(r)
		if err == io.EOF {
			return docEntry{}, false, nil
		}
		if err != nil {
			return docEntry{}, false, indexerr.Wrap(err, indexerr.CodeStorage, "segment.get", "%s", s.filePath)
		}
		switch c := bytes.Compare(d.pk, pk); {
		case c == 0:
			return d, true, nil
		case c > 0:
			// sorted, so we are past it
			return docEntry{}, false, nil
		}
	}
}

// docs calls fn for every entry in primary key order.
func (s *segment) docs(fn func(d docEntry) bool) error {
	r := bufio.NewReader(io.NewSectionReader(s.file, s.docStart, s.termStart-s.docStart))
	for {
		d, err := readDoc(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return indexerr.Wrap(err, indexerr.CodeStorage, "segment.docs", "%s", s.filePath)
		}
		if !fn(d) {
			return nil
		}
	}
}

// postings calls fn for every primary key under a term key in [lower, upper].
func (s *segment) postings(lower, upper []byte, fn func(pk []byte)) error {
	start := regionStart(s.termIndex, lower, s.termStart)
	r := bufio.NewReader(io.NewSectionReader(s.file, start, s.docIdxOffset-start))
	for {
		key, err := readBytesWithPrefix(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return indexerr.Wrap(err, indexerr.CodeStorage, "segment.postings", "%s", s.filePath)
		}
		var count uint32
		if err := binary.Read(r, binary.BigEndian, &count); err != nil {
			return indexerr.Wrap(err, indexerr.CodeStorage, "segment.postings", "%s", s.filePath)
		}
		if bytes.Compare(key, upper) > 0 {
			return nil
		}
		in := bytes.Compare(key, lower) >= 0
		for i := uint32(0); i < count; i++ {
			pk, err := readBytesWithPrefix(r)
			if err != nil {
				return indexerr.Wrap(err, indexerr.CodeStorage, "segment.postings", "%s", s.filePath)
			}
			if in {
				fn(pk)
			}
		}
	}
}
