// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// Open opens the kar archive from r. It will also check
// if the file is actually a kar archive, will return an error
// when file incorrect.
func Open(r io.ReaderAt) (*Archive, error) {
	pre := make([]byte, MagicLength+HeaderSizeNumberLength)
	if _, err := r.ReadAt(pre, 0); err != nil {
		return nil, errors.Wrap(ErrFileFormat, err.Error())
	}
	if !bytes.Equal(pre[:MagicLength], magic[:]) {
		return nil, ErrFileFormat
	}

	headerSize := int64(binary.LittleEndian.Uint64(pre[MagicLength:]))
	if headerSize <= 0 || headerSize > 1<<30 {
		return nil, ErrFileFormat
	}
	headerBytes := make([]byte, headerSize)
	if _, err := r.ReadAt(headerBytes, int64(len(pre))); err != nil {
		return nil, errors.Wrap(ErrFileFormat, err.Error())
	}

	ar := &Archive{
		reader: r,
		data:   int64(len(pre)) + headerSize,
	}
	if err := gobDecode(&ar.header, headerBytes); err != nil {
		return nil, errors.Wrap(ErrFileFormat, err.Error())
	}
	return ar, nil
}

// OpenFile memory maps the archive at path.
func OpenFile(path string) (*Archive, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	ar, err := Open(m)
	if err != nil {
		m.Close()
		return nil, errors.Wrap(err, path)
	}
	ar.closer = m
	return ar, nil
}

// Archive provides concurrent io for a kar file, and can provide
// an io.Reader for each file separately to perform actions on.
type Archive struct {
	reader io.ReaderAt
	closer io.Closer
	header Header
	data   int64
}

// Header returns the archive header.
func (a *Archive) Header() Header { return a.header }

// Names returns the names of every file in the archive.
func (a *Archive) Names() []string {
	out := make([]string, 0, len(a.header.Index))
	for _, e := range a.header.Index {
		out = append(out, e.Name)
	}
	return out
}

// ReadAll returns the entire contents of a file with a given name
func (a *Archive) ReadAll(name string) ([]byte, error) {
	r, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	out := make([]byte, r.entry.Size)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	return out, nil
}

// Open returns a Reader for a file in the Archive
func (a *Archive) Open(name string) (*Reader, error) {
	e, ok := a.header.Find(name)
	if !ok {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	section := io.NewSectionReader(a.reader, a.data+e.Offset, e.CompressedSize)
	return &Reader{
		entry: e,
		lz:    lz4.NewReader(section),
	}, nil
}

// Close releases the memory mapping of an archive opened with OpenFile.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// Reader is a reader for a single file in an Archive.
// Abstracts away the location that needs to be known.
type Reader struct {
	entry IndexEntry
	lz    *lz4.Reader
}

// Size returns the decompressed size of the file.
func (r *Reader) Size() int64 { return r.entry.Size }

// Read reads already decompressed data
func (r *Reader) Read(p []byte) (n int, err error) {
	return r.lz.Read(p)
}
