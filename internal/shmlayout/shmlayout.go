// Package shmlayout defines the shared-memory section layout for a client
// stream's ring buffer and status mailbox: a header describing a
// list of sections, each either the FIFO (ring storage) or MBX (triple
// buffered status) region.
package shmlayout

import (
	"encoding/binary"
	"fmt"
)

// SectionID identifies a region within a mapping.
type SectionID uint32

const (
	SectionFIFO SectionID = iota + 1
	SectionMBX
)

const (
	Version1 = 1

	headerFixedSize  = 4 + 4 + 4 // length, version, section_count
	sectionEntrySize = 4 + 4 + 4 // length, offset, section_id
)

// Section describes one region of a mapping.
type Section struct {
	Length uint32
	Offset uint32
	ID     SectionID
}

// Header is the fixed-format prefix of a client stream's shared mapping.
type Header struct {
	Length       uint32
	Version      uint32
	SectionCount uint32
	Sections     []Section
}

// Mode distinguishes an in-process-only mapping from one passed by file
// descriptor to a remote client.
type Mode int

const (
	// ModePrivate keeps the mapping in this process's address space only;
	// this is the mode implemented today.
	ModePrivate Mode = iota
	// ModeShared passes the mapping by fd to a remote client process.
	//
	// TODO(shm-fd): wire this to a memfd_create + SCM_RIGHTS handoff once
	// the daemon gains a remote transport; today every client is local and
	// NewPrivateMapping is the only constructor: nothing builds a ModeShared
	// mapping.
	ModeShared
)

// BuildHeader lays out sections for a ring of ringBytes bytes and a status
// mailbox of mbxBytes bytes (3 slots plus a small header, ),
// returning the header and the total mapping size.
func BuildHeader(ringBytes, mbxBytes uint32) (Header, uint32) {
	fifoOffset := headerFixedSize + 2*sectionEntrySize
	mbxOffset := fifoOffset + int(ringBytes)
	total := uint32(mbxOffset) + mbxBytes

	h := Header{
		Version:      Version1,
		SectionCount: 2,
		Sections: []Section{
			{Length: ringBytes, Offset: uint32(fifoOffset), ID: SectionFIFO},
			{Length: mbxBytes, Offset: uint32(mbxOffset), ID: SectionMBX},
		},
	}
	h.Length = total
	return h, total
}

// Encode serializes the header into its on-the-wire little-endian form.
func (h Header) Encode() []byte {
	buf := make([]byte, headerFixedSize+len(h.Sections)*sectionEntrySize)
	binary.LittleEndian.PutUint32(buf[0:], h.Length)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	binary.LittleEndian.PutUint32(buf[8:], h.SectionCount)
	off := headerFixedSize
	for _, s := range h.Sections {
		binary.LittleEndian.PutUint32(buf[off:], s.Length)
		binary.LittleEndian.PutUint32(buf[off+4:], s.Offset)
		binary.LittleEndian.PutUint32(buf[off+8:], uint32(s.ID))
		off += sectionEntrySize
	}
	return buf
}

// Decode parses a header previously produced by Encode.
func Decode(buf []byte) (Header, error) {
	if len(buf) < headerFixedSize {
		return Header{}, fmt.Errorf("shmlayout: buffer too small for header")
	}
	h := Header{
		Length:       binary.LittleEndian.Uint32(buf[0:]),
		Version:      binary.LittleEndian.Uint32(buf[4:]),
		SectionCount: binary.LittleEndian.Uint32(buf[8:]),
	}
	if h.Version != Version1 {
		return Header{}, fmt.Errorf("shmlayout: unsupported version %d", h.Version)
	}
	off := headerFixedSize
	need := off + int(h.SectionCount)*sectionEntrySize
	if len(buf) < need {
		return Header{}, fmt.Errorf("shmlayout: buffer too small for %d sections", h.SectionCount)
	}
	h.Sections = make([]Section, h.SectionCount)
	for i := range h.Sections {
		h.Sections[i] = Section{
			Length: binary.LittleEndian.Uint32(buf[off:]),
			Offset: binary.LittleEndian.Uint32(buf[off+4:]),
			ID:     SectionID(binary.LittleEndian.Uint32(buf[off+8:])),
		}
		off += sectionEntrySize
	}
	return h, nil
}

// Find returns the section with the given id, if present.
func (h Header) Find(id SectionID) (Section, bool) {
	for _, s := range h.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// Mapping is a private (in-process) backing for a client stream's shared
// region: a single byte slice plus the header describing it.
type Mapping struct {
	Header Header
	Data   []byte
}

// NewPrivateMapping allocates an in-process mapping sized for the given
// ring/mailbox sections.
func NewPrivateMapping(ringBytes, mbxBytes uint32) *Mapping {
	h, total := BuildHeader(ringBytes, mbxBytes)
	return &Mapping{Header: h, Data: make([]byte, total)}
}

// Section returns the backing bytes for one section of the mapping.
func (m *Mapping) Section(id SectionID) ([]byte, error) {
	s, ok := m.Header.Find(id)
	if !ok {
		return nil, fmt.Errorf("shmlayout: section %d not present", id)
	}
	return m.Data[s.Offset : s.Offset+s.Length], nil
}
