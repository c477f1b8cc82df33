// Package rip implements the "rip" on-disk container format and its wire
// framing: parsing track metadata, encoding the metadata frame sent to
// clients, and reading fixed-size audio chunks from an open track.
//
// Layout (big-endian throughout):
//
//	signature   "rip"            3 bytes
//	name        u16 len + bytes
//	artist      u16 len + bytes
//	album       u16 len + bytes
//	raw PCM len u32
//	raw PCM     until EOF
package rip

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	riperrors "github.com/alxayo/ripserver/internal/errors"
)

// Reference encoding parameters. A production build may retarget these at
// compile time; the wire format and arithmetic below are expressed in terms
// of them rather than hardcoded literals.
const (
	SampleSize = 1     // bits per sample
	SampleRate = 48000 // Hz
)

// SampleBytesPerSecond is the number of raw PCM bytes consumed per broadcast
// tick: SampleSize * SampleRate / 8.
const SampleBytesPerSecond = SampleSize * SampleRate / 8

// HeaderSize is the fixed size of an audio-chunk frame's header (tag,
// payload length, cumulative time).
const HeaderSize = 9

// ChunkMax is the largest an audio-chunk frame can be: the header plus one
// tick's worth of PCM payload.
const ChunkMax = HeaderSize + SampleBytesPerSecond

const signature = "rip"

// Frame tags, per the wire format.
const (
	TagMetadata byte = 0x01
	TagChunk    byte = 0x02
)

// maxStringLen bounds a single length-prefixed string to what a u16 can
// address (strictly less than 65536, per the container format).
const maxStringLen = 65536

// Metadata describes a track's display information and duration.
type Metadata struct {
	Name               string
	Artist             string
	Album              string
	LengthCentiseconds uint32
}

// ParseMetadata reads the rip container header from r: the "rip" signature,
// the three length-prefixed strings, and the raw PCM byte count, from which
// LengthCentiseconds is derived using a 64-bit intermediate to avoid
// overflow.
func ParseMetadata(r io.Reader) (Metadata, error) {
	var sig [3]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return Metadata{}, riperrors.NewCodecError("parse.signature", err)
	}
	if string(sig[:]) != signature {
		return Metadata{}, riperrors.NewCodecError("parse.signature",
			fmt.Errorf("bad signature %q", sig[:]))
	}

	name, err := parseString(r)
	if err != nil {
		return Metadata{}, riperrors.NewCodecError("parse.name", err)
	}
	artist, err := parseString(r)
	if err != nil {
		return Metadata{}, riperrors.NewCodecError("parse.artist", err)
	}
	album, err := parseString(r)
	if err != nil {
		return Metadata{}, riperrors.NewCodecError("parse.album", err)
	}

	var rawBytes uint32
	if err := binary.Read(r, binary.BigEndian, &rawBytes); err != nil {
		return Metadata{}, riperrors.NewCodecError("parse.pcm_len", err)
	}

	lengthCs := uint64(rawBytes) * 8 / SampleSize / SampleRate * 100

	return Metadata{
		Name:               name,
		Artist:             artist,
		Album:              album,
		LengthCentiseconds: uint32(lengthCs),
	}, nil
}

func parseString(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// EncodeMetadata serializes m into the wire-format metadata frame: the tag
// 0x01, LengthCentiseconds as a u32, then name, artist and album, each as
// a u16 length followed by its bytes. Byte 0 is always the tag.
func EncodeMetadata(m Metadata) ([]byte, error) {
	if len(m.Name) >= maxStringLen || len(m.Artist) >= maxStringLen || len(m.Album) >= maxStringLen {
		return nil, riperrors.NewCodecError("encode.metadata", fmt.Errorf("string field too long"))
	}

	total := 11 + len(m.Name) + len(m.Artist) + len(m.Album)
	out := make([]byte, total)

	out[0] = TagMetadata
	binary.BigEndian.PutUint32(out[1:5], m.LengthCentiseconds)

	offset := 5
	offset = putString(out, offset, m.Name)
	offset = putString(out, offset, m.Artist)
	putString(out, offset, m.Album)

	return out, nil
}

func putString(out []byte, offset int, s string) int {
	binary.BigEndian.PutUint16(out[offset:offset+2], uint16(len(s)))
	offset += 2
	copy(out[offset:], s)
	return offset + len(s)
}

// ChunkReader reads successive audio chunks from the currently open track,
// tracking the cumulative playback time across reads.
type ChunkReader struct {
	r    *bufio.Reader
	time uint32 // cumulative centiseconds read so far
}

// NewChunkReader wraps r (typically an open *os.File positioned just past
// the metadata header) for chunked reads.
func NewChunkReader(r io.Reader) *ChunkReader {
	return &ChunkReader{r: bufio.NewReaderSize(r, SampleBytesPerSecond)}
}

// ReadChunk reads up to SampleBytesPerSecond bytes into out[HeaderSize:]
// and fills out[0:HeaderSize] with the audio-chunk header. out must have
// length >= ChunkMax. It returns frameLen == 0 at clean end-of-track
// (signalling the caller to advance the playlist), and otherwise returns
// the total frame length (header + payload) and the cumulative time in
// centiseconds at the *start* of this frame.
func (c *ChunkReader) ReadChunk(out []byte) (frameLen int, startTimeCentiseconds uint32, err error) {
	if len(out) < ChunkMax {
		return 0, 0, riperrors.NewCodecError("read.chunk", fmt.Errorf("out buffer too small: %d < %d", len(out), ChunkMax))
	}

	n, readErr := io.ReadFull(c.r, out[HeaderSize:HeaderSize+SampleBytesPerSecond])
	if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
		return 0, 0, riperrors.NewCodecError("read.chunk", readErr)
	}
	if n == 0 {
		return 0, 0, nil
	}

	startTime := c.time

	out[0] = TagChunk
	binary.BigEndian.PutUint32(out[1:5], uint32(n))
	binary.BigEndian.PutUint32(out[5:9], startTime)

	c.time += uint32(uint64(n) * 8 / SampleSize / SampleRate * 100)

	return HeaderSize + n, startTime, nil
}
