package rip

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func buildContainer(t *testing.T, m Metadata, pcm []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("rip")
	writeString(&buf, m.Name)
	writeString(&buf, m.Artist)
	writeString(&buf, m.Album)
	var lenBuf [4]byte
	lenBuf[0] = byte(len(pcm) >> 24)
	lenBuf[1] = byte(len(pcm) >> 16)
	lenBuf[2] = byte(len(pcm) >> 8)
	lenBuf[3] = byte(len(pcm))
	buf.Write(lenBuf[:])
	buf.Write(pcm)
	return buf.Bytes()
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte(byte(len(s) >> 8))
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
}

func TestParseMetadataHappyPath(t *testing.T) {
	pcm := make([]byte, 6000) // exactly 1 second at reference settings
	container := buildContainer(t, Metadata{Name: "Song", Artist: "Artist", Album: "Album"}, pcm)

	m, err := ParseMetadata(bytes.NewReader(container))
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	want := Metadata{Name: "Song", Artist: "Artist", Album: "Album", LengthCentiseconds: 100}
	if m != want {
		if diff := pretty.Compare(want, m); diff != "" {
			t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestParseMetadataBadSignature(t *testing.T) {
	_, err := ParseMetadata(strings.NewReader("xyz"))
	if err == nil {
		t.Fatal("expected error for bad signature")
	}
}

func TestParseMetadataUnexpectedEOF(t *testing.T) {
	_, err := ParseMetadata(strings.NewReader("ri"))
	if err == nil {
		t.Fatal("expected error for truncated signature")
	}
}

func TestEncodeMetadataLayout(t *testing.T) {
	m := Metadata{Name: "Song", Artist: "Artist", Album: "Album", LengthCentiseconds: 100}
	out, err := EncodeMetadata(m)
	if err != nil {
		t.Fatalf("EncodeMetadata: %v", err)
	}

	want := []byte{
		0x01,             // tag
		0, 0, 0, 100,     // length_cs
		0, 4, 'S', 'o', 'n', 'g', // name
		0, 6, 'A', 'r', 't', 'i', 's', 't', // artist
		0, 5, 'A', 'l', 'b', 'u', 'm', // album
	}
	if !bytes.Equal(out, want) {
		t.Fatalf("frame mismatch:\n got: % x\nwant: % x", out, want)
	}
	if len(out) != 26 {
		t.Fatalf("expected 26-byte frame, got %d", len(out))
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	rawBytes := 18000 // 3 seconds of reference PCM
	wantLengthCs := uint32(uint64(rawBytes) * 8 / SampleSize / SampleRate * 100)
	m := Metadata{Name: "N", Artist: "A", Album: "B", LengthCentiseconds: wantLengthCs}

	encoded, err := EncodeMetadata(m)
	if err != nil {
		t.Fatalf("EncodeMetadata: %v", err)
	}

	// A metadata frame isn't itself a rip container (no signature, no raw
	// PCM length) — reconstruct a container with the same fields and parse
	// that instead, checking we get identical values back.
	container := buildContainer(t, m, make([]byte, rawBytes))
	got, err := ParseMetadata(bytes.NewReader(container))
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	if got != m {
		t.Fatalf("round trip mismatch: got %+v want %+v (encoded=%x)", got, m, encoded)
	}
}

func TestReadChunkEndOfTrack(t *testing.T) {
	cr := NewChunkReader(bytes.NewReader(nil))
	out := make([]byte, ChunkMax)
	frameLen, _, err := cr.ReadChunk(out)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if frameLen != 0 {
		t.Fatalf("expected frameLen 0 at EOF, got %d", frameLen)
	}
}

func TestReadChunkFullSecond(t *testing.T) {
	pcm := bytes.Repeat([]byte{0xAB}, SampleBytesPerSecond)
	cr := NewChunkReader(bytes.NewReader(pcm))
	out := make([]byte, ChunkMax)

	frameLen, startTime, err := cr.ReadChunk(out)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if frameLen != HeaderSize+SampleBytesPerSecond {
		t.Fatalf("expected full frame, got %d bytes", frameLen)
	}
	if startTime != 0 {
		t.Fatalf("expected start time 0 for first chunk, got %d", startTime)
	}
	if out[0] != TagChunk {
		t.Fatalf("expected tag 0x02, got 0x%02x", out[0])
	}

	// Second read should hit EOF.
	frameLen, _, err = cr.ReadChunk(out)
	if err != nil {
		t.Fatalf("ReadChunk (2nd): %v", err)
	}
	if frameLen != 0 {
		t.Fatalf("expected EOF on 2nd read, got frameLen=%d", frameLen)
	}
}

func TestReadChunkCumulativeTimeMonotonic(t *testing.T) {
	pcm := bytes.Repeat([]byte{0x01}, SampleBytesPerSecond*3)
	cr := NewChunkReader(bytes.NewReader(pcm))
	out := make([]byte, ChunkMax)

	var times []uint32
	for i := 0; i < 3; i++ {
		frameLen, startTime, err := cr.ReadChunk(out)
		if err != nil {
			t.Fatalf("ReadChunk: %v", err)
		}
		if frameLen == 0 {
			t.Fatalf("unexpected EOF on iteration %d", i)
		}
		times = append(times, startTime)
	}

	for i := 1; i < len(times); i++ {
		if times[i] < times[i-1] {
			t.Fatalf("cumulative time not monotonic: %v", times)
		}
	}
	if times[0] != 0 || times[1] != 100 || times[2] != 200 {
		t.Fatalf("unexpected cumulative times: %v", times)
	}
}
