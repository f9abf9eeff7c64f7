// Package snapshot writes whole-world snapshots: a zstd stream holding one
// JSON header line followed by a gob-encoded engine.WorldState.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/tilth/internal/engine"
)

const Version = 1

// Header is readable without decoding the body.
type Header struct {
	Version       int       `json:"version"`
	Tick          uint64    `json:"tick"`
	Areas         int       `json:"areas"`
	Tracked       int       `json:"tracked"`
	Depleted      int       `json:"depleted"`
	CatalogDigest string    `json:"catalog_digest"`
	WrittenAt     time.Time `json:"written_at"`
}

// File is a decoded snapshot.
type File struct {
	Header Header
	World  engine.WorldState
}

// NewHeader summarizes ws.
func NewHeader(ws engine.WorldState, catalogDigest string) Header {
	h := Header{
		Version:       Version,
		Tick:          ws.Tick,
		Areas:         len(ws.Areas),
		CatalogDigest: catalogDigest,
		WrittenAt:     time.Now().UTC(),
	}
	for _, a := range ws.Areas {
		h.Tracked += len(a.Soil.Records) + len(a.Soil.Depleted) + len(a.Soil.Pending)
		h.Depleted += len(a.Soil.Depleted)
	}
	return h
}

// Write encodes f to w.
func Write(w io.Writer, f File) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(f.Header)
	if err != nil {
		enc.Close()
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&f.World); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Read decodes a snapshot from r.
func Read(r io.Reader) (File, error) {
	var f File
	dec, err := zstd.NewReader(r)
	if err != nil {
		return f, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	if f.Header, err = readHeader(br); err != nil {
		return f, err
	}
	if f.Header.Version != Version {
		return f, fmt.Errorf("unsupported snapshot version %d", f.Header.Version)
	}
	if err := gob.NewDecoder(br).Decode(&f.World); err != nil {
		return f, fmt.Errorf("gob decode: %w", err)
	}
	return f, nil
}

// ReadHeader decodes only the header line.
func ReadHeader(r io.Reader) (Header, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Header{}, err
	}
	defer dec.Close()
	return readHeader(bufio.NewReader(dec))
}

func readHeader(br *bufio.Reader) (Header, error) {
	var h Header
	line, err := br.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return h, errors.New("snapshot has no header")
		}
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header: %w", err)
	}
	return h, nil
}

// WriteFile writes the snapshot to path, replacing it atomically.
func WriteFile(path string, f File) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := Write(out, f); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ReadFile reads the snapshot at path.
func ReadFile(path string) (File, error) {
	in, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer in.Close()
	return Read(in)
}
