package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Content types for the built-in codecs.
const (
	ContentTypeJSON   = "application/json"
	ContentTypeBinary = "application/x-utm-snapshot"
)

// Codec encodes and decodes snapshot documents.
type Codec interface {
	ContentType() string
	Encode(w io.Writer, doc *Document) error
	Decode(r io.Reader) (*Document, error)
}

// JSONCodec is a human-readable codec.
type JSONCodec struct {
	Indent bool
}

// ContentType implements Codec.
func (JSONCodec) ContentType() string { return ContentTypeJSON }

// Encode implements Codec.
func (c JSONCodec) Encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	if c.Indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// Decode implements Codec.
func (JSONCodec) Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &doc, nil
}

// BinaryCodec writes msgpack compressed with zstd. Field names follow the
// json tags so both codecs share one schema.
type BinaryCodec struct {
	Level zstd.EncoderLevel
}

// ContentType implements Codec.
func (BinaryCodec) ContentType() string { return ContentTypeBinary }

// Encode implements Codec.
func (c BinaryCodec) Encode(w io.Writer, doc *Document) error {
	level := c.Level
	if level == 0 {
		level = zstd.SpeedDefault
	}
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level))
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}

	enc := msgpack.NewEncoder(zw)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(doc); err != nil {
		zw.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return zw.Close()
}

// Decode implements Codec.
func (BinaryCodec) Decode(r io.Reader) (*Document, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	dec := msgpack.NewDecoder(zr)
	dec.SetCustomStructTag("json")

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &doc, nil
}

// CodecFor returns the codec for a content type, defaulting to JSON.
func CodecFor(contentType string) Codec {
	if contentType == ContentTypeBinary {
		return BinaryCodec{}
	}
	return JSONCodec{}
}

func encode(c Codec, doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(c Codec, data []byte) (*Document, error) {
	return c.Decode(bytes.NewReader(data))
}
