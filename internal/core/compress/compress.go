// Package compress picks the most effective byte codec for a payload among
// a closed candidate set. Selection runs once per cached payload at write
// time; reads only ever decode the recorded algorithm tag.
package compress

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// Algorithm tags a payload with the codec that produced it.
type Algorithm string

const (
	AlgoNone   Algorithm = "none"
	AlgoGzip   Algorithm = "gzip"
	AlgoBrotli Algorithm = "brotli"
	AlgoZstd   Algorithm = "zstd"
)

// EffectivenessThreshold is the compression-ratio cutoff below which
// compressing is considered worthwhile.
const EffectivenessThreshold = 0.9

// ErrUnavailable is returned when every registered codec failed.
var ErrUnavailable = errors.New("compression unavailable: all codecs failed")

// Result describes one codec's outcome over a payload.
type Result struct {
	Algorithm      Algorithm `json:"algorithm"`
	OriginalSize   int       `json:"original_size"`
	CompressedSize int       `json:"compressed_size"`
	Ratio          float64   `json:"compression_ratio"`
	Effective      bool      `json:"is_effective"`
	Data           []byte    `json:"-"`
}

type codec struct {
	algo   Algorithm
	encode func([]byte) ([]byte, error)
	decode func([]byte) ([]byte, error)
}

// codecs is the registration table. Listing order breaks ties: the first
// registered codec wins when two produce the same size.
var codecs = []codec{
	{AlgoGzip, gzipEncode, gzipDecode},
	{AlgoBrotli, brotliEncode, brotliDecode},
	{AlgoZstd, zstdEncode, zstdDecode},
}

// Best runs every registered codec over data and returns the result with the
// smallest compressed size. A codec that errors is skipped; Best fails with
// ErrUnavailable only when all of them error.
func Best(data []byte) (Result, error) {
	var best *Result
	for _, c := range codecs {
		out, err := c.encode(data)
		if err != nil {
			continue
		}
		r := newResult(c.algo, len(data), out)
		if best == nil || r.CompressedSize < best.CompressedSize {
			best = &r
		}
	}
	if best == nil {
		return Result{}, ErrUnavailable
	}
	return *best, nil
}

// Decode reverses the codec recorded for a payload. AlgoNone passes data
// through untouched.
func Decode(algo Algorithm, data []byte) ([]byte, error) {
	if algo == AlgoNone || algo == "" {
		return data, nil
	}
	for _, c := range codecs {
		if c.algo == algo {
			return c.decode(data)
		}
	}
	return nil, fmt.Errorf("unknown compression algorithm %q", algo)
}

func newResult(algo Algorithm, originalSize int, out []byte) Result {
	ratio := 1.0
	if originalSize > 0 {
		ratio = float64(len(out)) / float64(originalSize)
	}
	return Result{
		Algorithm:      algo,
		OriginalSize:   originalSize,
		CompressedSize: len(out),
		Ratio:          ratio,
		Effective:      ratio < EffectivenessThreshold,
		Data:           out,
	}
}

func gzipEncode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecode(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func brotliEncode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func brotliDecode(data []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("brotli read: %w", err)
	}
	return out, nil
}

func zstdEncode(data []byte) ([]byte, error) {
	w, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer w.Close()
	return w.EncodeAll(data, nil), nil
}

func zstdDecode(data []byte) ([]byte, error) {
	r, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.DecodeAll(data, nil)
}
