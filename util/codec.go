// util/codec.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// NewMsgpackEncoder returns an encoder whose output is a deterministic
// function of its input: map keys are sorted so that two encodings of
// equal values are byte-identical.
func NewMsgpackEncoder(w io.Writer) *msgpack.Encoder {
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	enc.UseCompactInts(true)
	return enc
}

// EncodeMsgpack returns the deterministic msgpack encoding of obj.
func EncodeMsgpack(obj any) ([]byte, error) {
	var b bytes.Buffer
	if err := NewMsgpackEncoder(&b).Encode(obj); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func DecodeMsgpack(b []byte, obj any) error {
	return msgpack.NewDecoder(bytes.NewReader(b)).Decode(obj)
}

// WriteZstdMsgpack writes obj to w msgpack-encoded and compressed with zstd.
func WriteZstdMsgpack(w io.Writer, obj any) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	defer zw.Close()

	if err := NewMsgpackEncoder(zw).Encode(obj); err != nil {
		return fmt.Errorf("failed to encode: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return nil
}

// ReadZstdMsgpack is the inverse of WriteZstdMsgpack.
func ReadZstdMsgpack(r io.Reader, obj any) error {
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	if err := msgpack.NewDecoder(zr).Decode(obj); err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}
	return nil
}
