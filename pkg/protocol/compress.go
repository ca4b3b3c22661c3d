package protocol

import (
	"bytes"
	"errors"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zlib"
)

// ErrBatchTooLarge 解压后的批量包超过限制
var ErrBatchTooLarge = errors.New("decompressed batch too large")

// Codec 按协议版本选择的压缩算法
type Codec interface {
	Compress(data []byte) ([]byte, error)
	// Decompress 解压 data，输出超过 limit 字节时返回 ErrBatchTooLarge（limit <= 0 不限制）
	Decompress(data []byte, limit int) ([]byte, error)
}

// ZlibCodec protover 2
type ZlibCodec struct {
	Level int
}

func (c ZlibCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	level := c.Level
	if level == 0 {
		level = zlib.DefaultCompression
	}
	w, err := zlib.NewWriterLevel(&buf, level)
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

func (ZlibCodec) Decompress(data []byte, limit int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return readLimited(r, limit)
}

// BrotliCodec protover 3
type BrotliCodec struct {
	Quality int
}

func (c BrotliCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	quality := c.Quality
	if quality == 0 {
		quality = brotli.DefaultCompression
	}
	w := brotli.NewWriterLevel(&buf, quality)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (BrotliCodec) Decompress(data []byte, limit int) ([]byte, error) {
	return readLimited(brotli.NewReader(bytes.NewReader(data)), limit)
}

func readLimited(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	out, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		return nil, ErrBatchTooLarge
	}
	return out, nil
}

// DefaultCodecs 返回默认的压缩算法表
func DefaultCodecs() map[Protover]Codec {
	return map[Protover]Codec{
		ProtoverZlib:   ZlibCodec{},
		ProtoverBrotli: BrotliCodec{},
	}
}
