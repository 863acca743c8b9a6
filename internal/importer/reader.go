package importer

// reader.go is the single blocking step of the pipeline: reading the source
// file and decoding it from its declared encoding before tokenizing.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultMaxFileSize bounds ReadTable when the caller passes 0 (10MB).
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

// ReadTable reads r fully, decodes it and tokenizes the result.
// It returns the table and the raw bytes, which a session keeps so the
// options (encoding included) can change without reading the file again.
//
// Failures while reading or decoding wrap ErrFileRead; tokenizer failures
// are returned unchanged.
func ReadTable(ctx context.Context, r io.Reader, opts Options, maxBytes int64) (*RowTable, []byte, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}

	data, err := ReadSource(ctx, r, maxBytes)
	if err != nil {
		return nil, nil, err
	}

	table, err := ParseSource(data, opts)
	if err != nil {
		return nil, nil, err
	}
	return table, data, nil
}

// ReadSource reads at most maxBytes from r (DefaultMaxFileSize when 0).
func ReadSource(ctx context.Context, r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileSize
	}
	return readAll(ctx, r, maxBytes)
}

// ParseSource decodes data from opts.Encoding and tokenizes it.
func ParseSource(data []byte, opts Options) (*RowTable, error) {
	text, err := Decode(data, opts.Encoding)
	if err != nil {
		return nil, err
	}
	return Tokenize(text, opts)
}

// readAll reads at most maxBytes, honoring cancellation between chunks.
func readAll(ctx context.Context, r io.Reader, maxBytes int64) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: no file provided", ErrFileRead)
	}

	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)
	limited := io.LimitReader(r, maxBytes+1)

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFileRead, err)
		}
		n, err := limited.Read(chunk)
		buf.Write(chunk[:n])
		if int64(buf.Len()) > maxBytes {
			return nil, fmt.Errorf("%w: file too large (limit %d bytes)", ErrFileRead, maxBytes)
		}
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFileRead, err)
		}
	}
}

// Decode converts data from the named encoding to a UTF-8 string.
// Names are WHATWG labels ("utf-8", "latin1", "windows-1252", "utf-16le", ...);
// the empty name means UTF-8. A UTF-8 byte order mark is removed and invalid
// UTF-8 sequences are replaced with U+FFFD.
func Decode(data []byte, name string) (string, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return "", err
	}

	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("%w: decode %s: %w", ErrFileRead, name, err)
	}
	return strings.ToValidUTF8(string(decoded), "�"), nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8BOM, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported encoding %q", ErrFileRead, name)
	}
	if enc == unicode.UTF8 {
		return unicode.UTF8BOM, nil
	}
	return enc, nil
}
