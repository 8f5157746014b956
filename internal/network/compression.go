// internal/network/compression.go
package network

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// acceptEncoding is advertised on every request that does not set its own.
const acceptEncoding = "br, gzip, deflate"

var (
	gzipReaders = sync.Pool{New: func() interface{} { return new(gzip.Reader) }}
	brReaders   = sync.Pool{New: func() interface{} { return brotli.NewReader(nil) }}
)

// DecompressingTransport negotiates compression and decodes response bodies.
// CDNs serve the analyzer bundle brotli-compressed, which net/http does not decode.
type DecompressingTransport struct {
	Base http.RoundTripper
}

// NewDecompressingTransport wraps base. A nil base uses http.DefaultTransport.
func NewDecompressingTransport(base http.RoundTripper) *DecompressingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DecompressingTransport{Base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *DecompressingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := Decompress(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	return resp, nil
}

// pooledBody closes the decoder, returns it to its pool and closes the wire body.
type pooledBody struct {
	io.Reader
	wire    io.ReadCloser
	release func()
}

func (b *pooledBody) Close() error {
	if b.release != nil {
		b.release()
		b.release = nil
	}
	return b.wire.Close()
}

// Decompress replaces resp.Body with a decoding reader for every Content-Encoding
// layer, last applied first. On error the body may be partially consumed.
func Decompress(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	var layers []string
	for _, value := range encodings {
		for _, enc := range strings.Split(value, ",") {
			layers = append(layers, strings.ToLower(strings.TrimSpace(enc)))
		}
	}

	for i := len(layers) - 1; i >= 0; i-- {
		body := resp.Body
		switch layers[i] {
		case "", "identity":
			continue
		case "gzip", "x-gzip":
			zr := gzipReaders.Get().(*gzip.Reader)
			if err := zr.Reset(body); err != nil {
				gzipReaders.Put(zr)
				return fmt.Errorf("gzip: %w", err)
			}
			resp.Body = &pooledBody{Reader: zr, wire: body, release: func() {
				_ = zr.Close()
				gzipReaders.Put(zr)
			}}
		case "br":
			br := brReaders.Get().(*brotli.Reader)
			if err := br.Reset(body); err != nil {
				brReaders.Put(br)
				return fmt.Errorf("brotli: %w", err)
			}
			resp.Body = &pooledBody{Reader: br, wire: body, release: func() {
				_ = br.Reset(strings.NewReader(""))
				brReaders.Put(br)
			}}
		case "deflate":
			fr, err := newDeflateReader(body)
			if err != nil {
				return fmt.Errorf("deflate: %w", err)
			}
			resp.Body = &pooledBody{Reader: fr, wire: body, release: func() { _ = fr.Close() }}
		default:
			return errors.New("unsupported Content-Encoding " + layers[i])
		}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// newDeflateReader accepts both zlib-wrapped and raw deflate streams; servers
// disagree on which one "deflate" means.
func newDeflateReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(2)
	if err == nil && isZlibHeader(header[0], header[1]) {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}
