package httpapi

import (
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/valyala/bytebufferpool"

	"github.com/teknology-hub/tek-s3/internal/catalog"
)

// supportedCodecs is tried in this order when multiple are acceptable and
// tie on compressed size. All three (brotli via andybalholm/brotli, zstd
// and deflate via klauspost/compress) are negotiable via Accept-Encoding.
var supportedCodecs = []string{"br", "zstd", "deflate"}

var zstdEncoder *zstd.Encoder

func init() {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		panic("httpapi: zstd encoder initialization failed: " + err.Error())
	}
	zstdEncoder = enc
}

// parseAcceptEncoding returns the set of codec tokens the client listed in
// Accept-Encoding, ignoring q-values: a codec present in the client's
// list is considered acceptable regardless of weighted preference.
func parseAcceptEncoding(header string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range strings.Split(header, ",") {
		tok = strings.TrimSpace(tok)
		if semi := strings.IndexByte(tok, ';'); semi >= 0 {
			tok = strings.TrimSpace(tok[:semi])
		}
		if tok != "" {
			out[strings.ToLower(tok)] = true
		}
	}
	return out
}

// negotiate picks, among the codecs accept lists, the one producing the
// smallest result that is still strictly smaller than raw; ties are broken
// by supportedCodecs order. Returns ("", raw) when nothing qualifies, i.e.
// the response is sent as identity.
func negotiate(buf *catalog.ManifestBuffer, raw []byte, acceptEncoding string) (codec string, data []byte) {
	accept := parseAcceptEncoding(acceptEncoding)
	var bestCodec string
	var best []byte
	for _, c := range supportedCodecs {
		if !accept[c] {
			continue
		}
		candidate := compressedVariant(buf, raw, c)
		if len(candidate) >= len(raw) {
			continue
		}
		if bestCodec == "" || len(candidate) < len(best) {
			bestCodec, best = c, candidate
		}
	}
	if bestCodec == "" {
		return "", raw
	}
	return bestCodec, best
}

// compressedVariant returns the cached compressed form of raw for codec
// against buf, computing and caching it on first use.
func compressedVariant(buf *catalog.ManifestBuffer, raw []byte, codec string) []byte {
	if data, ok := buf.Compressed(codec); ok {
		return data
	}
	data := compress(raw, codec)
	buf.SetCompressed(codec, data)
	return data
}

func compress(raw []byte, codec string) []byte {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	switch codec {
	case "deflate":
		w, _ := flate.NewWriter(bb, flate.BestCompression)
		w.Write(raw)
		w.Close()
	case "br":
		w := brotli.NewWriterLevel(bb, brotli.BestCompression)
		w.Write(raw)
		w.Close()
	case "zstd":
		return zstdEncoder.EncodeAll(raw, nil)
	default:
		return append([]byte(nil), raw...)
	}

	out := make([]byte, bb.Len())
	copy(out, bb.Bytes())
	return out
}
