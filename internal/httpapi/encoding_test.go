package httpapi

import (
	"testing"

	"github.com/teknology-hub/tek-s3/internal/catalog"
)

func TestParseAcceptEncodingStripsQValuesAndCase(t *testing.T) {
	got := parseAcceptEncoding("Br;q=1.0, zstd, deflate ;q=0.5")
	for _, want := range []string{"br", "zstd", "deflate"} {
		if !got[want] {
			t.Fatalf("expected %q in parsed set %v", want, got)
		}
	}
}

func TestNegotiatePicksSmallestAcceptedStrictlySmallerCandidate(t *testing.T) {
	raw := make([]byte, 4096)
	for i := range raw {
		raw[i] = byte(i % 7) // compressible but not all-zero
	}
	buf := &catalog.ManifestBuffer{Raw: raw}

	codec, data := negotiate(buf, raw, "br, zstd, deflate")
	if codec == "" {
		t.Fatal("expected a codec to be chosen for compressible input")
	}
	if len(data) >= len(raw) {
		t.Fatalf("chosen candidate (%d bytes) must be strictly smaller than raw (%d bytes)", len(data), len(raw))
	}
}

func TestNegotiateFallsBackToIdentityWhenNothingAccepted(t *testing.T) {
	raw := []byte("hello world")
	buf := &catalog.ManifestBuffer{Raw: raw}

	codec, data := negotiate(buf, raw, "gzip")
	if codec != "" {
		t.Fatalf("got codec %q, want identity (no Accept-Encoding match)", codec)
	}
	if string(data) != string(raw) {
		t.Fatal("identity response must be the raw bytes unchanged")
	}
}

func TestNegotiateFallsBackToIdentityWhenCompressionDoesNotHelp(t *testing.T) {
	raw := []byte("x") // too small for any codec to beat
	buf := &catalog.ManifestBuffer{Raw: raw}

	codec, data := negotiate(buf, raw, "br, zstd, deflate")
	if codec != "" {
		t.Fatalf("got codec %q, want identity for a single-byte payload", codec)
	}
	if string(data) != string(raw) {
		t.Fatal("identity response must be the raw bytes unchanged")
	}
}

func TestCompressedVariantIsCachedOnBuffer(t *testing.T) {
	raw := make([]byte, 2048)
	buf := &catalog.ManifestBuffer{Raw: raw}

	first := compressedVariant(buf, raw, "deflate")
	cached, ok := buf.Compressed("deflate")
	if !ok {
		t.Fatal("expected the compressed form to be cached on the buffer")
	}
	if string(first) != string(cached) {
		t.Fatal("cached form must match what was just computed")
	}
}
