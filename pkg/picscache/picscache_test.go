package picscache

import (
	"path/filepath"
	"testing"
)

func TestPackageInfoRoundTrip(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "pics.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	if _, ok := c.GetPackageInfo(7); ok {
		t.Fatal("expected miss before any write")
	}
	if err := c.SetPackageInfo(7, []byte("blob-7")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok := c.GetPackageInfo(7)
	if !ok || string(got) != "blob-7" {
		t.Fatalf("got %q, ok=%v", got, ok)
	}
}

func TestAppInfoRoundTripAndInvalidate(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "pics.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	if err := c.SetAppInfo(42, []byte("app-42")); err != nil {
		t.Fatalf("set app: %v", err)
	}
	if err := c.SetPackageInfo(42, []byte("pkg-42")); err != nil {
		t.Fatalf("set pkg: %v", err)
	}
	if err := c.InvalidatePackage(42); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok := c.GetPackageInfo(42); ok {
		t.Fatal("package info should be gone after invalidate")
	}
	if got, ok := c.GetAppInfo(42); !ok || string(got) != "app-42" {
		t.Fatalf("app info should survive package invalidation, got %q ok=%v", got, ok)
	}
}

func TestDistinctKeyNamespaces(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "pics.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()

	if err := c.SetPackageInfo(1, []byte("pkg")); err != nil {
		t.Fatalf("set pkg: %v", err)
	}
	if _, ok := c.GetAppInfo(1); ok {
		t.Fatal("app info with the same numeric ID must not alias package info")
	}
}
