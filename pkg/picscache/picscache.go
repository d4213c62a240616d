// Package picscache caches raw PICS response blobs (package info and app
// info VDF bytes, as handed back by Steam CM) on disk, keyed by package or
// app ID. It exists so a restart doesn't force every account back through
// a full PICS walk before depot keys become available again: the manifest
// builder checks here before issuing a GetPackageInfo/GetAppInfo call and
// fills it in after a successful one.
//
// Backed by a single *pebble.DB handle with string key prefixes per
// record kind and synchronous writes, wrapped in a struct rather than
// package-level globals since tek-s3 opens exactly one cache per process
// lifetime but tests want isolated instances.
package picscache

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/pebble"
)

const (
	packagePrefix = "pkg:"
	appPrefix     = "app:"
)

// Cache is an on-disk key/value store of raw PICS blobs.
type Cache struct {
	db *pebble.DB
}

// Open opens (or creates) the Pebble database at path.
func Open(path string) (*Cache, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open picscache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// GetPackageInfo returns the cached package info blob for packageID, if any.
func (c *Cache) GetPackageInfo(packageID uint32) ([]byte, bool) {
	return c.get(packageKey(packageID))
}

// SetPackageInfo stores the package info blob for packageID.
func (c *Cache) SetPackageInfo(packageID uint32, data []byte) error {
	return c.set(packageKey(packageID), data)
}

// GetAppInfo returns the cached app info blob for appID, if any.
func (c *Cache) GetAppInfo(appID uint32) ([]byte, bool) {
	return c.get(appKey(appID))
}

// SetAppInfo stores the app info blob for appID.
func (c *Cache) SetAppInfo(appID uint32, data []byte) error {
	return c.set(appKey(appID), data)
}

// InvalidatePackage drops any cached package info for packageID. Nothing in
// this module calls it; internal/builder keeps a cached package blob even
// when the license's access token changes.
func (c *Cache) InvalidatePackage(packageID uint32) error {
	return c.db.Delete(packageKey(packageID), pebble.Sync)
}

func (c *Cache) get(key []byte) ([]byte, bool) {
	v, closer, err := c.db.Get(key)
	if err != nil {
		return nil, false
	}
	defer closer.Close()
	return bytes.Clone(v), true
}

func (c *Cache) set(key, data []byte) error {
	return c.db.Set(key, data, pebble.Sync)
}

func packageKey(packageID uint32) []byte {
	return []byte(fmt.Sprintf("%s%010d", packagePrefix, packageID))
}

func appKey(appID uint32) []byte {
	return []byte(fmt.Sprintf("%s%010d", appPrefix, appID))
}
