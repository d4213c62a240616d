// Package seal wraps state.json at rest with an AEAD cipher, since the
// state file holds live Steam authentication tokens and depot decryption
// keys. It builds a go-kms-wrapping/v2 aead.Wrapper pointed at a
// machine-local key file instead of a remote KMS — this is a
// single-tenant LAN appliance, not a multi-tenant service, so there is
// no second tenant to isolate the key from and no case for an
// out-of-process KMS.
package seal

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	aead "github.com/hashicorp/go-kms-wrapping/v2/aead"
)

// Sealer wraps/unwraps opaque blobs with a single local AEAD key.
type Sealer struct {
	ctx context.Context
	w   *aead.Wrapper
}

// Open loads (or creates, on first run) the 32-byte key at keyPath and
// constructs a Sealer around it. When the key is created, keyPath's parent
// directory is created too if it does not exist yet.
func Open(ctx context.Context, keyPath string) (*Sealer, error) {
	key, err := loadOrCreateKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("load seal key: %w", err)
	}

	w := aead.NewWrapper()
	cfg := map[string]string{
		"key":    base64.StdEncoding.EncodeToString(key),
		"key_id": "tek-s3-state",
	}
	if _, err := w.SetConfig(ctx, wrapping.WithConfigMap(cfg)); err != nil {
		return nil, fmt.Errorf("configure aead wrapper: %w", err)
	}
	return &Sealer{ctx: ctx, w: w}, nil
}

func loadOrCreateKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, decErr := base64.StdEncoding.DecodeString(string(data))
		if decErr == nil && len(key) == 32 {
			return key, nil
		}
		return nil, fmt.Errorf("seal key file %s is corrupt", path)
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts plaintext, returning an opaque blob suitable for writing
// to disk in place of the unencrypted state.json body.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	info, err := s.w.Encrypt(s.ctx, plaintext)
	if err != nil {
		return nil, err
	}
	return info.Ciphertext, nil
}

// Unseal decrypts a blob produced by Seal.
func (s *Sealer) Unseal(ciphertext []byte) ([]byte, error) {
	info := &wrapping.BlobInfo{Ciphertext: ciphertext}
	return s.w.Decrypt(s.ctx, info)
}
