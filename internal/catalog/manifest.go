package catalog

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"sort"
	"time"
)

// jsonApp mirrors the wire shape served by GET /manifest: apps is an
// object keyed by app ID string, each holding a name, the PICS access
// token (omitted when zero/unavailable) and the flat list of owned depot
// IDs; keys live in a separate depot_keys object so a depot shared by
// multiple apps only stores its key once.
type jsonApp struct {
	Name   string   `json:"name"`
	PicsAT uint64   `json:"pics_at,omitempty"`
	Depots []uint32 `json:"depots"`
}

type jsonManifest struct {
	Apps      map[string]jsonApp `json:"apps"`
	DepotKeys map[string]string  `json:"depot_keys"`
}

// binAppRecord is the ordered, already-filtered app/depot view the binary
// encoder walks; built once in RebuildIfDirty so the encoder doesn't need
// to re-touch the store's maps (and their lock) itself.
type binAppRecord struct {
	accessToken uint64
	name        string
	depots      []uint32
}

// RebuildIfDirty regenerates the JSON and binary manifest buffers if the
// in-memory model has changed since the last rebuild. Only accounts that
// have completed their initial harvest pass (Ready) contribute depots, so
// the served catalog never exposes a half-populated account mid-sign-in.
func (s *Store) RebuildIfDirty() {
	if manifestDirty, _ := s.peekDirty(); !manifestDirty {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check under the lock: another goroutine may have rebuilt between
	// the peek above and acquiring the lock.
	if !s.dirty {
		return
	}

	now := time.Now()
	apps := make(map[string]jsonApp, len(s.Apps))
	var ordered []binAppRecord
	depotKeysUsed := map[uint32]struct{}{}
	appIDs := sortedAppIDs(s.Apps)
	for _, appID := range appIDs {
		app := s.Apps[appID]
		depotIDs := sortedDepotIDs(app.Depots)
		depots := make([]uint32, 0, len(depotIDs))
		for _, depotID := range depotIDs {
			dep := app.Depots[depotID]
			if !depotHasReadyOwner(s.Accounts, dep.Accounts) {
				continue
			}
			depots = append(depots, depotID)
			depotKeysUsed[depotID] = struct{}{}
		}
		if len(depots) == 0 {
			continue
		}
		apps[fmt.Sprintf("%d", appID)] = jsonApp{Name: app.Name, PicsAT: app.PICSAccessToken, Depots: depots}
		ordered = append(ordered, binAppRecord{accessToken: app.PICSAccessToken, name: app.Name, depots: depots})
	}

	depotKeys := make(map[string]string, len(depotKeysUsed))
	usedKeys := make(map[uint32]DepotKey, len(depotKeysUsed))
	for depotID := range depotKeysUsed {
		if key, ok := s.DepotKeys[depotID]; ok {
			depotKeys[fmt.Sprintf("%d", depotID)] = base64.StdEncoding.EncodeToString(key[:])
			usedKeys[depotID] = key
		}
	}

	jm := jsonManifest{Apps: apps, DepotKeys: depotKeys}
	raw, _ := json.Marshal(jm)
	s.json.Store(&ManifestBuffer{Raw: raw, LastModified: now})
	s.binary.Store(&ManifestBuffer{Raw: encodeBinaryManifest(ordered, usedKeys), LastModified: now})

	s.dirty = false
}

func (s *Store) peekDirty() (manifest, state bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty, s.stateDirty
}

func depotHasReadyOwner(accounts map[uint64]*Account, owners []uint64) bool {
	for _, steamID := range owners {
		if a, ok := accounts[steamID]; ok && a.Ready {
			return true
		}
	}
	return false
}

func sortedAppIDs(apps map[uint32]*App) []uint32 {
	ids := make([]uint32, 0, len(apps))
	for id := range apps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedDepotIDs(deps map[uint32]*Depot) []uint32 {
	ids := make([]uint32, 0, len(deps))
	for id := range deps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// encodeBinaryManifest writes the binary manifest layout documented for
// GET /manifest-bin:
//
//	struct hdr  { u32 crc; i32 n_apps; i32 n_depots; i32 n_keys; }
//	struct app  { u64 pics_access_token; i32 name_len; i32 n_depots; }
//	app[n_apps]
//	u32 depot_ids[n_depots]   // concatenated per app, in app order
//	struct key  { i32 depot_id; u8 key[32]; }
//	key[n_keys]
//	char names[...]           // concatenated per app, not null-terminated
//
// crc is CRC-32 (zlib/IEEE polynomial) over every byte from offset 4 to
// the end of the buffer.
func encodeBinaryManifest(apps []binAppRecord, depotKeys map[uint32]DepotKey) []byte {
	nDepots := 0
	for _, app := range apps {
		nDepots += len(app.depots)
	}

	depotIDKeys := make([]uint32, 0, len(depotKeys))
	for depotID := range depotKeys {
		depotIDKeys = append(depotIDKeys, depotID)
	}
	sort.Slice(depotIDKeys, func(i, j int) bool { return depotIDKeys[i] < depotIDKeys[j] })

	body := make([]byte, 0, 12+16*len(apps)+4*nDepots+36*len(depotIDKeys))
	body = binary.LittleEndian.AppendUint32(body, uint32(len(apps)))
	body = binary.LittleEndian.AppendUint32(body, uint32(nDepots))
	body = binary.LittleEndian.AppendUint32(body, uint32(len(depotIDKeys)))

	for _, app := range apps {
		body = binary.LittleEndian.AppendUint64(body, app.accessToken)
		body = binary.LittleEndian.AppendUint32(body, uint32(len(app.name)))
		body = binary.LittleEndian.AppendUint32(body, uint32(len(app.depots)))
	}
	for _, app := range apps {
		for _, depotID := range app.depots {
			body = binary.LittleEndian.AppendUint32(body, depotID)
		}
	}
	for _, depotID := range depotIDKeys {
		key := depotKeys[depotID]
		body = binary.LittleEndian.AppendUint32(body, depotID)
		body = append(body, key[:]...)
	}
	for _, app := range apps {
		body = append(body, app.name...)
	}

	out := make([]byte, 4+len(body))
	copy(out[4:], body)
	crc := crc32.ChecksumIEEE(out[4:])
	binary.LittleEndian.PutUint32(out[0:4], crc)
	return out
}

// VerifyBinaryManifestCRC recomputes and checks the CRC32 header of a
// binary manifest buffer, matching the encoder above. Exposed for clients
// and tests that want to validate a buffer round-trip.
func VerifyBinaryManifestCRC(buf []byte) bool {
	if len(buf) < 4 {
		return false
	}
	want := binary.LittleEndian.Uint32(buf[0:4])
	got := crc32.ChecksumIEEE(buf[4:])
	return want == got
}

// DecodeBinaryManifest parses a buffer produced by encodeBinaryManifest,
// used by tests that verify the binary view round-trips against the JSON
// view's app/depot/key content.
func DecodeBinaryManifest(buf []byte) (apps []struct {
	AccessToken uint64
	NameLen     int
	Depots      []uint32
	Name        string
}, keys map[uint32]DepotKey, ok bool) {
	if !VerifyBinaryManifestCRC(buf) {
		return nil, nil, false
	}
	p := buf[4:]
	if len(p) < 12 {
		return nil, nil, false
	}
	nApps := int(binary.LittleEndian.Uint32(p[0:4]))
	nDepots := int(binary.LittleEndian.Uint32(p[4:8]))
	nKeys := int(binary.LittleEndian.Uint32(p[8:12]))
	off := 12

	type hdrApp struct {
		accessToken uint64
		nameLen     int
		nDepots     int
	}
	hdrs := make([]hdrApp, 0, nApps)
	for i := 0; i < nApps; i++ {
		if off+16 > len(p) {
			return nil, nil, false
		}
		at := binary.LittleEndian.Uint64(p[off : off+8])
		nl := int(binary.LittleEndian.Uint32(p[off+8 : off+12]))
		nd := int(binary.LittleEndian.Uint32(p[off+12 : off+16]))
		hdrs = append(hdrs, hdrApp{at, nl, nd})
		off += 16
	}

	allDepots := make([]uint32, 0, nDepots)
	for i := 0; i < nDepots; i++ {
		if off+4 > len(p) {
			return nil, nil, false
		}
		allDepots = append(allDepots, binary.LittleEndian.Uint32(p[off:off+4]))
		off += 4
	}

	keys = make(map[uint32]DepotKey, nKeys)
	for i := 0; i < nKeys; i++ {
		if off+36 > len(p) {
			return nil, nil, false
		}
		depotID := binary.LittleEndian.Uint32(p[off : off+4])
		var k DepotKey
		copy(k[:], p[off+4:off+36])
		keys[depotID] = k
		off += 36
	}

	depotCursor := 0
	for _, h := range hdrs {
		if off+h.nameLen > len(p) {
			return nil, nil, false
		}
		name := string(p[off : off+h.nameLen])
		off += h.nameLen
		depots := allDepots[depotCursor : depotCursor+h.nDepots]
		depotCursor += h.nDepots
		apps = append(apps, struct {
			AccessToken uint64
			NameLen     int
			Depots      []uint32
			Name        string
		}{h.accessToken, h.nameLen, depots, name})
	}
	return apps, keys, true
}
