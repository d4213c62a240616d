// Package builder implements the PICS callback pipeline that turns one
// account's license list into admitted depots in the catalog store, and
// surfaces the set of depot keys still missing so internal/account can
// harvest them.
package builder

import (
	"context"
	"strconv"

	"github.com/teknology-hub/tek-s3/internal/catalog"
	"github.com/teknology-hub/tek-s3/internal/kv"
	"github.com/teknology-hub/tek-s3/internal/steamcm"
	"github.com/teknology-hub/tek-s3/pkg/logger"
)

// PackageInfoCache is satisfied by pkg/picscache; kept as a narrow
// interface here so builder tests don't need a real Pebble instance.
type PackageInfoCache interface {
	GetPackageInfo(packageID uint32) ([]byte, bool)
	SetPackageInfo(packageID uint32, data []byte) error
	GetAppInfo(appID uint32) ([]byte, bool)
	SetAppInfo(appID uint32, data []byte) error
}

type Builder struct {
	store *catalog.Store
	cache PackageInfoCache // may be nil
}

func New(store *catalog.Store, cache PackageInfoCache) *Builder {
	return &Builder{store: store, cache: cache}
}

// IngestLicenses runs the full license -> packages -> access-tokens ->
// app-info pipeline for one account and returns the depot IDs it admitted
// that still lack a key in the store. The list is neither sorted nor
// deduplicated; internal/account's harvestKeys does both before requesting
// keys.
func (b *Builder) IngestLicenses(ctx context.Context, client steamcm.Client, acc *catalog.Account, licenses []steamcm.License) ([]uint32, error) {
	if len(licenses) == 0 {
		return nil, nil
	}
	packageIDs := make(map[uint32]uint64, len(licenses))
	for _, l := range licenses {
		packageIDs[l.PackageID] = l.AccessToken
	}

	var packages []steamcm.PackageInfo
	fetchIDs := map[uint32]uint64{}
	for id, token := range packageIDs {
		if b.cache == nil {
			fetchIDs[id] = token
			continue
		}
		if data, ok := b.cache.GetPackageInfo(id); ok {
			packages = append(packages, steamcm.PackageInfo{PackageID: id, Data: data})
			continue
		}
		fetchIDs[id] = token
	}
	if len(fetchIDs) > 0 {
		fetched, err := client.GetPackageInfo(ctx, fetchIDs)
		if err != nil {
			return nil, err
		}
		for _, pkg := range fetched {
			if b.cache != nil {
				if err := b.cache.SetPackageInfo(pkg.PackageID, pkg.Data); err != nil {
					logger.Warn("pics_cache_write_failed", "kind", "package", "id", pkg.PackageID, "err", err)
				}
			}
		}
		packages = append(packages, fetched...)
	}

	candidateDepots := map[uint32]struct{}{}
	appIDs := map[uint32]struct{}{}
	for _, pkg := range packages {
		node := kv.ParseBinary(pkg.Data)
		if depotids, ok := node.Child("depotids"); ok {
			for _, v := range depotids.Ints {
				candidateDepots[uint32(v)] = struct{}{}
			}
		}
		if appids, ok := node.Child("appids"); ok {
			for _, v := range appids.Ints {
				appIDs[uint32(v)] = struct{}{}
				candidateDepots[uint32(v)] = struct{}{} // an app ID may also denote a depot
			}
		}
	}
	for depotID := range candidateDepots {
		acc.OwnedDepots[depotID] = struct{}{}
	}

	if len(appIDs) == 0 {
		return nil, nil
	}
	appIDList := make([]uint32, 0, len(appIDs))
	for id := range appIDs {
		appIDList = append(appIDList, id)
	}

	tokens, err := client.GetAppAccessTokens(ctx, appIDList)
	if err != nil {
		return nil, err
	}
	appTokens := make(map[uint32]uint64, len(tokens))
	for _, t := range tokens {
		if t.Denied {
			appTokens[t.AppID] = 0
			continue
		}
		appTokens[t.AppID] = t.Token
	}

	var appInfos []steamcm.AppInfo
	fetchTokens := map[uint32]uint64{}
	for id, token := range appTokens {
		if b.cache == nil {
			fetchTokens[id] = token
			continue
		}
		if data, ok := b.cache.GetAppInfo(id); ok {
			appInfos = append(appInfos, steamcm.AppInfo{AppID: id, Data: data})
			continue
		}
		fetchTokens[id] = token
	}
	if len(fetchTokens) > 0 {
		fetched, err := client.GetAppInfo(ctx, fetchTokens)
		if err != nil {
			return nil, err
		}
		for _, info := range fetched {
			if b.cache != nil {
				if err := b.cache.SetAppInfo(info.AppID, info.Data); err != nil {
					logger.Warn("pics_cache_write_failed", "kind", "app", "id", info.AppID, "err", err)
				}
			}
		}
		appInfos = append(appInfos, fetched...)
	}

	var missing []uint32
	for _, info := range appInfos {
		admitted := b.ingestAppInfo(info, appTokens[info.AppID], acc, candidateDepots)
		for _, depotID := range admitted {
			if _, ok := b.store.DepotKeys[depotID]; !ok {
				missing = append(missing, depotID)
			}
		}
	}
	return missing, nil
}

// ingestAppInfo parses one app's text VDF, admits its owned/free depots,
// and records the app + admitted depots in the store. Returns the depot
// IDs admitted for this app.
func (b *Builder) ingestAppInfo(info steamcm.AppInfo, accessToken uint64, acc *catalog.Account, candidates map[uint32]struct{}) []uint32 {
	node := kv.ParseBinary(info.Data)
	// App info arrives as text VDF; fall back to the text decoder when
	// the binary one finds nothing useful.
	if len(node.Children) == 0 && len(node.Strings) == 0 {
		node = kv.ParseText(info.Data)
	}
	// The app's keys sit inside a top-level "appinfo" block.
	if inner, ok := node.Child("appinfo"); ok {
		node = inner
	}

	name, _ := node.PathString("common", "name")

	var admitted []uint32
	if depots, ok := node.Child("depots"); ok {
		for key, child := range depots.Children {
			depotID, err := strconv.ParseUint(key, 10, 32)
			if err != nil {
				continue
			}
			if _, ok := child.Child("manifests"); !ok {
				continue
			}
			id := uint32(depotID)
			if _, isCandidate := candidates[id]; !isCandidate {
				continue
			}
			admitted = append(admitted, id)
		}
		if wsv, ok := depots.String("workshopdepot"); ok {
			if id, err := strconv.ParseUint(wsv, 10, 32); err == nil {
				admitted = append(admitted, uint32(id))
			}
		}
	}

	if len(admitted) == 0 {
		logger.Debug("app_skipped_no_depots", "app_id", info.AppID, "name", name)
		return nil
	}

	b.store.UpsertApp(info.AppID, name, accessToken)
	for _, depotID := range admitted {
		b.store.AssignDepotToAccount(info.AppID, depotID, acc.SteamID)
	}
	return admitted
}
