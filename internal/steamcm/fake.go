package steamcm

import (
	"context"
	"sync"
)

// FakeClient is an in-memory Client used by internal/account and
// internal/builder tests. Every response is scripted ahead of time so
// tests can assert exact state-machine transitions without a real CM
// connection.
type FakeClient struct {
	mu sync.Mutex

	SignInFunc             func(ctx context.Context, token string) (TokenInfo, error)
	RenewFunc              func(ctx context.Context, token string) (string, TokenInfo, error)
	LicensesFunc           func(ctx context.Context) ([]License, error)
	PackageInfoFunc        func(ctx context.Context, packageIDs map[uint32]uint64) ([]PackageInfo, error)
	AppAccessTokensFunc    func(ctx context.Context, appIDs []uint32) ([]AppAccessToken, error)
	AppInfoFunc            func(ctx context.Context, appIDs map[uint32]uint64) ([]AppInfo, error)
	DepotKeysFunc          func(ctx context.Context, depotIDs []uint32) ([]DepotKeyResult, error)
	MRCFunc                func(ctx context.Context, appID, depotID uint32, manifestID uint64) (uint64, error)

	connected  bool
	disconnect int
}

func NewFakeClient() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *FakeClient) SignIn(ctx context.Context, token string) (TokenInfo, error) {
	if f.SignInFunc != nil {
		return f.SignInFunc(ctx, token)
	}
	return TokenInfo{}, nil
}

func (f *FakeClient) RenewToken(ctx context.Context, token string) (string, TokenInfo, error) {
	if f.RenewFunc != nil {
		return f.RenewFunc(ctx, token)
	}
	return token, TokenInfo{}, nil
}

func (f *FakeClient) GetLicenses(ctx context.Context) ([]License, error) {
	if f.LicensesFunc != nil {
		return f.LicensesFunc(ctx)
	}
	return nil, nil
}

func (f *FakeClient) GetPackageInfo(ctx context.Context, packageIDs map[uint32]uint64) ([]PackageInfo, error) {
	if f.PackageInfoFunc != nil {
		return f.PackageInfoFunc(ctx, packageIDs)
	}
	return nil, nil
}

func (f *FakeClient) GetAppAccessTokens(ctx context.Context, appIDs []uint32) ([]AppAccessToken, error) {
	if f.AppAccessTokensFunc != nil {
		return f.AppAccessTokensFunc(ctx, appIDs)
	}
	return nil, nil
}

func (f *FakeClient) GetAppInfo(ctx context.Context, appIDs map[uint32]uint64) ([]AppInfo, error) {
	if f.AppInfoFunc != nil {
		return f.AppInfoFunc(ctx, appIDs)
	}
	return nil, nil
}

func (f *FakeClient) GetDepotKeys(ctx context.Context, depotIDs []uint32) ([]DepotKeyResult, error) {
	if f.DepotKeysFunc != nil {
		return f.DepotKeysFunc(ctx, depotIDs)
	}
	return nil, nil
}

func (f *FakeClient) GetManifestRequestCode(ctx context.Context, appID, depotID uint32, manifestID uint64) (uint64, error) {
	if f.MRCFunc != nil {
		return f.MRCFunc(ctx, appID, depotID, manifestID)
	}
	return 0, nil
}

func (f *FakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnect++
}

func (f *FakeClient) DisconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnect
}

// FakeDialer hands out a single shared FakeClient, or a factory-produced
// one per account when Factory is set.
type FakeDialer struct {
	Client  *FakeClient
	Factory func(steamID uint64) *FakeClient
}

func (d *FakeDialer) Dial(steamID uint64) Client {
	if d.Factory != nil {
		return d.Factory(steamID)
	}
	return d.Client
}

// FakeLoginSession is a scriptable LoginSession for internal/httpapi tests.
// Script is a queue of events to emit, one per Start*/SubmitCode call;
// calls past the end of Script emit LoginDisconnected.
type FakeLoginSession struct {
	Script []LoginEvent

	mu     sync.Mutex
	events chan LoginEvent
	closed bool
	pos    int
}

func NewFakeLoginSession(script ...LoginEvent) *FakeLoginSession {
	return &FakeLoginSession{Script: script, events: make(chan LoginEvent, 1)}
}

func (f *FakeLoginSession) Events() <-chan LoginEvent { return f.events }

func (f *FakeLoginSession) StartCredentials(ctx context.Context, accountName, password string) error {
	return f.emitNext()
}

func (f *FakeLoginSession) StartQR(ctx context.Context) error {
	return f.emitNext()
}

func (f *FakeLoginSession) SubmitCode(ctx context.Context, kind, code string) error {
	return f.emitNext()
}

func (f *FakeLoginSession) emitNext() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	var ev LoginEvent
	if f.pos < len(f.Script) {
		ev = f.Script[f.pos]
		f.pos++
	} else {
		ev = LoginEvent{Kind: LoginDisconnected}
	}
	f.events <- ev
	if ev.Kind == LoginCompleted || ev.Kind == LoginDisconnected {
		close(f.events)
		f.closed = true
	}
	return nil
}

func (f *FakeLoginSession) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		close(f.events)
		f.closed = true
	}
}

// FakeLoginDialer hands out a single shared FakeLoginSession, or a
// factory-produced one per call when Factory is set.
type FakeLoginDialer struct {
	Session *FakeLoginSession
	Factory func() *FakeLoginSession
}

func (d *FakeLoginDialer) NewLoginSession() LoginSession {
	if d.Factory != nil {
		return d.Factory()
	}
	return d.Session
}

// FakeTokenParser is a scriptable ParseToken-style primitive for tests:
// a token absent from Tokens parses as invalid, the same as a malformed
// token would against the real decoder.
type FakeTokenParser struct {
	Tokens map[string]TokenInfo
}

func (p *FakeTokenParser) Parse(token string) (TokenInfo, bool) {
	info, ok := p.Tokens[token]
	return info, ok
}
