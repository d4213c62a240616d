// Package steamcm declares the boundary to the Steam Client-Messaging
// protocol library, treated as an external collaborator providing
// connect/sign-in/PICS/MRC/key primitives: a narrow interface the rest of
// the server drives, with a real backend and a test fake both satisfying
// it.
package steamcm

import (
	"context"
	"errors"
)

// Result subcodes. The engine's retry policy branches on these, not on
// opaque wrapped errors, so callers can switch on them directly.
var (
	ErrTimeout            = errors.New("steamcm: request timed out")
	ErrServiceUnavailable = errors.New("steamcm: service unavailable")
	ErrAccessDenied       = errors.New("steamcm: access denied")
	ErrInvalidSignature   = errors.New("steamcm: invalid signature")
	ErrAccessTokenDenied  = errors.New("steamcm: access token denied")
	ErrBlocked            = errors.New("steamcm: blocked") // pre-download depot, tolerated silently
	ErrMissingToken       = errors.New("steamcm: missing token")
)

// TokenInfo is the parsed form of an opaque auth token.
type TokenInfo struct {
	SteamID   uint64
	Renewable bool
	Expires   int64 // unix seconds
}

// License is one entry of a GetLicenses response.
type License struct {
	PackageID    uint32
	AccessToken  uint64
}

// PackageInfo is the binary-VDF payload for one package, still encoded;
// callers parse it with internal/kv.
type PackageInfo struct {
	PackageID uint32
	Data      []byte
}

// AppAccessToken pairs an app ID with its PICS access token; Denied is set
// instead of a token when Steam returns access_token_denied — the app is
// kept with token 0, not dropped.
type AppAccessToken struct {
	AppID  uint32
	Token  uint64
	Denied bool
}

// AppInfo is the text-VDF payload for one app, still encoded.
type AppInfo struct {
	AppID uint32
	Data  []byte
}

// DepotKeyResult is one resolved (or failed) depot key request.
type DepotKeyResult struct {
	DepotID uint32
	Key     [32]byte
	Err     error // nil on success; ErrBlocked is tolerated by callers
}

// Client is the per-account CM connection. Every method blocks until its
// single result arrives or ctx is cancelled or times out.
type Client interface {
	Connect(ctx context.Context) error
	SignIn(ctx context.Context, token string) (TokenInfo, error)
	RenewToken(ctx context.Context, token string) (newToken string, info TokenInfo, err error)
	GetLicenses(ctx context.Context) ([]License, error)
	GetPackageInfo(ctx context.Context, packageIDs map[uint32]uint64) ([]PackageInfo, error)
	GetAppAccessTokens(ctx context.Context, appIDs []uint32) ([]AppAccessToken, error)
	GetAppInfo(ctx context.Context, appIDs map[uint32]uint64) ([]AppInfo, error)
	GetDepotKeys(ctx context.Context, depotIDs []uint32) ([]DepotKeyResult, error)
	GetManifestRequestCode(ctx context.Context, appID, depotID uint32, manifestID uint64) (uint64, error)
	Disconnect()
}

// Dialer constructs a fresh Client for one account. Production code wires
// this to the real CM protocol library; tests wire it to NewFakeClient.
type Dialer interface {
	Dial(steamID uint64) Client
}

// AuthError is the terminal failure shape for a new-account login attempt:
// a type, a type-specific primary code, and an auxiliary code present for
// every type but "basic". It is distinct from the sentinel Err* values
// above because the /signin WebSocket protocol serializes the whole
// triple back to the client, not just a classification.
type AuthError struct {
	Type      int
	Primary   int
	Auxiliary int
	HasAux    bool
}

func (e *AuthError) Error() string {
	return "steamcm: auth error"
}

// LoginEventKind identifies which of the three shapes a LoginEvent carries.
type LoginEventKind int

const (
	// LoginNewURL carries a refreshed QR challenge URL.
	LoginNewURL LoginEventKind = iota
	// LoginAwaitingConfirmation carries the set of second-factor methods
	// the account can confirm with.
	LoginAwaitingConfirmation
	// LoginCompleted is terminal: either Token/Info are set, or Err is.
	LoginCompleted
	// LoginDisconnected is terminal with no payload: the CM connection
	// dropped before the flow completed, and the session closes silently.
	LoginDisconnected
)

// LoginEvent is one message emitted by a LoginSession over its lifetime.
type LoginEvent struct {
	Kind          LoginEventKind
	URL           string      // LoginNewURL
	Confirmations []string    // LoginAwaitingConfirmation: "device"/"guard_code"/"email"
	Token         string      // LoginCompleted, success
	Info          TokenInfo   // LoginCompleted, success
	Err           *AuthError  // LoginCompleted, failure
}

// LoginSession drives one new-account sign-in attempt, by credentials or
// QR, through to a token or failure. It is the boundary's analogue of
// Client for the part of the protocol the /signin WebSocket exposes — a
// separate interface because a login session has no SteamID to key a
// Client by until it succeeds.
type LoginSession interface {
	// Events returns the channel session events arrive on. It is closed
	// once the session reaches a terminal state (LoginCompleted or
	// LoginDisconnected).
	Events() <-chan LoginEvent
	StartCredentials(ctx context.Context, accountName, password string) error
	StartQR(ctx context.Context) error
	SubmitCode(ctx context.Context, kind, code string) error
	Close()
}

// LoginDialer constructs LoginSessions. Production code wires this to the
// real library; tests wire it to FakeLoginDialer.
type LoginDialer interface {
	NewLoginSession() LoginSession
}

// Backend is the production CM client factory. It is nil in this module,
// which treats the CM client as an external collaborator and only
// declares an interface for it. A build that links the real client sets
// Backend in its own init(); cmd/tek-s3 falls back to the fakes when it
// is unset, so the binary still starts (with every CM-backed request
// answered by a fake that returns empty results) rather than refusing to
// build at all.
var Backend func() (Dialer, LoginDialer)

// ParseToken decodes an opaque auth token into its embedded SteamID,
// renewability and expiry. Unlike every other primitive in this package
// it performs no network round-trip — it's the same kind of pure decode
// a JWT parser does on its claims — so callers use it to validate a
// token before ever dialing a connection for it, notably at state-file
// load time. ok is false for a malformed token (SteamID will be 0).
// Nil by default, for the same external-collaborator reason as Backend;
// a build linking the real CM library sets it in its own init().
var ParseToken func(token string) (TokenInfo, bool)
