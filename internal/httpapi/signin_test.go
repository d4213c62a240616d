package httpapi

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/teknology-hub/tek-s3/internal/account"
	"github.com/teknology-hub/tek-s3/internal/builder"
	"github.com/teknology-hub/tek-s3/internal/catalog"
	"github.com/teknology-hub/tek-s3/internal/steamcm"
	"github.com/teknology-hub/tek-s3/pkg/shutdown"
)

// newTestServer wires a Server against an in-memory listener so /signin can
// be driven by a real websocket client without binding a real socket.
func newTestServer(t *testing.T, loginDialer steamcm.LoginDialer) (*Server, *fasthttputil.InmemoryListener) {
	t.Helper()
	store := catalog.NewStore()
	b := builder.New(store, nil)
	engine := account.NewEngine(store, &steamcm.FakeDialer{Client: steamcm.NewFakeClient()}, b)

	s := New(store, nil, engine, loginDialer, nil, shutdown.NewConnWaiter())
	ln := fasthttputil.NewInmemoryListener()

	go s.fasthttp.Serve(ln)
	t.Cleanup(func() { ln.Close() })
	return s, ln
}

func dialSignIn(t *testing.T, ln *fasthttputil.InmemoryListener) *websocket.Conn {
	t.Helper()
	d := websocket.Dialer{
		NetDial: func(network, addr string) (net.Conn, error) { return ln.Dial() },
	}
	conn, _, err := d.Dial("ws://test/signin", nil)
	if err != nil {
		t.Fatalf("dial /signin: %v", err)
	}
	return conn
}

func TestSignInCredentialsSuccessMergesAccount(t *testing.T) {
	session := steamcm.NewFakeLoginSession(steamcm.LoginEvent{
		Kind:  steamcm.LoginCompleted,
		Token: "new-token",
		Info:  steamcm.TokenInfo{SteamID: 42, Renewable: true},
	})
	s, ln := newTestServer(t, &steamcm.FakeLoginDialer{Session: session})
	conn := dialSignIn(t, ln)
	defer conn.Close()

	req, _ := json.Marshal(clientMsg{Type: "credentials", AccountName: "user", Password: "pw"})
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		t.Fatalf("write credentials: %v", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var resp serverMsg
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Renewable == nil || !*resp.Renewable {
		t.Fatalf("expected renewable=true response, got %+v", resp)
	}
	if resp.Error != nil {
		t.Fatalf("expected no error, got %+v", resp.Error)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := s.store.Account(42); ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected the new account to be merged into the store after a completed sign-in")
}

func TestSignInAuthErrorIsReportedAndConnectionCloses(t *testing.T) {
	session := steamcm.NewFakeLoginSession(steamcm.LoginEvent{
		Kind: steamcm.LoginCompleted,
		Err:  &steamcm.AuthError{Type: 1, Primary: 5},
	})
	_, ln := newTestServer(t, &steamcm.FakeLoginDialer{Session: session})
	conn := dialSignIn(t, ln)
	defer conn.Close()

	req, _ := json.Marshal(clientMsg{Type: "qr"})
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		t.Fatalf("write qr: %v", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	var resp serverMsg
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error == nil || resp.Error.Primary != 5 {
		t.Fatalf("expected the auth error to round-trip, got %+v", resp)
	}

	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to close after a terminal auth error")
	}
}

func TestSignInConfirmationRoundTrip(t *testing.T) {
	session := steamcm.NewFakeLoginSession(
		steamcm.LoginEvent{Kind: steamcm.LoginAwaitingConfirmation, Confirmations: []string{"guard_code"}},
		steamcm.LoginEvent{Kind: steamcm.LoginCompleted, Token: "tok", Info: steamcm.TokenInfo{SteamID: 7}},
	)
	_, ln := newTestServer(t, &steamcm.FakeLoginDialer{Session: session})
	conn := dialSignIn(t, ln)
	defer conn.Close()

	req, _ := json.Marshal(clientMsg{Type: "credentials", AccountName: "user", Password: "pw"})
	conn.WriteMessage(websocket.TextMessage, req)

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read confirmation prompt: %v", err)
	}
	var resp serverMsg
	json.Unmarshal(data, &resp)
	if len(resp.Confirmations) != 1 || resp.Confirmations[0] != "guard_code" {
		t.Fatalf("expected a guard_code confirmation prompt, got %+v", resp)
	}

	code, _ := json.Marshal(clientMsg{Type: "guard_code", Code: "123456"})
	if err := conn.WriteMessage(websocket.TextMessage, code); err != nil {
		t.Fatalf("write guard_code: %v", err)
	}

	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read completion: %v", err)
	}
	json.Unmarshal(data, &resp)
	if resp.Renewable == nil {
		t.Fatalf("expected a terminal renewable response, got %+v", resp)
	}
}

func TestSignInUnexpectedMessageClosesConnection(t *testing.T) {
	session := steamcm.NewFakeLoginSession(steamcm.LoginEvent{Kind: steamcm.LoginCompleted, Token: "t", Info: steamcm.TokenInfo{SteamID: 1}})
	_, ln := newTestServer(t, &steamcm.FakeLoginDialer{Session: session})
	conn := dialSignIn(t, ln)
	defer conn.Close()

	bogus, _ := json.Marshal(clientMsg{Type: "guard_code", Code: "000000"})
	if err := conn.WriteMessage(websocket.TextMessage, bogus); err != nil {
		t.Fatalf("write bogus message: %v", err)
	}

	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to close on an out-of-order message in AwaitingInit")
	}
}
