package httpapi

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fasthttp/websocket"
	"github.com/valyala/fasthttp"

	"github.com/teknology-hub/tek-s3/internal/catalog"
	"github.com/teknology-hub/tek-s3/internal/steamcm"
	"github.com/teknology-hub/tek-s3/pkg/logger"
)

// signinState is the /signin WebSocket's state machine:
// AwaitingInit -> AwaitingCmResponse -> (AwaitingConfirmation ->
// AwaitingCmResponse)* -> Done | Disconnected.
type signinState int

const (
	stateAwaitingInit signinState = iota
	stateAwaitingCmResponse
	stateAwaitingConfirmation
)

var errUnexpectedFrame = errors.New("httpapi: non-text or oversized signin frame")

// clientMsg is the union of every shape a client may send on /signin.
type clientMsg struct {
	Type        string `json:"type"`
	AccountName string `json:"account_name"`
	Password    string `json:"password"`
	Code        string `json:"code"`
}

type authErrorWire struct {
	Type      int  `json:"type"`
	Primary   int  `json:"primary"`
	Auxiliary *int `json:"auxiliary,omitempty"`
}

type serverMsg struct {
	URL           string         `json:"url,omitempty"`
	Confirmations []string       `json:"confirmations,omitempty"`
	Renewable     *bool          `json:"renewable,omitempty"`
	Expires       *uint64        `json:"expires,omitempty"`
	Error         *authErrorWire `json:"error,omitempty"`
}

func (s *Server) handleSignIn(ctx *fasthttp.RequestCtx) {
	err := s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		s.connWaiter.Add()
		defer s.connWaiter.Done()
		s.runSignIn(conn)
	})
	if err != nil {
		logger.Warn("signin_upgrade_failed", "error", err)
	}
}

// runSignIn drives one connection through the state machine until it
// reaches Done or Disconnected. A dedicated reader goroutine feeds frames
// into msgCh/errCh so the main loop can select between an incoming client
// message and a pending LoginSession event regardless of which arrives
// first.
func (s *Server) runSignIn(conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(maxSigninFrame)

	msgCh := make(chan []byte)
	errCh := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				select {
				case errCh <- err:
				case <-done:
				}
				return
			}
			if mt != websocket.TextMessage {
				select {
				case errCh <- errUnexpectedFrame:
				case <-done:
				}
				return
			}
			select {
			case msgCh <- data:
			case <-done:
				return
			}
		}
	}()

	session := s.loginDialer.NewLoginSession()
	defer session.Close()
	state := stateAwaitingInit

	for {
		select {
		case <-errCh:
			return
		case data := <-msgCh:
			if !s.handleSigninMessage(conn, session, &state, data) {
				return
			}
		case ev, ok := <-session.Events():
			if !ok {
				return
			}
			if state != stateAwaitingCmResponse {
				continue // stale event from a superseded session; ignore
			}
			if !s.handleLoginEvent(conn, ev, &state) {
				return
			}
		}
	}
}

func (s *Server) handleSigninMessage(conn *websocket.Conn, session steamcm.LoginSession, state *signinState, data []byte) bool {
	if *state != stateAwaitingInit && *state != stateAwaitingConfirmation {
		return false // unexpected input while awaiting a CM response: close (1)
	}
	var msg clientMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return false
	}

	ctx := context.Background()
	switch *state {
	case stateAwaitingInit:
		switch msg.Type {
		case "credentials":
			if msg.AccountName == "" || msg.Password == "" {
				return false
			}
			if err := session.StartCredentials(ctx, msg.AccountName, msg.Password); err != nil {
				return false
			}
		case "qr":
			if err := session.StartQR(ctx); err != nil {
				return false
			}
		default:
			return false
		}
	case stateAwaitingConfirmation:
		if msg.Type != "guard_code" && msg.Type != "email" {
			return false
		}
		if msg.Code == "" {
			return false
		}
		if err := session.SubmitCode(ctx, msg.Type, msg.Code); err != nil {
			return false
		}
	}
	*state = stateAwaitingCmResponse
	return true
}

func (s *Server) handleLoginEvent(conn *websocket.Conn, ev steamcm.LoginEvent, state *signinState) bool {
	switch ev.Kind {
	case steamcm.LoginNewURL:
		return writeJSON(conn, serverMsg{URL: ev.URL}) // state stays AwaitingCmResponse; QR keeps refreshing
	case steamcm.LoginAwaitingConfirmation:
		if !writeJSON(conn, serverMsg{Confirmations: ev.Confirmations}) {
			return false
		}
		*state = stateAwaitingConfirmation
		return true
	case steamcm.LoginCompleted:
		return s.completeLogin(conn, ev)
	case steamcm.LoginDisconnected:
		return false
	default:
		return false
	}
}

// completeLogin sends the terminal response and, on success, merges the
// new account into the fleet.
func (s *Server) completeLogin(conn *websocket.Conn, ev steamcm.LoginEvent) bool {
	if ev.Err != nil {
		writeJSON(conn, serverMsg{Error: wireAuthError(ev.Err)})
		return false
	}

	renewable := ev.Info.Renewable
	msg := serverMsg{Renewable: &renewable}
	if !renewable {
		exp := uint64(ev.Info.Expires)
		msg.Expires = &exp
	}
	writeJSON(conn, msg)

	acc := catalog.NewAccount(ev.Info.SteamID, ev.Token, catalog.TokenInfo{
		SteamID:   ev.Info.SteamID,
		Renewable: ev.Info.Renewable,
		Expires:   ev.Info.Expires,
	})
	s.engine.ReplaceOrAdd(context.Background(), acc)
	return false
}

func wireAuthError(e *steamcm.AuthError) *authErrorWire {
	w := &authErrorWire{Type: e.Type, Primary: e.Primary}
	if e.HasAux {
		aux := e.Auxiliary
		w.Auxiliary = &aux
	}
	return w
}

func writeJSON(conn *websocket.Conn, v serverMsg) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return conn.WriteMessage(websocket.TextMessage, data) == nil
}
