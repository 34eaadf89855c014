package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/savecair-bridge/internal/auth"
)

const (
	// ticketTTL is how long a WebSocket ticket stays redeemable.
	ticketTTL = 60 * time.Second

	// ticketBytes is the number of random bytes in a ticket.
	ticketBytes = 32
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// ticketStore holds single-use WebSocket tickets.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]time.Time)}
}

// issue creates a ticket valid for ticketTTL.
func (ts *ticketStore) issue() (string, error) {
	b := make([]byte, ticketBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	ticket := hex.EncodeToString(b)

	ts.mu.Lock()
	ts.tickets[ticket] = time.Now().Add(ticketTTL)
	ts.mu.Unlock()
	return ticket, nil
}

// consume reports whether ticket is valid and removes it.
func (ts *ticketStore) consume(ticket string) bool {
	if ticket == "" {
		return false
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()

	expiresAt, ok := ts.tickets[ticket]
	if !ok {
		return false
	}
	delete(ts.tickets, ticket)
	return time.Now().Before(expiresAt)
}

// cleanExpired drops tickets that were never redeemed.
func (ts *ticketStore) cleanExpired(now time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for ticket, expiresAt := range ts.tickets {
		if now.After(expiresAt) {
			delete(ts.tickets, ticket)
		}
	}
}

func (ts *ticketStore) pending() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.tickets)
}

// cleanTicketsLoop runs cleanExpired every ticketTTL until ctx is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tickets.cleanExpired(now)
		}
	}
}

// handleLogin checks the operator credentials and returns an access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	admin := s.security.Admin
	ok, err := auth.VerifyPassword(req.Password, admin.PasswordHash)
	if err != nil {
		s.logger.Error("admin password hash unusable", "error", err)
		writeInternalError(w, "authentication unavailable")
		return
	}
	if !ok || req.Username != admin.Username {
		s.logger.Warn("login rejected", "username", req.Username, "remote", r.RemoteAddr)
		writeUnauthorized(w, "invalid credentials")
		return
	}

	token, expires, err := auth.GenerateAccessToken(admin.Username, s.security.JWT.Secret, s.security.JWT.GetAccessTokenTTL())
	if err != nil {
		s.logger.Error("issuing access token failed", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(expires).Round(time.Second).Seconds()),
	})
}

// handleWSTicket issues a single-use ticket for the WebSocket endpoint, so
// browsers never put the access token in a URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, _ *http.Request) {
	ticket, err := s.tickets.issue()
	if err != nil {
		writeInternalError(w, "failed to generate ticket")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// authMiddleware requires a valid "Authorization: Bearer" access token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			writeUnauthorized(w, "bearer token required")
			return
		}

		claims, err := auth.ParseToken(token, s.security.JWT.Secret)
		if err != nil {
			s.logger.Debug("access token rejected", "error", err, "path", r.URL.Path)
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestSubject returns the token subject set by authMiddleware.
func requestSubject(r *http.Request) string {
	claims, ok := r.Context().Value(ctxKeyClaims).(*auth.Claims)
	if !ok {
		return ""
	}
	return claims.Subject
}
