// auth.go
package main

import (
	"context"
	"crypto/rand"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"rolewarden/common"
	"rolewarden/middleware"
)

func init() {
	// scs stores session values through gob
	gob.Register(middleware.User{})
	gob.Register(map[string]interface{}{})
}

var (
	provider      *oidc.Provider
	verifier      *oidc.IDTokenVerifier
	oauthConf     *oauth2.Config
	sessionMgr    *scs.SessionManager
	authCfg       authConfig
	endSessionURL string // from provider discovery, empty when absent
)

// tokenVault keeps raw id_tokens server side, keyed by session id, so the
// browser never holds them. Logout consumes the entry for the id_token_hint.
type tokenVault struct {
	mu      sync.RWMutex
	entries map[string]tokenEntry
}

type tokenEntry struct {
	token string
	exp   time.Time
}

func (v *tokenVault) put(sid, token string, exp time.Time) {
	if sid == "" || token == "" {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.entries == nil {
		v.entries = make(map[string]tokenEntry)
	}
	v.entries[sid] = tokenEntry{token: token, exp: exp}
}

// take removes and returns the session's id_token, or "" when missing or
// already past its expiry.
func (v *tokenVault) take(sid string) string {
	if sid == "" {
		return ""
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	ent, ok := v.entries[sid]
	if !ok {
		return ""
	}
	delete(v.entries, sid)
	if time.Now().After(ent.exp) {
		return ""
	}
	return ent.token
}

func (v *tokenVault) sweep() {
	now := time.Now()
	v.mu.Lock()
	defer v.mu.Unlock()
	for sid, ent := range v.entries {
		if now.After(ent.exp) {
			delete(v.entries, sid)
		}
	}
}

var idTokens tokenVault

type authConfig struct {
	Issuer        string
	ClientID      string
	ClientSecret  string
	RedirectURL   string
	Scopes        []string
	AllowedDomain string
	SecureCookies bool
	CookieDomain  string

	// RP-initiated logout sends the browser here afterwards.
	PostLogoutRedirectURL string
}

const sessionLifetime = 7 * 24 * time.Hour

// secretEnv reads KEY directly (honoring the "@/path" shorthand) or the path
// named by KEY_FILE.
func secretEnv(key string) (string, error) {
	if raw := os.Getenv(key); raw != "" {
		return common.ReadSecretMaybeFile(raw)
	}
	if fp := strings.TrimSpace(os.Getenv(key + "_FILE")); fp != "" {
		b, err := os.ReadFile(fp)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return "", nil
}

// InitAuthFromEnv wires the OIDC client and the session manager. With
// ROLEWARDEN_AUTH_MODE=none only the session manager comes up and every
// request passes unauthenticated.
func InitAuthFromEnv() (*scs.SessionManager, error) {
	if middleware.AuthDisabled() {
		common.WarnLog("auth: ROLEWARDEN_AUTH_MODE=none, API is unauthenticated")
		sessionMgr = newSessionManager(false, "")
		common.SessionManager = sessionMgr
		return sessionMgr, nil
	}

	clientID, err := secretEnv("OIDC_CLIENT_ID")
	if err != nil {
		return nil, err
	}
	clientSecret, err := secretEnv("OIDC_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}

	redirect := common.Env("OIDC_REDIRECT_URL", "")

	// Unset ROLEWARDEN_COOKIE_SECURE follows the redirect URL scheme.
	secure := strings.HasPrefix(strings.ToLower(redirect), "https://")
	if s := strings.TrimSpace(common.Env("ROLEWARDEN_COOKIE_SECURE", "")); s != "" {
		secure = common.EnvBool("ROLEWARDEN_COOKIE_SECURE", "")
	}

	authCfg = authConfig{
		Issuer:                common.Env("OIDC_ISSUER_URL", ""),
		ClientID:              clientID,
		ClientSecret:          clientSecret,
		RedirectURL:           redirect,
		Scopes:                strings.Fields(common.Env("OIDC_SCOPES", "openid email profile")),
		AllowedDomain:         strings.ToLower(common.Env("OIDC_ALLOWED_EMAIL_DOMAIN", "")),
		SecureCookies:         secure,
		CookieDomain:          common.Env("ROLEWARDEN_COOKIE_DOMAIN", ""),
		PostLogoutRedirectURL: common.Env("OIDC_POST_LOGOUT_REDIRECT_URL", ""),
	}
	if authCfg.Issuer == "" || authCfg.ClientID == "" || authCfg.ClientSecret == "" || authCfg.RedirectURL == "" {
		return nil, errors.New("OIDC_ISSUER_URL, OIDC_CLIENT_ID{/_FILE}, OIDC_CLIENT_SECRET{/_FILE}, OIDC_REDIRECT_URL are required")
	}

	ctx := context.Background()
	provider, err = oidc.NewProvider(ctx, authCfg.Issuer)
	if err != nil {
		return nil, err
	}

	// end_session_endpoint is optional in discovery documents.
	var disc struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&disc); err == nil {
		endSessionURL = strings.TrimSpace(disc.EndSessionEndpoint)
	}
	if endSessionURL == "" {
		common.InfoLog("auth: provider exposes no end_session_endpoint, logout clears the local session only")
	}

	verifier = provider.Verifier(&oidc.Config{ClientID: authCfg.ClientID})
	oauthConf = &oauth2.Config{
		ClientID:     authCfg.ClientID,
		ClientSecret: authCfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  authCfg.RedirectURL,
		Scopes:       authCfg.Scopes,
	}

	sessionMgr = newSessionManager(authCfg.SecureCookies, authCfg.CookieDomain)
	common.SessionManager = sessionMgr

	go func() {
		t := time.NewTicker(10 * time.Minute)
		defer t.Stop()
		for range t.C {
			idTokens.sweep()
		}
	}()

	return sessionMgr, nil
}

func newSessionManager(secure bool, domain string) *scs.SessionManager {
	sm := scs.New()
	sm.Lifetime = sessionLifetime
	sm.Cookie.Name = common.SessionName
	sm.Cookie.HttpOnly = true
	sm.Cookie.Secure = secure
	sm.Cookie.Path = "/"
	sm.Cookie.Domain = domain
	if secure {
		sm.Cookie.SameSite = http.SameSiteNoneMode
	} else {
		sm.Cookie.SameSite = http.SameSiteLaxMode
	}
	return sm
}

func randomHex(n int) string {
	b := make([]byte, n/2)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// LoginHandler starts the authorization code flow. State and nonce live in
// the session until the callback consumes them.
func LoginHandler(w http.ResponseWriter, r *http.Request) {
	if oauthConf == nil || provider == nil {
		http.Error(w, "auth not initialized", http.StatusInternalServerError)
		return
	}

	state := randomHex(32)
	nonce := randomHex(32)
	sessionMgr.Put(r.Context(), "oauth_temp", map[string]interface{}{
		"state": state,
		"nonce": nonce,
	})

	http.Redirect(w, r, oauthConf.AuthCodeURL(state, oidc.Nonce(nonce)), http.StatusFound)
}

// CallbackHandler finishes the code flow: state check, code exchange,
// id_token verification, then the session write.
func CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if oauthConf == nil || verifier == nil {
		http.Error(w, "auth not initialized", http.StatusInternalServerError)
		return
	}

	flow, _ := sessionMgr.Pop(r.Context(), "oauth_temp").(map[string]interface{})
	state, _ := flow["state"].(string)
	nonce, _ := flow["nonce"].(string)

	if state == "" || r.URL.Query().Get("state") != state {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tok, err := oauthConf.Exchange(ctx, r.URL.Query().Get("code"))
	if err != nil {
		http.Error(w, "code exchange failed", http.StatusBadGateway)
		return
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok {
		http.Error(w, "no id_token", http.StatusBadGateway)
		return
	}
	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		http.Error(w, "id token verify failed", http.StatusUnauthorized)
		return
	}
	if idToken.Nonce != nonce {
		http.Error(w, "nonce mismatch", http.StatusBadRequest)
		return
	}

	var claims struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
		HD      string `json:"hd"`
		Domain  string `json:"domain"`
		Exp     int64  `json:"exp"`
	}
	if err := idToken.Claims(&claims); err != nil {
		http.Error(w, "claims parse failed", http.StatusBadGateway)
		return
	}

	if authCfg.AllowedDomain != "" {
		if strings.ToLower(claimsDomain(claims.Email, claims.HD, claims.Domain)) != authCfg.AllowedDomain {
			http.Error(w, "domain not allowed", http.StatusForbidden)
			return
		}
	}

	usr := middleware.User{
		Sub:   claims.Sub,
		Email: strings.ToLower(claims.Email),
		Name:  claims.Name,
		Pic:   claims.Picture,
	}

	// Only the minimal user record enters the session. The raw id_token is
	// parked server side under the session's sid.
	sid := sessionMgr.GetString(r.Context(), "sid")
	if strings.TrimSpace(sid) == "" {
		sid = randomHex(32)
		sessionMgr.Put(r.Context(), "sid", sid)
	}
	sessionMgr.Put(r.Context(), "user", usr)
	sessionMgr.Put(r.Context(), "exp", time.Now().Add(sessionLifetime).Unix())

	exp := time.Now().Add(sessionLifetime)
	if claims.Exp > 0 {
		if te := time.Unix(claims.Exp, 0); te.Before(exp) {
			exp = te
		}
	}
	idTokens.put(sid, rawIDToken, exp)

	common.InfoLog("auth: login ok sub=%s email=%s", usr.Sub, usr.Email)

	http.Redirect(w, r, "/", http.StatusFound)
}

// LogoutHandler destroys the session and, when the provider supports it,
// performs RP-initiated logout with the parked id_token.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	sid := sessionMgr.GetString(r.Context(), "sid")
	rawIDToken := idTokens.take(sid)

	if err := sessionMgr.Destroy(r.Context()); err != nil {
		common.ErrorLog("auth: failed to destroy session: %v", err)
	}

	if endSessionURL != "" && strings.TrimSpace(rawIDToken) != "" {
		u, _ := url.Parse(endSessionURL)
		q := u.Query()
		q.Set("id_token_hint", rawIDToken)
		if authCfg.PostLogoutRedirectURL != "" {
			q.Set("post_logout_redirect_uri", authCfg.PostLogoutRedirectURL)
		}
		// some providers also want client_id; extras are ignored elsewhere
		if authCfg.ClientID != "" {
			q.Set("client_id", authCfg.ClientID)
		}
		u.RawQuery = q.Encode()
		common.InfoLog("auth: rp-logout redirecting to provider end_session_endpoint")
		http.Redirect(w, r, u.String(), http.StatusSeeOther)
		return
	}

	if r.Header.Get("Accept") == "application/json" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// SessionHandler reports the logged-in user, or {"user":null} for anonymous
// callers. The UI polls this to decide whether to show the login screen.
func SessionHandler(w http.ResponseWriter, r *http.Request) {
	if middleware.AuthDisabled() {
		writeJSON(w, http.StatusOK, map[string]any{"user": middleware.User{Sub: "anonymous", Name: "anonymous"}})
		return
	}

	usr, ok := sessionMgr.Get(r.Context(), "user").(middleware.User)
	exp := sessionMgr.GetInt64(r.Context(), "exp")
	if !ok || exp == 0 || time.Now().Unix() > exp {
		writeJSON(w, http.StatusOK, map[string]any{"user": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": usr})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false) // keep & and friends readable in compose excerpts
	_ = enc.Encode(v)
}

func claimsDomain(email, hd, dom string) string {
	if hd != "" {
		return hd
	}
	if dom != "" {
		return dom
	}
	if i := strings.LastIndex(email, "@"); i > 0 {
		return email[i+1:]
	}
	return ""
}
