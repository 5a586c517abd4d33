package handler

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/wadjakorntonsri/engsite/pkg/apperr"
	"github.com/wadjakorntonsri/engsite/pkg/config"
	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
	"github.com/wadjakorntonsri/engsite/pkg/ratelimit"
)

const userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// AuthHandler logs admins into the dashboard with Google and issues a JWT
// session cookie.
type AuthHandler struct {
	oauthConfig   *oauth2.Config
	jwtSecret     []byte
	dashboardURL  string
	allowedEmails []string
	isProduction  bool
	trustProxy    bool
	userInfoURL   string
	auditor       ports.Auditor
	classifier    *apperr.Classifier
	now           func() time.Time
}

type GoogleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

func NewAuthHandler(cfg *config.Config, auditor ports.Auditor, classifier *apperr.Classifier) *AuthHandler {
	return &AuthHandler{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
			},
			Endpoint: google.Endpoint,
		},
		jwtSecret:     []byte(cfg.JWTSecret),
		dashboardURL:  cfg.DashboardURL,
		allowedEmails: cfg.AllowedEmails,
		isProduction:  cfg.IsProduction(),
		trustProxy:    cfg.TrustProxy,
		userInfoURL:   userInfoURL,
		auditor:       auditor,
		classifier:    classifier,
		now:           time.Now,
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := h.generateStateOauthCookie(w)
	if err != nil {
		h.classifier.Respond(w, r, err, apperr.ShapeMessage)
		return
	}
	http.Redirect(w, r, h.oauthConfig.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	oauthState, err := r.Cookie("oauthstate")
	if err != nil || r.FormValue("state") != oauthState.Value {
		h.event(r, "login_failed", "", map[string]any{"reason": "state mismatch"})
		h.classifier.Respond(w, r, apperr.Unauthorized(errors.New("invalid oauth state")), apperr.ShapeMessage)
		return
	}

	user, err := h.fetchUser(r.Context(), r.FormValue("code"))
	if err != nil {
		h.event(r, "login_failed", "", map[string]any{"reason": "exchange"})
		h.classifier.Respond(w, r, err, apperr.ShapeMessage)
		return
	}

	if !user.VerifiedEmail || (len(h.allowedEmails) > 0 && !slices.Contains(h.allowedEmails, user.Email)) {
		h.event(r, "login_denied", user.Email, nil)
		h.classifier.Respond(w, r, apperr.Forbidden(errors.New("email not allowed")), apperr.ShapeMessage)
		return
	}

	expirationTime := h.now().Add(24 * time.Hour)
	claims := &jwt.RegisteredClaims{
		Subject:   user.Email,
		IssuedAt:  jwt.NewNumericDate(h.now()),
		ExpiresAt: jwt.NewNumericDate(expirationTime),
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
	if err != nil {
		h.classifier.Respond(w, r, fmt.Errorf("sign jwt: %w", err), apperr.ShapeMessage)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    tokenString,
		Expires:  expirationTime,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
	h.event(r, "login_succeeded", user.Email, nil)
	http.Redirect(w, r, h.dashboardURL, http.StatusTemporaryRedirect)
}

func (h *AuthHandler) fetchUser(ctx context.Context, code string) (*GoogleUser, error) {
	token, err := h.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, apperr.Unauthorized(fmt.Errorf("code exchange: %w", err))
	}

	resp, err := h.oauthConfig.Client(ctx, token).Get(h.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("get user info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info returned %d", resp.StatusCode)
	}

	var user GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}
	return &user, nil
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    "",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

func (h *AuthHandler) generateStateOauthCookie(w http.ResponseWriter) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("oauth state: %w", err)
	}
	state := base64.URLEncoding.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     "oauthstate",
		Value:    state,
		Expires:  h.now().Add(20 * time.Minute),
		Path:     "/",
		HttpOnly: true,
		Secure:   h.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
	return state, nil
}

func (h *AuthHandler) event(r *http.Request, name, user string, data map[string]any) {
	h.auditor.Event(r.Context(), domain.AuditEvent{
		Timestamp: h.now().UTC(),
		Event:     name,
		UserID:    user,
		IPAddress: ratelimit.ClientIP(r, h.trustProxy),
		Data:      data,
	})
}
