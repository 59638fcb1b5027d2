package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"authsvc/internal/config"
	"authsvc/internal/models"
	"authsvc/internal/oauthstate"
	"authsvc/internal/store"
	"authsvc/internal/token"
	"authsvc/internal/utils"
)

const googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Identity is what the OAuth provider asserts about the logged-in account.
type Identity struct {
	Email string `json:"email"`
}

// Exchanger swaps an authorization code for the provider's identity assertion.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (Identity, error)
}

type googleExchanger struct {
	cfg *oauth2.Config
}

func (g *googleExchanger) Exchange(ctx context.Context, code string) (Identity, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("code exchange: %w", err)
	}
	resp, err := g.cfg.Client(ctx, tok).Get(googleUserinfoURL)
	if err != nil {
		return Identity{}, fmt.Errorf("userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("userinfo: status %d", resp.StatusCode)
	}
	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("userinfo decode: %w", err)
	}
	if id.Email == "" {
		return Identity{}, errors.New("no identity info returned")
	}
	return id, nil
}

type GoogleController struct {
	oauth     *oauth2.Config
	exchanger Exchanger
	states    oauthstate.Store
	store     store.UserStore
	tokens    *token.Manager
	log       *logrus.Logger

	cookieSecure bool
}

// NewGoogleController builds the injected OAuth client configuration. No
// package-level registration; everything the handlers need lives here.
func NewGoogleController(st store.UserStore, states oauthstate.Store, tokens *token.Manager, log *logrus.Logger, cfg *config.Config) *GoogleController {
	oc := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURI,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
	return &GoogleController{
		oauth:        oc,
		exchanger:    &googleExchanger{cfg: oc},
		states:       states,
		store:        st,
		tokens:       tokens,
		log:          log,
		cookieSecure: cfg.CookieSecure,
	}
}

// Login starts the authorization-code flow. The caller's `next` target is
// parked server-side under a random state value, so nothing user-controlled
// rides through the provider round-trip.
func (g *GoogleController) Login(c *gin.Context) {
	next := c.DefaultQuery("next", "/")
	state, err := g.states.Create(c.Request.Context(), next)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start login"})
		return
	}
	authURL := g.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
	c.Redirect(http.StatusFound, authURL)
}

// Callback handles the provider redirect: validate state, exchange the code,
// ensure a pre-verified Google user exists, then issue the same session
// cookie as local login and send the user to their original target.
func (g *GoogleController) Callback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		g.log.WithField("oauth_error", errParam).Warn("provider reported error")
		c.JSON(http.StatusBadRequest, gin.H{"error": "authentication failed"})
		return
	}
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authentication failed"})
		return
	}

	next, err := g.states.Consume(c.Request.Context(), state)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authentication failed"})
		return
	}

	id, err := g.exchanger.Exchange(c.Request.Context(), code)
	if err != nil {
		g.log.WithError(err).Warn("oauth exchange failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "authentication failed"})
		return
	}
	email := strings.ToLower(id.Email)

	user, err := g.store.ByEmail(c.Request.Context(), email)
	if errors.Is(err, store.ErrUserNotFound) {
		user, err = g.createGoogleUser(c.Request.Context(), email)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user"})
		return
	}

	tokenStr, err := g.tokens.Issue(user.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create token"})
		return
	}
	setAuthCookie(c, tokenStr, g.tokens.TTL(), g.cookieSecure)
	c.Redirect(http.StatusFound, next)
}

func (g *GoogleController) createGoogleUser(ctx context.Context, email string) (*models.User, error) {
	hash, err := utils.PlaceholderPassword()
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		IsVerified:   true,
		AuthProvider: models.ProviderGoogle,
	}
	err = g.store.Create(ctx, user)
	if errors.Is(err, store.ErrDuplicateEmail) {
		// Lost a race with a concurrent callback for the same account.
		return g.store.ByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Logout mirrors local logout and bounces to the root page.
func (g *GoogleController) Logout(c *gin.Context) {
	clearAuthCookie(c, g.cookieSecure)
	c.Redirect(http.StatusFound, "/")
}
