package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"authsvc/internal/config"
	"authsvc/internal/middleware"
	"authsvc/internal/models"
	"authsvc/internal/store"
	"authsvc/internal/token"
	"authsvc/internal/utils"
)

type AuthController struct {
	store  store.UserStore
	email  utils.Sender
	tokens *token.Manager
	log    *logrus.Logger

	verifyTTL    time.Duration
	baseURL      string
	cookieSecure bool
}

func NewAuthController(st store.UserStore, email utils.Sender, tokens *token.Manager, log *logrus.Logger, cfg *config.Config) *AuthController {
	return &AuthController{
		store:        st,
		email:        email,
		tokens:       tokens,
		log:          log,
		verifyTTL:    time.Duration(cfg.VerifyTokenTTLMin) * time.Minute,
		baseURL:      cfg.BaseURL,
		cookieSecure: cfg.CookieSecure,
	}
}

type registerPayload struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register creates an unverified Local user and mails a verification link.
// Mail delivery is fire-and-forget: the response does not wait on it.
func (a *AuthController) Register(c *gin.Context) {
	var p registerPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p.Email = strings.ToLower(p.Email)

	hash, err := utils.HashPassword(p.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not hash password"})
		return
	}
	verifyTok, err := token.NewVerificationToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate token"})
		return
	}
	expiresAt := time.Now().Add(a.verifyTTL)

	user := models.User{
		Email:             p.Email,
		PasswordHash:      hash,
		IsVerified:        false,
		VerificationToken: &verifyTok,
		TokenExpiresAt:    &expiresAt,
		AuthProvider:      models.ProviderLocal,
	}
	// No pre-check: the unique index decides, so concurrent registers for the
	// same address still end with exactly one row.
	if err := a.store.Create(c.Request.Context(), &user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user"})
		return
	}

	link := fmt.Sprintf("%s/users/verify-email?token=%s", a.baseURL, verifyTok)
	body := fmt.Sprintf(`<html><body>
<h3>Welcome!</h3>
<p>Click the link below to verify your email:</p>
<a href=%q>Verify Email</a>
</body></html>`, link)
	go func() {
		if a.email == nil {
			return
		}
		if err := a.email.Send(user.Email, "Verify Your Email", body); err != nil {
			a.log.WithError(err).WithField("email", user.Email).Error("verification email failed")
		}
	}()

	c.JSON(http.StatusOK, gin.H{"message": "User registered. Check your email to verify your account."})
}

// VerifyEmail consumes a verification token. An expired token deletes the
// account outright; a consumed or unknown token is just invalid, so repeating
// a successful verification reports invalid rather than already-verified.
func (a *AuthController) VerifyEmail(c *gin.Context) {
	tok := c.Query("token")
	if tok == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token"})
		return
	}

	user, err := a.store.ByVerificationToken(c.Request.Context(), tok)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}

	if user.TokenExpiresAt != nil && time.Now().After(*user.TokenExpiresAt) {
		if err := a.store.Delete(c.Request.Context(), user.Email); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "token expired"})
		return
	}

	if err := a.store.MarkVerified(c.Request.Context(), user.Email); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Email verified successfully"})
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login checks, in order: user exists, provider is Local, email verified,
// password matches. Verification is checked before the password on purpose.
func (a *AuthController) Login(c *gin.Context) {
	email := c.Query("email")
	password := c.Query("password")
	if email == "" && password == "" {
		var p loginPayload
		if err := c.ShouldBindJSON(&p); err == nil {
			email, password = p.Email, p.Password
		}
	}
	if email == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password required"})
		return
	}
	email = strings.ToLower(email)

	user, err := a.store.ByEmail(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}
	if user.AuthProvider == models.ProviderGoogle {
		c.JSON(http.StatusBadRequest, gin.H{"error": "use Google OAuth to log in"})
		return
	}
	if !user.IsVerified {
		c.JSON(http.StatusForbidden, gin.H{"error": "email not verified"})
		return
	}
	if err := utils.CheckPasswordHash(user.PasswordHash, password); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	tokenStr, err := a.tokens.Issue(user.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create token"})
		return
	}
	setAuthCookie(c, tokenStr, a.tokens.TTL(), a.cookieSecure)
	c.JSON(http.StatusOK, gin.H{"message": "Login successful"})
}

// Logout clears the cookie. Tokens are stateless, so an already issued token
// stays valid until its expiry.
func (a *AuthController) Logout(c *gin.Context) {
	clearAuthCookie(c, a.cookieSecure)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// Me returns the current user resolved by the auth middleware.
func (a *AuthController) Me(c *gin.Context) {
	email := c.GetString(middleware.UserEmailKey)
	if email == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	user, err := a.store.ByEmail(c.Request.Context(), email)
	if err != nil {
		// Token can outlive the row, e.g. after an expired-verification delete.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": user.Email, "is_verified": user.IsVerified})
}
