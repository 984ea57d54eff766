package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"anonchat/internal/identity"
	"anonchat/internal/transport/http/response"
)

const (
	ContextUserIDKey = "user_id"
	CookieName       = "anonchat_uid"

	cookieMaxAge = 10 * 365 * 24 * 60 * 60
)

// cookieStorage exposes the identity cookie as client-local storage.
type cookieStorage struct {
	c      *gin.Context
	secure bool
	set    map[string]string
}

func NewCookieStorage(c *gin.Context, secure bool) identity.Storage {
	return &cookieStorage{c: c, secure: secure, set: make(map[string]string)}
}

func (s *cookieStorage) Get(key string) (string, bool) {
	if key != identity.StorageKey {
		return "", false
	}
	if v, ok := s.set[key]; ok {
		return v, true
	}
	v, err := s.c.Cookie(CookieName)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func (s *cookieStorage) Set(key, value string) error {
	if key != identity.StorageKey {
		return nil
	}
	s.set[key] = value
	s.c.SetSameSite(http.SameSiteLaxMode)
	s.c.SetCookie(CookieName, value, cookieMaxAge, "/", "", s.secure, true)
	return nil
}

// Identity resolves the caller's anonymous id, issuing the cookie on first use.
func Identity(provider *identity.Provider, secureCookie bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := provider.GetOrCreate(NewCookieStorage(c, secureCookie))
		if err != nil {
			response.Abort(c, http.StatusInternalServerError, response.CodeInternalServer, "resolve identity failed")
			return
		}
		c.Set(ContextUserIDKey, id)
		c.Next()
	}
}

func UserID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextUserIDKey)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
