package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/gate"
	"github.com/labstack/echo/v4"
)

type signupRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=64"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"display_name" validate:"omitempty,max=64"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// bindValid decodes the JSON body into req and validates it.
func bindValid(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return failure(http.StatusBadRequest, nil, "Malformed request body.")
	}
	return c.Validate(req)
}

func (s *HTTPServer) signup(c echo.Context) error {
	var req signupRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}

	user, err := s.users.Register(c.Request().Context(), req.Username, req.Password, req.DisplayName)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, success(http.StatusCreated, map[string]any{"user_id": user.ID}, "Signup successful."))
}

func (s *HTTPServer) login(c echo.Context) error {
	var req loginRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	p, err := s.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return err
	}

	pair, err := s.sessions.Login(ctx, p)
	if err != nil {
		return err
	}

	c.SetCookie(s.refreshCookie(pair.RefreshToken))
	return c.JSON(http.StatusOK, success(http.StatusOK, map[string]any{
		"grant_type":   pair.GrantType,
		"access_token": pair.AccessToken,
	}, "Login successful."))
}

func (s *HTTPServer) refresh(c echo.Context) error {
	token, err := refreshTokenCookie(c)
	if err != nil {
		return err
	}

	pair, err := s.sessions.Refresh(c.Request().Context(), token)
	if err != nil {
		if errors.Is(err, common.ErrRefreshExpired) || errors.Is(err, common.ErrRefreshInvalid) {
			c.SetCookie(s.clearedCookie())
		}
		return err
	}

	c.SetCookie(s.refreshCookie(pair.RefreshToken))
	return c.JSON(http.StatusOK, success(http.StatusOK, map[string]any{
		"grant_type":   pair.GrantType,
		"access_token": pair.AccessToken,
	}, "Token refreshed successfully."))
}

func (s *HTTPServer) logout(c echo.Context) error {
	token, err := refreshTokenCookie(c)
	if err != nil {
		return err
	}

	if err := s.sessions.Logout(c.Request().Context(), token); err != nil {
		return err
	}

	c.SetCookie(s.clearedCookie())
	return c.JSON(http.StatusOK, success(http.StatusOK, nil, "Logout successful."))
}

func (s *HTTPServer) profile(c echo.Context) error {
	p, err := gate.Require(c.Request().Context())
	if err != nil {
		return err
	}

	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	return c.JSON(http.StatusOK, success(http.StatusOK, map[string]any{
		"user": map[string]any{
			"user_id":      p.UserID,
			"display_name": p.DisplayName,
			"roles":        roles,
		},
	}, "User profile retrieved successfully."))
}

func refreshTokenCookie(c echo.Context) (string, error) {
	ck, err := c.Cookie(common.RefreshTokenCookieName)
	if err != nil || ck.Value == "" {
		return "", failure(http.StatusBadRequest,
			map[string]any{"error": common.RefreshTokenCookieName + " is required"},
			"Missing required cookie.")
	}
	return ck.Value, nil
}

func (s *HTTPServer) refreshCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     common.RefreshTokenCookieName,
		Value:    token,
		Path:     BasePath,
		MaxAge:   int(s.opts.RefreshCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *HTTPServer) clearedCookie() *http.Cookie {
	ck := s.refreshCookie("")
	ck.MaxAge = -1
	return ck
}
