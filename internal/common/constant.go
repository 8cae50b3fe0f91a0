package common

const (
	// AuthorizationHeaderName is the HTTP header and gRPC metadata key carrying
	// the bearer access token. gRPC metadata keys are lower-case.
	AuthorizationHeaderName = "authorization"

	// BearerScheme is the authorization scheme accepted by the gate.
	BearerScheme = "Bearer"

	// GrantType is reported to clients alongside issued token pairs.
	GrantType = "Bearer"

	// RefreshTokenCookieName is the HTTP cookie the refresh token travels in.
	RefreshTokenCookieName = "refresh_token"

	// TokenExpiredHeaderName tells gRPC clients whether an authentication
	// failure was caused by an expired access token.
	TokenExpiredHeaderName = "x-token-expired"

	// RequestIDHeaderName correlates HTTP requests in logs.
	RequestIDHeaderName = "X-Request-Id"
)

// Messages returned to callers whose access token was rejected.
const (
	MsgAccessTokenExpired   = "Access token has expired. Please refresh your token."
	MsgAuthenticationFailed = "Authentication failed. Please provide a valid token."
)
