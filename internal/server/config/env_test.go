package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func Test_parseEnv(t *testing.T) {
	cfg := &Config{}
	err := parseEnv(cfg, mapLookup(map[string]string{
		"TOKENKEEPER_GRPC_ADDR":                ":1",
		"TOKENKEEPER_HTTP_ADDR":                ":2",
		"TOKENKEEPER_STORE":                    "redis",
		"TOKENKEEPER_REDIS_DB":                 "3",
		"TOKENKEEPER_SECRET_KEY_ID":            "prod/signing-key",
		"TOKENKEEPER_ACCESS_TOKEN_TTL":         "10m",
		"TOKENKEEPER_REFRESH_TOKEN_TTL":        "72h",
		"TOKENKEEPER_STORE_TIMEOUT":            "2s",
		"TOKENKEEPER_BCRYPT_COST":              "11",
		"TOKENKEEPER_LOGOUT_ACCEPT_UNVERIFIED": "1",
		"UNRELATED":                            "x",
	}))
	assert.NoError(t, err)

	want := &Config{
		EndpointAddrGRPC:             ":1",
		EndpointAddrHTTP:             ":2",
		StoreKind:                    "redis",
		RedisDB:                      3,
		SecretKeyID:                  "prod/signing-key",
		AccessTokenValidityDuration:  10 * time.Minute,
		RefreshTokenValidityDuration: 72 * time.Hour,
		StoreTimeout:                 2 * time.Second,
		BcryptCost:                   11,
		LogoutAcceptUnverified:       true,
	}
	assert.Empty(t, cmp.Diff(want, cfg))
}

func Test_parseEnv_BadValues(t *testing.T) {
	for _, kv := range [][2]string{
		{"TOKENKEEPER_STORE_TIMEOUT", "3"},
		{"TOKENKEEPER_REDIS_DB", "zero"},
		{"TOKENKEEPER_LOGOUT_ACCEPT_UNVERIFIED", "maybe"},
	} {
		err := parseEnv(&Config{}, mapLookup(map[string]string{kv[0]: kv[1]}))
		assert.ErrorContains(t, err, kv[0])
	}
}
