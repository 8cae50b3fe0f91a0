package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "TOKENKEEPER_"

var lookupEnv = os.LookupEnv

// loadDotEnv exports the variables of an optional .env file into the process
// environment. Variables that are already set win over the file.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// parseEnv overlays TOKENKEEPER_* variables onto config.
func parseEnv(config *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"GRPC_ADDR":      &config.EndpointAddrGRPC,
		"HTTP_ADDR":      &config.EndpointAddrHTTP,
		"DATABASE_DSN":   &config.DatabaseDSN,
		"STORE":          &config.StoreKind,
		"REDIS_ADDR":     &config.RedisAddr,
		"REDIS_PASSWORD": &config.RedisPassword,
		"SECRET_KEY":     &config.SecretKey,
		"SECRET_KEY_ID":  &config.SecretKeyID,
		"AWS_REGION":     &config.AWSRegion,
		"LOG_LEVEL":      &config.LogLevel,
		"AMQP_URL":       &config.AMQPURL,
		"AMQP_EXCHANGE":  &config.AMQPExchange,
	}
	for name, dst := range strs {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"ACCESS_TOKEN_TTL":  &config.AccessTokenValidityDuration,
		"REFRESH_TOKEN_TTL": &config.RefreshTokenValidityDuration,
		"STORE_TIMEOUT":     &config.StoreTimeout,
	}
	for name, dst := range durations {
		v, ok := lookup(envPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = d
	}

	ints := map[string]*int{
		"REDIS_DB":    &config.RedisDB,
		"BCRYPT_COST": &config.BcryptCost,
	}
	for name, dst := range ints {
		v, ok := lookup(envPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = n
	}

	if v, ok := lookup(envPrefix + "LOGOUT_ACCEPT_UNVERIFIED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sLOGOUT_ACCEPT_UNVERIFIED: %w", envPrefix, err)
		}
		config.LogoutAcceptUnverified = b
	}
	return nil
}
