package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/tokenkeeper/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the config file. Durations accept
// strings such as "15m" or integer nanoseconds. Only fields present in the
// file override earlier values.
type FileConfig struct {
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	EndpointAddrHTTP             string         `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	DatabaseDSN                  string         `json:"database_dsn" yaml:"database_dsn"`
	StoreKind                    string         `json:"store_kind" yaml:"store_kind"`
	RedisAddr                    string         `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword                string         `json:"redis_password" yaml:"redis_password"`
	RedisDB                      *int           `json:"redis_db" yaml:"redis_db"`
	SecretKey                    string         `json:"secret_key" yaml:"secret_key"`
	SecretKeyID                  string         `json:"secret_key_id" yaml:"secret_key_id"`
	AWSRegion                    string         `json:"aws_region" yaml:"aws_region"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration" yaml:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration" yaml:"refresh_token_validity_duration"`
	StoreTimeout                 timex.Duration `json:"store_timeout" yaml:"store_timeout"`
	BcryptCost                   int            `json:"bcrypt_cost" yaml:"bcrypt_cost"`
	LogLevel                     string         `json:"log_level" yaml:"log_level"`
	AMQPURL                      string         `json:"amqp_url" yaml:"amqp_url"`
	AMQPExchange                 string         `json:"amqp_exchange" yaml:"amqp_exchange"`
	LogoutAcceptUnverified       *bool          `json:"logout_accept_unverified" yaml:"logout_accept_unverified"`
}

// parseFile overlays the config file at path onto config. YAML is chosen
// by a .yaml/.yml extension, JSON otherwise. An empty path is a no-op.
func parseFile(config *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	c.apply(config)
	return nil
}

func (c *FileConfig) apply(config *Config) {
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.StoreKind, c.StoreKind)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.SecretKeyID, c.SecretKeyID)
	setString(&config.AWSRegion, c.AWSRegion)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.AMQPURL, c.AMQPURL)
	setString(&config.AMQPExchange, c.AMQPExchange)

	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.StoreTimeout.Duration != 0 {
		config.StoreTimeout = c.StoreTimeout.Duration
	}
	if c.BcryptCost != 0 {
		config.BcryptCost = c.BcryptCost
	}
	if c.LogoutAcceptUnverified != nil {
		config.LogoutAcceptUnverified = *c.LogoutAcceptUnverified
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
