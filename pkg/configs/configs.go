// Copyright (c) 2024-2026 CoachlyAI
//
// Licensed under GPL-2.0 with Coachly Additional Terms.
// See LICENSE.md or contact sales@coachly.ai for commercial usage.
package configs

// PostgresConfig carries the connection settings for the backend database.
type PostgresConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required"`
	DbName             string `mapstructure:"db_name" validate:"required"`
	Auth               Auth   `mapstructure:"auth" validate:"required"`
	MaxOpenConnection  int    `mapstructure:"max_open_connection"`
	MaxIdealConnection int    `mapstructure:"max_ideal_connection"`
	SslMode            string `mapstructure:"ssl_mode"`
}

// Auth is a user/password pair nested under a connector config.
type Auth struct {
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
}

// RedisConfig carries the connection settings for the cache.
type RedisConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	Password string `mapstructure:"password"`
	Db       int    `mapstructure:"db"`
}
