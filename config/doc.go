// Package config loads authcore settings for a host process.
//
// Values come from, in increasing precedence: built-in defaults, an optional
// YAML/TOML/JSON file, an optional .env file and AUTHCORE_-prefixed
// environment variables. Nested keys map to variables by replacing dots with
// underscores, so jwt.access_ttl is read from AUTHCORE_JWT_ACCESS_TTL.
package config
