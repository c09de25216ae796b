// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

# Config Fields

  - Port: Server listen port (default: 3324)
  - DatabaseURL: Connection string or sqlite file path (required)
  - DatabaseType: "sqlite" (default) or "postgres"
  - HostKeySalt: Secret for host key HMAC (required)
  - JoinCodeSalt: Secret for join code generation (required)

# CLI Flags

	-p          Server port
	-d          Database URL
	-t          Database type
	-host-salt  Host key salt
	-code-salt  Join code salt

# Environment Variables

Flags fall back to environment variables:

	PORT           → -p
	DATABASE_URL   → -d
	DATABASE_TYPE  → -t
	HOST_KEY_SALT  → -host-salt
	JOIN_CODE_SALT → -code-salt

CLI flags take precedence over environment variables. A .env file, if
present, is loaded by main before parsing.

# Validation

ParseFlags returns an error if required values are missing:

  - DATABASE_URL must be provided
  - DATABASE_TYPE must be sqlite or postgres
  - HOST_KEY_SALT must be provided
  - JOIN_CODE_SALT must be provided

# Example

	// In main.go
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	conn, err := db.Open(cfg.DatabaseType, cfg.DatabaseURL)
	// ...
	mux := router.NewRouter(conn, cfg, hub)
*/
package cliparse
