// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the Placepact API server.

Placepact is a group decision service: a host submits a deck of
candidate items, participants swipe accept/reject in rounds, and the
engine eliminates, advances, and finally picks one item everyone can
live with.

# Starting the Server

The server runs on sqlite by default and needs no external services:

	go run main.go

Or against PostgreSQL:

	go run main.go -t postgres -d "postgres://..."

Configuration can also come from a .env file or environment variables.

# Configuration

Settings (flag / env var):

  - -p / PORT: Server port (default: 3324)
  - -d / DATABASE_URL: Connection string or sqlite file path
  - -t / DATABASE_TYPE: "sqlite" (default) or "postgres"
  - -host-salt / HOST_KEY_SALT: Secret for host key HMAC
  - -code-salt / JOIN_CODE_SALT: Secret for join code generation

# Architecture

The server uses a handler-based architecture with dependency injection:

  - handlers: HTTP request handlers (sessions, voting, results, events)
  - engine: Round completion, vote classification, tie-break resolution
  - realtime: WebSocket hub and typed session events
  - router: Route definitions using Go 1.22+ routing
  - middleware: CORS, logging, JSON helpers
  - models: Request/response and domain types
  - auth: Token, host key, and join code generation
  - db: Driver selection and schema creation
  - cliparse: Configuration parsing

See package documentation for each component.
*/
package main
