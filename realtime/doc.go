// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package realtime pushes session events to connected participants over
WebSocket.

# Hub

One Hub serves the whole process. It tracks connections per session and
fans events out to everyone watching that session:

	hub := realtime.NewHub()
	go hub.Run()

	hub.Publish(realtime.NewVoteRecordedEvent(sessionID, participantID, round))

Events are fire-and-forget: a slow consumer is dropped rather than
allowed to stall the hub, and clients that miss events recover by
refetching session state over HTTP.

# Events

Every event is a typed envelope (Message) with a dotted type name, the
session id, a JSON payload, and a server timestamp. Constructors in
events.go build the envelopes; handlers never hand-assemble one.

# Subscriber

Subscriber is the client side: it dials the session's /ws endpoint,
delivers decoded events on a channel, and reconnects with exponential
backoff (1s doubling, capped at 30s, five attempts) when the connection
drops.
*/
package realtime
