// Copyright (c) 2025 Placepact Authors.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides identity and token generation utilities.

# Host Keys

Host keys use HMAC-SHA256 to create deterministic, verifiable keys:

	hostKey := auth.GenerateHostKey(sessionID, salt)
	err := auth.ValidateHostKey(sessionID, hostKey, salt)

The key is URL-safe base64 encoded without padding. Since it's deterministic,
the same session ID and salt always produce the same key. This allows
validation without storing the key in the database.

# Participant Tokens

Participant tokens are random 24-byte (192-bit) secrets:

	token, err := auth.GenerateParticipantToken()

Tokens are URL-safe base64 encoded and authenticate vote and leave requests.
Each participant gets a unique token when joining a session. The rest of the
system treats participant identity as an opaque id.

# Join Codes

Join codes create short, shareable identifiers for sessions:

	code := auth.GenerateJoinCode(sessionID, salt)

Codes are base62 encoded (alphanumeric only) for easy sharing. Like host
keys, they're deterministic from the session ID and salt.

# ID Generation

Random hex IDs for database records:

	id, err := auth.GenerateID(16)  // 32 hex characters

Participant IDs use UUIDs instead:

	id := auth.NewParticipantID()
*/
package auth
