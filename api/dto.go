/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the wire
  format from the kudos package types.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// GiveKudosRequest is the body of POST /api/kudos. Signature is the hex
// ed25519 signature by From over kudos.GiveMessage.
type GiveKudosRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Nonce     string `json:"nonce"`
	IssuedAt  string `json:"issued_at"` // RFC3339
	Signature string `json:"signature"`
}

// KudosDTO is a principal's current count.
type KudosDTO struct {
	Principal string `json:"principal"`
	Count     uint32 `json:"count"`
}

// StandingDTO is one leaderboard row.
type StandingDTO struct {
	Rank      int    `json:"rank"`
	Principal string `json:"principal"`
	Count     uint32 `json:"count"`
	Share     string `json:"share"` // percent, e.g. "33.33"
}

// LeaderboardDTO wraps the leaderboard.
type LeaderboardDTO struct {
	Standings []StandingDTO `json:"standings"`
}

// EventDTO is pushed to /api/events subscribers for every credit.
type EventDTO struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	From  string `json:"from"`
	To    string `json:"to"`
	Count uint32 `json:"count"`
	At    string `json:"at"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
