package domain

import "time"

// LoginEvent is emitted after every successful login. It never carries
// credentials or tokens.
type LoginEvent struct {
	Subject        string               `json:"subject"`
	UserID         string               `json:"userId"`
	Source         AuthenticationSource `json:"source"`
	ExternalSystem string               `json:"externalSystem,omitempty"`
	Provisioned    bool                 `json:"provisioned"`
	Degraded       bool                 `json:"degraded"`
	At             time.Time            `json:"at"`
}
