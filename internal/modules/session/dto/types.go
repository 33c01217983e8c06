package dto

import "focusguard/internal/modules/session/domain"

// Status is the coordinator view exposed on the control plane.
type Status struct {
	Initialized    bool             `json:"initialized"`
	LastUpdate     int64            `json:"lastUpdate"`
	CooldownMs     int64            `json:"cooldownMs"`
	StrictCooldown bool             `json:"strictCooldown"`
	ActiveSessions []domain.Session `json:"activeSessions"`
}

// TimeUp is pushed to a tab whose session ran out.
type TimeUp struct {
	Action string `json:"action"`
	TabID  int    `json:"tabId"`
}

// StorageChanged is pushed to every connection when stored keys change.
type StorageChanged struct {
	Action string   `json:"action"`
	Keys   []string `json:"keys"`
}
