package models

import "time"

// UserContext identifies the operator running a session.
type UserContext struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// SessionInput is what the caller supplies to open a session.
type SessionInput struct {
	User         UserContext `json:"user"`
	PartnerIDs   []string    `json:"partnerIds"`
	Category     string      `json:"category"`
	BalanceDate  string      `json:"balanceDate"`
	EmailSubject string      `json:"emailSubject"`
	OutputFolder string      `json:"outputFolder"`
	Notes        string      `json:"notes,omitempty"`
}

// Session is the in-memory state of one run. It is never persisted.
type Session struct {
	ID           string      `json:"id"`
	User         UserContext `json:"user"`
	PartnerIDs   []string    `json:"partnerIds"`
	Category     string      `json:"category"`
	BalanceDate  time.Time   `json:"balanceDate"`
	EmailSubject string      `json:"emailSubject"`
	OutputFolder string      `json:"outputFolder"`
	Notes        string      `json:"notes,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}
