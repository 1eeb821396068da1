package models

import "time"

// RenderRequest is everything a document renderer needs for one partner.
type RenderRequest struct {
	SessionID          string
	Partner            Partner
	RegistrationNumber int64
	BalanceDate        time.Time
	IssueDate          time.Time
	TemplateName       string
	OutputDir          string
	User               UserContext
}

// RenderedDocument describes a file produced by a renderer.
type RenderedDocument struct {
	Path      string
	Hash      string
	Size      int64
	PageCount int
}
