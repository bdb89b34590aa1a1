// Package model contains struct definitions shared across packages.
package model

import (
	"errors"
	"time"
)

// VideoStatus describes the review lifecycle of an uploaded exercise video.
type VideoStatus string

const (
	StatusPending  VideoStatus = "pending"
	StatusApproved VideoStatus = "approved"
	StatusRejected VideoStatus = "rejected"
)

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyReviewed is returned when a decision is submitted for a video
	// that already left the pending state. Review history is never overwritten.
	ErrAlreadyReviewed = errors.New("video already reviewed")
)

// Terminal reports whether the status permits no further transitions.
func (s VideoStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ParseDecision maps a reviewer decision string to its terminal status.
func ParseDecision(decision string) (VideoStatus, error) {
	switch decision {
	case "approve", "approved":
		return StatusApproved, nil
	case "reject", "rejected":
		return StatusRejected, nil
	default:
		return "", errors.New("decision must be approve or reject")
	}
}

// VideoRecord holds metadata about a member's exercise video. A record is
// created in pending state as soon as a destination path is known, which may
// be before the artifact is playable; readiness is a separate fact answered
// by the completion prober.
type VideoRecord struct {
	ID           string      `json:"id"`
	UserID       string      `json:"userId"`
	Exercise     string      `json:"exercise"`
	ArtifactPath string      `json:"artifactPath"`
	PublicURL    string      `json:"publicUrl,omitempty"`
	Status       VideoStatus `json:"status"`
	ReviewerID   *string     `json:"reviewerId,omitempty"`
	Feedback     *string     `json:"feedback,omitempty"`
	ReviewedAt   *time.Time  `json:"reviewedAt,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}
