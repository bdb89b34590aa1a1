package model

import "time"

// JobStatus tracks a conversion job from enqueue to completion. The durable
// record exists so an operator can find and re-dispatch jobs abandoned by a
// crashed worker; the completion prober alone cannot distinguish "not started"
// from "died mid-encode".
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// EncodeOptions select the target quality for a conversion.
type EncodeOptions struct {
	Quality      string `json:"quality"`
	MaxWidth     int    `json:"maxWidth"`
	MaxHeight    int    `json:"maxHeight"`
	AudioBitrate string `json:"audioBitrate"`
}

// ConversionJob is the durable record of one (source, destination) conversion.
type ConversionJob struct {
	ID         string        `json:"id"`
	VideoID    string        `json:"videoId"`
	SourcePath string        `json:"-"`
	DestHint   string        `json:"-"`
	Status     JobStatus     `json:"status"`
	FinalPath  *string       `json:"finalPath,omitempty"`
	Converted  bool          `json:"converted"`
	Error      *string       `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
	Options    EncodeOptions `json:"options"`
}
