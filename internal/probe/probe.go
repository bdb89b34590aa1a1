// Package probe infers conversion completion purely from file presence. No
// job-status lookup is involved: the final artifact must exist and the raw
// source must be gone. Requiring the raw file's absence avoids a false
// "ready" when a stale final artifact from a previous attempt coexists with a
// fresh upload still mid-flight.
package probe

import (
	"path/filepath"

	"github.com/hariharasuthan-hb/gym-sub000/internal/media"
)

// Status reports the two file-presence facts and their conjunction.
type Status struct {
	Complete    bool   `json:"isComplete"`
	FinalExists bool   `json:"convertedExists"`
	RawExists   bool   `json:"rawExists"`
	FinalPath   string `json:"path,omitempty"`
}

// Prober checks destination hints against the media layout.
type Prober struct {
	layout *media.Layout
}

// New constructs a Prober.
func New(layout *media.Layout) *Prober {
	return &Prober{layout: layout}
}

// Check resolves destHint's base name and looks for siblings in the final and
// raw areas. The final artifact may carry any extension: a fallback keeps the
// source's original one, so callers must not assume the canonical container.
func (p *Prober) Check(destHint string) Status {
	base := media.BaseName(destHint)

	final := media.FindSibling(p.layout.FinalDir(), base)
	raw := media.FindSibling(p.layout.RawDir(), base)

	st := Status{
		FinalExists: final != "",
		RawExists:   raw != "",
	}
	st.Complete = st.FinalExists && !st.RawExists
	if final != "" {
		st.FinalPath = filepath.ToSlash(final)
	}
	return st
}
