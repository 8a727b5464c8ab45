// Package transcript reconstructs coherent, speaker-tagged turns out of the
// incremental transcription fragments delivered by the live channel.
package transcript

import (
	"regexp"
	"strings"
)

// Speaker tags one side of the conversation.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// VisualState tracks the lifecycle of an entry's embedded visual directive.
type VisualState int

const (
	// VisualNone: no directive seen in this entry (yet).
	VisualNone VisualState = iota
	// VisualPending: directive extracted, image request in flight.
	VisualPending
	// VisualReady: image resolved, URL set.
	VisualReady
	// VisualFailed: image request failed; the entry stays usable.
	VisualFailed
)

func (v VisualState) String() string {
	switch v {
	case VisualNone:
		return "none"
	case VisualPending:
		return "pending"
	case VisualReady:
		return "ready"
	case VisualFailed:
		return "failed"
	}
	return "unknown"
}

// Entry is one reconstructed run of speech. Text grows while Final is false;
// insertion order is conversational order and is never changed.
type Entry struct {
	Speaker   Speaker
	Text      string
	Final     bool
	Visual    VisualState
	VisualURL string
}

// VisualRequest asks for one on-demand image for the entry at Index.
type VisualRequest struct {
	Index  int
	Prompt string
}

// visualDirective matches an embedded marker like "[IMAGE: a busy market]".
// The closing bracket must be present, so a directive split across
// fragments is picked up only once it is complete.
var visualDirective = regexp.MustCompile(`\[IMAGE:\s*([^\[\]]+?)\s*\]`)

// Reconciler merges transcription fragments into ordered entries.
//
// It is mutated only from the session's control context and therefore does
// not lock; Entries returns a snapshot that is safe to hand elsewhere.
type Reconciler struct {
	entries []Entry
}

// New returns an empty reconciler.
func New() *Reconciler {
	return &Reconciler{entries: make([]Entry, 0, 16)}
}

// Append merges one partial fragment. If the last entry has the same speaker
// and is not final, the fragment is concatenated onto it; otherwise a new
// entry starts. Returns the index of the entry that changed.
func (r *Reconciler) Append(speaker Speaker, text string) int {
	if n := len(r.entries); n > 0 {
		last := &r.entries[n-1]
		if last.Speaker == speaker && !last.Final {
			last.Text += text
			return n - 1
		}
	}
	r.entries = append(r.entries, Entry{Speaker: speaker, Text: text})
	return len(r.entries) - 1
}

// FinalizeTurn marks every current entry final. The next fragment starts a
// new entry even if its speaker matches the last one.
func (r *Reconciler) FinalizeTurn() {
	for i := range r.entries {
		r.entries[i].Final = true
	}
}

// ExtractVisuals scans agent entries for a complete visual directive, strips
// the marker from the displayed text, and returns one request per entry that
// has not been scanned successfully before. An entry whose Visual field is
// already set never produces a second request.
func (r *Reconciler) ExtractVisuals() []VisualRequest {
	var requests []VisualRequest
	for i := range r.entries {
		e := &r.entries[i]
		if e.Speaker != SpeakerAgent || e.Visual != VisualNone {
			continue
		}
		m := visualDirective.FindStringSubmatchIndex(e.Text)
		if m == nil {
			continue
		}
		prompt := strings.TrimSpace(e.Text[m[2]:m[3]])
		before := strings.TrimRight(e.Text[:m[0]], " ")
		after := strings.TrimLeft(e.Text[m[1]:], " ")
		switch {
		case before == "":
			e.Text = after
		case after == "":
			e.Text = before
		default:
			e.Text = before + " " + after
		}
		e.Visual = VisualPending
		requests = append(requests, VisualRequest{Index: i, Prompt: prompt})
	}
	return requests
}

// ResolveVisual records the outcome of an image request.
func (r *Reconciler) ResolveVisual(index int, url string, ok bool) {
	if index < 0 || index >= len(r.entries) {
		return
	}
	e := &r.entries[index]
	if e.Visual != VisualPending {
		return
	}
	if ok {
		e.Visual = VisualReady
		e.VisualURL = url
	} else {
		e.Visual = VisualFailed
	}
}

// Entries returns a snapshot of the current entries.
func (r *Reconciler) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of entries.
func (r *Reconciler) Len() int { return len(r.entries) }
