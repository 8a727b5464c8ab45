// Package tutor is the client for the external generation collaborator:
// scenario generation, conversation feedback, hints, translations, study
// cards, one-shot speech and on-demand images. Every call is plain
// request/response; the live session machinery lives elsewhere.
package tutor

// Scenario is one roleplay setup the user rehearses against.
type Scenario struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Location    string `json:"location"`
	Language    string `json:"language"`
	PersonaName string `json:"persona_name"`
	PersonaRole string `json:"persona_role"`
	Setting     string `json:"setting"`
	Objective   string `json:"objective"`
	OpeningHint string `json:"opening_hint"`
	Difficulty  string `json:"difficulty"`
}

// Correction is one piece of line-level feedback in a summary.
type Correction struct {
	Original  string `json:"original"`
	Corrected string `json:"corrected"`
	Note      string `json:"note"`
}

// Summary is the post-conversation feedback report.
type Summary struct {
	Overall     string       `json:"overall"`
	Score       int          `json:"score"`
	Corrections []Correction `json:"corrections,omitempty"`
}

// Hint is a contextual suggestion for what the user could say next.
type Hint struct {
	Text        string `json:"text"`
	Translation string `json:"translation"`
}

// StudyCard is a short phrase worth memorizing from the scenario.
type StudyCard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// Translation is the result of translating a transcript line.
type Translation struct {
	Text string `json:"text"`
}
