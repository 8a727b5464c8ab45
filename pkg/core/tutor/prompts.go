package tutor

import (
	"fmt"
	"strings"

	"github.com/konxu/rehearsal/pkg/core/transcript"
)

func scenarioPrompt(location, userContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Create one roleplay scenario for practicing spoken conversation in %s.
The scenario is a short everyday situation with a single local persona the learner talks to.
`, location)
	if userContext != "" {
		fmt.Fprintf(&b, "About the learner: %s\n", userContext)
	}
	b.WriteString(`Reply with JSON only, using exactly these fields:
{"title": "...", "location": "...", "language": "BCP-47 tag of the local language",
 "persona_name": "...", "persona_role": "...", "setting": "one sentence",
 "objective": "what the learner should accomplish", "opening_hint": "a natural first line the learner could say",
 "difficulty": "beginner|intermediate|advanced"}`)
	return b.String()
}

func similarScenarioPrompt(base *Scenario) string {
	return fmt.Sprintf(`The learner just finished this roleplay scenario:
title: %s
location: %s
persona: %s, %s
objective: %s
difficulty: %s

Create a different scenario in the same location and language at the same difficulty,
with a new persona and a new everyday situation. Reply with JSON only, same fields as:
{"title": "...", "location": "...", "language": "...", "persona_name": "...",
 "persona_role": "...", "setting": "...", "objective": "...", "opening_hint": "...", "difficulty": "..."}`,
		base.Title, base.Location, base.PersonaName, base.PersonaRole, base.Objective, base.Difficulty)
}

func summaryPrompt(scenario *Scenario, entries []transcript.Entry) string {
	return fmt.Sprintf(`You are a %s language tutor. The learner just finished this roleplay:
objective: %s

Transcript ("user" is the learner):
%s

Assess the learner's side only. Reply with JSON only:
{"overall": "two or three encouraging sentences in English",
 "score": 1-10,
 "corrections": [{"original": "what the learner said", "corrected": "the natural phrasing", "note": "one short English explanation"}]}
Include at most five corrections, the most useful ones first.`,
		scenario.Language, scenario.Objective, renderTranscript(entries))
}

func hintPrompt(scenario *Scenario, entries []transcript.Entry) string {
	return fmt.Sprintf(`You are helping a learner who has gone quiet in a %s roleplay.
objective: %s

Transcript so far ("user" is the learner):
%s

Suggest one short, natural thing the learner could say next, in %s. Reply with JSON only:
{"text": "the suggested line", "translation": "its English translation"}`,
		scenario.Language, scenario.Objective, renderTranscript(entries), scenario.Language)
}

func translatePrompt(text, language string) string {
	return fmt.Sprintf(`Translate this %s line into natural English. Reply with JSON only:
{"text": "the translation"}

Line: %s`, language, text)
}

func studyCardsPrompt(scenario *Scenario, entries []transcript.Entry) string {
	return fmt.Sprintf(`From this %s roleplay transcript, pick the phrases most worth memorizing
for a %s learner. Prefer phrases the agent used or the learner struggled with.

Transcript:
%s

Reply with JSON only:
{"cards": [{"front": "the %s phrase", "back": "its English meaning"}]}
Return between three and eight cards.`,
		scenario.Language, scenario.Difficulty, renderTranscript(entries), scenario.Language)
}

func imagePrompt(prompt, language string) string {
	return fmt.Sprintf(
		"A single warm, photographic illustration for a %s language-learning conversation: %s. No text or captions in the image.",
		language, prompt)
}

func markerTitlePrompt(location, language string) string {
	return fmt.Sprintf(`Give a short title, at most four words, for a map marker at "%s",
written in the local language (%s). Reply with JSON only: {"title": "..."}`,
		location, language)
}

func renderTranscript(entries []transcript.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: %s\n", e.Speaker, e.Text)
	}
	return b.String()
}
