package assessment

import "strings"

// Pattern identifies a cycle pattern produced by the symptom assessment.
type Pattern string

const (
	PatternRegular      Pattern = "regular"
	PatternIrregular    Pattern = "irregular"
	PatternHeavyFlow    Pattern = "heavy_flow"
	PatternPainDominant Pattern = "pain_dominant"
	PatternPMSDominant  Pattern = "pms_dominant"
)

type patternInfo struct {
	display string
	framing string
}

var patterns = map[Pattern]patternInfo{
	PatternRegular: {
		display: "regular cycle",
		framing: "The user's assessment indicates a regular cycle. Reinforce healthy habits and answer questions without raising unnecessary concern.",
	},
	PatternIrregular: {
		display: "irregular cycle",
		framing: "The user's assessment indicates an irregular cycle. Acknowledge that cycle length variation is common, suggest tracking, and encourage a clinician visit if irregularity persists.",
	},
	PatternHeavyFlow: {
		display: "heavy flow pattern",
		framing: "The user's assessment indicates a heavy flow pattern. Be attentive to mentions of fatigue or anemia symptoms and encourage discussing flow volume with a clinician.",
	},
	PatternPainDominant: {
		display: "pain-dominant pattern",
		framing: "The user's assessment indicates a pain-dominant pattern. Take pain mentions seriously, discuss common relief strategies in general terms, and recommend professional evaluation for severe pain.",
	},
	PatternPMSDominant: {
		display: "PMS-dominant pattern",
		framing: "The user's assessment indicates a PMS-dominant pattern. Focus on premenstrual symptom management and mood support in general, non-diagnostic terms.",
	},
}

// Known reports whether p is a recognized assessment pattern.
func Known(p Pattern) bool {
	_, ok := patterns[p]
	return ok
}

// Normalize maps free-form pattern strings onto the catalog. Unrecognized
// values are returned unchanged so the raw tag still reaches the prompt.
func Normalize(raw string) Pattern {
	p := Pattern(strings.ToLower(strings.TrimSpace(raw)))
	if Known(p) {
		return p
	}
	switch p {
	case "heavy", "heavy-flow", "menorrhagia":
		return PatternHeavyFlow
	case "pain", "pain-dominant", "dysmenorrhea":
		return PatternPainDominant
	case "pms", "pms-dominant":
		return PatternPMSDominant
	}
	return p
}

// DisplayName returns a human-readable name for the pattern. Unknown patterns
// fall back to the raw value.
func DisplayName(p Pattern) string {
	if info, ok := patterns[p]; ok {
		return info.display
	}
	return string(p)
}

// PromptFraming returns assessment-aware framing text for the system prompt.
// Unknown patterns get a generic framing that still carries the raw tag.
func PromptFraming(p Pattern) string {
	if info, ok := patterns[p]; ok {
		return info.framing
	}
	if strings.TrimSpace(string(p)) == "" {
		return ""
	}
	return "The user completed a symptom assessment with result \"" + string(p) + "\". Keep replies consistent with that context."
}
