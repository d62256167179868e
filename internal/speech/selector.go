package speech

import "strings"

// SelectVoice picks the best voice for a language and gender. Candidates
// are first narrowed to the language prefix. The gender pass goes by name
// keywords, English and German; a name that signals female never wins the
// male pass even though it contains "male". When no name matches, a voice
// with the exact locale wins, then the first candidate. Returns false only
// when no voice speaks the language at all.
func SelectVoice(voices []Voice, lang, locale string, gender Gender) (Voice, bool) {
	var candidates []Voice
	for _, v := range voices {
		if strings.HasPrefix(v.Lang, lang) {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return Voice{}, false
	}

	if v, ok := findByGender(candidates, gender); ok {
		return v, true
	}
	for _, v := range candidates {
		if v.Lang == locale {
			return v, true
		}
	}
	return candidates[0], true
}

func findByGender(candidates []Voice, gender Gender) (Voice, bool) {
	switch gender {
	case GenderMale:
		for _, v := range candidates {
			name := strings.ToLower(v.Name)
			if soundsFemale(name) {
				continue
			}
			if strings.Contains(name, "male") || strings.Contains(name, "männlich") {
				return v, true
			}
		}
		// Any voice not explicitly female still beats the locale fallback.
		for _, v := range candidates {
			if !soundsFemale(strings.ToLower(v.Name)) {
				return v, true
			}
		}
	case GenderFemale:
		for _, v := range candidates {
			name := strings.ToLower(v.Name)
			if soundsFemale(name) {
				return v, true
			}
		}
	}
	return Voice{}, false
}

func soundsFemale(lowerName string) bool {
	return strings.Contains(lowerName, "female") || strings.Contains(lowerName, "weiblich")
}
