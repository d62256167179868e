package phrasebook

// Languages a phrase can carry. "de" is standard German, "ch" is Swiss
// German dialect.
const (
	LangGerman = "de"
	LangSwiss  = "ch"
)

// seedPhrases populate a fresh phrase book so training can start without
// any setup. IDs below 100 are reserved for seeds; user phrases get
// millisecond timestamps as IDs.
func seedPhrases() []Phrase {
	return []Phrase{
		{ID: 1, Text: "Ich habe Durst.", Lang: LangGerman},
		{ID: 2, Text: "Ich habe Hunger.", Lang: LangGerman},
		{ID: 3, Text: "Mir ist kalt.", Lang: LangGerman},
		{ID: 4, Text: "Mir ist warm.", Lang: LangGerman},
		{ID: 5, Text: "Kannst du mir bitte helfen?", Lang: LangGerman},
		{ID: 6, Text: "Mach bitte das Fenster auf.", Lang: LangGerman},
		{ID: 7, Text: "Mach bitte das Fenster zu.", Lang: LangGerman},
		{ID: 8, Text: "Schalte bitte das Licht ein.", Lang: LangGerman},
		{ID: 9, Text: "Schalte bitte das Licht aus.", Lang: LangGerman},
		{ID: 10, Text: "Wie geht es dir?", Lang: LangGerman},
		{ID: 11, Text: "Mir geht es gut, danke.", Lang: LangGerman},
		{ID: 12, Text: "Ich möchte gerne Radio hören.", Lang: LangGerman},
		{ID: 13, Text: "Danke vielmal.", Lang: LangSwiss},
		{ID: 14, Text: "Wie gaat’s?", Lang: LangSwiss},
		{ID: 15, Text: "Chönntsch mer öppis z trinke bringe?", Lang: LangSwiss},
		{ID: 16, Text: "Was git's hüt z'Nacht?", Lang: LangSwiss},
	}
}
