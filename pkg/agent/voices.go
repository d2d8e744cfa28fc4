package agent

import "fmt"

// VoiceConfig pairs a model voice id with the language directive appended to
// the session's system prompt.
type VoiceConfig struct {
	ID               string
	AdditionalPrompt string
}

func promptForLanguage(lang string) string {
	return fmt.Sprintf("Please respond exclusively in %[1]s. If you have a question or suggestion, ask it in %[1]s. I want to ensure that our communication remains in %[1]s.", lang)
}

// Voices lists every supported model voice. See the model provider's voice and
// language documentation for the pairing rules.
var Voices = map[string]VoiceConfig{
	"tiffany":  {ID: "tiffany", AdditionalPrompt: "Please respond exclusively in English."},
	"matthew":  {ID: "matthew", AdditionalPrompt: "Please respond exclusively in English."},
	"amy":      {ID: "amy", AdditionalPrompt: "Please respond exclusively in English. Use British English as your language for your responses."},
	"ambre":    {ID: "ambre", AdditionalPrompt: promptForLanguage("French")},
	"florian":  {ID: "florian", AdditionalPrompt: promptForLanguage("French")},
	"beatrice": {ID: "beatrice", AdditionalPrompt: promptForLanguage("Italian")},
	"lorenzo":  {ID: "lorenzo", AdditionalPrompt: promptForLanguage("Italian")},
	"greta":    {ID: "greta", AdditionalPrompt: promptForLanguage("German")},
	"lennart":  {ID: "lennart", AdditionalPrompt: promptForLanguage("German")},
	"lupe":     {ID: "lupe", AdditionalPrompt: promptForLanguage("Spanish")},
	"carlos":   {ID: "carlos", AdditionalPrompt: promptForLanguage("Spanish")},
}

// LookupVoice resolves a voice id, case-sensitively.
func LookupVoice(id string) (VoiceConfig, bool) {
	voice, ok := Voices[id]
	return voice, ok
}
