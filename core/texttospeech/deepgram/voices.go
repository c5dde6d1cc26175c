package deepgram

type deepgramVoice = string

const defaultVoice deepgramVoice = "aura-asteria-en"

// GetAvailableVoices lists the aura voices the speak API accepts as model
// names.
func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{
		"aura-asteria-en",
		"aura-luna-en",
		"aura-stella-en",
		"aura-athena-en",
		"aura-hera-en",
		"aura-orion-en",
		"aura-arcas-en",
		"aura-perseus-en",
		"aura-angus-en",
		"aura-orpheus-en",
		"aura-helios-en",
		"aura-zeus-en",
	}
}
