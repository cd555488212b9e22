package form

import "errors"

var (
	ErrInvalidTone   = errors.New("invalid tone")
	ErrInvalidFormat = errors.New("invalid format")
)

type Tone string

const (
	ToneConversational Tone = "conversational"
	ToneFormal         Tone = "formal"
	ToneHumorous       Tone = "humorous"
)

type Format string

const (
	FormatLinkedIn    Format = "linkedin"
	FormatInstagram   Format = "instagram"
	FormatYouTubeDesc Format = "youtube_desc"
	FormatMonologue   Format = "monologue"
	FormatInterview   Format = "interview"
)

// Choice pairs a display label with the value sent to the service.
type Choice[T ~string] struct {
	Label string
	Value T
}

// Tones lists the tone choices in display order.
var Tones = []Choice[Tone]{
	{Label: "Conversational", Value: ToneConversational},
	{Label: "Formal", Value: ToneFormal},
	{Label: "Humorous", Value: ToneHumorous},
}

// Formats lists the format choices in display order.
var Formats = []Choice[Format]{
	{Label: "LinkedIn post", Value: FormatLinkedIn},
	{Label: "Instagram caption", Value: FormatInstagram},
	{Label: "YouTube description", Value: FormatYouTubeDesc},
	{Label: "Monologue", Value: FormatMonologue},
	{Label: "Interview", Value: FormatInterview},
}

func (t Tone) Valid() bool {
	for _, o := range Tones {
		if o.Value == t {
			return true
		}
	}
	return false
}

func (t Tone) Label() string {
	for _, o := range Tones {
		if o.Value == t {
			return o.Label
		}
	}
	return string(t)
}

func (f Format) Valid() bool {
	for _, o := range Formats {
		if o.Value == f {
			return true
		}
	}
	return false
}

func (f Format) Label() string {
	for _, o := range Formats {
		if o.Value == f {
			return o.Label
		}
	}
	return string(f)
}

// FormatByLabel maps a display label to its format value.
func FormatByLabel(label string) (Format, bool) {
	for _, o := range Formats {
		if o.Label == label {
			return o.Value, true
		}
	}
	return "", false
}
