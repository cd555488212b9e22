package bot

import (
	"Scripter/form"
	"fmt"
	"math"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

const (
	submitLabel     = "Generate Script"
	submitBusyLabel = "Generating..."

	minTemperature  = 0.1
	maxTemperature  = 1.0
	temperatureStep = 0.1
	minDuration     = 1
	maxDuration     = 60

	maxMessageLength = 4000
)

// callback data
const (
	dataGenerate  = "generate"
	prefixTone    = "tone:"
	prefixFormat  = "format:"
	dataTempDown  = "temp:-"
	dataTempUp    = "temp:+"
	dataDurDown   = "dur:-"
	dataDurUp     = "dur:+"
	selectedMark  = "• "
	scriptHeading = "Generated Script:"
)

func buttonLabel(busy bool) string {
	if busy {
		return submitBusyLabel
	}
	return submitLabel
}

func formText(v form.Values) string {
	topic := v.Topic
	if topic == "" {
		topic = "(not set, send /topic <text>)"
	}
	var b strings.Builder
	b.WriteString("Podcast Script Generator\n\n")
	fmt.Fprintf(&b, "Topic: %s\n", topic)
	fmt.Fprintf(&b, "Tone: %s\n", v.Tone.Label())
	fmt.Fprintf(&b, "Format: %s\n", v.Format.Label())
	fmt.Fprintf(&b, "Variation Level (Temperature): %s\n", formatTemperature(v.Temperature))
	fmt.Fprintf(&b, "Duration (minutes): %d", v.DurationMinutes)
	if v.Busy {
		b.WriteString("\n\n" + submitBusyLabel)
	}
	return b.String()
}

func formKeyboard(v form.Values) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	var tones []tgbotapi.InlineKeyboardButton
	for _, o := range form.Tones {
		tones = append(tones, tgbotapi.NewInlineKeyboardButtonData(mark(o.Label, o.Value == v.Tone), prefixTone+string(o.Value)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tones...))

	var formats []tgbotapi.InlineKeyboardButton
	for _, o := range form.Formats {
		formats = append(formats, tgbotapi.NewInlineKeyboardButtonData(mark(o.Label, o.Value == v.Format), prefixFormat+string(o.Value)))
		if len(formats) == 2 {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(formats...))
			formats = nil
		}
	}
	if len(formats) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(formats...))
	}

	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Temperature -", dataTempDown),
			tgbotapi.NewInlineKeyboardButtonData("Temperature +", dataTempUp),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Duration -", dataDurDown),
			tgbotapi.NewInlineKeyboardButtonData("Duration +", dataDurUp),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(buttonLabel(v.Busy), dataGenerate),
		),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func mark(label string, selected bool) string {
	if selected {
		return selectedMark + label
	}
	return label
}

func formatTemperature(t float64) string {
	return strconv.FormatFloat(t, 'f', 1, 64)
}

// stepTemperature moves t by delta steps on the slider grid.
func stepTemperature(t float64, delta int) float64 {
	next := math.Round(t*10)/10 + float64(delta)*temperatureStep
	next = math.Round(next*10) / 10
	return math.Min(maxTemperature, math.Max(minTemperature, next))
}

func stepDuration(minutes, delta int) int {
	return min(maxDuration, max(minDuration, minutes+delta))
}

// splitText cuts text into chunks that fit a single Telegram message.
func splitText(text string, limit int) []string {
	runes := []rune(text)
	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func parseTone(arg string) (form.Tone, bool) {
	arg = strings.TrimSpace(arg)
	for _, o := range form.Tones {
		if strings.EqualFold(arg, string(o.Value)) || strings.EqualFold(arg, o.Label) {
			return o.Value, true
		}
	}
	return "", false
}

func parseFormat(arg string) (form.Format, bool) {
	arg = strings.TrimSpace(arg)
	for _, o := range form.Formats {
		if strings.EqualFold(arg, string(o.Value)) || strings.EqualFold(arg, o.Label) {
			return o.Value, true
		}
	}
	return "", false
}
