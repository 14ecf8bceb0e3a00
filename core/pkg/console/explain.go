package console

import "strings"

type explanation struct {
	markers   []string
	icon      string
	checklist []string
}

var explanations = []explanation{
	{
		markers: []string{"Google Sheet not found", "No Google Sheet ID provided"},
		icon:    "📋",
		checklist: []string{
			"You entered the correct Google Sheet ID",
			"The Google Sheet is publicly accessible",
			"The Sheet contains the required columns",
		},
	},
	{
		markers: []string{"WordPress"},
		icon:    "🌐",
		checklist: []string{
			"Your WordPress URL is correct",
			"Your username and password are correct",
			"Your WordPress site is accessible",
		},
	},
	{
		markers: []string{"Ollama"},
		icon:    "🤖",
		checklist: []string{
			"Ollama is installed and running",
			"The Gemma model is installed",
			"You can run: ollama run gemma3:latest",
		},
	},
}

// ExplainSubmitError expands a known server rejection into a checklist for
// the user. Unknown messages are returned unchanged.
func ExplainSubmitError(message string) string {
	for _, exp := range explanations {
		for _, marker := range exp.markers {
			if !strings.Contains(message, marker) {
				continue
			}
			var sb strings.Builder
			sb.WriteString(exp.icon)
			sb.WriteByte(' ')
			sb.WriteString(message)
			sb.WriteString("\n\nPlease check that:")
			for _, item := range exp.checklist {
				sb.WriteString("\n- ")
				sb.WriteString(item)
			}
			return sb.String()
		}
	}
	return message
}
