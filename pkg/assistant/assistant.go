// Package assistant serves conversational questions about skin
// conditions. It reuses the provider stack but speaks through the Chat
// capability instead of the staged Execute path.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dermapipe/dermapipe/pkg/provider"
)

const systemPromptBase = `You are a medical AI assistant for a skin diagnosis application.
You provide helpful information about skin conditions, explain diagnoses,
and offer general guidance. Always recommend consulting a dermatologist
for serious concerns.

IMPORTANT:
- Do NOT provide definitive diagnoses
- Always recommend professional consultation for concerning symptoms
- Be empathetic and supportive
- Answer based on verified medical information only
- If uncertain, say so clearly
`

const patientAddendum = `
You are speaking with a patient. Be clear, avoid jargon, and be reassuring.
Focus on education and understanding of skin conditions.
`

const doctorAddendum = `
You are speaking with a verified doctor. You can use medical terminology.
Focus on clinical information, research, and treatment protocols.
`

const fallbackResponse = "I'm currently unable to process your request due to " +
	"technical difficulties. Please try again in a few moments. " +
	"For urgent medical concerns, please consult a healthcare provider."

// historyWindow bounds how many prior turns are replayed to the model.
const historyWindow = 5

// Context personalizes a conversation.
type Context struct {
	// UserType is "patient" or "doctor"; anything else gets the base
	// persona only.
	UserType string

	// RecentDiagnoses summarizes the patient's latest pipeline verdicts.
	RecentDiagnoses []string

	// Specialties lists a doctor's fields of practice.
	Specialties []string
}

// Assistant answers free-form questions over an ordered provider chain,
// falling to the next provider when one fails and to a static apology
// when the whole chain fails.
type Assistant struct {
	providers []provider.Provider
	log       *logrus.Entry
}

// New builds an assistant over providers tried in order.
func New(providers ...provider.Provider) *Assistant {
	return &Assistant{
		providers: providers,
		log:       logrus.WithField("component", "assistant"),
	}
}

// Generate answers message given the conversation so far. History older
// than the replay window is dropped. Chain exhaustion degrades to a
// static apology rather than an error so chat never hard-fails.
func (a *Assistant) Generate(ctx context.Context, message string, convCtx Context, history []provider.Message) string {
	messages := make([]provider.Message, 0, historyWindow+2)
	messages = append(messages, provider.Message{
		Role:    "system",
		Content: buildSystemPrompt(convCtx),
	})

	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	messages = append(messages, history...)
	messages = append(messages, provider.Message{Role: "user", Content: message})

	for _, p := range a.providers {
		reply, err := p.Chat(ctx, messages)
		if err != nil {
			a.log.WithField("provider", p.Name()).WithError(err).Warn("assistant provider failed")
			continue
		}
		if strings.TrimSpace(reply) == "" {
			a.log.WithField("provider", p.Name()).Warn("assistant provider returned empty reply")
			continue
		}
		return reply
	}

	a.log.Warn("all assistant providers failed")
	return fallbackResponse
}

func buildSystemPrompt(c Context) string {
	var b strings.Builder
	b.WriteString(systemPromptBase)

	switch c.UserType {
	case "patient":
		b.WriteString(patientAddendum)
		if len(c.RecentDiagnoses) > 0 {
			fmt.Fprintf(&b, "\nPatient's recent diagnoses: %s", strings.Join(c.RecentDiagnoses, ", "))
		}
	case "doctor":
		b.WriteString(doctorAddendum)
		if len(c.Specialties) > 0 {
			fmt.Fprintf(&b, "\nDoctor's specialties: %s", strings.Join(c.Specialties, ", "))
		}
	}
	return b.String()
}
