package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dermapipe/dermapipe/pkg/provider"
)

type chatStub struct {
	name    string
	reply   string
	err     error
	lastMsg []provider.Message
}

func (s *chatStub) Name() string { return s.name }

func (s *chatStub) Execute(context.Context, provider.Task, provider.Input) (*provider.Output, error) {
	return nil, errors.New("not used")
}

func (s *chatStub) Chat(_ context.Context, messages []provider.Message) (string, error) {
	s.lastMsg = messages
	return s.reply, s.err
}

func TestGenerateUsesFirstProvider(t *testing.T) {
	first := &chatStub{name: "a", reply: "from a"}
	second := &chatStub{name: "b", reply: "from b"}

	a := New(first, second)
	got := a.Generate(context.Background(), "hello", Context{UserType: "patient"}, nil)

	if got != "from a" {
		t.Errorf("reply = %q, want first provider's", got)
	}
	if second.lastMsg != nil {
		t.Error("second provider should not be consulted")
	}
}

func TestGenerateFallsThroughOnError(t *testing.T) {
	first := &chatStub{name: "a", err: errors.New("down")}
	second := &chatStub{name: "b", reply: "from b"}

	a := New(first, second)
	got := a.Generate(context.Background(), "hello", Context{}, nil)

	if got != "from b" {
		t.Errorf("reply = %q, want fallback provider's", got)
	}
}

func TestGenerateStaticFallbackWhenAllFail(t *testing.T) {
	a := New(&chatStub{name: "a", err: errors.New("down")})

	got := a.Generate(context.Background(), "hello", Context{}, nil)
	if got != fallbackResponse {
		t.Errorf("reply = %q, want the static fallback", got)
	}
}

func TestGenerateSkipsEmptyReply(t *testing.T) {
	first := &chatStub{name: "a", reply: "   "}
	second := &chatStub{name: "b", reply: "real answer"}

	a := New(first, second)
	if got := a.Generate(context.Background(), "hello", Context{}, nil); got != "real answer" {
		t.Errorf("reply = %q", got)
	}
}

func TestGenerateWindowsHistory(t *testing.T) {
	stub := &chatStub{name: "a", reply: "ok"}
	a := New(stub)

	var history []provider.Message
	for i := 0; i < 12; i++ {
		history = append(history, provider.Message{Role: "user", Content: "old"})
	}
	history = append(history, provider.Message{Role: "user", Content: "recent"})

	a.Generate(context.Background(), "now", Context{}, history)

	// system + last 5 history turns + current message.
	if len(stub.lastMsg) != historyWindow+2 {
		t.Fatalf("messages sent = %d, want %d", len(stub.lastMsg), historyWindow+2)
	}
	if stub.lastMsg[0].Role != "system" {
		t.Error("first message must be the system prompt")
	}
	if stub.lastMsg[len(stub.lastMsg)-2].Content != "recent" {
		t.Error("most recent history turn must survive the window")
	}
	if stub.lastMsg[len(stub.lastMsg)-1].Content != "now" {
		t.Error("user message must come last")
	}
}

func TestSystemPromptByUserType(t *testing.T) {
	patient := buildSystemPrompt(Context{UserType: "patient", RecentDiagnoses: []string{"psoriasis"}})
	if !strings.Contains(patient, "avoid jargon") || !strings.Contains(patient, "psoriasis") {
		t.Error("patient prompt must use the patient persona and include history")
	}

	doctor := buildSystemPrompt(Context{UserType: "doctor", Specialties: []string{"dermatology"}})
	if !strings.Contains(doctor, "medical terminology") || !strings.Contains(doctor, "dermatology") {
		t.Error("doctor prompt must use the clinical persona and include specialties")
	}

	anon := buildSystemPrompt(Context{})
	if strings.Contains(anon, "avoid jargon") || strings.Contains(anon, "medical terminology") {
		t.Error("unknown user type gets the base persona only")
	}
}
