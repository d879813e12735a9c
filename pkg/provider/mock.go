package provider

import (
	"context"
	"fmt"
	"sync"
)

// Mock returns deterministic outputs for local runs and tests.
type Mock struct {
	name      string
	mu        sync.Mutex
	outputs   map[Task]*Output
	err       error
	chatReply string
	calls     []Task
}

// NewMock creates a mock provider answering every task with a canned,
// valid-looking result.
func NewMock() *Mock {
	conf := 0.9
	yes := true
	return &Mock{
		name: "mock",
		outputs: map[Task]*Output{
			TaskValidation:     {IsSkin: &yes, IsMedical: &yes, IsUsable: &yes, Confidence: &conf},
			TaskNormalAbnormal: {Classification: "abnormal", Confidence: &conf},
			TaskCategory:       {Category: "inflammatory", Confidence: &conf},
			TaskDiagnosis:      {Disease: "atopic_dermatitis", Severity: "moderate", Confidence: &conf},
			TaskFusion:         {Diagnosis: "atopic_dermatitis", Urgency: "routine", Confidence: &conf},
		},
		chatReply: "mock response",
	}
}

// NewMockWithOutputs creates a mock provider with explicit per-task outputs.
func NewMockWithOutputs(name string, outputs map[Task]*Output) *Mock {
	if name == "" {
		name = "mock"
	}
	return &Mock{name: name, outputs: outputs, chatReply: "mock response"}
}

// Fail makes every subsequent call return err.
func (p *Mock) Fail(err error) *Mock {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	return p
}

// Name returns the provider identifier.
func (p *Mock) Name() string {
	return p.name
}

// Calls returns the tasks executed so far.
func (p *Mock) Calls() []Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Task, len(p.calls))
	copy(out, p.calls)
	return out
}

// Execute returns the canned output for the task.
func (p *Mock) Execute(_ context.Context, task Task, _ Input) (*Output, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, task)
	if p.err != nil {
		return nil, p.err
	}
	out, ok := p.outputs[task]
	if !ok {
		return nil, fmt.Errorf("mock: no output for task %q", task)
	}
	return out, nil
}

// Chat returns the canned chat reply.
func (p *Mock) Chat(_ context.Context, _ []Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	return p.chatReply, nil
}
