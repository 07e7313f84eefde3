package entity

import (
	"strings"
	"testing"
)

func validFunnel() *Funnel {
	return &Funnel{
		ID:          "f1",
		BotID:       "bot",
		Name:        "lead magnet",
		FirstStepID: "hello",
		Steps: []Step{
			{ID: "hello", Name: "hello", Type: StepMessage,
				Content: &Content{Type: "text", Text: "hi"}, NextStepID: "ask"},
			{ID: "ask", Name: "ask", Type: StepInput,
				InputKind: InputEmail, InputField: "email", NextStepID: "done"},
			{ID: "done", Name: "done", Type: StepMessage,
				Content: &Content{Type: "text", Text: "bye"}},
		},
	}
}

func TestFunnelValidateOK(t *testing.T) {
	if err := validFunnel().Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestFunnelValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *Funnel)
		wantSub string
	}{
		{
			name:    "no steps",
			mutate:  func(f *Funnel) { f.Steps = nil },
			wantSub: "no steps",
		},
		{
			name:    "missing entry",
			mutate:  func(f *Funnel) { f.FirstStepID = "" },
			wantSub: "no entry step",
		},
		{
			name:    "entry does not exist",
			mutate:  func(f *Funnel) { f.FirstStepID = "nope" },
			wantSub: "does not exist",
		},
		{
			name:    "duplicate step id",
			mutate:  func(f *Funnel) { f.Steps[2].ID = "hello" },
			wantSub: "duplicate step identifier",
		},
		{
			name:    "dangling edge",
			mutate:  func(f *Funnel) { f.Steps[1].NextStepID = "ghost" },
			wantSub: "missing step",
		},
		{
			name:    "message without content",
			mutate:  func(f *Funnel) { f.Steps[0].Content = nil },
			wantSub: "no content",
		},
		{
			name:    "input without field",
			mutate:  func(f *Funnel) { f.Steps[1].InputField = "" },
			wantSub: "no target field",
		},
		{
			name: "delay without duration",
			mutate: func(f *Funnel) {
				f.Steps[2] = Step{ID: "done", Name: "done", Type: StepDelay}
			},
			wantSub: "positive duration",
		},
		{
			name: "ab weights off",
			mutate: func(f *Funnel) {
				f.Steps[2] = Step{ID: "done", Name: "split", Type: StepABTest,
					ABTest: &ABTest{Variants: []ABVariant{
						{Name: "a", Percent: 60, NextStepID: "hello"},
						{Name: "b", Percent: 30, NextStepID: "hello"},
					}}}
			},
			wantSub: "sum to 90",
		},
		{
			name: "duplicate quiz keys",
			mutate: func(f *Funnel) {
				f.Steps[2] = Step{ID: "done", Name: "quiz", Type: StepQuiz,
					Quiz: &Quiz{Question: "?", Options: []QuizOption{
						{Key: "x", Label: "one", NextStepID: "hello"},
						{Key: "x", Label: "two", NextStepID: "hello"},
					}}}
			},
			wantSub: "duplicate quiz option key",
		},
		{
			name: "tag with unknown action",
			mutate: func(f *Funnel) {
				f.Steps[2] = Step{ID: "done", Name: "tag", Type: StepTag,
					Tag: &TagOp{Action: "toggle", Tags: []string{"vip"}}}
			},
			wantSub: "unknown action",
		},
		{
			name: "unknown step type",
			mutate: func(f *Funnel) {
				f.Steps[2] = Step{ID: "done", Name: "mystery", Type: "teleport"}
			},
			wantSub: "unknown step type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFunnel()
			tt.mutate(f)
			err := f.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantSub)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate() = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestStepEdges(t *testing.T) {
	cond := Step{Type: StepCondition, TrueStepID: "a", FalseStepID: ""}
	if got := cond.Edges(); len(got) != 1 || got[0] != "a" {
		t.Errorf("condition Edges() = %v, want [a]", got)
	}

	quiz := Step{Type: StepQuiz, Quiz: &Quiz{Options: []QuizOption{
		{Key: "1", NextStepID: "x"},
		{Key: "2", NextStepID: "y"},
		{Key: "3"},
	}}}
	if got := quiz.Edges(); len(got) != 2 {
		t.Errorf("quiz Edges() = %v, want [x y]", got)
	}

	terminal := Step{Type: StepMessage}
	if got := terminal.Edges(); len(got) != 0 {
		t.Errorf("terminal Edges() = %v, want empty", got)
	}
}

func TestFunnelStepLookup(t *testing.T) {
	f := validFunnel()
	if s := f.Step("ask"); s == nil || s.ID != "ask" {
		t.Errorf("Step(ask) = %v, want the ask step", s)
	}
	if s := f.Step("ghost"); s != nil {
		t.Errorf("Step(ghost) = %v, want nil", s)
	}
}
