package funnel

import (
	"context"
	"testing"
	"time"

	"funnelgram/entity"
)

func TestMatcherPrecedence(t *testing.T) {
	now := time.Now()
	triggers := &fakeTriggers{triggers: []entity.Trigger{
		{ID: "old-low", BotID: "bot", Type: entity.TriggerKeyword, Mode: entity.MatchContains,
			Pattern: "promo", FunnelID: "f1", Priority: 1, Active: true, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "high", BotID: "bot", Type: entity.TriggerKeyword, Mode: entity.MatchContains,
			Pattern: "promo", FunnelID: "f2", Priority: 10, Active: true, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "new-low", BotID: "bot", Type: entity.TriggerKeyword, Mode: entity.MatchContains,
			Pattern: "promo", FunnelID: "f3", Priority: 1, Active: true, CreatedAt: now.Add(-1 * time.Hour)},
		{ID: "inactive", BotID: "bot", Type: entity.TriggerKeyword, Mode: entity.MatchContains,
			Pattern: "promo", FunnelID: "f4", Priority: 100, Active: false, CreatedAt: now},
	}}
	m := NewMatcher(triggers, &fakeFunnels{}, testLogger())

	ev := &entity.InboundEvent{BotID: "bot", Type: entity.EventMessage, Text: "show me the promo"}

	got, err := m.Match(context.Background(), ev)
	if err != nil {
		t.Fatalf("Match() error = %v", err)
	}
	if got == nil || got.ID != "high" {
		t.Fatalf("Match() = %v, want trigger high", got)
	}

	all, err := m.Matching(context.Background(), ev)
	if err != nil {
		t.Fatalf("Matching() error = %v", err)
	}
	wantOrder := []string{"high", "new-low", "old-low"}
	if len(all) != len(wantOrder) {
		t.Fatalf("Matching() returned %d triggers, want %d", len(all), len(wantOrder))
	}
	for i, id := range wantOrder {
		if all[i].ID != id {
			t.Errorf("Matching()[%d] = %s, want %s", i, all[i].ID, id)
		}
	}
}

func TestMatcherPayloadKinds(t *testing.T) {
	triggers := &fakeTriggers{triggers: []entity.Trigger{
		{ID: "cmd", BotID: "bot", Type: entity.TriggerCommand, Mode: entity.MatchExact,
			Pattern: "/start", FunnelID: "f1", Active: true},
		{ID: "deep", BotID: "bot", Type: entity.TriggerStartPayload, Mode: entity.MatchExact,
			Pattern: "summer", FunnelID: "f2", Priority: 5, Active: true},
		{ID: "cb", BotID: "bot", Type: entity.TriggerCallback, Mode: entity.MatchPrefix,
			Pattern: "buy:", FunnelID: "f3", Active: true},
		{ID: "evt", BotID: "bot", Type: entity.TriggerEvent, Mode: entity.MatchExact,
			Pattern: "member", FunnelID: "f4", Active: true},
	}}
	m := NewMatcher(triggers, &fakeFunnels{}, testLogger())

	tests := []struct {
		name   string
		ev     entity.InboundEvent
		wantID string
	}{
		{
			name:   "plain command with bot mention",
			ev:     entity.InboundEvent{Type: entity.EventCommand, Text: "/start@SomeBot"},
			wantID: "cmd",
		},
		{
			name: "start payload outranks plain command",
			ev: entity.InboundEvent{Type: entity.EventCommand,
				Text: "/start summer", CommandArgs: "summer"},
			wantID: "deep",
		},
		{
			name:   "callback data",
			ev:     entity.InboundEvent{Type: entity.EventCallback, CallbackData: "buy:42"},
			wantID: "cb",
		},
		{
			name:   "member update matches event trigger",
			ev:     entity.InboundEvent{Type: entity.EventMemberUpdate, Text: "member"},
			wantID: "evt",
		},
		{
			name:   "keyword trigger ignores callbacks",
			ev:     entity.InboundEvent{Type: entity.EventCallback, CallbackData: "/start"},
			wantID: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.ev.BotID = "bot"
			got, err := m.Match(context.Background(), &tt.ev)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if tt.wantID == "" {
				if got != nil {
					t.Fatalf("Match() = %v, want nil", got)
				}
				return
			}
			if got == nil || got.ID != tt.wantID {
				t.Fatalf("Match() = %v, want %s", got, tt.wantID)
			}
		})
	}
}

func TestMatchKeywordStep(t *testing.T) {
	funnels := &fakeFunnels{funnels: []entity.Funnel{
		{ID: "f1", BotID: "bot", Active: true, FirstStepID: "s1", Steps: []entity.Step{
			{ID: "s1", Type: entity.StepMessage, Content: &entity.Content{Type: "text", Text: "hi"}},
			{ID: "kw", Type: entity.StepTriggerKeyword, NextStepID: "s1",
				Trigger: &entity.KeywordTrigger{Keywords: []string{"Pricing"}, MatchType: "exact"}},
		}},
		{ID: "f2", BotID: "bot", Active: false, FirstStepID: "s1", Steps: []entity.Step{
			{ID: "kw", Type: entity.StepTriggerKeyword,
				Trigger: &entity.KeywordTrigger{Keywords: []string{"hidden"}, MatchType: "exact"}},
		}},
	}}
	m := NewMatcher(&fakeTriggers{}, funnels, testLogger())

	f, step, err := m.MatchKeywordStep(context.Background(), "bot", "  pricing ")
	if err != nil {
		t.Fatalf("MatchKeywordStep() error = %v", err)
	}
	if f == nil || f.ID != "f1" || step == nil || step.ID != "kw" {
		t.Fatalf("MatchKeywordStep() = (%v, %v), want funnel f1 step kw", f, step)
	}

	f, _, err = m.MatchKeywordStep(context.Background(), "bot", "hidden")
	if err != nil {
		t.Fatalf("MatchKeywordStep() error = %v", err)
	}
	if f != nil {
		t.Errorf("inactive funnel matched keyword step")
	}

	f, _, err = m.MatchKeywordStep(context.Background(), "bot", "")
	if err != nil || f != nil {
		t.Errorf("empty text matched, got (%v, %v)", f, err)
	}
}

func TestKeywordMatchModes(t *testing.T) {
	tests := []struct {
		text, keyword, mode string
		want                bool
	}{
		{"hello there", "hello", "starts_with", true},
		{"say hello", "hello", "starts_with", false},
		{"say hello", "hello", "ends_with", true},
		{"order 42 now", `\d+`, "regex", true},
		{"no digits", `\d+`, "regex", false},
		{"middle word here", "word", "contains", true},
		{"anything", "", "contains", false},
	}
	for _, tt := range tests {
		if got := keywordMatches(tt.text, tt.keyword, tt.mode); got != tt.want {
			t.Errorf("keywordMatches(%q, %q, %s) = %v, want %v",
				tt.text, tt.keyword, tt.mode, got, tt.want)
		}
	}
}
