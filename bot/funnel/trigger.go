package funnel

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"funnelgram/entity"
	"funnelgram/internal/lib/sl"
)

// Matcher selects the funnel entry point for an inbound event. Of all
// matching active triggers exactly one fires: highest priority, ties broken
// by most recent creation.
type Matcher struct {
	triggers TriggerStore
	funnels  FunnelStore
	log      *slog.Logger
}

// NewMatcher creates a trigger matcher.
func NewMatcher(triggers TriggerStore, funnels FunnelStore, log *slog.Logger) *Matcher {
	return &Matcher{
		triggers: triggers,
		funnels:  funnels,
		log:      log.With(sl.Module("funnel.matcher")),
	}
}

// Match returns the winning trigger for the event, or nil when none match.
func (m *Matcher) Match(ctx context.Context, ev *entity.InboundEvent) (*entity.Trigger, error) {
	matches, err := m.Matching(ctx, ev)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

// Matching returns every matching trigger ordered by firing precedence.
// The authoring API exposes this for test runs.
func (m *Matcher) Matching(ctx context.Context, ev *entity.InboundEvent) ([]entity.Trigger, error) {
	triggers, err := m.triggers.ActiveTriggers(ctx, ev.BotID)
	if err != nil {
		return nil, err
	}

	var matches []entity.Trigger
	for _, t := range triggers {
		if !m.applies(&t, ev) {
			continue
		}
		if t.Matches(m.subject(&t, ev)) {
			matches = append(matches, t)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority > matches[j].Priority
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches, nil
}

// applies filters triggers by the payload kind they target.
func (m *Matcher) applies(t *entity.Trigger, ev *entity.InboundEvent) bool {
	switch t.Type {
	case entity.TriggerCommand:
		return ev.Type == entity.EventCommand
	case entity.TriggerStartPayload:
		return ev.Type == entity.EventCommand && strings.HasPrefix(ev.Text, "/start") && ev.CommandArgs != ""
	case entity.TriggerCallback:
		return ev.Type == entity.EventCallback
	case entity.TriggerKeyword, entity.TriggerText:
		return ev.Type == entity.EventMessage
	case entity.TriggerEvent:
		return ev.Type == entity.EventMemberUpdate
	}
	return false
}

// subject picks the text a trigger is evaluated against.
func (m *Matcher) subject(t *entity.Trigger, ev *entity.InboundEvent) string {
	switch t.Type {
	case entity.TriggerCallback:
		return ev.CallbackData
	case entity.TriggerStartPayload:
		return ev.CommandArgs
	case entity.TriggerCommand:
		// strip bot mention and arguments: "/start@SomeBot deep" -> "/start"
		cmd := ev.Text
		if i := strings.IndexByte(cmd, ' '); i >= 0 {
			cmd = cmd[:i]
		}
		if i := strings.IndexByte(cmd, '@'); i >= 0 {
			cmd = cmd[:i]
		}
		return cmd
	}
	return ev.Text
}

// MatchKeywordStep scans active funnels for a passive trigger_keyword step
// matching the text. It is the fallback entry path when no trigger rule
// fired.
func (m *Matcher) MatchKeywordStep(ctx context.Context, botID, text string) (*entity.Funnel, *entity.Step, error) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil, nil, nil
	}

	funnels, err := m.funnels.ActiveFunnels(ctx, botID)
	if err != nil {
		return nil, nil, err
	}

	for i := range funnels {
		f := &funnels[i]
		for j := range f.Steps {
			s := &f.Steps[j]
			if s.Type != entity.StepTriggerKeyword || s.Trigger == nil {
				continue
			}
			if s.Trigger.AllMessages {
				return f, s, nil
			}
			for _, kw := range s.Trigger.Keywords {
				if keywordMatches(text, strings.ToLower(strings.TrimSpace(kw)), s.Trigger.MatchType) {
					m.log.Debug("keyword step matched",
						slog.String("funnel_id", f.ID),
						slog.String("step_id", s.ID),
						slog.String("keyword", kw),
					)
					return f, s, nil
				}
			}
		}
	}
	return nil, nil, nil
}

func keywordMatches(text, keyword, matchType string) bool {
	if keyword == "" {
		return false
	}
	switch matchType {
	case "exact":
		return text == keyword
	case "starts_with":
		return strings.HasPrefix(text, keyword)
	case "ends_with":
		return strings.HasSuffix(text, keyword)
	case "regex":
		re, err := regexp.Compile("(?i)" + keyword)
		return err == nil && re.MatchString(text)
	default: // contains
		return strings.Contains(text, keyword)
	}
}
