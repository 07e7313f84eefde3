package entity

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

// TriggerType tells which inbound payload a trigger applies to.
type TriggerType string

const (
	TriggerCommand      TriggerType = "command"
	TriggerKeyword      TriggerType = "keyword"
	TriggerCallback     TriggerType = "callback"
	TriggerStartPayload TriggerType = "start_payload"
	TriggerText         TriggerType = "text"
	TriggerEvent        TriggerType = "event"
)

// MatchMode defines how a trigger pattern is compared with inbound text.
// Case rules and trimming are per-mode, not global.
type MatchMode string

const (
	MatchExact    MatchMode = "exact"
	MatchContains MatchMode = "contains"
	MatchPrefix   MatchMode = "prefix"
	MatchSuffix   MatchMode = "suffix"
	MatchRegex    MatchMode = "regex"
	MatchWildcard MatchMode = "wildcard"
)

// Trigger maps an inbound event to a funnel entry point. StepID, when set,
// overrides the funnel's default entry step.
type Trigger struct {
	ID        string      `json:"id" bson:"id"`
	BotID     string      `json:"bot_id" bson:"bot_id"`
	Type      TriggerType `json:"type" bson:"type"`
	Mode      MatchMode   `json:"match_mode" bson:"match_mode"`
	Pattern   string      `json:"pattern" bson:"pattern"`
	FunnelID  string      `json:"funnel_id" bson:"funnel_id"`
	StepID    string      `json:"step_id,omitempty" bson:"step_id,omitempty"`
	Priority  int         `json:"priority" bson:"priority"`
	Active    bool        `json:"active" bson:"active"`
	CreatedAt time.Time   `json:"created_at" bson:"created_at"`
}

// Validate rejects misconfigured triggers at creation time, so matching
// never has to deal with them.
func (t *Trigger) Validate() error {
	if strings.TrimSpace(t.Pattern) == "" {
		return fmt.Errorf("trigger pattern is empty")
	}
	if t.FunnelID == "" {
		return fmt.Errorf("trigger has no target funnel")
	}
	switch t.Type {
	case TriggerCommand:
		if !strings.HasPrefix(t.Pattern, "/") {
			return fmt.Errorf("command trigger pattern %q must start with /", t.Pattern)
		}
	case TriggerKeyword, TriggerCallback, TriggerStartPayload, TriggerText, TriggerEvent:
	default:
		return fmt.Errorf("unknown trigger type %q", t.Type)
	}
	switch t.Mode {
	case MatchExact, MatchContains, MatchPrefix, MatchSuffix, MatchWildcard:
	case MatchRegex:
		if _, err := regexp.Compile(t.Pattern); err != nil {
			return fmt.Errorf("invalid trigger regex: %w", err)
		}
	case "":
		return fmt.Errorf("trigger has no match mode")
	default:
		return fmt.Errorf("unknown match mode %q", t.Mode)
	}
	return nil
}

// Matches evaluates the trigger pattern against inbound text.
func (t *Trigger) Matches(text string) bool {
	switch t.Mode {
	case MatchExact:
		return strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(t.Pattern))
	case MatchContains:
		return strings.Contains(strings.ToLower(text), strings.ToLower(t.Pattern))
	case MatchPrefix:
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), strings.ToLower(t.Pattern))
	case MatchSuffix:
		return strings.HasSuffix(strings.ToLower(strings.TrimSpace(text)), strings.ToLower(t.Pattern))
	case MatchRegex:
		re, err := regexp.Compile(t.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	case MatchWildcard:
		ok, err := path.Match(strings.ToLower(t.Pattern), strings.ToLower(strings.TrimSpace(text)))
		return err == nil && ok
	}
	return false
}
