package entity

import "testing"

func TestTriggerMatches(t *testing.T) {
	tests := []struct {
		name    string
		mode    MatchMode
		pattern string
		text    string
		want    bool
	}{
		{"exact ignores case and space", MatchExact, "Hello", "  hello ", true},
		{"exact rejects superstring", MatchExact, "hello", "hello there", false},
		{"contains", MatchContains, "price", "what is the PRICE today", true},
		{"contains miss", MatchContains, "price", "how much", false},
		{"prefix", MatchPrefix, "/start", "/start promo", true},
		{"suffix", MatchSuffix, "help", "i need HELP", true},
		{"regex", MatchRegex, `^\d{4}$`, "1234", true},
		{"regex miss", MatchRegex, `^\d{4}$`, "12345", false},
		{"invalid regex never matches", MatchRegex, `([`, "anything", false},
		{"wildcard", MatchWildcard, "order-*", "Order-42", true},
		{"wildcard miss", MatchWildcard, "order-*", "my order-42", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := Trigger{Mode: tt.mode, Pattern: tt.pattern}
			if got := tr.Matches(tt.text); got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestTriggerValidate(t *testing.T) {
	base := Trigger{
		Type: TriggerKeyword, Mode: MatchContains,
		Pattern: "promo", FunnelID: "f1",
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	tests := []struct {
		name   string
		mutate func(tr *Trigger)
	}{
		{"empty pattern", func(tr *Trigger) { tr.Pattern = "  " }},
		{"no funnel", func(tr *Trigger) { tr.FunnelID = "" }},
		{"command without slash", func(tr *Trigger) { tr.Type = TriggerCommand; tr.Pattern = "start" }},
		{"unknown type", func(tr *Trigger) { tr.Type = "gesture" }},
		{"no match mode", func(tr *Trigger) { tr.Mode = "" }},
		{"unknown match mode", func(tr *Trigger) { tr.Mode = "fuzzy" }},
		{"broken regex", func(tr *Trigger) { tr.Mode = MatchRegex; tr.Pattern = "([" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := base
			tt.mutate(&tr)
			if err := tr.Validate(); err == nil {
				t.Errorf("Validate() = nil, want error")
			}
		})
	}
}
