package ui

import (
	"testing"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"

	"funnelgram/entity"
)

func TestMarkup(t *testing.T) {
	if got := Markup(nil); got != nil {
		t.Errorf("Markup(nil) = %v, want nil", got)
	}
	if got := Markup(&entity.Keyboard{Type: "inline"}); got != nil {
		t.Errorf("Markup(empty) = %v, want nil", got)
	}

	inline := Markup(&entity.Keyboard{
		Type:    "inline",
		Buttons: [][]entity.Button{{{Text: "Go", CallbackData: "go"}}},
	})
	im, ok := inline.(tgbotapi.InlineKeyboardMarkup)
	if !ok || im.InlineKeyboard[0][0].CallbackData != "go" {
		t.Errorf("inline markup = %+v", inline)
	}

	reply := Markup(ContactRequestKeyboard("Share phone"))
	rm, ok := reply.(tgbotapi.ReplyKeyboardMarkup)
	if !ok || !rm.Keyboard[0][0].RequestContact || !rm.OneTimeKeyboard {
		t.Errorf("contact request markup = %+v", reply)
	}

	remove := Markup(&entity.Keyboard{Type: "remove"})
	if _, ok := remove.(tgbotapi.ReplyKeyboardRemove); !ok {
		t.Errorf("remove markup = %+v", remove)
	}
}
