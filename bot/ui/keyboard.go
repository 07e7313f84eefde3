package ui

import (
	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"

	"funnelgram/entity"
)

// Markup converts a stored keyboard definition into the Telegram reply
// markup. A nil keyboard yields nil, which sends without markup.
func Markup(kb *entity.Keyboard) tgbotapi.ReplyMarkup {
	if kb == nil {
		return nil
	}
	if kb.Type == "remove" {
		return RemoveKeyboard()
	}
	if len(kb.Buttons) == 0 {
		return nil
	}
	if kb.Type == "reply" {
		return replyMarkup(kb)
	}
	return inlineMarkup(kb)
}

func inlineMarkup(kb *entity.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, len(kb.Buttons))
	for i, row := range kb.Buttons {
		buttons := make([]tgbotapi.InlineKeyboardButton, len(row))
		for j, b := range row {
			buttons[j] = tgbotapi.InlineKeyboardButton{
				Text:         b.Text,
				Url:          b.URL,
				CallbackData: b.CallbackData,
			}
		}
		rows[i] = buttons
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func replyMarkup(kb *entity.Keyboard) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, len(kb.Buttons))
	for i, row := range kb.Buttons {
		buttons := make([]tgbotapi.KeyboardButton, len(row))
		for j, b := range row {
			buttons[j] = tgbotapi.KeyboardButton{
				Text:            b.Text,
				RequestContact:  b.RequestContact,
				RequestLocation: b.RequestLocation,
			}
		}
		rows[i] = buttons
	}
	return tgbotapi.ReplyKeyboardMarkup{
		Keyboard:              rows,
		ResizeKeyboard:        true,
		OneTimeKeyboard:       kb.OneTime,
		InputFieldPlaceholder: kb.Placeholder,
	}
}

// ContactRequestKeyboard builds a one-time reply keyboard with a contact
// request button, for phone input prompts.
func ContactRequestKeyboard(buttonText string) *entity.Keyboard {
	return &entity.Keyboard{
		Type: "reply",
		Buttons: [][]entity.Button{
			{{Text: buttonText, RequestContact: true}},
		},
		OneTime: true,
	}
}

// RemoveKeyboard hides any custom reply keyboard.
func RemoveKeyboard() tgbotapi.ReplyKeyboardRemove {
	return tgbotapi.ReplyKeyboardRemove{RemoveKeyboard: true}
}
