package entity

// EventType discriminates normalized inbound events.
type EventType string

const (
	EventMessage      EventType = "message"
	EventCommand      EventType = "command"
	EventCallback     EventType = "callback"
	EventContact      EventType = "contact"
	EventPhoto        EventType = "photo"
	EventLocation     EventType = "location"
	EventMemberUpdate EventType = "member_update"
	// EventWake is synthesized internally when a delay timer completes;
	// it never arrives from the transport.
	EventWake EventType = "wake"
)

// ContactPayload is a shared phone contact.
type ContactPayload struct {
	Phone     string `json:"phone"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// LocationPayload is a shared geo location.
type LocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// InboundEvent is a normalized chat-platform update. ID is the transport's
// monotonically increasing update identifier, used for replay suppression;
// internally synthesized events carry ID 0 and skip that check.
type InboundEvent struct {
	ID           int64            `json:"id"`
	BotID        string           `json:"bot_id"`
	UserID       int64            `json:"user_id"`
	ChatID       int64            `json:"chat_id"`
	Type         EventType        `json:"type"`
	Text         string           `json:"text,omitempty"`
	CommandArgs  string           `json:"command_args,omitempty"`
	CallbackID   string           `json:"callback_id,omitempty"`
	CallbackData string           `json:"callback_data,omitempty"`
	Contact      *ContactPayload  `json:"contact,omitempty"`
	Location     *LocationPayload `json:"location,omitempty"`
	PhotoFileID  string           `json:"photo_file_id,omitempty"`
	Blocked      *bool            `json:"blocked,omitempty"`
	FirstName    string           `json:"first_name,omitempty"`
	LastName     string           `json:"last_name,omitempty"`
	Username     string           `json:"username,omitempty"`
}

// IsCommand reports whether the event is a slash command.
func (e *InboundEvent) IsCommand() bool {
	return e.Type == EventCommand
}

// Button is one button of a keyboard. Exactly one of URL, CallbackData,
// RequestContact or RequestLocation should be set for inline/reply rows.
type Button struct {
	Text            string `json:"text" bson:"text"`
	URL             string `json:"url,omitempty" bson:"url,omitempty"`
	CallbackData    string `json:"callback_data,omitempty" bson:"callback_data,omitempty"`
	RequestContact  bool   `json:"request_contact,omitempty" bson:"request_contact,omitempty"`
	RequestLocation bool   `json:"request_location,omitempty" bson:"request_location,omitempty"`
}

// Keyboard is a reply or inline keyboard attached to an outbound message.
type Keyboard struct {
	Type        string     `json:"type" bson:"type"` // inline or reply
	Buttons     [][]Button `json:"buttons" bson:"buttons"`
	OneTime     bool       `json:"one_time,omitempty" bson:"one_time,omitempty"`
	Placeholder string     `json:"placeholder,omitempty" bson:"placeholder,omitempty"`
}

// OutboundMessage is a send action produced for the transport.
type OutboundMessage struct {
	ChatID   int64     `json:"chat_id"`
	Content  Content   `json:"content"`
	Keyboard *Keyboard `json:"keyboard,omitempty"`
}
