package funnel

import (
	"fmt"
	"strings"

	"funnelgram/entity"
)

// renderTemplate substitutes {placeholder} variables in message text from
// the subscriber profile and the collected field bag. Unknown placeholders
// are left untouched.
func renderTemplate(text string, state *entity.ConversationState, sub *entity.Subscriber) string {
	if text == "" || !strings.Contains(text, "{") {
		return text
	}

	pairs := []string{
		"{first_name}", "",
		"{last_name}", "",
		"{full_name}", "",
		"{username}", "",
		"{phone}", "",
	}
	if sub != nil {
		pairs = []string{
			"{first_name}", sub.FirstName,
			"{last_name}", sub.LastName,
			"{full_name}", sub.FullName(),
			"{username}", usernameMention(sub.Username),
			"{phone}", sub.Phone,
		}
	}
	if state != nil {
		for key, value := range state.Fields {
			switch v := value.(type) {
			case string:
				pairs = append(pairs, "{"+key+"}", v)
			case float64, int, int64, bool:
				pairs = append(pairs, "{"+key+"}", fmt.Sprintf("%v", v))
			}
		}
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

func usernameMention(username string) string {
	if username == "" {
		return ""
	}
	return "@" + username
}
