package chat

import (
	"time"

	"github.com/usta-app/usta-server/internal/apperr"
	"github.com/usta-app/usta-server/internal/data"
)

// ContentInput is the inbound message body before validation. Pointer
// fields distinguish "absent" from zero values so a location with only a
// latitude is rejected rather than silently landing on the equator.
type ContentInput struct {
	Text     *TextInput     `json:"text,omitempty"`
	Location *LocationInput `json:"location,omitempty"`
	Contact  *ContactInput  `json:"contact,omitempty"`
}

// TextInput is the inbound text branch.
type TextInput struct {
	Body string `json:"body"`
}

// LocationInput is the inbound location branch.
type LocationInput struct {
	Lat       *float64   `json:"lat"`
	Lng       *float64   `json:"lng"`
	Accuracy  *float64   `json:"accuracy,omitempty"`
	Timestamp *time.Time `json:"ts,omitempty"`
}

// ContactInput is the inbound contact branch.
type ContactInput struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// buildContent checks the tagged-union rules and converts the input into
// the stored form: exactly one branch populated, and that branch must
// match the declared message type.
func buildContent(msgType data.MessageType, in ContentInput) (data.MessageContent, error) {
	populated := 0
	if in.Text != nil {
		populated++
	}
	if in.Location != nil {
		populated++
	}
	if in.Contact != nil {
		populated++
	}
	if populated == 0 {
		return data.MessageContent{}, apperr.Validation("message content is empty")
	}
	if populated > 1 {
		return data.MessageContent{}, apperr.Validation("message content must populate exactly one branch, got %d", populated)
	}

	switch msgType {
	case data.MessageText:
		if in.Text == nil {
			return data.MessageContent{}, apperr.Validation("message type %q requires the text branch", msgType)
		}
		if in.Text.Body == "" {
			return data.MessageContent{}, apperr.Validation("text message body must not be empty")
		}
		return data.MessageContent{Text: &data.TextContent{Body: in.Text.Body}}, nil

	case data.MessageLocation:
		if in.Location == nil {
			return data.MessageContent{}, apperr.Validation("message type %q requires the location branch", msgType)
		}
		if in.Location.Lat == nil || in.Location.Lng == nil {
			return data.MessageContent{}, apperr.Validation("location messages require both lat and lng")
		}
		loc := &data.LocationContent{
			Lat:       *in.Location.Lat,
			Lng:       *in.Location.Lng,
			Timestamp: in.Location.Timestamp,
		}
		if in.Location.Accuracy != nil {
			loc.Accuracy = *in.Location.Accuracy
		}
		return data.MessageContent{Location: loc}, nil

	case data.MessageContact:
		if in.Contact == nil {
			return data.MessageContent{}, apperr.Validation("message type %q requires the contact branch", msgType)
		}
		if in.Contact.Name == "" {
			return data.MessageContent{}, apperr.Validation("contact messages require a name")
		}
		return data.MessageContent{Contact: &data.ContactContent{
			Name:  in.Contact.Name,
			Phone: in.Contact.Phone,
			Email: in.Contact.Email,
		}}, nil

	default:
		return data.MessageContent{}, apperr.Validation("unknown message type %q", msgType)
	}
}
