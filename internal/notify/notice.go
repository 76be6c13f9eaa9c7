// Package notify delivers "app disabled" notices to affected users.
package notify

import (
	"slices"

	"github.com/jw6ventures/bookings/internal/i18n"
)

// Notice tells one user that an admin disabled an app they depend on.
type Notice struct {
	ID             string
	RecipientEmail string
	RecipientName  string
	Locale         string
	AppName        string
	Categories     []string
	// EventTypeID is set when the app was switched off on an event type.
	EventTypeID *int64
}

// Message is a rendered email.
type Message struct {
	ID      string
	To      string
	Subject string
	Body    string
}

// Render localizes the notice for its recipient.
func (n Notice) Render() Message {
	tr := i18n.New(n.Locale)
	name := n.RecipientName
	if name == "" {
		name = n.RecipientEmail
	}

	var body string
	switch {
	case n.EventTypeID != nil:
		body = tr.T(i18n.AppDisabledETBody, name, n.AppName, *n.EventTypeID)
	case slices.Contains(n.Categories, "calendar") || slices.Contains(n.Categories, "video"):
		body = tr.T(i18n.AppDisabledCredBody, name, n.AppName)
	default:
		body = tr.T(i18n.AppDisabledBody, name, n.AppName)
	}

	return Message{
		ID:      n.ID,
		To:      n.RecipientEmail,
		Subject: tr.T(i18n.AppDisabledSubject, n.AppName),
		Body:    body,
	}
}
