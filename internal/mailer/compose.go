// Package mailer turns notifications into e-mails and delivers them.
package mailer

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/ammar1510/rideshare/internal/models"
)

const (
	SubjectDefault = "New Notification from RideShare"
	SubjectTrip    = "Trip Update from RideShare"
	SubjectBooking = "Booking Update from RideShare"
)

type Email struct {
	To      string
	Subject string
	HTML    string
}

var body = template.Must(template.New("notification").Parse(`<html>
  <body style="font-family: Arial, sans-serif; padding: 20px; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; border: 1px solid #ddd; border-radius: 5px; padding: 20px;">
      <h2 style="color: #2563eb;">Hello {{.Name}},</h2>
      <p>{{.Message}}</p>
      {{- with .Trip}}
      <p>Trip details:</p>
      <ul>
        <li>From: {{.Origin}}</li>
        <li>To: {{.Destination}}</li>
        <li>Date: {{.DepartureDate.Format "Jan 2, 2006"}}</li>
      </ul>
      <p><a href="{{$.TripURL}}" style="color: #2563eb;">View Trip Details</a></p>
      {{- end}}
      {{- if .BookingsURL}}
      <p><a href="{{.BookingsURL}}" style="color: #2563eb;">View Your Bookings</a></p>
      {{- end}}
      <p style="margin-top: 20px; padding-top: 20px; border-top: 1px solid #ddd; font-size: 12px; color: #666;">
        This is an automated message from RideShare. Please do not reply to this email.
      </p>
    </div>
  </body>
</html>
`))

type bodyData struct {
	Name        string
	Message     string
	Trip        *models.Trip
	TripURL     string
	BookingsURL string
}

// Compose builds the e-mail for a notification. trip is the related trip
// when it could be loaded. A booking reference takes precedence over the
// trip for the subject.
func Compose(n *models.Notification, to string, profile *models.Profile, trip *models.Trip, baseURL string) (Email, error) {
	data := bodyData{
		Name:    profile.DisplayName(),
		Message: n.Message,
	}
	subject := SubjectDefault
	if trip != nil {
		subject = SubjectTrip
		data.Trip = trip
		data.TripURL = fmt.Sprintf("%s/trips/%s", baseURL, trip.ID)
	}
	if n.RelatedBookingID != nil {
		subject = SubjectBooking
		data.BookingsURL = baseURL + "/my-bookings"
	}

	var buf bytes.Buffer
	if err := body.Execute(&buf, data); err != nil {
		return Email{}, fmt.Errorf("render notification %s: %w", n.ID, err)
	}
	return Email{To: to, Subject: subject, HTML: buf.String()}, nil
}
