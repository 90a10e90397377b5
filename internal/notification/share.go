package notification

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"grillbook/internal/models"
	"grillbook/internal/timeutil"
)

// ShareLinks lets a resident forward the cancellation code to themselves.
type ShareLinks struct {
	Email    string `json:"email"`
	WhatsApp string `json:"whatsapp"`
}

// ShareMessage builds the subject and plain-text body describing the code.
func ShareMessage(r *models.Reservation, code string, loc *time.Location) (subject, body string) {
	if loc == nil {
		loc = time.Local
	}
	start := r.StartTime.In(loc)
	end := r.EndTime.In(loc)

	subject = "Cancellation code for reservation: " + r.Title
	body = fmt.Sprintf(`Hello %s,

Here is your cancellation code for the reservation %q:

%s

Reservation details:
- Date: %s
- Time: %s - %s
- Booked by: %s

Keep this code. You need it to cancel the reservation.
`, r.Name, r.Title, code, timeutil.FormatDate(start), timeutil.FormatTime(start), timeutil.FormatTime(end), r.Name)
	return subject, body
}

func NewShareLinks(r *models.Reservation, code string, loc *time.Location) ShareLinks {
	subject, body := ShareMessage(r, code, loc)
	return ShareLinks{
		Email:    "mailto:?subject=" + encodeComponent(subject) + "&body=" + encodeComponent(body),
		WhatsApp: "https://wa.me/?text=" + encodeComponent(subject+"\n\n"+body),
	}
}

// encodeComponent escapes s for a URI query value using %20 for spaces.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
