package service

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/mssola/useragent"

	"troupon/internal/platform/mailer"
	"troupon/pkg/email"
)

const (
	DefaultSender = "Troupon <troupon@andela.com>"
	Subject       = "Troupon: Password Recovery"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	htmlTemplate = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/recovery_email.html.tmpl"))
	textTemplate = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/recovery_email.txt.tmpl"))
)

type emailData struct {
	Name      string
	ResetURL  string
	Device    string
	ExpiresIn string
}

// Composer renders the recovery email.
type Composer struct {
	sender string
}

func NewComposer(sender string) *Composer {
	if sender == "" {
		sender = DefaultSender
	}
	return &Composer{sender: sender}
}

// Compose builds the message for recipient. userAgent may be empty.
func (c *Composer) Compose(recipient, resetURL, userAgent string, ttl time.Duration) (mailer.Message, error) {
	data := emailData{
		Name:      email.GreetingName(recipient),
		ResetURL:  resetURL,
		Device:    describeDevice(userAgent),
		ExpiresIn: humanizeDuration(ttl),
	}

	var html, text bytes.Buffer
	if err := htmlTemplate.Execute(&html, data); err != nil {
		return mailer.Message{}, err
	}
	if err := textTemplate.Execute(&text, data); err != nil {
		return mailer.Message{}, err
	}

	return mailer.Message{
		Sender:    c.sender,
		Recipient: recipient,
		Subject:   Subject,
		HTML:      html.String(),
		Text:      text.String(),
	}, nil
}

// describeDevice turns a User-Agent into "Firefox on Linux". Bots and empty
// agents produce no device line.
func describeDevice(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return ""
	}
	parsed := useragent.New(ua)
	if parsed.Bot() {
		return ""
	}
	browser, _ := parsed.Browser()
	osName := parsed.OS()
	switch {
	case browser != "" && osName != "":
		return browser + " on " + osName
	case browser != "":
		return browser
	default:
		return ""
	}
}

func humanizeDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "a short while"
	case d%(24*time.Hour) == 0:
		return plural(int(d/(24*time.Hour)), "day")
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int((d+time.Minute-1)/time.Minute), "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
