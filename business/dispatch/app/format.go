package app

import (
	"bytes"
	"encoding/json"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	classifierapp "github.com/hlwatch/tracker/business/classifier/app"
	rulesdomain "github.com/hlwatch/tracker/business/rules/domain"
)

const lineTemplateSrc = `[{{.Severity}}] {{.RuleName}} fired for {{.Account}} ({{.SizeClass}}, ${{.USDValue}}) — {{.Coin}} {{.Side}} @ {{.Price}}`

const emailTextSrc = `{{.Line}}

Rule: {{.RuleName}}
Severity: {{.Severity}}
Account: {{.Account}}
Size class: {{.SizeClass}}
USD value: ${{.USDValue}}
Coin: {{.Coin}}
Side: {{.Side}}
Price: {{.Price}}
Fired at: {{.FiredAt}}
`

const emailHTMLSrc = `<h2>{{.RuleName}} triggered</h2>
<p><strong>{{.Severity}}</strong> for account <code>{{.Account}}</code></p>
<ul>
<li>Size class: {{.SizeClass}}</li>
<li>USD value: ${{.USDValue}}</li>
<li>Coin: {{.Coin}}</li>
<li>Side: {{.Side}}</li>
<li>Price: {{.Price}}</li>
</ul>
<p>Fired at {{.FiredAt}}</p>
`

var (
	lineTemplate     = texttemplate.Must(texttemplate.New("line").Parse(lineTemplateSrc))
	emailTextTemplate = texttemplate.Must(texttemplate.New("email_text").Parse(emailTextSrc))
	emailHTMLTemplate = htmltemplate.Must(htmltemplate.New("email_html").Parse(emailHTMLSrc))
)

// lineFields is the rendering context shared by every template.
type lineFields struct {
	Line      string
	Severity  string
	RuleName  string
	Account   string
	SizeClass string
	USDValue  string
	Coin      string
	Side      string
	Price     string
	FiredAt   string
}

func buildLineFields(alert rulesdomain.TriggeredAlert, thresholds classifierapp.Thresholds) lineFields {
	class := classifierapp.Classify(alert.Event, thresholds)

	coin := "?"
	if alert.Event.Coin != nil {
		coin = *alert.Event.Coin
	}
	usd := "?"
	if alert.Event.USDValue != nil {
		usd = alert.Event.USDValue.StringFixed(2)
	}
	price := "?"
	if alert.Event.Price != nil {
		price = alert.Event.Price.String()
	}

	return lineFields{
		Severity:  strings.ToUpper(string(alert.Rule.Severity)),
		RuleName:  alert.Rule.Name,
		Account:   alert.Event.Account.String(),
		SizeClass: string(class.SizeClass),
		USDValue:  usd,
		Coin:      coin,
		Side:      string(alert.Event.Side),
		Price:     price,
		FiredAt:   alert.FiredAt.Format(time.RFC3339),
	}
}

// FormatLine renders the short plain-text line Discord and Telegram use.
func FormatLine(alert rulesdomain.TriggeredAlert, thresholds classifierapp.Thresholds) (string, error) {
	var buf bytes.Buffer
	if err := lineTemplate.Execute(&buf, buildLineFields(alert, thresholds)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// EmailContent is a formatted email's subject plus its text/HTML bodies.
type EmailContent struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// marshalEmail serializes an EmailContent as the dispatch task payload;
// the email sender unmarshals it back before building the SMTP message.
func marshalEmail(content EmailContent) ([]byte, error) {
	return json.Marshal(content)
}

// FormatEmail renders the subject line plus a text/HTML body pair.
func FormatEmail(alert rulesdomain.TriggeredAlert, thresholds classifierapp.Thresholds) (EmailContent, error) {
	fields := buildLineFields(alert, thresholds)

	var buf bytes.Buffer
	if err := lineTemplate.Execute(&buf, fields); err != nil {
		return EmailContent{}, err
	}
	fields.Line = buf.String()

	var text bytes.Buffer
	if err := emailTextTemplate.Execute(&text, fields); err != nil {
		return EmailContent{}, err
	}

	var html bytes.Buffer
	if err := emailHTMLTemplate.Execute(&html, fields); err != nil {
		return EmailContent{}, err
	}

	return EmailContent{Subject: fields.Line, Text: text.String(), HTML: html.String()}, nil
}

// webhookEvent is the JSON-safe projection of a normalized event: numeric
// fields render as strings so absent values can be omitted cleanly.
type webhookEvent struct {
	Kind       string  `json:"kind"`
	Account    string  `json:"account"`
	Coin       *string `json:"coin,omitempty"`
	Side       string  `json:"side"`
	Price      *string `json:"price,omitempty"`
	Size       *string `json:"size,omitempty"`
	USDValue   *string `json:"usd_value,omitempty"`
	ObservedAt string  `json:"observed_at"`
}

type webhookRule struct {
	Name      string `json:"name"`
	Severity  string `json:"severity"`
	Condition string `json:"condition"`
	Threshold string `json:"threshold"`
}

type webhookEnvelope struct {
	Alert   webhookRule  `json:"alert"`
	Event   webhookEvent `json:"event"`
	FiredAt time.Time    `json:"fired_at"`
}

// FormatWebhook renders the {alert, event, fired_at} JSON envelope.
func FormatWebhook(alert rulesdomain.TriggeredAlert) ([]byte, error) {
	ev := alert.Event

	env := webhookEnvelope{
		Alert: webhookRule{
			Name:      alert.Rule.Name,
			Severity:  string(alert.Rule.Severity),
			Condition: string(alert.Rule.Condition),
			Threshold: alert.Rule.Threshold.String(),
		},
		Event: webhookEvent{
			Kind:       string(ev.Kind),
			Account:    ev.Account.String(),
			Coin:       ev.Coin,
			Side:       string(ev.Side),
			ObservedAt: ev.ObservedAt.Format(time.RFC3339),
		},
		FiredAt: alert.FiredAt,
	}
	if ev.Price != nil {
		s := ev.Price.String()
		env.Event.Price = &s
	}
	if ev.Size != nil {
		s := ev.Size.String()
		env.Event.Size = &s
	}
	if ev.USDValue != nil {
		s := ev.USDValue.String()
		env.Event.USDValue = &s
	}

	return json.Marshal(env)
}
