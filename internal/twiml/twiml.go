package twiml

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// Response is the voice-response document returned to the telephony gateway.
// Verbs are executed in the order they were appended.
type Response struct {
	verbs []any
}

type say struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type gather struct {
	XMLName   xml.Name `xml:"Gather"`
	Input     string   `xml:"input,attr,omitempty"`
	Timeout   int      `xml:"timeout,attr,omitempty"`
	NumDigits int      `xml:"numDigits,attr,omitempty"`
	Action    string   `xml:"action,attr,omitempty"`
	Say       *say     `xml:"Say,omitempty"`
}

type number struct {
	XMLName             xml.Name `xml:"Number"`
	URL                 string   `xml:"url,attr,omitempty"`
	StatusCallback      string   `xml:"statusCallback,attr,omitempty"`
	StatusCallbackEvent string   `xml:"statusCallbackEvent,attr,omitempty"`
	Digits              string   `xml:",chardata"`
}

type dial struct {
	XMLName  xml.Name `xml:"Dial"`
	Action   string   `xml:"action,attr,omitempty"`
	CallerID string   `xml:"callerId,attr,omitempty"`
	Number   *number  `xml:"Number,omitempty"`
}

type record struct {
	XMLName            xml.Name `xml:"Record"`
	Transcribe         bool     `xml:"transcribe,attr"`
	TranscribeCallback string   `xml:"transcribeCallback,attr,omitempty"`
	Timeout            int      `xml:"timeout,attr,omitempty"`
	Action             string   `xml:"action,attr,omitempty"`
}

type redirect struct {
	XMLName xml.Name `xml:"Redirect"`
	URL     string   `xml:",chardata"`
}

type hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// New returns an empty response document.
func New() *Response {
	return &Response{}
}

// Say appends a spoken prompt. Empty text is dropped so suppressed phrases
// (for example the no-call mode) never produce an empty verb.
func (r *Response) Say(voice, text string) *Response {
	if text == "" {
		return r
	}
	r.verbs = append(r.verbs, say{Voice: voice, Text: text})
	return r
}

// GatherOpts configures a digit-collection step.
type GatherOpts struct {
	Timeout   int
	NumDigits int
	Action    string
	Voice     string
	Prompt    string
}

// Gather appends a DTMF collection step with an inline prompt.
func (r *Response) Gather(opts GatherOpts) *Response {
	g := gather{
		Input:     "dtmf",
		Timeout:   opts.Timeout,
		NumDigits: opts.NumDigits,
		Action:    opts.Action,
	}
	if opts.Prompt != "" {
		g.Say = &say{Voice: opts.Voice, Text: opts.Prompt}
	}
	r.verbs = append(r.verbs, g)
	return r
}

// DialOpts configures a dial attempt against a single number.
type DialOpts struct {
	Action              string
	CallerID            string
	Number              string
	NumberURL           string
	StatusCallback      string
	StatusCallbackEvent string
}

// Dial appends a dial attempt to one phone number.
func (r *Response) Dial(opts DialOpts) *Response {
	r.verbs = append(r.verbs, dial{
		Action:   opts.Action,
		CallerID: opts.CallerID,
		Number: &number{
			URL:                 opts.NumberURL,
			StatusCallback:      opts.StatusCallback,
			StatusCallbackEvent: opts.StatusCallbackEvent,
			Digits:              opts.Number,
		},
	})
	return r
}

// RecordOpts configures a record-and-transcribe step.
type RecordOpts struct {
	Transcribe         bool
	TranscribeCallback string
	Timeout            int
	Action             string
}

// Record appends a recording step.
func (r *Response) Record(opts RecordOpts) *Response {
	r.verbs = append(r.verbs, record{
		Transcribe:         opts.Transcribe,
		TranscribeCallback: opts.TranscribeCallback,
		Timeout:            opts.Timeout,
		Action:             opts.Action,
	})
	return r
}

// Redirect appends a transfer to another webhook URI.
func (r *Response) Redirect(url string) *Response {
	r.verbs = append(r.verbs, redirect{URL: url})
	return r
}

// Hangup appends an explicit hangup.
func (r *Response) Hangup() *Response {
	r.verbs = append(r.verbs, hangup{})
	return r
}

// Empty reports whether no verbs were appended.
func (r *Response) Empty() bool {
	return len(r.verbs) == 0
}

// Render produces the XML payload for the gateway. An empty response renders
// as a bare <Response/> which the gateway treats as "do nothing, hang up".
func (r *Response) Render() (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString("<Response>")
	for _, v := range r.verbs {
		out, err := xml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal verb: %w", err)
		}
		buf.Write(out)
	}
	buf.WriteString("</Response>")
	return buf.String(), nil
}
