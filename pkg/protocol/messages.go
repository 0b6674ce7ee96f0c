package protocol

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Client names recognised from the signature in front of the username.
const (
	ClientTower      = "Tower"
	ClientBRAC       = "bRAC"
	ClientCRAB       = "CRAB"
	ClientMefedroniy = "Mefedroniy"
	ClientClRAC      = "clRAC"
)

// TowerMark is the signature this client puts in front of outgoing messages
const TowerMark = "▲"

// Message is one parsed chat line
type Message struct {
	Client    string     // Sending application, from the signature
	Content   string     // Message body
	Username  string     // Author as written by the sending client
	Timestamp *time.Time // Set when the server prefixed a date
	AvatarURL string     // Empty when the sender attached no avatar
}

// Envelope wraps one inbound line. It is either Parsed or Malformed; both
// keep the raw text the server sent.
type Envelope interface {
	Raw() string
	isEnvelope()
}

// Parsed is an envelope whose line matched a known client signature
type Parsed struct {
	Message Message
	raw     string
}

// Raw returns the line as received
func (p Parsed) Raw() string { return p.raw }
func (Parsed) isEnvelope()   {}

// Malformed is an envelope whose line could not be parsed
type Malformed struct {
	Text string
}

// Raw returns the line as received
func (m Malformed) Raw() string { return m.Text }
func (Malformed) isEnvelope()   {}

// NewParsed builds a Parsed envelope (mainly for tests and mocks)
func NewParsed(msg Message, raw string) Parsed {
	return Parsed{Message: msg, raw: raw}
}

type clientSignature struct {
	re     *regexp.Regexp
	client string
}

// Order matters: clRAC has no mark and must be tried last.
var clientSignatures = []clientSignature{
	{regexp.MustCompile(`^\x{25B2}<(.*?)> (.*)$`), ClientTower},
	{regexp.MustCompile(`^\x{B9AC}\x{3E70}<(.*?)> (.*)$`), ClientBRAC},
	{regexp.MustCompile(`^\x{2550}\x{2550}\x{2550}<(.*?)> (.*)$`), ClientCRAB},
	{regexp.MustCompile(`^\x{00B0}\x{0298}<(.*?)> (.*)$`), ClientMefedroniy},
	{regexp.MustCompile(`^<(.*?)> (.*)$`), ClientClRAC},
}

var (
	dateRe     = regexp.MustCompile(`^\[(.*?)\] (.*)$`)
	bracesRe   = regexp.MustCompile(`\{[^}]*\}\s`)
	avatarRe   = regexp.MustCompile(`\x06!!AR!!(\S+)\s*$`)
	ansiRe     = regexp.MustCompile(`\x1B(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)
	controlsRe = regexp.MustCompile(`[\x00-\x1F\x7F]`)
)

var timestampLayouts = []string{
	"02.01.2006 15:04",
	"02.01.2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

// Sanitize removes ANSI escape sequences and control characters
func Sanitize(text string) string {
	return controlsRe.ReplaceAllString(ansiRe.ReplaceAllString(text, ""), "")
}

// ParseLine turns one raw line into an envelope
func ParseLine(raw string) Envelope {
	line := strings.TrimSpace(raw)

	var avatar string
	if m := avatarRe.FindStringSubmatch(line); m != nil {
		avatar = m[1]
		line = strings.TrimSpace(line[:len(line)-len(m[0])])
	}

	line = Sanitize(bracesRe.ReplaceAllString(line, ""))

	var ts *time.Time
	if m := dateRe.FindStringSubmatch(line); m != nil {
		ts = parseTimestamp(m[1])
		line = m[2]
	}

	for _, sig := range clientSignatures {
		m := sig.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		return Parsed{
			Message: Message{
				Client:    sig.client,
				Username:  m[1],
				Content:   strings.TrimSpace(m[2]),
				Timestamp: ts,
				AvatarURL: avatar,
			},
			raw: raw,
		}
	}
	return Malformed{Text: raw}
}

// ParseBatch parses lines in order; the result has one envelope per line
func ParseBatch(lines []string) []Envelope {
	envelopes := make([]Envelope, 0, len(lines))
	for _, line := range lines {
		envelopes = append(envelopes, ParseLine(line))
	}
	return envelopes
}

func parseTimestamp(text string) *time.Time {
	text = strings.TrimSpace(text)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, text, time.Local); err == nil {
			return &t
		}
	}
	return nil
}

// FormatOutgoing renders text the way other RAC clients expect a Tower message
func FormatOutgoing(username, text string) string {
	return fmt.Sprintf("%s<%s> %s", TowerMark, username, text)
}
