package message

import (
	"strconv"
	"strings"
)

// Field name prefixes of the messages carried in a result packet.
const (
	CodePrefix = "code"
	FmtPrefix  = "fmt"
)

// ServerMessage is one message from a result packet: its code, its
// template, and the arguments the template refers to.
type ServerMessage struct {
	Code     Code
	RawCode  string
	Template string
	Args     map[string]string
}

// FromResults extracts every code/fmt pair (code0/fmt0, code1/fmt1...) from
// the fields of a packet. Codes that fail to parse are kept with a zero
// Code so the text is still renderable.
func FromResults(fields map[string]string) []ServerMessage {
	var msgs []ServerMessage

	for i := 0; ; i++ {
		idx := strconv.Itoa(i)
		rawCode, hasCode := fields[CodePrefix+idx]
		template, hasFmt := fields[FmtPrefix+idx]
		if !hasCode && !hasFmt {
			break
		}

		code, _ := ParseCode(rawCode)
		msgs = append(msgs, ServerMessage{
			Code:     code,
			RawCode:  rawCode,
			Template: template,
			Args:     argsOf(fields),
		})
	}

	return msgs
}

// argsOf returns the fields that are usable as template arguments.
func argsOf(fields map[string]string) map[string]string {
	args := make(map[string]string, len(fields))
	for k, v := range fields {
		if isMessageField(k) {
			continue
		}
		args[k] = v
	}
	return args
}

func isMessageField(name string) bool {
	for _, prefix := range []string{CodePrefix, FmtPrefix} {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok || rest == "" {
			continue
		}
		if _, err := strconv.Atoi(rest); err == nil {
			return true
		}
	}
	return false
}

// Text renders the message template.
func (m ServerMessage) Text() string {
	return Format(m.Template, m.Args)
}

// IsError reports whether the message signals a failed or fatal condition.
func (m ServerMessage) IsError() bool {
	return m.Code.Severity >= SeverityFailed
}

// String is the message text prefixed with its severity.
func (m ServerMessage) String() string {
	return m.Code.Severity.String() + ": " + m.Text()
}

// Join renders all messages one per line, the way the server prints them.
func Join(msgs []ServerMessage) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, m.Text())
	}
	return strings.Join(lines, "\n")
}

// Highest returns the most severe message, or false when msgs is empty.
func Highest(msgs []ServerMessage) (ServerMessage, bool) {
	if len(msgs) == 0 {
		return ServerMessage{}, false
	}
	best := msgs[0]
	for _, m := range msgs[1:] {
		if m.Code.Severity > best.Code.Severity {
			best = m
		}
	}
	return best, true
}
