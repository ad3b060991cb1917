// SPDX-License-Identifier: GPL-3.0-or-later

package syslisten

import (
	"log/slog"
	"time"

	"github.com/influxdata/go-syslog/v3"
	"github.com/influxdata/go-syslog/v3/rfc3164"
	"github.com/influxdata/go-syslog/v3/rfc5424"
)

// Payload formats reported by [Payload.Format].
const (
	FormatRFC5424 = "rfc5424"
	FormatRFC3164 = "rfc3164"
)

// maxPRI is the largest valid PRI value (facility 23, severity 7).
const maxPRI = 191

// Payload is the decoded content of a valid syslog frame.
//
// We decode the header fields we need to attribute and classify a message;
// structured data is intentionally left inside Raw.
type Payload struct {
	// Format is either [FormatRFC5424] or [FormatRFC3164].
	Format string

	// Priority is the PRI value.
	Priority uint8

	// Facility is Priority / 8.
	Facility uint8

	// Severity is Priority % 8.
	Severity uint8

	// Timestamp is the message timestamp, when present and parseable.
	Timestamp *time.Time

	// Hostname is the HOSTNAME header field, if any.
	Hostname string

	// AppName is the APP-NAME (RFC 5424) or TAG (RFC 3164) field, if any.
	AppName string

	// ProcID is the PROCID field, if any.
	ProcID string

	// MsgID is the MSGID field (RFC 5424 only), if any.
	MsgID string

	// Message is the free-form message text.
	Message string

	// Raw is the whole frame as received.
	Raw string
}

// FacilityName returns the keyword associated with the facility.
func (p *Payload) FacilityName() string {
	if int(p.Facility) < len(facilityNames) {
		return facilityNames[p.Facility]
	}
	return "unknown"
}

// SeverityName returns the keyword associated with the severity.
func (p *Payload) SeverityName() string {
	if int(p.Severity) < len(severityNames) {
		return severityNames[p.Severity]
	}
	return "unknown"
}

var _ slog.LogValuer = &Payload{}

// LogValue implements [slog.LogValuer].
func (p *Payload) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("format", p.Format),
		slog.Int("priority", int(p.Priority)),
		slog.String("facility", p.FacilityName()),
		slog.String("severity", p.SeverityName()),
	}
	if p.Timestamp != nil {
		attrs = append(attrs, slog.Time("timestamp", *p.Timestamp))
	}
	attrs = appendNonEmpty(attrs, "hostname", p.Hostname)
	attrs = appendNonEmpty(attrs, "appName", p.AppName)
	attrs = appendNonEmpty(attrs, "procID", p.ProcID)
	attrs = appendNonEmpty(attrs, "msgID", p.MsgID)
	attrs = append(attrs, slog.String("message", p.Message))
	return slog.GroupValue(attrs...)
}

func appendNonEmpty(attrs []slog.Attr, key, value string) []slog.Attr {
	if value != "" {
		attrs = append(attrs, slog.String(key, value))
	}
	return attrs
}

var facilityNames = []string{
	"kern", "user", "mail", "daemon", "auth", "syslog", "lpr", "news",
	"uucp", "cron", "authpriv", "ftp", "ntp", "security", "console", "solaris-cron",
	"local0", "local1", "local2", "local3", "local4", "local5", "local6", "local7",
}

var severityNames = []string{
	"emerg", "alert", "crit", "err", "warning", "notice", "info", "debug",
}

// Decoder classifies frames into valid and invalid syslog messages.
//
// A frame is valid when it starts with a well formed PRI. When the PRI is
// followed by a VERSION field the frame must be a valid RFC 5424 message.
// Otherwise, we attempt to parse the RFC 3164 header and, if that fails,
// we keep the text after the PRI as the message.
//
// A Decoder is not safe for concurrent use: each connection owns one.
type Decoder struct {
	rfc3164 syslog.Machine
	rfc5424 syslog.Machine
}

// NewDecoder creates a new [*Decoder].
func NewDecoder() *Decoder {
	return &Decoder{
		rfc3164: rfc3164.NewParser(rfc3164.WithYear(rfc3164.CurrentYear{})),
		rfc5424: rfc5424.NewParser(),
	}
}

// Decode decodes a single frame.
//
// Returns either a valid [*Payload] or a [*DecodeError], never both.
func (d *Decoder) Decode(frame []byte) (*Payload, error) {
	pri, rest, err := parsePRI(frame)
	if err != nil {
		return nil, err
	}
	if len(rest) <= 0 {
		return nil, newDecodeError("missing message content after PRI")
	}

	payload := &Payload{
		Priority: pri,
		Facility: pri / 8,
		Severity: pri % 8,
		Raw:      string(frame),
	}

	if hasVersion(rest) {
		msg, err := d.rfc5424.Parse(frame)
		if err != nil {
			return nil, newDecodeError("rfc5424: %s", err.Error())
		}
		payload.Format = FormatRFC5424
		if sm, ok := msg.(*rfc5424.SyslogMessage); ok {
			fillFromBase(payload, &sm.Base)
		}
		return payload, nil
	}

	payload.Format = FormatRFC3164
	payload.Message = string(rest)
	if msg, err := d.rfc3164.Parse(frame); err == nil {
		if sm, ok := msg.(*rfc3164.SyslogMessage); ok {
			payload.Message = ""
			fillFromBase(payload, &sm.Base)
		}
	}
	return payload, nil
}

func fillFromBase(payload *Payload, base *syslog.Base) {
	payload.Timestamp = base.Timestamp
	payload.Hostname = derefString(base.Hostname)
	payload.AppName = derefString(base.Appname)
	payload.ProcID = derefString(base.ProcID)
	payload.MsgID = derefString(base.MsgID)
	payload.Message = derefString(base.Message)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// parsePRI parses the "<N>" prefix and returns its value and the bytes following it.
func parsePRI(frame []byte) (uint8, []byte, error) {
	if len(frame) <= 0 || frame[0] != '<' {
		return 0, nil, newDecodeError("missing PRI: frame does not start with '<'")
	}
	value := 0
	idx := 1
	for ; idx < len(frame) && frame[idx] != '>'; idx++ {
		b := frame[idx]
		if b < '0' || b > '9' {
			return 0, nil, newDecodeError("invalid PRI: unexpected byte %q", b)
		}
		if idx > 3 {
			return 0, nil, newDecodeError("invalid PRI: more than three digits")
		}
		value = value*10 + int(b-'0')
	}
	digits := idx - 1
	switch {
	case idx >= len(frame):
		return 0, nil, newDecodeError("invalid PRI: missing '>'")
	case digits <= 0:
		return 0, nil, newDecodeError("invalid PRI: no digits")
	case digits > 1 && frame[1] == '0':
		return 0, nil, newDecodeError("invalid PRI: leading zero")
	case value > maxPRI:
		return 0, nil, newDecodeError("invalid PRI: %d is out of range", value)
	}
	return uint8(value), frame[idx+1:], nil
}

// hasVersion returns whether rest starts with an RFC 5424 "VERSION SP".
func hasVersion(rest []byte) bool {
	if len(rest) <= 0 || rest[0] < '1' || rest[0] > '9' {
		return false
	}
	for idx := 1; idx < len(rest) && idx <= 3; idx++ {
		switch b := rest[idx]; {
		case b == ' ':
			return true
		case b < '0' || b > '9':
			return false
		}
	}
	return false
}
