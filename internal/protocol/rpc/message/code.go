package message

import (
	"fmt"
	"strconv"
)

// Severity of a server message, the top nibble of its code.
type Severity int

const (
	SeverityEmpty  Severity = 0
	SeverityInfo   Severity = 1
	SeverityWarn   Severity = 2
	SeverityFailed Severity = 3
	SeverityFatal  Severity = 4
)

func (s Severity) String() string {
	switch s {
	case SeverityEmpty:
		return "empty"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warning"
	case SeverityFailed:
		return "failed"
	case SeverityFatal:
		return "fatal"
	default:
		return "severity(" + strconv.Itoa(int(s)) + ")"
	}
}

// Generic codes classify the cause of a message independently of the
// subsystem that raised it.
const (
	GenericNone    = 0x00
	GenericUsage   = 0x01
	GenericUnknown = 0x02
	GenericContext = 0x03
	GenericIllegal = 0x04
	GenericNotYet  = 0x05
	GenericProtect = 0x06
	GenericEmpty   = 0x11
	GenericFault   = 0x21
	GenericClient  = 0x22
	GenericAdmin   = 0x23
	GenericConfig  = 0x24
	GenericUpgrade = 0x25
	GenericComm    = 0x26
	GenericTooBig  = 0x27
)

// Subsystems that originate messages.
const (
	SubsystemOS      = 0
	SubsystemSupport = 1
	SubsystemLbr     = 2
	SubsystemRPC     = 3
	SubsystemDB      = 4
	SubsystemDBSupp  = 5
	SubsystemDM      = 6
	SubsystemServer  = 7
	SubsystemClient  = 8
	SubsystemInfo    = 9
	SubsystemHelp    = 10
	SubsystemSpec    = 11
	SubsystemFTPD    = 12
	SubsystemBroker  = 13
	SubsystemP4QT    = 14
)

// Code is an unpacked message code. On the wire it is a decimal string of
//
//	severity<<28 | argCount<<24 | generic<<16 | subsystem<<10 | id
type Code struct {
	Severity  Severity
	ArgCount  int
	Generic   int
	Subsystem int
	ID        int
}

// ParseCode unpacks a decimal code string as sent in "codeN" fields.
func ParseCode(s string) (Code, error) {
	raw, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return Code{}, fmt.Errorf("parse message code %q: %w", s, err)
	}
	return Unpack(uint32(raw)), nil
}

// Unpack splits a raw code into its fields.
func Unpack(raw uint32) Code {
	return Code{
		Severity:  Severity((raw >> 28) & 0x0F),
		ArgCount:  int((raw >> 24) & 0x0F),
		Generic:   int((raw >> 16) & 0xFF),
		Subsystem: int((raw >> 10) & 0x3F),
		ID:        int(raw & 0x3FF),
	}
}

// Raw packs c back into its wire value.
func (c Code) Raw() uint32 {
	return uint32(c.Severity&0x0F)<<28 |
		uint32(c.ArgCount&0x0F)<<24 |
		uint32(c.Generic&0xFF)<<16 |
		uint32(c.Subsystem&0x3F)<<10 |
		uint32(c.ID&0x3FF)
}

// Unique identifies the message regardless of severity and arguments.
func (c Code) Unique() int {
	return c.Subsystem<<10 | c.ID
}

// String renders the decimal wire form.
func (c Code) String() string {
	return strconv.FormatUint(uint64(c.Raw()), 10)
}

// SeverityOf returns the severity in a code string, SeverityEmpty when the
// string does not parse.
func SeverityOf(code string) Severity {
	c, err := ParseCode(code)
	if err != nil {
		return SeverityEmpty
	}
	return c.Severity
}

// GenericOf returns the generic code, GenericNone when unparseable.
func GenericOf(code string) int {
	c, err := ParseCode(code)
	if err != nil {
		return GenericNone
	}
	return c.Generic
}

// SubsystemOf returns the subsystem, SubsystemClient when unparseable.
func SubsystemOf(code string) int {
	c, err := ParseCode(code)
	if err != nil {
		return SubsystemClient
	}
	return c.Subsystem
}

// UniqueOf returns the subsystem-qualified message id, 0 when unparseable.
func UniqueOf(code string) int {
	c, err := ParseCode(code)
	if err != nil {
		return 0
	}
	return c.Unique()
}
