package field

import "strings"

// Kind tells the packet codec how to treat a field's value bytes.
type Kind int

const (
	// KindNone is reported for the unnamed field.
	KindNone Kind = iota

	// KindText values are converted through the connection charset.
	KindText

	// KindBinary values are passed through untouched.
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "NONE"
	case KindText:
		return "TEXT"
	case KindBinary:
		return "BINARY"
	default:
		return "UNKNOWN"
	}
}

// Field names whose values the server sends as opaque bytes: raw file
// content and internal server records that are passed back verbatim.
const (
	NameData         = "data"
	NameDepotRec     = "depotRec"
	NameWorkRec      = "workRec"
	NameWorkRec2     = "workRec2"
	NameIntegRec     = "integRec"
	NameBaseDepotRec = "baseDepotRec"
	NameHaveRec      = "haveRec"

	// AttrPrefix starts every attribute value field ("attr-<name>").
	AttrPrefix = "attr-"
)

// binaryNames is keyed by lower-cased name; never written after init.
var binaryNames = map[string]struct{}{
	strings.ToLower(NameData):         {},
	strings.ToLower(NameDepotRec):     {},
	strings.ToLower(NameWorkRec):      {},
	strings.ToLower(NameWorkRec2):     {},
	strings.ToLower(NameIntegRec):     {},
	strings.ToLower(NameBaseDepotRec): {},
	strings.ToLower(NameHaveRec):      {},
}

// Classify returns the kind of a named field. Matching is case-insensitive.
func Classify(name string) Kind {
	return ClassifyNamed(name, true)
}

// ClassifyNamed is Classify for callers that track the unnamed field
// separately; named=false always yields KindNone.
func ClassifyNamed(name string, named bool) Kind {
	if !named {
		return KindNone
	}

	lower := strings.ToLower(name)
	if _, ok := binaryNames[lower]; ok {
		return KindBinary
	}
	if strings.HasPrefix(lower, AttrPrefix) {
		return KindBinary
	}
	return KindText
}
