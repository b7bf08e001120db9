package charset

import (
	"bytes"
	"unicode/utf8"
)

var replacement = []byte(string(utf8.RuneError))

// Infer reports whether the first length bytes of data could be text in
// candidate. It is a sniffing heuristic, not a proof: a true result only
// means nothing contradicted the candidate, and single-byte charsets accept
// almost any input. Do not base correctness decisions on it.
//
// With no candidate the answer is true. A length outside [0, len(data)] is
// clamped.
func Infer(data []byte, length int, candidate *Charset) bool {
	if candidate == nil {
		return true
	}

	if length < 0 {
		length = 0
	}
	if length > len(data) {
		length = len(data)
	}
	sample := data[:length]

	if candidate.utf8 {
		return utf8.Valid(sample)
	}

	decoded, err := candidate.enc.NewDecoder().Bytes(sample)
	if err != nil {
		return false
	}

	// x/text decoders substitute U+FFFD for malformed or unmappable input
	// instead of failing.
	if bytes.Contains(decoded, replacement) {
		return encodedReplacementPresent(sample, candidate)
	}
	return true
}

// encodedReplacementPresent separates an input that really contains U+FFFD
// from one where the decoder injected it.
func encodedReplacementPresent(sample []byte, candidate *Charset) bool {
	encoded, err := candidate.enc.NewEncoder().Bytes(replacement)
	if err != nil || len(encoded) == 0 {
		return false
	}
	return bytes.Contains(sample, encoded)
}
