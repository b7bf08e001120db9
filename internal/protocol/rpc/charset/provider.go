package charset

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Charset is a named encoding the RPC layer can decode text fields with.
type Charset struct {
	Name    string
	Aliases []string

	enc  encoding.Encoding
	utf8 bool
}

// Encoding returns the underlying x/text encoding.
func (c *Charset) Encoding() encoding.Encoding {
	return c.enc
}

// IsUTF8 reports whether the wire form of this charset is plain UTF-8.
func (c *Charset) IsUTF8() bool {
	return c.utf8
}

// Decode converts wire bytes to a Go string.
func (c *Charset) Decode(b []byte) (string, error) {
	if c.utf8 {
		return string(b), nil
	}
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", c.Name, err)
	}
	return string(out), nil
}

// Encode converts s to wire bytes. Characters the charset cannot represent
// are an error rather than being replaced.
func (c *Charset) Encode(s string) ([]byte, error) {
	if c.utf8 {
		return []byte(s), nil
	}
	out, err := c.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Name, err)
	}
	return out, nil
}

// NewWriter returns a writer that turns a stream of wire bytes in this
// charset into UTF-8 written to w. Chunk boundaries may fall anywhere.
func (c *Charset) NewWriter(w io.Writer) io.WriteCloser {
	if c.utf8 {
		return NewChunkWriter(w)
	}
	return transform.NewWriter(w, c.enc.NewDecoder())
}

func (c *Charset) String() string {
	return c.Name
}

// ============================================================================
// Registry
// ============================================================================

// Canonical names of the charsets Perforce servers advertise through
// P4CHARSET, plus the Shift-JIS variant they use for "shiftjis".
const (
	UTF8       = "utf8"
	UTF8BOM    = "utf8-bom"
	ISO8859_1  = "iso8859-1"
	ISO8859_5  = "iso8859-5"
	ISO8859_15 = "iso8859-15"
	P4ShiftJIS = "P4ShiftJIS"
	EUCJP      = "eucjp"
	WinAnsi    = "winansi"
	CP949      = "cp949"
	CP936      = "cp936"
	CP950      = "cp950"
	CP850      = "cp850"
	CP858      = "cp858"
	CP1251     = "cp1251"
	CP1253     = "cp1253"
	KOI8R      = "koi8-r"
	MacOSRoman = "macosroman"
	UTF16      = "utf16"
	UTF16LE    = "utf16le"
	UTF16BE    = "utf16be"
)

var builtin = []*Charset{
	{Name: UTF8, Aliases: []string{"utf-8", "utf8-nobom"}, enc: unicode.UTF8, utf8: true},
	{Name: UTF8BOM, Aliases: []string{"utf-8-bom"}, enc: unicode.UTF8BOM},
	{Name: ISO8859_1, Aliases: []string{"iso-8859-1", "latin1"}, enc: charmap.ISO8859_1},
	{Name: ISO8859_5, Aliases: []string{"iso-8859-5"}, enc: charmap.ISO8859_5},
	{Name: ISO8859_15, Aliases: []string{"iso-8859-15", "latin9"}, enc: charmap.ISO8859_15},
	{Name: P4ShiftJIS, Aliases: []string{"shiftjis", "x-p4-shiftjis", "p4-shiftjis"}, enc: japanese.ShiftJIS},
	{Name: EUCJP, Aliases: []string{"euc-jp"}, enc: japanese.EUCJP},
	{Name: WinAnsi, Aliases: []string{"windows-1252", "cp1252"}, enc: charmap.Windows1252},
	{Name: CP949, Aliases: []string{"euc-kr"}, enc: korean.EUCKR},
	{Name: CP936, Aliases: []string{"gbk"}, enc: simplifiedchinese.GBK},
	{Name: CP950, Aliases: []string{"big5"}, enc: traditionalchinese.Big5},
	{Name: CP850, Aliases: []string{"ibm850"}, enc: charmap.CodePage850},
	{Name: CP858, Aliases: []string{"ibm00858"}, enc: charmap.CodePage858},
	{Name: CP1251, Aliases: []string{"windows-1251"}, enc: charmap.Windows1251},
	{Name: CP1253, Aliases: []string{"windows-1253"}, enc: charmap.Windows1253},
	{Name: KOI8R, Aliases: []string{"koi8r"}, enc: charmap.KOI8R},
	{Name: MacOSRoman, Aliases: []string{"macintosh", "x-mac-roman"}, enc: charmap.Macintosh},
	{Name: UTF16, Aliases: []string{"utf-16"}, enc: unicode.UTF16(unicode.BigEndian, unicode.UseBOM)},
	{Name: UTF16LE, Aliases: []string{"utf-16le", "utf16le-bom"}, enc: unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)},
	{Name: UTF16BE, Aliases: []string{"utf-16be", "utf16be-bom"}, enc: unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)},
}

var (
	registryOnce sync.Once
	registry     map[string]*Charset

	// Charsets resolved through the IANA index are cached so repeated
	// lookups return the same instance.
	ianaMu    sync.Mutex
	ianaCache = map[string]*Charset{}
)

func buildRegistry() {
	registry = make(map[string]*Charset, len(builtin)*3)
	for _, cs := range builtin {
		registry[strings.ToLower(cs.Name)] = cs
		for _, alias := range cs.Aliases {
			registry[strings.ToLower(alias)] = cs
		}
	}
}

// Lookup resolves a canonical name or alias, case-insensitively. Names not
// in the Perforce table are tried against the IANA registry.
func Lookup(name string) (*Charset, bool) {
	registryOnce.Do(buildRegistry)

	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, false
	}
	if cs, ok := registry[key]; ok {
		return cs, true
	}
	return lookupIANA(key)
}

func lookupIANA(key string) (*Charset, bool) {
	ianaMu.Lock()
	defer ianaMu.Unlock()

	if cs, ok := ianaCache[key]; ok {
		return cs, true
	}

	enc, err := ianaindex.IANA.Encoding(key)
	if err != nil || enc == nil {
		return nil, false
	}

	canonical, err := ianaindex.IANA.Name(enc)
	if err != nil {
		canonical = key
	}

	cs := &Charset{Name: canonical, Aliases: []string{key}, enc: enc}
	cs.utf8 = enc == unicode.UTF8
	ianaCache[key] = cs
	return cs, true
}

// MustLookup is Lookup for names known at compile time.
func MustLookup(name string) *Charset {
	cs, ok := Lookup(name)
	if !ok {
		panic("charset: unknown charset " + name)
	}
	return cs
}

// Names returns the canonical names of the built-in charsets.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for _, cs := range builtin {
		names = append(names, cs.Name)
	}
	return names
}
