package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

type TokenType int

const (
	TokenDict    TokenType = iota // '<<'
	TokenArray                    // '['
	TokenName                     // '/Name'
	TokenString                   // literal or hex string
	TokenNumber                   // numeric value
	TokenBoolean                  // true/false
	TokenNull                     // null
	TokenRef                      // indirect ref '5 0 R'
	TokenStream                   // 'stream' keyword with its payload
	TokenKeyword                  // other keywords (obj, endobj, >>, ], etc.)
)

// Token is a single lexical item. Only the fields relevant to Type are set.
type Token struct {
	Type  TokenType
	Str   string // names and keywords
	Bytes []byte // string and stream payloads
	Int   int64  // integers; object number for refs
	Float float64
	IsInt bool
	Bool  bool
	Gen   int // generation for refs
	Hex   bool
	Pos   int64
}

type Config struct {
	MaxStringLength int64
	MaxStreamLength int64
	MaxDepth        int
}

var (
	ErrSyntax      = errors.New("pdf syntax error")
	errStreamLimit = errors.New("stream exceeds configured limit")
)

// Scanner tokenizes an in-memory PDF byte slice.
type Scanner struct {
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
}

func New(data []byte, cfg Config) *Scanner {
	return &Scanner{data: data, cfg: cfg, nextStreamLen: -1}
}

// ReadAll loads the full contents of r.
func ReadAll(r io.ReaderAt) ([]byte, error) {
	var buf bytes.Buffer
	const chunk = 64 * 1024
	tmp := make([]byte, chunk)
	for off := int64(0); ; off += chunk {
		n, err := r.ReadAt(tmp, off)
		buf.Write(tmp[:n])
		if errors.Is(err, io.EOF) || (err == nil && n < chunk) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (s *Scanner) Data() []byte    { return s.data }
func (s *Scanner) Position() int64 { return s.pos }

func (s *Scanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return fmt.Errorf("seek %d out of range", offset)
	}
	s.pos = offset
	return nil
}

// SetNextStreamLength hints the payload length of the next stream keyword.
// Negative values fall back to searching for endstream.
func (s *Scanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }

func (s *Scanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDict, Str: "<<", Pos: start}, nil
		}
		return s.scanHexString()
	case '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return Token{Type: TokenKeyword, Str: ">>", Pos: start}, nil
		}
		s.pos++
		return Token{Type: TokenKeyword, Str: ">", Pos: start}, nil
	case '[':
		s.pos++
		return Token{Type: TokenArray, Str: "[", Pos: start}, nil
	case ']':
		s.pos++
		return Token{Type: TokenKeyword, Str: "]", Pos: start}, nil
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	if isRegular(c) {
		return s.scanKeyword()
	}
	s.pos++
	return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
}

func (s *Scanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *Scanner) peek(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *Scanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			out.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Str: out.String(), Pos: start}, nil
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= int64(len(s.data)) {
				break
			}
			esc := s.data[s.pos]
			s.pos++
			switch {
			case esc == '\r':
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case esc == '\n':
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				for k := 0; k < 2 && s.pos < int64(len(s.data)); k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(translateEscape(esc))
			}
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start}, nil
			}
		}
		buf.WriteByte(c)
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, fmt.Errorf("%w: literal string too long at %d", ErrSyntax, start)
		}
	}
	return Token{}, fmt.Errorf("%w: unterminated literal string at %d", ErrSyntax, start)
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var nibbles []byte
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if len(nibbles)%2 == 1 {
				nibbles = append(nibbles, '0')
			}
			out := make([]byte, len(nibbles)/2)
			for i := range out {
				out[i] = fromHex(nibbles[2*i])<<4 | fromHex(nibbles[2*i+1])
			}
			return Token{Type: TokenString, Bytes: out, Hex: true, Pos: start}, nil
		}
		if isWhitespace(c) {
			continue
		}
		if !isHex(c) {
			return Token{}, fmt.Errorf("%w: invalid hex digit %q at %d", ErrSyntax, c, s.pos-1)
		}
		nibbles = append(nibbles, c)
	}
	return Token{}, fmt.Errorf("%w: unterminated hex string at %d", ErrSyntax, start)
}

func (s *Scanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Str: kw, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Str: kw, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	}
	return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
}

// scanStream reads the payload following a stream keyword, using the length
// hint when it lands on endstream and searching for the marker otherwise.
func (s *Scanner) scanStream(start int64) (Token, error) {
	hint := s.nextStreamLen
	s.nextStreamLen = -1
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
		s.pos++
	}
	dataStart := s.pos
	needle := []byte("endstream")
	if hint >= 0 && dataStart+hint <= int64(len(s.data)) {
		end := dataStart + hint
		after := end
		for after < int64(len(s.data)) && isWhitespace(s.data[after]) {
			after++
		}
		if bytes.HasPrefix(s.data[after:], needle) {
			if s.cfg.MaxStreamLength > 0 && hint > s.cfg.MaxStreamLength {
				return Token{}, errStreamLimit
			}
			s.pos = after + int64(len(needle))
			return Token{Type: TokenStream, Bytes: s.data[dataStart:end], Pos: start}, nil
		}
	}
	idx := bytes.Index(s.data[dataStart:], needle)
	if idx < 0 {
		return Token{}, fmt.Errorf("%w: endstream not found for stream at %d", ErrSyntax, start)
	}
	end := dataStart + int64(idx)
	if end > dataStart && s.data[end-1] == '\n' {
		end--
	}
	if end > dataStart && s.data[end-1] == '\r' {
		end--
	}
	if s.cfg.MaxStreamLength > 0 && end-dataStart > s.cfg.MaxStreamLength {
		return Token{}, errStreamLimit
	}
	s.pos = dataStart + int64(idx+len(needle))
	return Token{Type: TokenStream, Bytes: s.data[dataStart:end], Pos: start}, nil
}

func (s *Scanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	first := s.scanNumberString()
	if first == "" {
		s.pos++
		return Token{Type: TokenKeyword, Str: string(s.data[start]), Pos: start}, nil
	}
	tok, err := numberToken(first, start)
	if err != nil {
		return Token{}, err
	}
	if !tok.IsInt || tok.Int < 0 {
		return tok, nil
	}
	// lookahead for "<num> <gen> R"
	after := s.pos
	s.skipWSAndComments()
	second := s.scanNumberString()
	if second != "" && isDigits(second) {
		s.skipWSAndComments()
		if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
			(s.pos+1 >= int64(len(s.data)) || isDelimiter(s.data[s.pos+1])) {
			s.pos++
			gen, _ := strconv.Atoi(second)
			return Token{Type: TokenRef, Int: tok.Int, Gen: gen, IsInt: true, Pos: start}, nil
		}
	}
	s.pos = after
	return tok, nil
}

func (s *Scanner) scanNumberString() string {
	start := s.pos
	seenDigit := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if c >= '0' && c <= '9' {
			seenDigit = true
		} else if !(c == '+' || c == '-' || c == '.') {
			break
		}
		s.pos++
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return string(s.data[start:s.pos])
}

func numberToken(lit string, pos int64) (Token, error) {
	if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return Token{Type: TokenNumber, Int: i, Float: float64(i), IsInt: true, Pos: pos}, nil
	}
	// tolerate "--5" and "5-" style noise the way viewers do
	clean := lit
	for len(clean) > 1 && (clean[0] == '-' || clean[0] == '+') && (clean[1] == '-' || clean[1] == '+') {
		clean = clean[1:]
	}
	if i := bytes.LastIndexAny([]byte(clean), "+-"); i > 0 {
		clean = clean[:i]
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return Token{}, fmt.Errorf("%w: invalid number %q at %d", ErrSyntax, lit, pos)
	}
	return Token{Type: TokenNumber, Float: f, Pos: pos}, nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }
func isRegular(c byte) bool    { return !isDelimiter(c) }
func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}
func isEOL(c byte) bool { return c == '\r' || c == '\n' }
func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}
