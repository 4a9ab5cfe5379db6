package forms

import (
	"bytes"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultAppearance is the font and color directive parsed from a field's
// /DA string, e.g. "/Helv 12 Tf 0 g".
type DefaultAppearance struct {
	FontName string
	FontSize int

	// ColorOp is "g", "rg" or "k"; Color holds its operands in order, unused
	// slots zero.
	ColorOp string
	Color   [4]int
}

// ParseDefaultAppearance extracts font name, size and color from a default
// appearance string. Missing or unparsable parts fall back to Helvetica 12
// in grayscale black, so the result is always usable.
func ParseDefaultAppearance(da string) DefaultAppearance {
	appearance := DefaultAppearance{
		FontName: "Helv",
		FontSize: 12,
		ColorOp:  "g",
	}

	parts := strings.Split(strings.TrimPrefix(da, "/"), "Tf")
	if len(parts) < 2 {
		return appearance
	}

	font := strings.Split(strings.TrimSpace(parts[0]), " ")
	if len(font) >= 2 {
		appearance.FontName = font[0]
		appearance.FontSize = atoi(font[1])
	}

	// The token after the operands is the color operator itself, so a
	// grayscale directive like "0 g" splits into two tokens.
	color := strings.Split(strings.TrimSpace(parts[1]), " ")
	switch len(color) {
	case 2:
		appearance.ColorOp = "g"
		appearance.Color[0] = atoi(color[0])
	case 4:
		appearance.ColorOp = "rg"
		appearance.Color[0] = atoi(color[0])
		appearance.Color[1] = atoi(color[1])
		appearance.Color[2] = atoi(color[2])
	case 5:
		appearance.ColorOp = "k"
		appearance.Color[0] = atoi(color[0])
		appearance.Color[1] = atoi(color[1])
		appearance.Color[2] = atoi(color[2])
		appearance.Color[3] = atoi(color[3])
	}

	return appearance
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// colorOperation renders the parsed color directive back into a content
// stream operation.
func (da DefaultAppearance) colorOperation() contentOp {
	switch da.ColorOp {
	case "k":
		return contentOp{
			Operands: []string{itoa(da.Color[0]), itoa(da.Color[1]), itoa(da.Color[2]), itoa(da.Color[3])},
			Operator: "k",
		}
	case "rg":
		return contentOp{
			Operands: []string{itoa(da.Color[0]), itoa(da.Color[1]), itoa(da.Color[2])},
			Operator: "rg",
		}
	default:
		return contentOp{
			Operands: []string{itoa(da.Color[0])},
			Operator: "g",
		}
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

// strippedOperators are removed from an appearance stream before the text
// sequence is re-emitted: text state, text positioning, text showing, the
// grayscale color operator and the marked-content boundaries. Comparison is
// case-insensitive so q/Q and g/G pair up.
var strippedOperators = map[string]bool{
	"bt": true, "tc": true, "tw": true, "tz": true, "g": true,
	"tm": true, "tr": true, "tf": true, "tj": true, "et": true,
	"q": true, "bmc": true, "emc": true,
}

// RegenerateAppearance rewrites raw appearance-stream content for a field
// whose text value changed: previous text-drawing operations are stripped and
// a minimal marked-content text sequence is appended. The vertical text
// offset is derived from the field rectangle height; the horizontal offset is
// fixed at the conventional border width.
func RegenerateAppearance(content []byte, da string, rect [4]float64, value string) []byte {
	ops := parseContent(content)

	kept := ops[:0]
	for _, op := range ops {
		if !strippedOperators[strings.ToLower(op.Operator)] {
			kept = append(kept, op)
		}
	}

	appearance := ParseDefaultAppearance(da)

	kept = append(kept,
		contentOp{Operands: []string{"/Tx"}, Operator: "BMC"},
		contentOp{Operator: "q"},
		contentOp{Operator: "BT"},
		contentOp{Operands: []string{"/" + appearance.FontName, itoa(appearance.FontSize)}, Operator: "Tf"},
		appearance.colorOperation(),
	)

	x := 2.0
	dy := rect[1] - rect[3]
	y := 0.5 * float64(appearance.FontSize)
	if dy > 0 {
		y = 0.5*dy - 0.4*float64(appearance.FontSize)
	}

	kept = append(kept,
		contentOp{Operands: []string{"1", "0", "0", "1", formatFloat(x), formatFloat(y)}, Operator: "Tm"},
		contentOp{Operands: []string{pdfTextString(value)}, Operator: "Tj"},
		contentOp{Operator: "ET"},
		contentOp{Operator: "Q"},
		contentOp{Operator: "EMC"},
	)

	return writeContent(kept)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// pdfTextString encodes a text value as a PDF string object, UTF-16BE with a
// byte order mark when the value is not plain ASCII.
func pdfTextString(text string) string {
	ascii := true
	for _, r := range text {
		if r > '\u007F' {
			ascii = false
			break
		}
	}

	if !ascii {
		enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
		res, _, err := transform.String(enc, text)
		if err == nil {
			text = res
		}
		return "(" + text + ")"
	}

	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, ")", "\\)")
	text = strings.ReplaceAll(text, "(", "\\(")
	text = strings.ReplaceAll(text, "\r", "\\r")
	return "(" + text + ")"
}

// contentOp is a single content stream operation: its operand tokens in
// source order followed by the operator mnemonic.
type contentOp struct {
	Operands []string
	Operator string
}

// parseContent tokenizes raw content stream bytes into operations. The
// scanner is deliberately forgiving: unterminated constructs consume the rest
// of the input instead of failing, so a partially damaged appearance stream
// still round-trips.
func parseContent(content []byte) []contentOp {
	var (
		ops      []contentOp
		operands []string
	)

	i := 0
	for i < len(content) {
		c := content[i]
		switch {
		case isContentSpace(c):
			i++

		case c == '%':
			for i < len(content) && content[i] != '\n' && content[i] != '\r' {
				i++
			}

		case c == '(':
			start := i
			i = scanLiteralString(content, i)
			operands = append(operands, string(content[start:i]))

		case c == '<':
			start := i
			if i+1 < len(content) && content[i+1] == '<' {
				i = scanDictionary(content, i)
			} else {
				i = scanHexString(content, i)
			}
			operands = append(operands, string(content[start:i]))

		case c == '[':
			start := i
			i = scanArray(content, i)
			operands = append(operands, string(content[start:i]))

		case c == '/':
			start := i
			i++
			for i < len(content) && !isContentDelimiter(content[i]) {
				i++
			}
			operands = append(operands, string(content[start:i]))

		case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
			start := i
			i++
			for i < len(content) && !isContentDelimiter(content[i]) {
				i++
			}
			operands = append(operands, string(content[start:i]))

		default:
			start := i
			for i < len(content) && !isContentDelimiter(content[i]) {
				i++
			}
			token := string(content[start:i])
			switch token {
			case "":
				// Stray delimiter such as ] or >; skip it.
				i++
			case "true", "false", "null":
				operands = append(operands, token)
			case "BI":
				// Inline image: keep the whole segment through EI verbatim
				// as an opaque operation.
				end := bytes.Index(content[i:], []byte("EI"))
				if end < 0 {
					end = len(content) - i
				} else {
					end += 2
				}
				ops = append(ops, contentOp{Operator: string(content[start : i+end])})
				i += end
			default:
				ops = append(ops, contentOp{Operands: operands, Operator: token})
				operands = nil
			}
		}
	}

	return ops
}

func writeContent(ops []contentOp) []byte {
	var buffer bytes.Buffer
	for _, op := range ops {
		for _, operand := range op.Operands {
			buffer.WriteString(operand)
			buffer.WriteString(" ")
		}
		buffer.WriteString(op.Operator)
		buffer.WriteString("\n")
	}
	return buffer.Bytes()
}

func isContentSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func isContentDelimiter(c byte) bool {
	return isContentSpace(c) || c == '(' || c == ')' || c == '<' || c == '>' ||
		c == '[' || c == ']' || c == '{' || c == '}' || c == '/' || c == '%'
}

func scanLiteralString(content []byte, i int) int {
	depth := 0
	for i < len(content) {
		switch content[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
		i++
	}
	return i
}

func scanHexString(content []byte, i int) int {
	for i < len(content) {
		if content[i] == '>' {
			return i + 1
		}
		i++
	}
	return i
}

func scanDictionary(content []byte, i int) int {
	depth := 0
	for i < len(content) {
		switch {
		case content[i] == '(':
			i = scanLiteralString(content, i)
			continue
		case bytes.HasPrefix(content[i:], []byte("<<")):
			depth++
			i++
		case bytes.HasPrefix(content[i:], []byte(">>")):
			depth--
			i++
			if depth == 0 {
				return i + 1
			}
		}
		i++
	}
	return i
}

func scanArray(content []byte, i int) int {
	depth := 0
	for i < len(content) {
		switch content[i] {
		case '(':
			i = scanLiteralString(content, i)
			continue
		case '<':
			if bytes.HasPrefix(content[i:], []byte("<<")) {
				i = scanDictionary(content, i)
			} else {
				i = scanHexString(content, i)
			}
			continue
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
		i++
	}
	return i
}
