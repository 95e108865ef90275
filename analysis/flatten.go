// Package analysis canonicalizes log record bodies and aggregates them
// into clusters of semantically similar entries. The canonicalizer is
// deliberately heuristic: it abstracts over literal values with targeted
// substitutions plus a small tokenizer for VALUES lists, and leaves
// anything it cannot safely rewrite untouched.
package analysis

import (
	"regexp"
	"strings"
)

// ============================================================================
// Stage A - targeted rewrites
// ============================================================================

// Substitutions run in a fixed order so a later rewrite cannot corrupt
// the output of an earlier one.
var stageA = []struct {
	re   *regexp.Regexp
	repl string
}{
	// WHERE col = 'string' / WHERE col = number
	{regexp.MustCompile(`(?i)(\bWHERE\s+[\w".]+\s*=\s*)'(?:[^']|'')*'`), `${1}'?'`},
	{regexp.MustCompile(`(?i)(\bWHERE\s+[\w".]+\s*=\s*)-?\d+(?:\.\d+)?`), `${1}?`},
	// UPDATE ... SET col = 'string' / number
	{regexp.MustCompile(`(?i)(\bSET\s+[\w".]+\s*=\s*)'(?:[^']|'')*'`), `${1}'?'`},
	{regexp.MustCompile(`(?i)(\bSET\s+[\w".]+\s*=\s*)-?\d+(?:\.\d+)?`), `${1}?`},
	// timestamps after an equals sign
	{regexp.MustCompile(`(=\s*)'\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:\.\d+)?'`), `${1}'?'`},
	// bare numeric literal directly after SELECT
	{regexp.MustCompile(`(?i)(\bSELECT\s+)-?\d+(?:\.\d+)?\b`), `${1}?`},
	// named cursors
	{regexp.MustCompile(`(?i)\b(DECLARE\s+)"?\w+"?(\s+(?:NO\s+SCROLL\s+|SCROLL\s+)?CURSOR\b)`), `${1}?${2}`},
	{regexp.MustCompile(`(?i)\b(FETCH\s+(?:\d+\s+)?(?:IN|FROM)\s+)"?\w+"?`), `${1}?`},
	{regexp.MustCompile(`(?i)\b(CLOSE\s+)"?\w+"?\s*$`), `${1}?`},
	// well-known error message shapes
	{regexp.MustCompile(`(invalid byte sequence for encoding "UTF8": )0x[0-9a-fA-F]+`), `${1}0x?`},
	{regexp.MustCompile(`(Failed on request of size )\d+`), `${1}?`},
	{regexp.MustCompile(`(?s)(Failing row contains )\(.*\)`), `${1}(?)`},
	{regexp.MustCompile(`ARRAY\[[^\]]*\]`), `ARRAY[?]`},
	{regexp.MustCompile(`( at character )\d+`), `${1}?`},
	{regexp.MustCompile(`(column reference ")[^"]+(" is ambiguous)`), `${1}?${2}`},
	{regexp.MustCompile(`(Key \()[^)]+(\)=\()[^)]+(\))`), `${1}?${2}?${3}`},
}

// funcCallRE matches SELECT func(a,b,c); each argument that is not a $N
// placeholder is abstracted.
var funcCallRE = regexp.MustCompile(`(?i)\b(SELECT\s+\w+\s*\()([^()]*)\)`)

// inListRE matches IN (...) lists; subselects are left alone.
var inListRE = regexp.MustCompile(`(?i)\b(IN\s*\()([^()]*)\)`)

// placeholderRE recognizes prepared-statement placeholders like $3.
var placeholderRE = regexp.MustCompile(`^\$\d+$`)

// commaNumberRE abstracts bare numbers between commas (or before a
// closing paren). RE2 has no lookahead, so the pass runs twice to catch
// adjacent literals.
var commaNumberRE = regexp.MustCompile(`(,\s*)-?\d+(?:\.\d+)?(\s*[,)])`)

// Flatten rewrites a record body into its canonical cluster key:
// Stage A targeted substitutions followed by the Stage B VALUES
// tokenizer.
func Flatten(body string) string {
	s := body

	s = funcCallRE.ReplaceAllStringFunc(s, func(m string) string {
		sub := funcCallRE.FindStringSubmatch(m)
		args := strings.Split(sub[2], ",")
		for i, a := range args {
			a = strings.TrimSpace(a)
			if placeholderRE.MatchString(a) {
				args[i] = a
			} else {
				args[i] = "?"
			}
		}
		return sub[1] + strings.Join(args, ",") + ")"
	})

	for _, sub := range stageA {
		s = sub.re.ReplaceAllString(s, sub.repl)
	}

	s = inListRE.ReplaceAllStringFunc(s, func(m string) string {
		sub := inListRE.FindStringSubmatch(m)
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sub[2])), "SELECT") {
			return m
		}
		return sub[1] + "?)"
	})

	// Two passes: the first consumes the separator the second needs.
	s = commaNumberRE.ReplaceAllString(s, `${1}?${2}`)
	s = commaNumberRE.ReplaceAllString(s, `${1}?${2}`)

	s = flattenValues(s)
	return s
}

// ============================================================================
// Stage B - VALUES/REPLACE tuple tokenizer
// ============================================================================

// valuesRE locates the start of a VALUES or REPLACE tuple list.
var valuesRE = regexp.MustCompile(`(?i)\b(?:VALUES|REPLACE)\s*\(`)

// tokenizer states
const (
	stStart = iota
	stLiteral
	stInQuote
	stDollar
)

// flattenValues replaces every well-formed (VALUES|REPLACE)(...) tuple
// list with a single "(?)" placeholder. A list the tokenizer cannot make
// sense of is emitted unchanged.
func flattenValues(s string) string {
	var out strings.Builder
	pos := 0
	for pos < len(s) {
		loc := valuesRE.FindStringIndex(s[pos:])
		if loc == nil {
			out.WriteString(s[pos:])
			break
		}
		openParen := pos + loc[1] - 1 // index of the '('
		out.WriteString(s[pos:openParen])

		end, ok := scanTuples(s, openParen)
		if !ok {
			// fail state: abandon rewriting this occurrence
			out.WriteByte('(')
			pos = openParen + 1
			continue
		}
		out.WriteString("(?)")
		pos = end
	}
	return out.String()
}

// scanTuples walks the tuple list starting at the '(' at index i and
// returns the index just past the final tuple's closing paren. It
// understands single-quoted strings (with backslash and doubled-quote
// escapes), E'' strings, and $tag$-quoted strings. ok is false when the
// input runs out mid-tuple.
func scanTuples(s string, i int) (int, bool) {
	n := len(s)
	for {
		for i < n && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= n || s[i] != '(' {
			return 0, false
		}
		i++

		state := stStart
		var tag string
		done := false
		for i < n && !done {
			c := s[i]
			switch state {
			case stStart:
				switch {
				case c == ' ' || c == '\t' || c == ',':
					i++
				case c == '\'':
					state = stInQuote
					i++
				case (c == 'E' || c == 'e') && i+1 < n && s[i+1] == '\'':
					state = stInQuote
					i += 2
				case c == '$':
					j := i + 1
					for j < n && (isWordByte(s[j])) {
						j++
					}
					if j < n && s[j] == '$' {
						tag = s[i : j+1]
						state = stDollar
						i = j + 1
					} else {
						state = stLiteral
						i++
					}
				case c == ')':
					done = true
					i++
				default:
					state = stLiteral
					i++
				}
			case stLiteral:
				switch c {
				case ',':
					state = stStart
					i++
				case ')':
					done = true
					i++
				case ';':
					// statement boundary inside the list: close here and
					// let the outer scan pick up any following VALUES
					return i, true
				case '\'':
					state = stInQuote
					i++
				default:
					i++
				}
			case stInQuote:
				switch {
				case c == '\\':
					i += 2
				case c == '\'':
					if i+1 < n && s[i+1] == '\'' {
						i += 2
					} else {
						state = stLiteral
						i++
					}
				default:
					i++
				}
			case stDollar:
				if c == '$' && strings.HasPrefix(s[i:], tag) {
					i += len(tag)
					state = stLiteral
				} else {
					i++
				}
			}
		}
		if !done {
			return 0, false
		}

		// Another tuple in the same list: "(...), (...)"
		j := i
		for j < n && (s[j] == ' ' || s[j] == '\t') {
			j++
		}
		if j < n && s[j] == ',' {
			j++
			for j < n && (s[j] == ' ' || s[j] == '\t') {
				j++
			}
			if j < n && s[j] == '(' {
				i = j
				continue
			}
		}
		return i, true
	}
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// ============================================================================
// Stage C - readable raw form
// ============================================================================

var sectionRE = regexp.MustCompile(` ((?:DETAIL|HINT|QUERY|CONTEXT|STATEMENT): ?)`)

var durationReshapeRE = regexp.MustCompile(
	`(?s)^.*?duration: (\d+(?:\.\d+)? ms)\s+(?:LOG:\s+)?(?:statement|execute[^:]*):\s*(.*)$`)

// Pretty renders the non-flattened raw form kept in each cluster:
// continuation sections go on their own lines, and in duration mode the
// "duration: X ... statement: Y" pair is reshaped for readability.
func Pretty(body string, durationMode bool) string {
	if durationMode {
		if m := durationReshapeRE.FindStringSubmatch(body); m != nil {
			return "DURATION: " + m[1] + "\nSTATEMENT: " + strings.TrimSpace(m[2])
		}
	}
	return sectionRE.ReplaceAllString(body, "\n$1")
}
