// Package classify decides whether a SQL statement is read-only without
// parsing SQL. String literal bodies and comments are stripped first so
// keywords inside them never influence the verdict; anything the lexer does
// not positively recognize as a read fails closed.
package classify

import (
	"strings"
	"unicode"
)

// Kind is the safety verdict for one statement.
type Kind int

const (
	Read Kind = iota
	Write
	Ambiguous
)

func (k Kind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "ambiguous"
	}
}

// Classification is produced once per statement and not persisted.
type Classification struct {
	Kind Kind
	// Statement is the normalized text submitted to the engine: trimmed, with
	// a trailing semicolon removed.
	Statement string
	// Keyword is the token or pattern that triggered the verdict.
	Keyword string
}

// Statements that are reads when they lead the input.
var readKeywords = map[string]bool{
	"SELECT":   true,
	"SHOW":     true,
	"EXPLAIN":  true,
	"DESCRIBE": true,
	"DESC":     true,
}

// Statements that mutate data or state. CALL/DO/EXEC can run arbitrary code
// and LOCK/SET change session state, so they count as writes.
var writeKeywords = map[string]bool{
	"INSERT":   true,
	"UPDATE":   true,
	"DELETE":   true,
	"CREATE":   true,
	"ALTER":    true,
	"DROP":     true,
	"TRUNCATE": true,
	"GRANT":    true,
	"REVOKE":   true,
	"COPY":     true,
	"MERGE":    true,
	"REPLACE":  true,
	"UPSERT":   true,
	"CALL":     true,
	"DO":       true,
	"EXEC":     true,
	"EXECUTE":  true,
	"LOCK":     true,
	"UNLOCK":   true,
	"SET":      true,
	"RESET":    true,
}

// Classify inspects a single statement (or batch) and returns its verdict.
// Multi-statement input is always Write because a later statement could
// mutate data regardless of how the first classifies.
func Classify(sql string) Classification {
	normalized := normalize(sql)
	cleaned := StripStringsAndComments(normalized)

	cls := Classification{Statement: normalized}

	if strings.TrimSpace(cleaned) == "" {
		cls.Kind = Ambiguous
		cls.Keyword = "(empty)"
		return cls
	}

	if hasSecondStatement(cleaned) {
		cls.Kind = Write
		cls.Keyword = ";"
		return cls
	}

	tokens := lex(cleaned)
	if len(tokens) == 0 {
		cls.Kind = Ambiguous
		cls.Keyword = "(no keyword)"
		return cls
	}

	// Leading parenthesized subqueries are classified by their first inner
	// keyword, so "(SELECT 1)" reads and "(INSERT ...)" writes.
	first := tokens[0]

	switch {
	case readKeywords[first.word]:
		cls.Kind = Read
		cls.Keyword = first.word
	case first.word == "WITH":
		cls.Kind, cls.Keyword = classifyWithChain(tokens)
	case writeKeywords[first.word]:
		cls.Kind = Write
		cls.Keyword = first.word
	default:
		cls.Kind = Ambiguous
		cls.Keyword = first.word
	}

	return cls
}

// classifyWithChain resolves a statement opening with WITH. The CTE chain is
// a read only when its terminal statement is a SELECT and no CTE body
// mutates data (data-modifying CTEs like "WITH d AS (DELETE ...)" exist).
func classifyWithChain(tokens []token) (Kind, string) {
	for _, t := range tokens[1:] {
		if writeKeywords[t.word] {
			return Write, t.word
		}
	}
	for _, t := range tokens[1:] {
		if t.depth == 0 && t.word == "SELECT" {
			return Read, "WITH"
		}
	}
	return Ambiguous, "WITH"
}

// hasSecondStatement reports whether cleaned SQL contains a semicolon with
// anything but whitespace after it. A single trailing semicolon is fine.
func hasSecondStatement(cleaned string) bool {
	idx := strings.IndexByte(cleaned, ';')
	for idx >= 0 {
		rest := cleaned[idx+1:]
		if strings.TrimSpace(rest) != "" {
			return true
		}
		idx = strings.IndexByte(rest, ';')
	}
	return false
}

func normalize(sql string) string {
	s := strings.TrimSpace(sql)
	s = strings.TrimRight(s, " \t\r\n")
	if strings.HasSuffix(s, ";") {
		s = strings.TrimRight(strings.TrimSuffix(s, ";"), " \t\r\n")
	}
	return s
}

type token struct {
	word  string // uppercased
	depth int    // parenthesis depth at token start
}

// lex extracts uppercased word tokens with their parenthesis depth from SQL
// that has already had strings and comments removed.
func lex(cleaned string) []token {
	var tokens []token
	depth := 0
	var word []rune
	wordDepth := 0

	flush := func() {
		if len(word) > 0 {
			tokens = append(tokens, token{word: strings.ToUpper(string(word)), depth: wordDepth})
			word = word[:0]
		}
	}

	for _, r := range cleaned {
		switch {
		case r == '(':
			flush()
			depth++
		case r == ')':
			flush()
			if depth > 0 {
				depth--
			}
		case unicode.IsLetter(r) || r == '_':
			if len(word) == 0 {
				wordDepth = depth
			}
			word = append(word, r)
		case unicode.IsDigit(r) && len(word) > 0:
			word = append(word, r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// StripStringsAndComments removes the bodies of single- and double-quoted
// strings and removes -- line comments and /* */ block comments (nested, as
// PostgreSQL allows). Escaped quotes, both the SQL doubled form ('') and the
// backslash form (\'), stay inside the string body.
func StripStringsAndComments(sql string) string {
	const (
		stateNormal = iota
		stateSingle
		stateDouble
		stateLineComment
		stateBlockComment
	)

	var out strings.Builder
	out.Grow(len(sql))

	runes := []rune(sql)
	state := stateNormal
	blockDepth := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch state {
		case stateNormal:
			switch {
			case r == '\'':
				state = stateSingle
				out.WriteRune('\'')
			case r == '"':
				state = stateDouble
				out.WriteRune('"')
			case r == '-' && next == '-':
				state = stateLineComment
				i++
			case r == '/' && next == '*':
				state = stateBlockComment
				blockDepth = 1
				i++
			default:
				out.WriteRune(r)
			}
		case stateSingle:
			switch {
			case r == '\\' && next == '\'':
				i++ // escaped quote stays inside the body
			case r == '\'' && next == '\'':
				i++ // doubled quote stays inside the body
			case r == '\'':
				state = stateNormal
				out.WriteRune('\'')
			}
		case stateDouble:
			switch {
			case r == '\\' && next == '"':
				i++
			case r == '"' && next == '"':
				i++
			case r == '"':
				state = stateNormal
				out.WriteRune('"')
			}
		case stateLineComment:
			if r == '\n' {
				state = stateNormal
				out.WriteRune('\n')
			}
		case stateBlockComment:
			switch {
			case r == '/' && next == '*':
				blockDepth++
				i++
			case r == '*' && next == '/':
				blockDepth--
				i++
				if blockDepth == 0 {
					state = stateNormal
					out.WriteRune(' ')
				}
			}
		}
	}

	return out.String()
}
