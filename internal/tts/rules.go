package tts

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"golang.org/x/text/unicode/norm"
)

// ReplacementRule rewrites announcement text before synthesis. Rules apply in
// order, each to the output of the previous one.
type ReplacementRule struct {
	Key       string `yaml:"key" mapstructure:"key" json:"key"`
	Value     string `yaml:"value" mapstructure:"value" json:"value"`
	MatchCase bool   `yaml:"match_case" mapstructure:"match_case" json:"match_case"`
	WholeWord bool   `yaml:"whole_word" mapstructure:"whole_word" json:"whole_word"`
	UseRegex  bool   `yaml:"use_regex" mapstructure:"use_regex" json:"use_regex"`
}

type compiledRule struct {
	re        *regexp.Regexp
	value     string
	literal   bool
	wholeWord bool
}

// compileRules turns rules into matchers. Rules with an empty key or an
// invalid pattern are dropped.
func compileRules(rules []ReplacementRule, logger *log.Logger) []compiledRule {
	out := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if r.Key == "" {
			continue
		}

		pattern := r.Key
		if !r.UseRegex {
			pattern = regexp.QuoteMeta(pattern)
		}
		if !r.MatchCase {
			pattern = "(?i)" + pattern
		}

		re, err := regexp.Compile(pattern)
		if err != nil {
			logger.Warn("Skipping invalid replacement rule", "index", i, "key", r.Key, "err", err)
			continue
		}
		value := r.Value
		if r.UseRegex {
			value = expandTemplate(value)
		}
		out = append(out, compiledRule{re: re, value: value, literal: !r.UseRegex, wholeWord: r.WholeWord})
	}
	return out
}

var backref = regexp.MustCompile(`\\\\|\\g<(\w+)>|\\(\d+)`)

// expandTemplate rewrites backslash group references (\1, \g<1>, \g<name>)
// into the ${1} form used by regexp.Expand. A doubled backslash stands for a
// single literal one. $1 and ${name} pass through unchanged.
func expandTemplate(v string) string {
	if !strings.Contains(v, `\`) {
		return v
	}
	return backref.ReplaceAllStringFunc(v, func(m string) string {
		if m == `\\` {
			return `\`
		}
		sm := backref.FindStringSubmatch(m)
		name := sm[1]
		if name == "" {
			name = sm[2]
		}
		return "${" + name + "}"
	})
}

func (r compiledRule) apply(s string) string {
	if !r.wholeWord {
		if r.literal {
			return r.re.ReplaceAllLiteralString(s, r.value)
		}
		return r.re.ReplaceAllString(s, r.value)
	}

	matches := r.re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		if !atWordBoundary(s, m[0]) || !atWordBoundary(s, m[1]) {
			continue
		}
		b.WriteString(s[last:m[0]])
		if r.literal {
			b.WriteString(r.value)
		} else {
			b.Write(r.re.ExpandString(nil, r.value, s, m))
		}
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// atWordBoundary reports whether exactly one side of byte offset i is a word
// character. Unlike RE2's \b this treats every Unicode letter and digit as a
// word character, so it works for CJK text.
func atWordBoundary(s string, i int) bool {
	var before, after bool
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:i])
		before = isWordRune(r)
	}
	if i < len(s) {
		r, _ := utf8.DecodeRuneInString(s[i:])
		after = isWordRune(r)
	}
	return before != after
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

// textTransform is the preprocessing applied by Enqueue.
type textTransform struct {
	normalizeWidth bool
	rules          []compiledRule
}

func (t textTransform) apply(text string) string {
	if t.normalizeWidth {
		text = norm.NFKC.String(text)
	}
	for _, r := range t.rules {
		text = r.apply(text)
	}
	return text
}
