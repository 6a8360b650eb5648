package responses

import (
	"regexp"
	"strings"
)

// StringOptions configures GradeString.
type StringOptions struct {
	CaseInsensitive bool
	Regexp          bool
	Alternatives    []string
}

// ParseStringType reads the space separated flags of a string response
// type attribute, such as "ci regexp".
func ParseStringType(t string) StringOptions {
	var o StringOptions
	for _, f := range strings.Fields(strings.ToLower(t)) {
		switch f {
		case "ci":
			o.CaseInsensitive = true
		case "regexp":
			o.Regexp = true
		}
	}
	return o
}

// GradeString compares student with expected and the alternatives. An
// expected answer containing _or_ is the legacy list form, compared
// literally.
func GradeString(expected, student string, opts StringOptions) (Result, error) {
	student = strings.TrimSpace(student)
	if student == "" {
		return incorrect(), nil
	}

	if strings.Contains(strings.ToLower(expected), "_or_") {
		var answers []string
		for _, a := range splitFold(expected, "_or_") {
			answers = append(answers, strings.TrimSpace(a))
		}
		return verdict(containsString(answers, student, opts.CaseInsensitive)), nil
	}

	answers := []string{strings.TrimSpace(expected)}
	for _, a := range opts.Alternatives {
		answers = append(answers, strings.TrimSpace(a))
	}

	if opts.Regexp {
		pattern := "^(?:" + strings.Join(answers, "|") + ")$"
		if opts.CaseInsensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return Result{}, staffError(err, "invalid regular expression %q", pattern)
		}
		return verdict(re.MatchString(student)), nil
	}
	return verdict(containsString(answers, student, opts.CaseInsensitive)), nil
}

func containsString(list []string, s string, fold bool) bool {
	for _, v := range list {
		if v == s || (fold && strings.EqualFold(v, s)) {
			return true
		}
	}
	return false
}

// splitFold splits s around each case-insensitive occurrence of sep.
func splitFold(s, sep string) []string {
	lower := strings.ToLower(s)
	var out []string
	for {
		i := strings.Index(lower, sep)
		if i < 0 {
			return append(out, s)
		}
		out = append(out, s[:i])
		s, lower = s[i+len(sep):], lower[i+len(sep):]
	}
}

