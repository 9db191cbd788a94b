package venue

import (
	"fmt"
	"regexp"
)

// Driver errors are opaque strings, so the gateway classifies them by
// pattern. This file is the only place in the codebase that parses error
// text; everything else asks the classifier.

// DefaultTimeoutPatterns match errors where the order may have reached the
// venue before the response was lost, so a recovery scan is warranted.
var DefaultTimeoutPatterns = []string{ //nolint:gochecknoglobals // pattern data
	`timeout`,
	`timedout`,
	`etimedout`,
	`deadline exceeded`,
}

// DefaultThrottlePatterns match venue rate-limit rejections.
var DefaultThrottlePatterns = []string{ //nolint:gochecknoglobals // pattern data
	`rate limit`,
	`too many requests`,
	`\b429\b`,
	`throttle`,
}

// Classifier buckets opaque driver errors into timeout and throttle classes
// by case-insensitive pattern match.
type Classifier struct {
	timeout  []*regexp.Regexp
	throttle []*regexp.Regexp
}

// NewClassifier compiles the given pattern sets. Patterns are regular
// expressions matched case-insensitively against the full error text.
func NewClassifier(timeoutPatterns, throttlePatterns []string) (*Classifier, error) {
	timeout, err := compilePatterns(timeoutPatterns)
	if err != nil {
		return nil, fmt.Errorf("timeout patterns: %w", err)
	}

	throttle, err := compilePatterns(throttlePatterns)
	if err != nil {
		return nil, fmt.Errorf("throttle patterns: %w", err)
	}

	return &Classifier{timeout: timeout, throttle: throttle}, nil
}

// DefaultClassifier builds a classifier from the default pattern sets.
func DefaultClassifier() *Classifier {
	c, err := NewClassifier(DefaultTimeoutPatterns, DefaultThrottlePatterns)
	if err != nil {
		// Defaults are compile-time constants.
		panic(fmt.Sprintf("default error patterns invalid: %v", err))
	}

	return c
}

// IsTimeout reports whether err looks like a lost-response timeout.
func (c *Classifier) IsTimeout(err error) bool {
	return matchAny(c.timeout, err)
}

// IsThrottle reports whether err looks like a venue rate-limit rejection.
func (c *Classifier) IsThrottle(err error) bool {
	return matchAny(c.throttle, err)
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))

	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", p, err)
		}

		compiled = append(compiled, re)
	}

	return compiled, nil
}

func matchAny(patterns []*regexp.Regexp, err error) bool {
	if err == nil {
		return false
	}

	text := err.Error()
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}

	return false
}
