// Package output is the engine's console-writer boundary: a tiny
// Printer interface so commands can be tested by asserting on captured
// lines instead of scraping stdout.
package output

import (
	"fmt"
	"regexp"
	"strings"
)

// Printer is the only way engine/cmd code writes to the console.
type Printer interface {
	Print(s string)
	Printf(format string, args ...any)
}

// New returns the real, stdout-backed Printer.
func New() Printer {
	return writer{}
}

type writer struct{}

func (writer) Print(s string) { fmt.Print(s) }
func (writer) Printf(format string, args ...any) { fmt.Printf(format, args...) }

// Matcher matches one captured line against an expectation.
type Matcher interface {
	Match(line string) bool
	String() string
}

type stringMatcher struct{ want string }

func (m stringMatcher) Match(line string) bool { return line == m.want }
func (m stringMatcher) String() string         { return m.want }

type regexMatcher struct{ re *regexp.Regexp }

func (m regexMatcher) Match(line string) bool { return m.re.MatchString(line) }
func (m regexMatcher) String() string         { return m.re.String() }

// Captured is a test-only Printer that records every line printed so a
// test can assert on the sequence without scraping stdout.
type Captured struct {
	lines      []string
	expected   []Matcher
	failFunc   func(format string, args ...any)
}

// MockPrinter returns a Captured Printer. fail is normally t.Fatalf.
func MockPrinter(fail func(format string, args ...any)) *Captured {
	return &Captured{failFunc: fail}
}

func (c *Captured) Print(s string) {
	for _, line := range strings.Split(s, "\n") {
		c.lines = append(c.lines, line)
	}
}

func (c *Captured) Printf(format string, args ...any) {
	c.Print(fmt.Sprintf(format, args...))
}

// ExpectString registers an exact-match expectation, consumed in order
// by ExpectationsMet.
func (c *Captured) ExpectString(s string) { c.expected = append(c.expected, stringMatcher{s}) }

// ExpectRegExp registers a regexp expectation, consumed in order by
// ExpectationsMet.
func (c *Captured) ExpectRegExp(pattern string) {
	c.expected = append(c.expected, regexMatcher{regexp.MustCompile(pattern)})
}

// Purge drops all captured lines that don't carry any information (pure
// whitespace), so tests don't have to account for blank separator lines.
func (c *Captured) Purge() {
	nonEmpty := c.lines[:0]
	for _, l := range c.lines {
		if strings.TrimSpace(l) != "" {
			nonEmpty = append(nonEmpty, l)
		}
	}
	c.lines = nonEmpty
}

// ExpectationsMet matches each expectation against the next captured
// line in order and fails if any expectation or any captured line is
// left over.
func (c *Captured) ExpectationsMet() {
	i := 0
	for _, exp := range c.expected {
		if i >= len(c.lines) {
			c.failFunc("expected output %q, got no more lines", exp.String())
			return
		}
		if !exp.Match(c.lines[i]) {
			c.failFunc("expected output %q, got %q", exp.String(), c.lines[i])
			return
		}
		i++
	}
	if i != len(c.lines) {
		c.failFunc("unexpected extra output lines: %v", c.lines[i:])
	}
}
