// internal/browser/locator.go
// Locators describe how to find one element on a page without touching it.
// A Locator is plain data: it is serialized and evaluated by the embedded
// resolver script (js/resolver.js) only when a Page is asked about it, which
// keeps probing side-effect free until an action is performed.
package browser

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
)

// Pattern is a case-aware regular expression in the page's (ECMAScript) dialect.
type Pattern struct {
	Source string `json:"source"`
	Flags  string `json:"flags,omitempty"`
}

// Exact matches the whole (trimmed, whitespace-collapsed) text, ignoring case.
func Exact(text string) Pattern {
	return Pattern{Source: "^" + regexp.QuoteMeta(text) + "$", Flags: "i"}
}

// Contains matches text containing the substring, ignoring case.
func Contains(text string) Pattern {
	return Pattern{Source: regexp.QuoteMeta(text), Flags: "i"}
}

// Regex uses source as-is, ignoring case.
func Regex(source string) Pattern {
	return Pattern{Source: source, Flags: "i"}
}

func (p Pattern) String() string {
	return "/" + p.Source + "/" + p.Flags
}

// Locator selects elements by CSS, ARIA role and accessible name, visible
// text or label, optionally narrowed by contained text, scoped inside a
// parent locator, required to contain another locator's match, and indexed.
type Locator struct {
	CSS     string   `json:"css,omitempty"`
	Role    string   `json:"role,omitempty"`
	Name    *Pattern `json:"name,omitempty"`
	Text    *Pattern `json:"text,omitempty"`
	Label   *Pattern `json:"label,omitempty"`
	HasText *Pattern `json:"hasText,omitempty"`
	Has     *Locator `json:"has,omitempty"`
	// Innermost keeps only matches that contain no other match, so a text
	// filter on generic containers lands on the tightest card.
	Innermost bool     `json:"innermost,omitempty"`
	Index     int      `json:"nth"`
	Parent    *Locator `json:"parent,omitempty"`
}

// CSS locates elements matching a selector.
func CSS(selector string) Locator {
	return Locator{CSS: selector}
}

// Role locates elements by ARIA role whose accessible name matches name.
func Role(role string, name Pattern) Locator {
	return Locator{Role: role, Name: &name}
}

// Text locates the innermost elements whose own visible text matches.
func Text(p Pattern) Locator {
	return Locator{Text: &p}
}

// Label locates form controls whose label text matches.
func Label(p Pattern) Locator {
	return Locator{Label: &p}
}

// Filter narrows the locator to elements whose text matches p.
func (l Locator) Filter(p Pattern) Locator {
	l.HasText = &p
	return l
}

// Containing narrows the locator to elements with a descendant matched by
// inner. It is applied before InnermostOnly, so a card is chosen by what it
// holds rather than by its title alone.
func (l Locator) Containing(inner Locator) Locator {
	l.Has = &inner
	return l
}

// InnermostOnly narrows the locator to matches that contain no other match.
func (l Locator) InnermostOnly() Locator {
	l.Innermost = true
	return l
}

// Nth selects the i-th match in document order.
func (l Locator) Nth(i int) Locator {
	l.Index = i
	return l
}

// Within scopes the locator to the element selected by parent.
func (l Locator) Within(parent Locator) Locator {
	l.Parent = &parent
	return l
}

// String renders a stable, human readable form of the locator. It is used in
// logs and as the identity of a locator in tests.
func (l Locator) String() string {
	var parts []string
	if l.Parent != nil {
		parts = append(parts, l.Parent.String(), ">>")
	}
	switch {
	case l.CSS != "":
		parts = append(parts, "css="+l.CSS)
	case l.Role != "":
		name := ""
		if l.Name != nil {
			name = "[name=" + l.Name.String() + "]"
		}
		parts = append(parts, "role="+l.Role+name)
	case l.Text != nil:
		parts = append(parts, "text="+l.Text.String())
	case l.Label != nil:
		parts = append(parts, "label="+l.Label.String())
	default:
		parts = append(parts, "css=*")
	}
	if l.HasText != nil {
		parts = append(parts, "has-text="+l.HasText.String())
	}
	if l.Has != nil {
		parts = append(parts, "has=("+l.Has.String()+")")
	}
	if l.Innermost {
		parts = append(parts, "innermost")
	}
	if l.Index != 0 {
		parts = append(parts, fmt.Sprintf("nth=%d", l.Index))
	}
	return strings.Join(parts, " ")
}

// MarshalSpec encodes the locator for the resolver script.
func (l Locator) MarshalSpec() (string, error) {
	b, err := json.ConfigCompatibleWithStandardLibrary.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("failed to encode locator %s: %w", l, err)
	}
	return string(b), nil
}
