// internal/browser/locator_test.go
package browser

import (
	"regexp"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatterns(t *testing.T) {
	t.Run("Exact anchors and escapes", func(t *testing.T) {
		p := Exact("Apply Filters (2)")
		assert.Equal(t, `^Apply Filters \(2\)$`, p.Source)
		assert.Equal(t, "i", p.Flags)

		// The escaped source must still behave as a literal in a regex engine.
		re := regexp.MustCompile("(?i)" + p.Source)
		assert.True(t, re.MatchString("apply filters (2)"))
		assert.False(t, re.MatchString("Apply Filters (2) now"))
	})

	t.Run("Contains escapes metacharacters", func(t *testing.T) {
		p := Contains("Start Date:")
		assert.Equal(t, "Start Date:", p.Source)
		assert.Equal(t, `CALLS MADE\.`, Contains("CALLS MADE.").Source)
	})

	t.Run("Regex is used verbatim", func(t *testing.T) {
		assert.Equal(t, Pattern{Source: "(Click for detail)", Flags: "i"}, Regex("(Click for detail)"))
	})
}

func TestLocatorString(t *testing.T) {
	tests := []struct {
		name string
		loc  Locator
		want string
	}{
		{"css", CSS("#start-date"), "css=#start-date"},
		{"role with name", Role("button", Exact("OK")), "role=button[name=/^OK$/i]"},
		{"text", Text(Exact("Filter")), "text=/^Filter$/i"},
		{"label", Label(Contains("End Date:")), "label=/End Date:/i"},
		{"filtered", CSS("th").Filter(Contains("Sales Rep Name")), "css=th has-text=/Sales Rep Name/i"},
		{"nth", Role("link", Exact("VIEW REPORT")).Nth(3), "role=link[name=/^VIEW REPORT$/i] nth=3"},
		{
			"scoped",
			Role("link", Exact("VIEW REPORT")).Within(CSS("section, div").Filter(Contains("Call Outcome Report")).InnermostOnly()),
			"css=section, div has-text=/Call Outcome Report/i innermost >> role=link[name=/^VIEW REPORT$/i]",
		},
		{
			"containing",
			CSS("div").Filter(Contains("Call Outcome Report")).Containing(Role("link", Exact("VIEW REPORT"))).InnermostOnly(),
			"css=div has-text=/Call Outcome Report/i has=(role=link[name=/^VIEW REPORT$/i]) innermost",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.loc.String())
		})
	}
}

func TestLocatorBuildersDoNotAlias(t *testing.T) {
	base := CSS("a")
	filtered := base.Filter(Contains("Click for detail"))
	indexed := base.Nth(2)

	assert.Nil(t, base.HasText)
	assert.Equal(t, 0, base.Index)
	assert.NotNil(t, filtered.HasText)
	assert.Equal(t, 2, indexed.Index)
	assert.Nil(t, indexed.HasText)
}

func TestMarshalSpec(t *testing.T) {
	loc := Role("link", Exact("VIEW REPORT")).Within(CSS("li").Filter(Contains("Call Outcome Report"))).Nth(1)

	spec, err := loc.MarshalSpec()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(spec), &decoded))
	assert.Equal(t, "link", decoded["role"])
	assert.Equal(t, float64(1), decoded["nth"])
	assert.Equal(t, map[string]any{"source": "^VIEW REPORT$", "flags": "i"}, decoded["name"])

	parent, ok := decoded["parent"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "li", parent["css"])
	assert.Equal(t, float64(0), parent["nth"])
	assert.NotContains(t, parent, "role")
	assert.NotContains(t, parent, "has")
}

func TestMarshalSpecContaining(t *testing.T) {
	loc := CSS("div").Containing(Role("button", Exact("VIEW REPORT"))).InnermostOnly()

	spec, err := loc.MarshalSpec()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(spec), &decoded))
	assert.Equal(t, true, decoded["innermost"])
	has, ok := decoded["has"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "button", has["role"])
	assert.Equal(t, map[string]any{"source": "^VIEW REPORT$", "flags": "i"}, has["name"])
}
