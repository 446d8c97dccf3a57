package navigator

import (
	"fmt"

	json "github.com/json-iterator/go"
	"github.com/xkilldash9x/salesi-reporter/internal/browser"
	"github.com/xkilldash9x/salesi-reporter/internal/config"
)

// Fixed portal markup.
var (
	StartDateInput   = browser.CSS("#start-date")
	EndDateInput     = browser.CSS("#end-date")
	ApplyButton      = browser.CSS("#ctl00_btnApply")
	UserSelect       = browser.CSS("#ddUser")
	PageTitle        = browser.CSS("h1.page-title")
	Body             = browser.CSS("body")
	DetailGridCell   = browser.CSS("td").Filter(browser.Contains("Customer"))
	DetailHeading    = browser.CSS("h1").Filter(browser.Contains("CALLS MADE:"))
	ColumnsButton    = browser.Role("button", browser.Exact("Columns"))
	ColumnsOKButton  = browser.Role("button", browser.Exact("OK"))
	SalesRepHeader   = browser.CSS("th").Filter(browser.Contains("Sales Rep Name"))
	TotalCallsHeader = browser.CSS("th").Filter(browser.Contains("Total Calls Made"))
)

// PanelControls are visible only while the filter panel is expanded.
var PanelControls = []browser.Locator{StartDateInput, EndDateInput, ApplyButton}

// LandingMarkers identify the report's summary table.
var LandingMarkers = []browser.Locator{SalesRepHeader, TotalCallsHeader}

// FilterBarProbes open the collapsed filter panel.
var FilterBarProbes = []Probe{
	{"filter div text", browser.Text(browser.Contains("Filter")).Within(browser.CSS("#ctl00_divFilter1"))},
	{"accordion title", browser.CSS(".accordion__title").Filter(browser.Contains("Filter"))},
	{"filter button", browser.Role("button", browser.Exact("Filter"))},
	{"filter text", browser.Text(browser.Exact("Filter"))},
	{"button with text", browser.CSS("button").Filter(browser.Contains("Filter"))},
	{"anchor with text", browser.CSS("a").Filter(browser.Contains("Filter"))},
	{"crm filter", browser.CSS("div.crm-filter, .crm-filter").Filter(browser.Contains("Filter"))},
	{"aria label", browser.CSS(`[aria-label*="Filter" i]`)},
	{"title", browser.CSS(`[title*="Filter" i]`)},
}

// ApplyProbes submit the filter panel.
var ApplyProbes = []Probe{
	{"apply id", ApplyButton},
	{"apply button", browser.Role("button", browser.Exact("Apply Filters"))},
	{"apply input", browser.CSS(`input[value="Apply Filters"]`)},
	{"apply class button", browser.CSS("button.apply")},
	{"apply class", browser.CSS(".apply")},
}

// DetailProbes open the filtered detail view.
var DetailProbes = []Probe{
	{"created count link", browser.CSS("#CreatedCount a").Filter(browser.Contains("Click for detail"))},
	{"detail link", browser.Role("link", browser.Regex("(Click for detail)"))},
	{"detail anchor", browser.CSS("a").Filter(browser.Contains("Click for detail"))},
	{"created count anchor", browser.CSS("span#CreatedCount a")},
}

// dateField is one of the two date inputs of the filter panel.
type dateField struct {
	label  string
	probes []Probe
}

func newDateField(kind, caption string, byID browser.Locator) dateField {
	return dateField{
		label: kind + " date",
		probes: []Probe{
			{kind + " date id", byID},
			{kind + " date name", browser.CSS(fmt.Sprintf(`input[name="%s-date"]`, kind))},
			{kind + " date label", browser.Label(browser.Contains(caption))},
		},
	}
}

var (
	startDateField = newDateField("start", "Start Date:", StartDateInput)
	endDateField   = newDateField("end", "End Date:", EndDateInput)
)

// TileProbes open the named report from the welcome page. A card is the
// innermost container naming the report that also holds its VIEW REPORT
// control, so a nested title block is never mistaken for the card.
func TileProbes(report string) []Probe {
	viewReport := browser.Exact("VIEW REPORT")
	viewLink := browser.Role("link", viewReport)
	viewButton := browser.Role("button", viewReport)
	card := func(control browser.Locator) browser.Locator {
		return browser.CSS("section, div, li, article").
			Filter(browser.Contains(report)).
			Containing(control).
			InnermostOnly()
	}
	return []Probe{
		{"card link", viewLink.Within(card(viewLink))},
		{"card button", viewButton.Within(card(viewButton))},
		{"fourth view report link", viewLink.Nth(3)},
		{"report link", browser.Role("link", browser.Contains(report))},
	}
}

// LandingLink and LandingListItem lead back to the report list.
func LandingLink(report string) browser.Locator {
	return browser.Role("link", browser.Exact(report))
}

func LandingListItem(report string) browser.Locator {
	return browser.Role("listitem", browser.Contains(report))
}

// ColumnCheckbox is the column chooser's toggle for a grid column.
func ColumnCheckbox(column string) browser.Locator {
	return browser.Role("checkbox", browser.Exact(column))
}

// pickerHiddenScript is true once every date picker overlay is hidden.
const pickerHiddenScript = `Array.prototype.every.call(document.querySelectorAll('.xdsoft_datetimepicker'), function (p) {
  return window.getComputedStyle(p).display === 'none' || p.offsetParent === null;
})`

const userFallbackTemplate = `(function (rep) {
  var selects = document.querySelectorAll('select');
  for (var i = 0; i < selects.length; i++) {
    var s = selects[i];
    for (var j = 0; j < s.options.length; j++) {
      var o = s.options[j];
      if (o.value === rep.id || (o.text || '').indexOf(rep.name) !== -1) {
        s.value = o.value;
        s.dispatchEvent(new Event('change', { bubbles: true }));
        return true;
      }
    }
  }
  return false;
})(%s)`

// userFallbackScript selects rep in whichever select lists them, by option
// value or by display text.
func userFallbackScript(rep config.Representative) (string, error) {
	arg, err := json.ConfigCompatibleWithStandardLibrary.MarshalToString(map[string]string{"id": rep.ID, "name": rep.Name})
	if err != nil {
		return "", fmt.Errorf("failed to encode representative: %w", err)
	}
	return fmt.Sprintf(userFallbackTemplate, arg), nil
}
