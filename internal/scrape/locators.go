package scrape

import "github.com/xkilldash9x/deedharvest/internal/browser"

// The portal's markup, mapped once. Every selector the state machine touches
// lives here so site drift is a one-file fix.
var (
	// -- language switch --
	locLanguageLinks = browser.CSS("language links", "div.ng-star-inserted>a", -1)
	locEnglishLink   = browser.CSS("english language link", "div.ng-star-inserted>a", 2)

	// -- login form --
	locUsernameField     = browser.CSS("login username field", "input#username", -1)
	locPasswordField     = browser.CSS("login password field", "input#password", -1)
	locCaptchaImages     = browser.CSS("captcha images", "div.input-group>img", -1)
	locLoginCaptchaImage = browser.CSS("login captcha image", "div.input-group>img", 0)
	locCaptchaInputs     = browser.CSS("captcha inputs", "div.input-group>input", -1)
	locLoginCaptchaInput = browser.CSS("login captcha input", "div.input-group>input", 2)
	locLoginButtons      = browser.CSS("login buttons", "button.mat-focus-indicator", -1)
	locLoginSubmit       = browser.CSS("login submit control", "button.mat-focus-indicator", 1)

	// -- navigation to the search section --
	locDashboardHeading = browser.CSS("dashboard heading", "h5.my-0", -1)
	locMenuLinks        = browser.CSS("dashboard menu links", "li.ng-star-inserted>a", -1)
	locSearchMenuLink   = browser.CSS("certified search menu link", "li.ng-star-inserted>a", 2)

	// -- search filters --
	locDetailOptions     = browser.CSS("search detail options", "div.apex-item-option", -1)
	locOtherDetailsPanel = browser.CSS("other details option", "div.apex-item-option", 2)
	locFromDateField     = browser.CSS("period from field", "input#P2000_FROM_DATE", -1)
	locToDateField       = browser.CSS("period to field", "input#P2000_TO_DATE", -1)
	locDistrictSelect    = browser.CSS("district select", "select#P2000_DISTRICT", -1)
	locDeedTypeBox       = browser.XPath("deed type autocomplete", "//input[@aria-autocomplete='list']", -1)
	locFilterCaptchaImg  = browser.CSS("second captcha image", "div.input-group>img", 1)
	locFilterCaptchaIn   = browser.CSS("second captcha input", "div.input-group>input", 1)
	locSearchButtons     = browser.CSS("search buttons", "div>button.btn", -1)
	locSearchSubmit      = browser.CSS("search submit control", "div>button.btn", 4)

	// -- results and detail view --
	locResultRows       = browser.CSS("result row links", "td.mat-cell>span.link", -1)
	locRegistrationArea = browser.XPath("registration details section",
		"//fieldset[legend[contains(text(), 'Registration Details')]]", -1)
	locDetailRoot   = browser.CSS("detail view document", "html", -1)
	locCloseButtons = browser.CSS("detail close buttons", "button.colsebtn", -1)
	locNextPageBtn  = browser.CSS("pagination next control", "button.mat-paginator-navigation-next", -1)
)

// resultRow addresses the Nth row link on the current results page. Rows are
// re-resolved through this on every use since the table re-renders.
func resultRow(index int) browser.Locator {
	return browser.CSS("result row link", "td.mat-cell>span.link", index)
}

// detailCloseButton prefers the second close control when the dialog renders
// two of them.
func detailCloseButton(count int) browser.Locator {
	idx := 0
	if count > 1 {
		idx = 1
	}
	return browser.CSS("detail close button", "button.colsebtn", idx)
}
