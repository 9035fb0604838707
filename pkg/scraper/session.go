// pkg/scraper/session.go
package scraper

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"visitsync/pkg/config"
	"visitsync/pkg/log"
	"visitsync/pkg/visit"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
)

const (
	usernameFieldSelector    = `input[name="username"]`
	passwordFieldSelector    = `input[type="password"]`
	datePickerSelector       = `#datepicker`
	locationDropdownSelector = `#ui_DDLocation`
	submitInputSelector      = `input[type="submit"][value="Submit"]`
	interstitialSelector     = `#ui_DDLocation, input[type="submit"][value="Submit"]`
	slotItemSelector         = `ul[data-role="droptarget"] li`
	bodySelector             = `body`

	emailLoginButtonXPath = `//button[contains(normalize-space(.),"I use an email address to login")]`
	continueButtonXPath   = `//button[normalize-space(.)="Continue"]`
	signInButtonXPath     = `//button[normalize-space(.)="Sign In"]`

	optionalStepTimeout    = 10 * time.Second
	credentialFieldTimeout = 60 * time.Second
	calendarReadyTimeout   = 30 * time.Second
	locationControlTimeout = 30 * time.Second
	slotAppearTimeout      = 10 * time.Second

	// Settle delays cover UI mutations that expose no completion signal:
	// widget initialization after login and the dropdown post-back re-render.
	loginSettleDelay    = 2 * time.Second
	locationSettleDelay = 3 * time.Second

	pollingInterval = 250 * time.Millisecond
)

var chromeExecutablePath = func() string {
	if path, _ := exec.LookPath("google-chrome"); path != "" {
		return path
	}
	if path, _ := exec.LookPath("chromium"); path != "" {
		return path
	}
	return "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
}()

// kendoSelectScriptTemplate drives the Kendo dropdown from script and fires
// the WebForms post-back so the server re-renders for the new clinic. It
// returns false when no option text matches the target name.
const kendoSelectScriptTemplate = `(() => {
	const target = %q;
	const dropdown = $('#ui_DDLocation').data('kendoDropDownList');
	const options = $('#ui_DDLocation option').filter(function() {
		return $(this).text().trim() === target;
	});
	if (options.length === 0) {
		return false;
	}
	dropdown.value(options.val());
	dropdown.trigger('change');
	__doPostBack('ui$DDLocation', '');
	return true;
})()`

// Session is one exclusive authenticated browser session. A run creates
// exactly one and releases it on every exit path.
type Session struct {
	browserContext  context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	credentials     config.Credentials
}

// NewSession launches a headless browser. Cancelling the parent context
// tears the browser down.
func NewSession(parentContext context.Context, credentials config.Credentials) (*Session, error) {
	allocatorContext, allocatorCancel := chromedp.NewExecAllocator(
		parentContext,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.ExecPath(chromeExecutablePath),
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.NoSandbox,
			chromedp.WindowSize(1280, 800),
		)...,
	)
	browserContext, browserCancel := chromedp.NewContext(allocatorContext)
	if err := chromedp.Run(browserContext); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return &Session{
		browserContext:  browserContext,
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
		credentials:     credentials,
	}, nil
}

// Close releases the browser unconditionally.
func (s *Session) Close() {
	s.browserCancel()
	s.allocatorCancel()
}

// waitPresent polls until the JS expression is truthy. A polling timeout is
// a designed outcome (false, nil); any driver fault is an error.
func (s *Session) waitPresent(expression string, timeout time.Duration) (bool, error) {
	var present bool
	err := chromedp.Run(s.browserContext, chromedp.Poll(
		expression,
		&present,
		chromedp.WithPollingTimeout(timeout),
		chromedp.WithPollingInterval(pollingInterval),
	))
	if errors.Is(err, chromedp.ErrPollingTimeout) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func selectorPresentExpression(selector string) string {
	return fmt.Sprintf(`document.querySelector(%q) !== null`, selector)
}

func buttonPresentExpression(buttonText string) string {
	return fmt.Sprintf(
		`Array.from(document.querySelectorAll('button')).some((b) => b.textContent.trim().includes(%q))`,
		buttonText,
	)
}

// Login walks the credential flow to a ready calendar. Required steps that
// time out fail with AuthenticationError; optional steps that never appear
// are skipped.
func (s *Session) Login(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log.L().Info("login_start", zap.String("url", config.LoginURL))

	if err := chromedp.Run(s.browserContext, chromedp.Navigate(config.LoginURL)); err != nil {
		return &AuthenticationError{Step: "navigate", Err: err}
	}

	// Some tenants go straight to the username form without this button.
	emailButtonPresent, err := s.waitPresent(buttonPresentExpression("I use an email address to login"), optionalStepTimeout)
	if err != nil {
		return &AuthenticationError{Step: "email login option", Err: err}
	}
	if emailButtonPresent {
		if err := chromedp.Run(s.browserContext, chromedp.Click(emailLoginButtonXPath, chromedp.BySearch)); err != nil {
			return &AuthenticationError{Step: "email login option", Err: err}
		}
	}

	usernamePresent, err := s.waitPresent(selectorPresentExpression(usernameFieldSelector), credentialFieldTimeout)
	if err != nil || !usernamePresent {
		return &AuthenticationError{Step: "username field", Err: err}
	}
	if err := chromedp.Run(s.browserContext,
		chromedp.SendKeys(usernameFieldSelector, s.credentials.Username, chromedp.ByQuery),
		chromedp.Click(continueButtonXPath, chromedp.BySearch),
	); err != nil {
		return &AuthenticationError{Step: "submit username", Err: err}
	}

	passwordPresent, err := s.waitPresent(selectorPresentExpression(passwordFieldSelector), credentialFieldTimeout)
	if err != nil || !passwordPresent {
		return &AuthenticationError{Step: "password field", Err: err}
	}
	if err := chromedp.Run(s.browserContext,
		chromedp.SendKeys(passwordFieldSelector, s.credentials.Password, chromedp.ByQuery),
	); err != nil {
		return &AuthenticationError{Step: "enter password", Err: err}
	}

	// The final button reads Sign In on most tenants, Continue on the rest.
	signInPresent, err := s.waitPresent(buttonPresentExpression("Sign In"), optionalStepTimeout)
	if err != nil {
		return &AuthenticationError{Step: "sign in", Err: err}
	}
	signInXPath := continueButtonXPath
	if signInPresent {
		signInXPath = signInButtonXPath
	}
	if err := chromedp.Run(s.browserContext, chromedp.Click(signInXPath, chromedp.BySearch)); err != nil {
		return &AuthenticationError{Step: "sign in", Err: err}
	}

	// Optional post-login interstitial: a landing form with a Submit input,
	// or the calendar page itself when the tenant skips it.
	interstitialPresent, err := s.waitPresent(selectorPresentExpression(interstitialSelector), optionalStepTimeout)
	if err != nil {
		return &AuthenticationError{Step: "post-login landing", Err: err}
	}
	if interstitialPresent {
		var submitPresent bool
		if err := chromedp.Run(s.browserContext,
			chromedp.Evaluate(selectorPresentExpression(submitInputSelector), &submitPresent),
		); err != nil {
			return &AuthenticationError{Step: "post-login landing", Err: err}
		}
		if submitPresent {
			if err := chromedp.Run(s.browserContext, chromedp.Click(submitInputSelector, chromedp.ByQuery)); err != nil {
				log.L().Warn("interstitial_submit_failed", zap.Error(err))
			}
		}
	}

	calendarPresent, err := s.waitPresent(selectorPresentExpression(datePickerSelector), calendarReadyTimeout)
	if err != nil || !calendarPresent {
		return &AuthenticationError{Step: "calendar control", Err: err}
	}
	if err := chromedp.Run(s.browserContext, chromedp.Sleep(loginSettleDelay)); err != nil {
		return &AuthenticationError{Step: "calendar settle", Err: err}
	}

	log.L().Info("login_complete")
	return nil
}

// SelectLocation switches the active clinic context via the Kendo dropdown.
// Callers must not assume the page is stable before it returns.
func (s *Session) SelectLocation(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	controlPresent, err := s.waitPresent(selectorPresentExpression(locationDropdownSelector), locationControlTimeout)
	if err != nil {
		return fmt.Errorf("wait for location control: %w", err)
	}
	if !controlPresent {
		return fmt.Errorf("location control never appeared for %q", name)
	}

	var matched bool
	selectScript := fmt.Sprintf(kendoSelectScriptTemplate, name)
	err = chromedp.Run(s.browserContext,
		chromedp.ScrollIntoView(locationDropdownSelector, chromedp.ByQuery),
		chromedp.Evaluate(selectScript, &matched),
	)
	if err != nil {
		return fmt.Errorf("select location %q: %w", name, err)
	}
	if !matched {
		return fmt.Errorf("%q: %w", name, ErrLocationNotFound)
	}
	log.L().Info("location_selected", zap.String("location", name))

	// The post-back re-render exposes no observable done signal.
	return chromedp.Run(s.browserContext, chromedp.Sleep(locationSettleDelay))
}

// SetDate drives the calendar to dateStr and reports whether any schedule
// slot materialized. A quiet timeout means no operating hours that day, not
// a failure.
func (s *Session) SetDate(ctx context.Context, dateStr string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := chromedp.Run(s.browserContext,
		chromedp.Click(datePickerSelector, chromedp.ByQuery),
		chromedp.SetValue(datePickerSelector, "", chromedp.ByQuery),
		chromedp.SendKeys(datePickerSelector, dateStr+kb.Enter, chromedp.ByQuery),
	)
	if err != nil {
		// Entry is uncertain, not fatal: the slot poll below still decides.
		log.L().Warn("date_entry_uncertain", zap.String("date", dateStr), zap.Error(err))
	}
	return s.waitPresent(selectorPresentExpression(slotItemSelector), slotAppearTimeout)
}

// Extract captures the rendered schedule and parses it into visit records
// for the given clinic and date.
func (s *Session) Extract(ctx context.Context, location config.Location, dateStr string) ([]visit.Visit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var pageHTML string
	if err := chromedp.Run(s.browserContext, chromedp.OuterHTML(bodySelector, &pageHTML, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("capture schedule page: %w", err)
	}
	document, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse schedule page: %w", err)
	}
	return extractVisits(document, location, dateStr), nil
}
