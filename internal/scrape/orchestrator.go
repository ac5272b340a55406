// Package scrape drives one automated session against the registry portal:
// login and filter configuration gated by two human-solved CAPTCHA
// checkpoints, then a paginated sweep of result rows, each extracted and
// persisted. The whole run is a single sequence of blocking steps against
// one exclusively-owned browser session.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deedharvest/api/schemas"
	"github.com/xkilldash9x/deedharvest/internal/browser"
	"github.com/xkilldash9x/deedharvest/internal/config"
	"github.com/xkilldash9x/deedharvest/internal/extract"
	"github.com/xkilldash9x/deedharvest/internal/relay"
)

// Operator-facing terminal messages.
const (
	msgInvalidDates    = "Invalid date format. Expected YYYY-MM-DD."
	msgLoginExhausted  = "Login CAPTCHA solving failed after multiple attempts. Try again."
	msgFilterExhausted = "CAPTCHA #2 solving failed after multiple attempts. Try again."
	msgUnexpected      = "Scraping failed due to an error. Please check logs and try again."
	msgCompleted       = "Scraping completed successfully! Review the status page and download the export."
)

// Browser is the subset of session primitives the state machine drives.
// *browser.Session implements it; tests substitute a scripted double.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	Refresh(ctx context.Context) error
	Location(ctx context.Context) (string, error)
	WaitVisible(ctx context.Context, loc browser.Locator) error
	Count(ctx context.Context, loc browser.Locator) (int, error)
	Click(ctx context.Context, loc browser.Locator) error
	ClearAndType(ctx context.Context, loc browser.Locator, text string) error
	PressEnter(ctx context.Context, loc browser.Locator) error
	SelectByLabel(ctx context.Context, loc browser.Locator, label string) error
	Attribute(ctx context.Context, loc browser.Locator, name string) (string, error)
	OuterHTML(ctx context.Context, loc browser.Locator) (string, error)
	CaptureElement(ctx context.Context, loc browser.Locator) ([]byte, error)
	Close() error
}

var _ Browser = (*browser.Session)(nil)

// BrowserFactory opens the browser session for a run. It is only invoked
// after input validation passes, so malformed input never costs a browser
// process.
type BrowserFactory func(ctx context.Context) (Browser, error)

// CaptchaRelay is the human-in-the-loop channel for CAPTCHA answers.
type CaptchaRelay interface {
	Prompt(ctx context.Context, runID string, image []byte, message string) error
	Await(ctx context.Context, runID string, timeout, pollInterval time.Duration) (string, error)
}

// Ledger records runs and their progress events.
type Ledger interface {
	CreateRun(ctx context.Context) (schemas.Run, error)
	AppendStatus(ctx context.Context, runID, message string, image []byte) error
}

// RecordSink persists extracted records. Save is transactional on the far
// side; a failure is fatal to the current row only.
type RecordSink interface {
	Save(ctx context.Context, rec schemas.Record) error
}

// Orchestrator runs the login/filter/results state machine.
type Orchestrator struct {
	cfg        config.HarvestConfig
	log        *zap.Logger
	newBrowser BrowserFactory
	relay      CaptchaRelay
	ledger     Ledger
	sink       RecordSink
	parser     *extract.Parser
}

// New wires an orchestrator.
func New(cfg config.HarvestConfig, logger *zap.Logger, factory BrowserFactory, captchaRelay CaptchaRelay, ledger Ledger, sink RecordSink) *Orchestrator {
	log := logger.Named("orchestrator")
	return &Orchestrator{
		cfg:        cfg,
		log:        log,
		newBrowser: factory,
		relay:      captchaRelay,
		ledger:     ledger,
		sink:       sink,
		parser:     extract.NewParser(log),
	}
}

// Run executes one full scraping session. Every terminal path yields exactly
// one RunResult with a displayable message, and the browser session (if one
// was opened) is closed exactly once.
func (o *Orchestrator) Run(ctx context.Context, in Inputs) schemas.RunResult {
	run, err := o.ledger.CreateRun(ctx)
	if err != nil {
		o.log.Error("Could not create run", zap.Error(err))
		return schemas.RunResult{Outcome: schemas.OutcomeError, Message: fmt.Sprintf("Scraping failed: %v", err)}
	}
	log := o.log.With(zap.String("run_id", run.ID))

	norm, err := in.normalize()
	if err != nil {
		log.Warn("Rejected run input", zap.Error(err))
		o.status(ctx, run, msgInvalidDates)
		return schemas.RunResult{Outcome: schemas.OutcomeInvalidInput, Message: msgInvalidDates}
	}

	b, err := o.newBrowser(ctx)
	if err != nil {
		log.Error("Could not open browser session", zap.Error(err))
		o.status(ctx, run, msgUnexpected)
		return schemas.RunResult{Outcome: schemas.OutcomeError, Message: fmt.Sprintf("Scraping failed: %v", err)}
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("Error closing browser session", zap.Error(err))
		}
	}()

	return o.execute(ctx, log, b, run, norm)
}

// execute runs the state machine against an open session.
func (o *Orchestrator) execute(ctx context.Context, log *zap.Logger, b Browser, run schemas.Run, in normalizedInputs) schemas.RunResult {
	if err := b.Navigate(ctx, o.cfg.BaseURL); err != nil {
		return o.fail(ctx, log, run, err)
	}

	o.switchLanguage(ctx, log, b)

	// Checkpoint 1: login.
	if err := o.loginPhase(ctx, log, b, run, in); err != nil {
		if errors.Is(err, ErrExhausted) {
			o.status(ctx, run, msgLoginExhausted)
			return schemas.RunResult{Outcome: schemas.OutcomeLoginExhausted, Message: msgLoginExhausted}
		}
		return o.fail(ctx, log, run, err)
	}

	if err := o.openSearchSection(ctx, b); err != nil {
		return o.fail(ctx, log, run, err)
	}

	// Checkpoint 2: search filters.
	if err := o.filtersPhase(ctx, log, b, run, in); err != nil {
		if errors.Is(err, ErrExhausted) {
			o.status(ctx, run, msgFilterExhausted)
			return schemas.RunResult{Outcome: schemas.OutcomeFilterExhausted, Message: msgFilterExhausted}
		}
		return o.fail(ctx, log, run, err)
	}

	if err := o.resultsPhase(ctx, log, b, run); err != nil {
		return o.fail(ctx, log, run, err)
	}

	o.status(ctx, run, msgCompleted)
	return schemas.RunResult{Outcome: schemas.OutcomeSuccess, Message: msgCompleted}
}

// fail is the terminal path for unhandled faults: one final status event,
// full context in the log, generic message to the operator.
func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, run schemas.Run, err error) schemas.RunResult {
	log.Error("Run failed", zap.Error(err))
	o.status(ctx, run, msgUnexpected)
	return schemas.RunResult{Outcome: schemas.OutcomeError, Message: fmt.Sprintf("Scraping failed: %v", err)}
}

// switchLanguage clicks the English link if present. Absence of the control
// is not an error.
func (o *Orchestrator) switchLanguage(ctx context.Context, log *zap.Logger, b Browser) {
	n, err := b.Count(ctx, locLanguageLinks)
	if err != nil || n < 3 {
		log.Info("English switch not found; continuing", zap.Int("links", n), zap.Error(err))
		return
	}
	if err := b.Click(ctx, locEnglishLink); err != nil {
		log.Info("English switch could not be clicked; continuing", zap.Error(err))
	}
}

// loginPhase fills credentials, relays CAPTCHA #1, and waits for the portal
// to navigate away from the login page. Each attempt starts from a fresh
// page load because the CAPTCHA image rotates.
func (o *Orchestrator) loginPhase(ctx context.Context, log *zap.Logger, b Browser, run schemas.Run, in normalizedInputs) error {
	o.status(ctx, run, "Filling Username And Password To login")

	return withAttempts(ctx, log, "login", o.cfg.MaxAttempts, func(ctx context.Context, attempt int) (stepOutcome, error) {
		if err := b.Refresh(ctx); err != nil {
			return 0, err
		}
		if err := b.WaitVisible(ctx, locUsernameField); err != nil {
			return 0, err
		}
		if err := b.ClearAndType(ctx, locUsernameField, in.Username); err != nil {
			return 0, err
		}
		if err := b.ClearAndType(ctx, locPasswordField, in.Password); err != nil {
			return 0, err
		}

		if err := b.WaitVisible(ctx, locLoginCaptchaImage); err != nil {
			return 0, err
		}
		img, err := b.CaptureElement(ctx, locLoginCaptchaImage)
		if err != nil {
			return 0, err
		}
		if err := o.relay.Prompt(ctx, run.ID, img, "Please solve CAPTCHA #1 in the UI"); err != nil {
			return 0, err
		}

		value, err := o.relay.Await(ctx, run.ID, o.cfg.CaptchaWait, o.cfg.PollInterval)
		if errors.Is(err, relay.ErrTimedOut) {
			o.status(ctx, run, "CAPTCHA #1 timed out waiting for input. Retrying...")
			return stepRetry, nil
		}
		if err != nil {
			return 0, err
		}

		n, err := b.Count(ctx, locCaptchaInputs)
		if err != nil {
			return 0, err
		}
		if n < 3 {
			return 0, fmt.Errorf("login captcha input box: have %d inputs: %w", n, browser.ErrNotFound)
		}
		if err := b.Click(ctx, locLoginCaptchaInput); err != nil {
			return 0, err
		}
		if err := b.ClearAndType(ctx, locLoginCaptchaInput, value); err != nil {
			return 0, err
		}

		before, err := b.Location(ctx)
		if err != nil {
			return 0, err
		}
		nb, err := b.Count(ctx, locLoginButtons)
		if err != nil {
			return 0, err
		}
		if nb < 2 {
			return 0, fmt.Errorf("login submit control: have %d buttons: %w", nb, browser.ErrNotFound)
		}
		if err := b.Click(ctx, locLoginSubmit); err != nil {
			return 0, err
		}

		if err := o.waitURLChange(ctx, b, before); err != nil {
			return 0, err
		}

		o.status(ctx, run, "Captcha #1 solved successfully; logged in.")
		return stepDone, nil
	})
}

// waitURLChange polls the location until it differs from before, bounded by
// the wait budget. A login that never navigates is an attempt failure.
func (o *Orchestrator) waitURLChange(ctx context.Context, b Browser, before string) error {
	deadline := time.Now().Add(o.cfg.WaitTimeout)
	for {
		current, err := b.Location(ctx)
		if err != nil {
			return err
		}
		if current != before {
			// Brief render settle after navigation.
			o.sleep(ctx, o.cfg.SettleDelay)
			return nil
		}
		if time.Now().Add(o.cfg.PollInterval).After(deadline) {
			return fmt.Errorf("url did not change from %s within %s: %w", before, o.cfg.WaitTimeout, browser.ErrNotFound)
		}
		o.sleep(ctx, o.cfg.PollInterval)
	}
}

// openSearchSection navigates from the post-login dashboard to the certified
// copy search page. Failures here are fatal, not retried.
func (o *Orchestrator) openSearchSection(ctx context.Context, b Browser) error {
	if err := b.WaitVisible(ctx, locDashboardHeading); err != nil {
		return err
	}
	n, err := b.Count(ctx, locMenuLinks)
	if err != nil {
		return err
	}
	if n <= 2 {
		return fmt.Errorf("certified search menu link: have %d links: %w", n, browser.ErrNotFound)
	}
	if err := b.Click(ctx, locSearchMenuLink); err != nil {
		return err
	}
	return b.WaitVisible(ctx, locDetailOptions)
}

// filtersPhase configures the search (dates, district, deed type), relays
// CAPTCHA #2, and submits, waiting for the results table.
func (o *Orchestrator) filtersPhase(ctx context.Context, log *zap.Logger, b Browser, run schemas.Run, in normalizedInputs) error {
	return withAttempts(ctx, log, "filters", o.cfg.MaxAttempts, func(ctx context.Context, attempt int) (stepOutcome, error) {
		if err := b.Refresh(ctx); err != nil {
			return 0, err
		}
		if err := b.WaitVisible(ctx, locDetailOptions); err != nil {
			return 0, err
		}
		n, err := b.Count(ctx, locDetailOptions)
		if err != nil {
			return 0, err
		}
		if n <= 2 {
			return 0, fmt.Errorf("other details option: have %d options: %w", n, browser.ErrNotFound)
		}
		if err := b.Click(ctx, locOtherDetailsPanel); err != nil {
			return 0, err
		}
		if err := b.WaitVisible(ctx, locFromDateField); err != nil {
			return 0, err
		}

		o.status(ctx, run, "Filling District, Date, and Deed Type")

		if err := b.Click(ctx, locFromDateField); err != nil {
			return 0, err
		}
		if err := b.ClearAndType(ctx, locFromDateField, in.portalDateFrom); err != nil {
			return 0, err
		}
		if err := b.Click(ctx, locToDateField); err != nil {
			return 0, err
		}
		if err := b.ClearAndType(ctx, locToDateField, in.portalDateTo); err != nil {
			return 0, err
		}

		if err := b.WaitVisible(ctx, locDistrictSelect); err != nil {
			return 0, err
		}
		if err := b.SelectByLabel(ctx, locDistrictSelect, in.District); err != nil {
			return 0, err
		}

		// The autocomplete needs a beat to attach before and after typing.
		o.sleep(ctx, o.cfg.SettleDelay)
		if err := b.ClearAndType(ctx, locDeedTypeBox, in.DeedType); err != nil {
			return 0, err
		}
		o.sleep(ctx, o.cfg.SettleDelay)
		if err := b.PressEnter(ctx, locDeedTypeBox); err != nil {
			return 0, err
		}

		imgs, err := b.Count(ctx, locCaptchaImages)
		if err != nil {
			return 0, err
		}
		if imgs < 2 {
			return 0, fmt.Errorf("second captcha image: have %d images: %w", imgs, browser.ErrNotFound)
		}
		img, err := b.CaptureElement(ctx, locFilterCaptchaImg)
		if err != nil {
			return 0, err
		}
		if err := o.relay.Prompt(ctx, run.ID, img, "Please solve CAPTCHA #2 in the UI"); err != nil {
			return 0, err
		}

		value, err := o.relay.Await(ctx, run.ID, o.cfg.CaptchaWait, o.cfg.PollInterval)
		if errors.Is(err, relay.ErrTimedOut) {
			o.status(ctx, run, "CAPTCHA #2 timed out waiting for input. Retrying...")
			return stepRetry, nil
		}
		if err != nil {
			return 0, err
		}

		inputs, err := b.Count(ctx, locCaptchaInputs)
		if err != nil {
			return 0, err
		}
		if inputs < 2 {
			return 0, fmt.Errorf("second captcha input: have %d inputs: %w", inputs, browser.ErrNotFound)
		}
		if err := b.Click(ctx, locFilterCaptchaIn); err != nil {
			return 0, err
		}
		if err := b.ClearAndType(ctx, locFilterCaptchaIn, value); err != nil {
			return 0, err
		}

		buttons, err := b.Count(ctx, locSearchButtons)
		if err != nil {
			return 0, err
		}
		if buttons < 5 {
			return 0, fmt.Errorf("search submit control: have %d buttons: %w", buttons, browser.ErrNotFound)
		}
		if err := b.Click(ctx, locSearchSubmit); err != nil {
			return 0, err
		}

		if err := b.WaitVisible(ctx, locResultRows); err != nil {
			return 0, err
		}

		o.status(ctx, run, "CAPTCHA #2 solved successfully.")
		return stepDone, nil
	})
}

// resultsPhase sweeps every results page, row by row. One bad row never
// aborts the run; one page whose "next" control is disabled or missing ends
// it.
func (o *Orchestrator) resultsPhase(ctx context.Context, log *zap.Logger, b Browser, run schemas.Run) error {
	if err := b.WaitVisible(ctx, locResultRows); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := b.Count(ctx, locResultRows)
		if err != nil {
			return err
		}

		for i := 0; i < n; i++ {
			stop, err := o.processRow(ctx, run, i, b)
			if err != nil {
				log.Info("Failed to process record", zap.Int("row", i), zap.Error(err))
				// Best-effort close in case the detail view is stuck open.
				o.closeDetail(ctx, log, b)
				continue
			}
			if stop {
				break
			}
		}

		if !o.nextPage(ctx, log, b) {
			return nil
		}
	}
}

// processRow opens one result row's detail view, extracts the record, hands
// it to the sink, and closes the view. stop reports index drift: the
// refreshed row list no longer covers this index.
func (o *Orchestrator) processRow(ctx context.Context, run schemas.Run, index int, b Browser) (stop bool, err error) {
	// Re-resolve the row list from the live page; opening a detail view
	// re-renders the table.
	refreshed, err := b.Count(ctx, locResultRows)
	if err != nil {
		return false, err
	}
	if index >= refreshed {
		return true, nil
	}

	if err := b.Click(ctx, resultRow(index)); err != nil {
		return false, err
	}
	if err := b.WaitVisible(ctx, locRegistrationArea); err != nil {
		return false, err
	}

	o.status(ctx, run, fmt.Sprintf("Fetching data of record index %d", index))

	html, err := b.OuterHTML(ctx, locDetailRoot)
	if err != nil {
		return false, err
	}
	rec, err := o.parser.Parse(html)
	if err != nil {
		return false, fmt.Errorf("row %d: %w", index, err)
	}
	if err := o.sink.Save(ctx, rec); err != nil {
		return false, fmt.Errorf("row %d: %w", index, err)
	}

	o.closeDetail(ctx, o.log, b)
	return false, nil
}

// closeDetail dismisses the detail dialog, best-effort.
func (o *Orchestrator) closeDetail(ctx context.Context, log *zap.Logger, b Browser) {
	n, err := b.Count(ctx, locCloseButtons)
	if err != nil || n == 0 {
		log.Debug("Detail close button not found", zap.Error(err))
		return
	}
	if err := b.Click(ctx, detailCloseButton(n)); err != nil {
		log.Debug("Detail close button could not be clicked", zap.Error(err))
		return
	}
	o.sleep(ctx, o.cfg.SettleDelay)
}

// nextPage advances pagination. Any fault here means "last page", not an
// error.
func (o *Orchestrator) nextPage(ctx context.Context, log *zap.Logger, b Browser) bool {
	n, err := b.Count(ctx, locNextPageBtn)
	if err != nil || n == 0 {
		return false
	}
	class, err := b.Attribute(ctx, locNextPageBtn, "class")
	if err != nil {
		return false
	}
	if strings.Contains(class, "disabled") {
		return false
	}
	if err := b.Click(ctx, locNextPageBtn); err != nil {
		log.Debug("Pagination click failed; treating as last page", zap.Error(err))
		return false
	}
	if err := b.WaitVisible(ctx, locResultRows); err != nil {
		log.Debug("Results did not repopulate after pagination; treating as last page", zap.Error(err))
		return false
	}
	return true
}

// status appends a progress event; a ledger hiccup must not kill the run.
func (o *Orchestrator) status(ctx context.Context, run schemas.Run, message string) {
	if err := o.ledger.AppendStatus(ctx, run.ID, message, nil); err != nil {
		o.log.Warn("Could not append status", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// sleep waits for d or until the context ends.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
