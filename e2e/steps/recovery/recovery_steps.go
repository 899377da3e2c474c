package recovery

import (
	"context"
	"fmt"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	SeedAccount(ctx context.Context, email, password string, active bool) error
	POSTForm(path string, form url.Values) error
	GET(target string) error
	SwitchBrowser() error
	SentMail() int
	LastRecoveryLink() (string, error)
}

// RegisterSteps registers password recovery step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &recoverySteps{tc: tc}

	// Accounts
	ctx.Step(`^an active account "([^"]*)" with password "([^"]*)"$`, steps.activeAccount)
	ctx.Step(`^an unactivated account "([^"]*)" with password "([^"]*)"$`, steps.unactivatedAccount)
	ctx.Step(`^I open the sign-in page$`, steps.openSignIn)
	ctx.Step(`^I sign in as "([^"]*)" with password "([^"]*)"$`, steps.signIn)

	// Recovery
	ctx.Step(`^I request password recovery for "([^"]*)"$`, steps.requestRecovery)
	ctx.Step(`^(\d+) recovery emails? (?:has|have) been sent$`, steps.emailsSent)
	ctx.Step(`^I open the recovery link$`, steps.openLink)
	ctx.Step(`^I submit the new password "([^"]*)"$`, steps.submitPassword)
	ctx.Step(`^I submit the new password "([^"]*)" confirmed as "([^"]*)"$`, steps.submitConfirmed)
	ctx.Step(`^I switch to another browser$`, steps.switchBrowser)
}

type recoverySteps struct {
	tc TestContext
}

func (s *recoverySteps) activeAccount(ctx context.Context, email, password string) error {
	return s.tc.SeedAccount(ctx, email, password, true)
}

func (s *recoverySteps) unactivatedAccount(ctx context.Context, email, password string) error {
	return s.tc.SeedAccount(ctx, email, password, false)
}

func (s *recoverySteps) openSignIn(ctx context.Context) error {
	return s.tc.GET("/signin")
}

func (s *recoverySteps) signIn(ctx context.Context, email, password string) error {
	return s.tc.POSTForm("/signin", url.Values{"email": {email}, "password": {password}})
}

func (s *recoverySteps) requestRecovery(ctx context.Context, email string) error {
	return s.tc.POSTForm("/forgot-password", url.Values{"email": {email}})
}

func (s *recoverySteps) emailsSent(ctx context.Context, want int) error {
	if got := s.tc.SentMail(); got != want {
		return fmt.Errorf("expected %d recovery emails, got %d", want, got)
	}
	return nil
}

func (s *recoverySteps) openLink(ctx context.Context) error {
	link, err := s.tc.LastRecoveryLink()
	if err != nil {
		return err
	}
	return s.tc.GET(link)
}

func (s *recoverySteps) submitPassword(ctx context.Context, password string) error {
	return s.submitConfirmed(ctx, password, password)
}

func (s *recoverySteps) submitConfirmed(ctx context.Context, password, confirmation string) error {
	return s.tc.POSTForm("/reset-password", url.Values{
		"password":         {password},
		"confirm_password": {confirmation},
	})
}

func (s *recoverySteps) switchBrowser(ctx context.Context) error {
	return s.tc.SwitchBrowser()
}
