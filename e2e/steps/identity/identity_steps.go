package identity

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the slice of the scenario context these steps need.
type TestContext interface {
	POST(path string, body any, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	SetAccessToken(token string)
	GetPhone() string
	GetPassport() string
	GetPassword() string
}

// RegisterSteps registers registration and authorization steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &identitySteps{tc: tc}

	ctx.Step(`^I register a new client$`, steps.registerClient)
	ctx.Step(`^I register the same client again$`, steps.registerClient)
	ctx.Step(`^I am a registered client$`, steps.registeredClient)
	ctx.Step(`^I authorize with my mobile phone and password$`, steps.authorizeByPhone)
	ctx.Step(`^I authorize with my passport number and password$`, steps.authorizeByPassport)
	ctx.Step(`^I authorize with my mobile phone and password "([^"]*)"$`, steps.authorizeWithPassword)
	ctx.Step(`^I authorize with passport number "([^"]*)"$`, steps.authorizeUnknownPassport)
	ctx.Step(`^I authorize without phone or passport$`, steps.authorizeWithoutIdentifier)
}

type identitySteps struct {
	tc TestContext
}

func (s *identitySteps) registrationBody() map[string]any {
	phone := s.tc.GetPhone()
	return map[string]any{
		"firstName":      "Ivan",
		"lastName":       "Petrov",
		"mobilePhone":    phone,
		"email":          "c" + phone + "@mail.ru",
		"password":       s.tc.GetPassword(),
		"passportNumber": s.tc.GetPassport(),
		"issuedBy":       "Department of Internal Affairs",
		"issueDate":      "2010-06-01",
		"departmentCode": "770001",
		"birthDate":      "1990-05-15",
		"country":        "Russia",
		"city":           "Moscow",
		"street":         "Tverskaya",
		"house":          "1",
		"postCode":       "101000",
	}
}

func (s *identitySteps) registerClient(ctx context.Context) error {
	return s.tc.POST("/api/users/public/users/registration", s.registrationBody(), nil)
}

func (s *identitySteps) registeredClient(ctx context.Context) error {
	if err := s.registerClient(ctx); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 200 {
		return fmt.Errorf("registration failed with status %d", status)
	}
	return nil
}

func (s *identitySteps) authorize(body map[string]string) error {
	if err := s.tc.POST("/api/users/public/users/authorization", body, nil); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 200 {
		return nil
	}
	token, err := s.tc.GetResponseField("accessToken")
	if err != nil {
		return err
	}
	s.tc.SetAccessToken(fmt.Sprint(token))
	return nil
}

func (s *identitySteps) authorizeByPhone(ctx context.Context) error {
	return s.authorize(map[string]string{"mobilePhone": s.tc.GetPhone(), "password": s.tc.GetPassword()})
}

func (s *identitySteps) authorizeByPassport(ctx context.Context) error {
	return s.authorize(map[string]string{"passportNumber": s.tc.GetPassport(), "password": s.tc.GetPassword()})
}

func (s *identitySteps) authorizeWithPassword(ctx context.Context, password string) error {
	return s.authorize(map[string]string{"mobilePhone": s.tc.GetPhone(), "password": password})
}

func (s *identitySteps) authorizeUnknownPassport(ctx context.Context, passport string) error {
	return s.authorize(map[string]string{"passportNumber": passport, "password": s.tc.GetPassword()})
}

func (s *identitySteps) authorizeWithoutIdentifier(ctx context.Context) error {
	return s.authorize(map[string]string{"password": s.tc.GetPassword()})
}
