package custody

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Address(name string) string
	ActAs(name string)
	POST(path string, body any) error
	PUT(path string, body any) error
	GET(path string) error
	DELETE(path string) error
	GetResponseField(field string) (any, error)
	LastStatus() int
	LastBody() []byte
	Save(key string, v any)
	Saved(key string) (any, bool)
}

// RegisterSteps registers participant, token and transfer step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &custodySteps{tc: tc}

	// Registration
	ctx.Step(`^"([^"]*)" requests the "([^"]*)" role$`, steps.requestsRole)
	ctx.Step(`^the admin sets "([^"]*)" to "([^"]*)"$`, steps.adminSetsStatus)
	ctx.Step(`^"([^"]*)" sets "([^"]*)" to "([^"]*)"$`, steps.setsStatus)
	ctx.Step(`^"([^"]*)" is an approved "([^"]*)"$`, steps.isApproved)
	ctx.Step(`^"([^"]*)" cancels their registration$`, steps.cancelsRegistration)

	// Tokens
	ctx.Step(`^"([^"]*)" creates token "([^"]*)" with supply (\d+)$`, steps.createsToken)
	ctx.Step(`^"([^"]*)" creates token "([^"]*)" with supply (\d+) from "([^"]*)"$`, steps.createsChildToken)
	ctx.Step(`^the lineage of "([^"]*)" should have (\d+) tokens$`, steps.lineageShouldHave)

	// Transfers
	ctx.Step(`^"([^"]*)" proposes (\d+) of "([^"]*)" to "([^"]*)"$`, steps.proposes)
	ctx.Step(`^"([^"]*)" (accepts|rejects) the transfer$`, steps.resolves)
	ctx.Step(`^the transfer should be "([^"]*)"$`, steps.transferShouldBe)
	ctx.Step(`^"([^"]*)" should hold (\d+) available and (\d+) locked of "([^"]*)"$`, steps.shouldHold)
}

type custodySteps struct {
	tc TestContext
}

func (s *custodySteps) requestsRole(ctx context.Context, name, role string) error {
	s.tc.ActAs(name)
	return s.tc.POST("/participants", map[string]any{"role": role})
}

func (s *custodySteps) adminSetsStatus(ctx context.Context, name, status string) error {
	return s.setsStatus(ctx, "admin", name, status)
}

func (s *custodySteps) setsStatus(ctx context.Context, actor, name, status string) error {
	s.tc.ActAs(actor)
	return s.tc.PUT("/participants/"+s.tc.Address(name)+"/status", map[string]any{"status": status})
}

func (s *custodySteps) isApproved(ctx context.Context, name, role string) error {
	if err := s.requestsRole(ctx, name, role); err != nil {
		return err
	}
	if err := s.expect(201); err != nil {
		return err
	}
	if err := s.adminSetsStatus(ctx, name, "approved"); err != nil {
		return err
	}
	return s.expect(200)
}

func (s *custodySteps) cancelsRegistration(ctx context.Context, name string) error {
	s.tc.ActAs(name)
	return s.tc.DELETE("/me/registration")
}

func (s *custodySteps) createsToken(ctx context.Context, name, token string, supply int64) error {
	return s.create(name, token, supply, 0)
}

func (s *custodySteps) createsChildToken(ctx context.Context, name, token string, supply int64, parent string) error {
	parentID, err := s.savedID("token:" + parent)
	if err != nil {
		return err
	}
	return s.create(name, token, supply, parentID)
}

func (s *custodySteps) create(name, token string, supply int64, parentID uint64) error {
	s.tc.ActAs(name)
	body := map[string]any{"name": token, "total_supply": supply}
	if parentID != 0 {
		body["parent_id"] = parentID
	}
	if err := s.tc.POST("/tokens", body); err != nil {
		return err
	}
	return s.saveID("token:" + token)
}

func (s *custodySteps) lineageShouldHave(ctx context.Context, token string, n int) error {
	id, err := s.savedID("token:" + token)
	if err != nil {
		return err
	}
	if err := s.tc.GET(fmt.Sprintf("/tokens/%d/lineage", id)); err != nil {
		return err
	}
	var body struct {
		Tokens []json.RawMessage `json:"tokens"`
	}
	if err := json.Unmarshal(s.tc.LastBody(), &body); err != nil {
		return fmt.Errorf("decode lineage: %w", err)
	}
	if len(body.Tokens) != n {
		return fmt.Errorf("expected %d tokens in lineage, got %d", n, len(body.Tokens))
	}
	return nil
}

func (s *custodySteps) proposes(ctx context.Context, from string, amount int64, token, to string) error {
	id, err := s.savedID("token:" + token)
	if err != nil {
		return err
	}
	s.tc.ActAs(from)
	if err := s.tc.POST("/transfers", map[string]any{
		"to":       s.tc.Address(to),
		"token_id": id,
		"amount":   amount,
	}); err != nil {
		return err
	}
	return s.saveID("transfer")
}

func (s *custodySteps) resolves(ctx context.Context, name, verb string) error {
	id, err := s.savedID("transfer")
	if err != nil {
		return err
	}
	op := "accept"
	if verb == "rejects" {
		op = "reject"
	}
	s.tc.ActAs(name)
	return s.tc.POST(fmt.Sprintf("/transfers/%d/%s", id, op), nil)
}

func (s *custodySteps) transferShouldBe(ctx context.Context, status string) error {
	id, err := s.savedID("transfer")
	if err != nil {
		return err
	}
	if err := s.tc.GET(fmt.Sprintf("/transfers/%d", id)); err != nil {
		return err
	}
	got, err := s.tc.GetResponseField("status")
	if err != nil {
		return err
	}
	if got != status {
		return fmt.Errorf("expected transfer %s, got %v", status, got)
	}
	return nil
}

func (s *custodySteps) shouldHold(ctx context.Context, name string, available, locked int64, token string) error {
	id, err := s.savedID("token:" + token)
	if err != nil {
		return err
	}
	if err := s.tc.GET(fmt.Sprintf("/tokens/%d/balances/%s", id, s.tc.Address(name))); err != nil {
		return err
	}
	if err := s.expect(200); err != nil {
		return err
	}
	var b struct {
		Available int64 `json:"available"`
		Locked    int64 `json:"locked"`
	}
	if err := json.Unmarshal(s.tc.LastBody(), &b); err != nil {
		return fmt.Errorf("decode balance: %w", err)
	}
	if b.Available != available || b.Locked != locked {
		return fmt.Errorf("expected %d available / %d locked, got %d / %d", available, locked, b.Available, b.Locked)
	}
	return nil
}

func (s *custodySteps) expect(status int) error {
	if got := s.tc.LastStatus(); got != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, got, s.tc.LastBody())
	}
	return nil
}

// saveID records the id of the last response when the request succeeded.
func (s *custodySteps) saveID(key string) error {
	if s.tc.LastStatus() >= 300 {
		return nil
	}
	v, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	n, ok := v.(float64)
	if !ok {
		return fmt.Errorf("id %v is not a number", v)
	}
	s.tc.Save(key, uint64(n))
	return nil
}

func (s *custodySteps) savedID(key string) (uint64, error) {
	v, ok := s.tc.Saved(key)
	if !ok {
		return 0, fmt.Errorf("nothing saved for %s", key)
	}
	return v.(uint64), nil
}
