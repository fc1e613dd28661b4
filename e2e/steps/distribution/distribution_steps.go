package distribution

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

const (
	desktopUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15"
	mobileUserAgent  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

type TestContext interface {
	POST(path string, body any) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	SetUserAgent(ua string)
	Remember(name, value string)
	Recall(name string) (string, error)
}

// RegisterSteps registers program, distribution and token link steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &distributionSteps{tc: tc}

	ctx.Step(`^a recipient "([^"]*)" exists$`, steps.recipientExists)
	ctx.Step(`^a program "([^"]*)" with sector data '([^']*)'$`, steps.programExists)
	ctx.Step(`^I distribute "([^"]*)" to "([^"]*)"$`, steps.distributeDefault)
	ctx.Step(`^I distribute "([^"]*)" to "([^"]*)" for (\d+) seconds$`, steps.distributeFor)
	ctx.Step(`^I redistribute the last link$`, steps.redistribute)
	ctx.Step(`^I deactivate program "([^"]*)"$`, steps.deactivate)

	ctx.Step(`^the link is opened on a (desktop|mobile) device$`, steps.openOn)
	ctx.Step(`^the link is opened on a mobile device in web view$`, steps.openMobileWebView)
	ctx.Step(`^the link is confirmed$`, steps.confirm)
	ctx.Step(`^an unknown link is opened$`, steps.openUnknown)

	ctx.Step(`^the response should carry the sector data '([^']*)'$`, steps.shouldCarrySectorData)
	ctx.Step(`^the response should not carry program data$`, steps.shouldNotCarryProgramData)
	ctx.Step(`^the response should deep link recipient "([^"]*)"$`, steps.shouldDeepLink)
	ctx.Step(`^the last link should be listed as "([^"]*)"$`, steps.listedAs)
}

type distributionSteps struct {
	tc TestContext
}

func (s *distributionSteps) expect(status int) error {
	if got := s.tc.GetLastResponseStatus(); got != status {
		return fmt.Errorf("expected %d, got %d: %s", status, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *distributionSteps) rememberField(name, field string) error {
	v, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	s.tc.Remember(name, fmt.Sprint(v))
	return nil
}

func (s *distributionSteps) recipientExists(_ context.Context, username string) error {
	err := s.tc.POST("/api/users", map[string]string{
		"username": username,
		"email":    username + "@example.test",
		"password": "recipient-password",
	})
	if err != nil {
		return err
	}
	if err := s.expect(201); err != nil {
		return err
	}
	return s.rememberField("user:"+username, "id")
}

func (s *distributionSteps) programExists(_ context.Context, name, sectors string) error {
	if !json.Valid([]byte(sectors)) {
		return fmt.Errorf("sector data is not JSON: %s", sectors)
	}
	err := s.tc.POST("/api/programs", map[string]any{
		"name":    name,
		"payload": json.RawMessage(sectors),
	})
	if err != nil {
		return err
	}
	if err := s.expect(201); err != nil {
		return err
	}
	return s.rememberField("program:"+name, "id")
}

func (s *distributionSteps) distributeDefault(ctx context.Context, program, recipient string) error {
	return s.distributeFor(ctx, program, recipient, 0)
}

// distributeFor leaves the response for assertions and remembers the link when
// it was created.
func (s *distributionSteps) distributeFor(_ context.Context, program, recipient string, seconds int) error {
	programID, err := s.tc.Recall("program:" + program)
	if err != nil {
		return err
	}
	recipientID, err := s.tc.Recall("user:" + recipient)
	if err != nil {
		return err
	}
	err = s.tc.POST("/api/distributions", map[string]any{
		"program_id":   programID,
		"recipient_id": recipientID,
		"ttl_seconds":  seconds,
	})
	if err != nil {
		return err
	}
	return s.rememberCreated()
}

func (s *distributionSteps) rememberCreated() error {
	if s.tc.GetLastResponseStatus() != 201 {
		return nil
	}
	if err := s.rememberField("link:token", "token"); err != nil {
		return err
	}
	return s.rememberField("link:id", "id")
}

func (s *distributionSteps) redistribute(context.Context) error {
	id, err := s.tc.Recall("link:id")
	if err != nil {
		return err
	}
	if err := s.tc.POST("/api/distributions/"+id+"/redistribute", nil); err != nil {
		return err
	}
	return s.rememberCreated()
}

func (s *distributionSteps) deactivate(_ context.Context, program string) error {
	id, err := s.tc.Recall("program:" + program)
	if err != nil {
		return err
	}
	if err := s.tc.POST("/api/programs/"+id+"/deactivate", nil); err != nil {
		return err
	}
	return s.expect(200)
}

func (s *distributionSteps) open(headers map[string]string, query string) error {
	token, err := s.tc.Recall("link:token")
	if err != nil {
		return err
	}
	return s.tc.GET("/api/program_data/"+token+query, headers)
}

func (s *distributionSteps) openOn(_ context.Context, device string) error {
	if device == "mobile" {
		s.tc.SetUserAgent(mobileUserAgent)
	} else {
		s.tc.SetUserAgent(desktopUserAgent)
	}
	return s.open(nil, "")
}

func (s *distributionSteps) openMobileWebView(context.Context) error {
	s.tc.SetUserAgent(mobileUserAgent)
	return s.open(nil, "?view=web")
}

func (s *distributionSteps) confirm(context.Context) error {
	token, err := s.tc.Recall("link:token")
	if err != nil {
		return err
	}
	return s.tc.POST("/api/program_data/"+token+"/confirm", nil)
}

func (s *distributionSteps) openUnknown(context.Context) error {
	s.tc.SetUserAgent(desktopUserAgent)
	return s.tc.GET("/api/program_data/bm90LWEtcmVhbC10b2tlbi1hdC1hbGwtYWJjZGVmZ2hp", nil)
}

func (s *distributionSteps) shouldCarrySectorData(_ context.Context, want string) error {
	got, err := s.tc.GetResponseField("sector_data")
	if err != nil {
		return err
	}
	gotJSON, err := json.Marshal(got)
	if err != nil {
		return err
	}
	var a, b any
	if err := json.Unmarshal(gotJSON, &a); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(want), &b); err != nil {
		return err
	}
	if fmt.Sprint(a) != fmt.Sprint(b) {
		return fmt.Errorf("expected sector data %s, got %s", want, gotJSON)
	}
	return nil
}

func (s *distributionSteps) shouldNotCarryProgramData(context.Context) error {
	if strings.Contains(string(s.tc.GetLastResponseBody()), "sector_data") {
		return fmt.Errorf("response leaked program data: %s", s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *distributionSteps) shouldDeepLink(_ context.Context, recipient string) error {
	redirect, err := s.tc.GetResponseField("redirect")
	if err != nil {
		return err
	}
	link, ok := redirect.(map[string]any)
	if !ok {
		return fmt.Errorf("redirect is not an object: %v", redirect)
	}
	url := fmt.Sprint(link["url"])
	if !strings.Contains(url, "recipient_handle="+recipient) {
		return fmt.Errorf("deep link %q does not name %s", url, recipient)
	}
	return nil
}

func (s *distributionSteps) listedAs(_ context.Context, state string) error {
	id, err := s.tc.Recall("link:id")
	if err != nil {
		return err
	}
	if err := s.tc.GET("/api/distributions", nil); err != nil {
		return err
	}
	if err := s.expect(200); err != nil {
		return err
	}
	var body struct {
		Distributions []struct {
			ID    string `json:"id"`
			State string `json:"state"`
		} `json:"distributions"`
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &body); err != nil {
		return err
	}
	for _, d := range body.Distributions {
		if d.ID == id {
			if d.State != state {
				return fmt.Errorf("expected state %s, got %s", state, d.State)
			}
			return nil
		}
	}
	return fmt.Errorf("distribution %s not listed", id)
}
