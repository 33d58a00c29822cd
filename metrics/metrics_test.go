package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func assertContains(t *testing.T, text string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveMesh("REQ", ResultFresh, 3*time.Millisecond)
	m.ObserveMesh("REQ", ResultDeduped, time.Millisecond)
	m.ObserveMesh("", ResultUnhandled, time.Millisecond)
	m.IncTransition("claimed")
	m.IncGatewayPost(nil)
	m.IncGatewayPost(errors.New("boom"))
	m.IncOperatorReject("claim", "")
	m.IncMail("url")

	assertContains(t, scrape(t, m),
		`helprelay_mesh_frames_total{result="fresh",type="REQ"} 1`,
		`helprelay_mesh_frames_total{result="unhandled",type="unknown"} 1`,
		`helprelay_request_transitions_total{status="claimed"} 1`,
		`helprelay_gateway_posts_total{result="error"} 1`,
		`helprelay_gateway_posts_total{result="success"} 1`,
		`helprelay_operator_rejections_total{action="claim",reason="unknown"} 1`,
		`helprelay_mail_sent_total{source="url"} 1`,
	)
}

func TestGauges(t *testing.T) {
	m := New()
	counts := map[string]int{"pending": 2, "open": 1}
	m.RegisterRequestGauges([]string{"pending", "open", "claimed"}, func() map[string]int { return counts })
	m.RegisterDeviceGauges(func() int { return 4 }, func() int { return 6 })
	m.ObserveProbe(4)

	assertContains(t, scrape(t, m),
		`helprelay_requests{status="pending"} 2`,
		`helprelay_requests{status="claimed"} 0`,
		`helprelay_devices_online 4`,
		`helprelay_devices_registered 6`,
		`helprelay_probes_total 1`,
	)
}

func TestSeparateInstancesDoNotCollide(t *testing.T) {
	a, b := New(), New()
	a.IncTransition("open")
	if strings.Contains(scrape(t, b), `helprelay_request_transitions_total{status="open"}`) {
		t.Error("metrics leaked between instances")
	}
}
