package detect

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadCollectBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/send",
		strings.NewReader(`{"type":"event","payload":{"website":"w","hostname":"example.com","url":"/a"}}`))

	body := ReadCollectBody(req)
	if body == nil || body.Payload == nil {
		t.Fatal("expected a decoded body")
	}
	if body.Type != "event" || body.Payload.Hostname != "example.com" || body.Payload.URL != "/a" {
		t.Fatalf("unexpected body: %+v %+v", body, body.Payload)
	}
}

func TestReadCollectBodyReturnsNilOnBadInput(t *testing.T) {
	for name, raw := range map[string]string{
		"empty":          "",
		"not json":       "not json",
		"payload scalar": `{"payload": 5}`,
		"no payload":     `{"type":"event"}`,
		"null payload":   `{"type":"event","payload":null}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/send", strings.NewReader(raw))
		if body := ReadCollectBody(req); body != nil {
			t.Fatalf("%s: expected nil, got %+v", name, body)
		}
	}

	if ReadCollectBody(nil) != nil {
		t.Fatal("expected nil for a nil request")
	}
}
