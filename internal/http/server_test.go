package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/nextlevelbuilder/squabble/internal/bus"
	"github.com/nextlevelbuilder/squabble/internal/channels"
	"github.com/nextlevelbuilder/squabble/internal/config"
)

const testSecret = "s3cret"

type fakeMessenger struct {
	mu       sync.Mutex
	sent     []bus.OutboundMessage
	failFor  map[string]bool
	convs    []channels.Conversation
	filters  []channels.ConversationFilter
	fallback string
}

func (f *fakeMessenger) Send(_ context.Context, msg bus.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.Channel != "bridge" {
		return fmt.Errorf("%w: %s", channels.ErrUnknownChannel, msg.Channel)
	}
	if f.failFor[msg.ChatID] {
		return errors.New("transport down")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMessenger) ListConversations(_ context.Context, _ string, filter channels.ConversationFilter) ([]channels.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	var out []channels.Conversation
	for _, c := range f.convs {
		if filter.Kind != "" && c.Kind != filter.Kind {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeMessenger) DefaultChannel() string { return f.fallback }

func (f *fakeMessenger) GetStatus() map[string]interface{} {
	return map[string]interface{}{"bridge": map[string]interface{}{"running": true}}
}

func newTestServer(m *fakeMessenger) *httptest.Server {
	s := NewServer(config.GatewayConfig{BroadcastRPS: 1000, BroadcastBurst: 100}, testSecret, m)
	return httptest.NewServer(s.BuildMux())
}

func doJSON(t *testing.T, ts *httptest.Server, method, path, secret string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if secret != "" {
		req.Header.Set("x-agent-secret", secret)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out := map[string]interface{}{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(&fakeMessenger{fallback: "bridge"})
	defer ts.Close()

	routes := []struct{ method, path string }{
		{"GET", "/health"},
		{"POST", "/api/send-message"},
		{"GET", "/api/conversations"},
		{"POST", "/api/broadcast"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			for _, secret := range []string{"", "wrong"} {
				resp, _ := doJSON(t, ts, rt.method, rt.path, secret, nil)
				if resp.StatusCode != http.StatusUnauthorized {
					t.Errorf("secret %q: status = %d, want 401", secret, resp.StatusCode)
				}
			}
		})
	}
}

func TestEmptySecretRejectsAll(t *testing.T) {
	s := NewServer(config.GatewayConfig{}, "", &fakeMessenger{})
	ts := httptest.NewServer(s.BuildMux())
	defer ts.Close()

	resp, _ := doJSON(t, ts, "GET", "/health", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(&fakeMessenger{})
	defer ts.Close()

	resp, body := doJSON(t, ts, "GET", "/health", testSecret, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if _, ok := body["channels"].(map[string]interface{})["bridge"]; !ok {
		t.Errorf("channels missing bridge: %v", body["channels"])
	}
}

func TestSendMessage(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
		wantSent   int
	}{
		{"default channel", map[string]string{"conversationId": "c1", "message": "hi"}, http.StatusOK, 1},
		{"explicit channel", map[string]string{"conversationId": "c1", "message": "hi", "channel": "bridge"}, http.StatusOK, 1},
		{"unknown channel", map[string]string{"conversationId": "c1", "message": "hi", "channel": "fax"}, http.StatusBadRequest, 0},
		{"missing conversation", map[string]string{"message": "hi"}, http.StatusBadRequest, 0},
		{"blank message", map[string]string{"conversationId": "c1", "message": "  "}, http.StatusBadRequest, 0},
		{"transport failure", map[string]string{"conversationId": "down", "message": "hi"}, http.StatusBadGateway, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMessenger{fallback: "bridge", failFor: map[string]bool{"down": true}}
			ts := newTestServer(m)
			defer ts.Close()

			resp, _ := doJSON(t, ts, "POST", "/api/send-message", testSecret, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if len(m.sent) != tt.wantSent {
				t.Errorf("sent = %d, want %d", len(m.sent), tt.wantSent)
			}
		})
	}
}

func TestSendMessageNoChannel(t *testing.T) {
	ts := newTestServer(&fakeMessenger{})
	defer ts.Close()

	resp, _ := doJSON(t, ts, "POST", "/api/send-message", testSecret, map[string]string{"conversationId": "c1", "message": "hi"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestConversations(t *testing.T) {
	m := &fakeMessenger{convs: []channels.Conversation{
		{Channel: "bridge", ID: "g1", Kind: bus.KindGroup},
		{Channel: "bridge", ID: "d1", Kind: bus.KindDirect},
	}}
	ts := newTestServer(m)
	defer ts.Close()

	tests := []struct {
		query      string
		wantStatus int
		wantCount  float64
	}{
		{"", http.StatusOK, 2},
		{"?type=groups", http.StatusOK, 1},
		{"?type=dms&consentStates=allowed,unknown", http.StatusOK, 1},
		{"?type=bogus", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, body := doJSON(t, ts, "GET", "/api/conversations"+tt.query, testSecret, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && body["count"] != tt.wantCount {
				t.Errorf("count = %v, want %v", body["count"], tt.wantCount)
			}
		})
	}

	last := m.filters[len(m.filters)-1]
	if len(last.ConsentStates) != 2 || last.ConsentStates[1] != "unknown" {
		t.Errorf("consent states = %v", last.ConsentStates)
	}
}

func TestBroadcast(t *testing.T) {
	convs := []channels.Conversation{
		{Channel: "bridge", ID: "g1", Kind: bus.KindGroup},
		{Channel: "bridge", ID: "g2", Kind: bus.KindGroup},
		{Channel: "bridge", ID: "d1", Kind: bus.KindDirect},
	}
	tests := []struct {
		name       string
		body       map[string]interface{}
		wantStatus int
		wantSent   []string
		wantFailed float64
	}{
		{
			name:       "explicit ids deduplicated",
			body:       map[string]interface{}{"message": "hi", "conversationIds": []string{"a", "b", "a", ""}},
			wantStatus: http.StatusOK,
			wantSent:   []string{"a", "b"},
		},
		{
			name:       "groups only",
			body:       map[string]interface{}{"message": "hi", "broadcastType": "groups"},
			wantStatus: http.StatusOK,
			wantSent:   []string{"g1", "g2"},
		},
		{
			name:       "all with one failure",
			body:       map[string]interface{}{"message": "hi", "broadcastType": "all"},
			wantStatus: http.StatusOK,
			wantSent:   []string{"d1", "g1"},
			wantFailed: 1,
		},
		{
			name:       "no targets",
			body:       map[string]interface{}{"message": "hi"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "no message",
			body:       map[string]interface{}{"broadcastType": "all"},
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMessenger{fallback: "bridge", convs: convs}
			if tt.wantFailed > 0 {
				m.failFor = map[string]bool{"g2": true}
			}
			ts := newTestServer(m)
			defer ts.Close()

			resp, body := doJSON(t, ts, "POST", "/api/broadcast", testSecret, tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var got []string
			for _, s := range m.sent {
				got = append(got, s.ChatID)
			}
			sort.Strings(got)
			if fmt.Sprint(got) != fmt.Sprint(tt.wantSent) {
				t.Errorf("sent = %v, want %v", got, tt.wantSent)
			}
			if body["failed"] != tt.wantFailed {
				t.Errorf("failed = %v, want %v", body["failed"], tt.wantFailed)
			}
			if results, _ := body["results"].([]interface{}); len(results) != len(tt.wantSent)+int(tt.wantFailed) {
				t.Errorf("results = %d entries", len(results))
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"allowed", []string{"allowed"}},
		{" allowed , ,denied", []string{"allowed", "denied"}},
	}
	for _, tt := range tests {
		if got := splitList(tt.in); fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("splitList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
