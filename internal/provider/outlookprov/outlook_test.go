package outlookprov

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/internal/provider"
)

// newTestServer fakes the handful of Graph endpoints the adapter uses.
func newTestServer(t *testing.T) (*httptest.Server, *[]map[string]interface{}) {
	t.Helper()
	var patches []map[string]interface{}

	mux := http.NewServeMux()
	mux.HandleFunc("/me/outlook/masterCategories", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]string{{"id": "c1", "displayName": "Finance"}},
		})
	})
	mux.HandleFunc("/me/mailFolders", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]string{{"id": "f1", "displayName": "Triage/Delegate"}},
		})
	})
	mux.HandleFunc("/me/mailFolders/inbox/messages", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]interface{}{
				{
					"id":               "m1",
					"subject":          "statement ready",
					"from":             map[string]interface{}{"emailAddress": map[string]string{"address": "alerts@bank.com"}},
					"receivedDateTime": "2026-08-30T10:00:00Z",
					"categories":       []string{"Old"},
					"isRead":           false,
					"flag":             map[string]string{"flagStatus": "notFlagged"},
				},
			},
		})
	})
	mux.HandleFunc("/me/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			patches = append(patches, body)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("{}"))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":               "m1",
			"subject":          "statement ready",
			"from":             map[string]interface{}{"emailAddress": map[string]string{"address": "alerts@bank.com"}},
			"receivedDateTime": "2026-08-30T10:00:00Z",
			"categories":       []string{"Old"},
			"flag":             map[string]string{"flagStatus": "notFlagged"},
		})
	})
	mux.HandleFunc("/me/messages/m1/move", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("{}"))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &patches
}

func testAdapter(t *testing.T, srv *httptest.Server) *Outlook {
	t.Helper()
	o := New(Config{AccessToken: "tok", BaseURL: srv.URL}, zap.NewNop())
	if err := o.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return o
}

func TestListMessages_MapsFields(t *testing.T) {
	srv, _ := newTestServer(t)
	o := testAdapter(t, srv)

	page, err := o.ListMessages(context.Background(), "", "", 10)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(page.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(page.Messages))
	}
	msg := page.Messages[0]
	if msg.Sender != "alerts@bank.com" || msg.Subject != "statement ready" {
		t.Errorf("mapped message = %+v", msg)
	}
	if msg.ReceivedAt.IsZero() {
		t.Error("receivedDateTime not parsed")
	}
	if !msg.HasLabel("Old") {
		t.Errorf("categories not mapped to labels: %v", msg.Labels)
	}
}

func TestApplyActions_UnionsCategories(t *testing.T) {
	srv, patches := newTestServer(t)
	o := testAdapter(t, srv)

	action := &model.ActionSet{MessageID: "m1", Star: true, Category: "Critical", Color: "red"}
	action.AddLabel("Finance")
	action.RemoveLabel("Old")

	res, err := o.ApplyActions(context.Background(), []*model.ActionSet{action})
	if err != nil {
		t.Fatalf("ApplyActions: %v", err)
	}
	if res.Succeeded != 1 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(*patches) != 1 {
		t.Fatalf("patches = %d, want 1", len(*patches))
	}

	patch := (*patches)[0]
	raw, ok := patch["categories"].([]interface{})
	if !ok {
		t.Fatalf("no categories in patch: %v", patch)
	}
	got := map[string]bool{}
	for _, c := range raw {
		got[c.(string)] = true
	}
	if !got["Finance"] || !got["Critical"] || got["Old"] {
		t.Errorf("categories = %v, want Finance and Critical without Old", got)
	}
	if _, ok := patch["flag"]; !ok {
		t.Error("star did not set the follow-up flag")
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"unauthorized", http.StatusUnauthorized, provider.IsAuthError},
		{"forbidden", http.StatusForbidden, provider.IsAuthError},
		{"throttled", http.StatusTooManyRequests, provider.IsRateLimitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"code":"x","message":"nope"}}`))
			}))
			defer srv.Close()

			o := New(Config{AccessToken: "tok", BaseURL: srv.URL}, zap.NewNop())
			err := o.HealthCheck(context.Background())
			if err == nil {
				t.Fatal("expected an error")
			}
			if !tt.check(err) {
				t.Errorf("err = %v, wrong classification", err)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"u1"}`))
	}))
	defer srv.Close()

	o := New(Config{AccessToken: "tok", BaseURL: srv.URL}, zap.NewNop())
	if err := o.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
