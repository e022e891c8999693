package replicate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL, APIToken: "r8_test", Owner: "pictoria"})
}

func TestCreateTraining(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if r.Header.Get("Authorization") != "Bearer r8_test" {
			t.Fatalf("missing auth header")
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Training{ID: "J1", Status: "starting"})
	})

	training, err := client.CreateTraining(context.Background(), TrainingRequest{
		Destination:    "pictoria/model_1_test",
		InputImagesURL: "https://signed.example/upload.zip",
		WebhookURL:     "https://app.example/api/webhooks/training?userId=u1",
	})
	if err != nil {
		t.Fatalf("CreateTraining returned error: %v", err)
	}
	if training.ID != "J1" || training.Status != "starting" {
		t.Fatalf("unexpected training: %+v", training)
	}
	if !strings.Contains(gotPath, trainerName) || !strings.Contains(gotPath, trainerVersion) {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	input, _ := gotBody["input"].(map[string]any)
	if input["trigger_word"] != TriggerWord {
		t.Fatalf("trigger word not set: %v", input)
	}
	if input["steps"] != float64(DefaultTrainingSteps) {
		t.Fatalf("steps not defaulted: %v", input["steps"])
	}
	if filter, _ := gotBody["webhook_events_filter"].([]any); len(filter) != 1 || filter[0] != "completed" {
		t.Fatalf("webhook events filter mismatch: %v", gotBody["webhook_events_filter"])
	}
}

func TestRunModelPath(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/black-forest-labs/flux-schnell/predictions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Prefer") != "wait" {
			t.Fatalf("missing Prefer: wait header")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "p1",
			"status": "succeeded",
			"output": []string{"https://cdn.example/a.webp", "https://cdn.example/b.webp"},
		})
	})

	urls, err := client.Run(context.Background(), "black-forest-labs/flux-schnell", map[string]any{"prompt": "a cat"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(urls))
	}
}

func TestRunVersionedRef(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predictions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["version"] != "abc123" {
			t.Fatalf("version not forwarded: %v", body["version"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "p2",
			"status": "succeeded",
			"output": "https://cdn.example/only.webp",
		})
	})

	urls, err := client.Run(context.Background(), "pictoria/model_1_me:abc123", map[string]any{"prompt": "okhw portrait"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(urls) != 1 || urls[0] != "https://cdn.example/only.webp" {
		t.Fatalf("unexpected output: %v", urls)
	}
}

func TestRunSurfacesProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "insufficient credit"})
	})

	if _, err := client.Run(context.Background(), "black-forest-labs/flux-schnell", nil); err == nil || !strings.Contains(err.Error(), "insufficient credit") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestWebhookSecretCached(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/webhooks/default/secret" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"key": testSecret})
	})

	for i := 0; i < 3; i++ {
		secret, err := client.WebhookSecret(context.Background())
		if err != nil {
			t.Fatalf("WebhookSecret returned error: %v", err)
		}
		if secret != testSecret {
			t.Fatalf("unexpected secret: %s", secret)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", calls)
	}
}

func TestMissingTokenRejected(t *testing.T) {
	client := NewClient(Options{BaseURL: "http://localhost:1", APIToken: ""})
	if err := client.CreateModel(context.Background(), "x"); err == nil {
		t.Fatal("expected error for missing API token")
	}
}
