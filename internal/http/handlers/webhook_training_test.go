package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"

	"pictoria-server/internal/domain"
	"pictoria-server/internal/infra"
	"pictoria-server/internal/providers/replicate"
)

const testWebhookSecret = "whsec_MDEyMzQ1Njc4OWFiY2RlZg=="

func signDelivery(t *testing.T, secret, id, timestamp string, body []byte) string {
	t.Helper()
	key, err := replicate.DecodeWebhookSecret(secret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.", id, timestamp)
	mac.Write(body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newWebhookApp(sql *stubSQL, store *fakeStore, mailer *fakeMailer) *App {
	return &App{
		SQL:       sql,
		Logger:    zerolog.Nop(),
		Config:    &infra.Config{SiteURL: "https://pictoria.test"},
		Store:     store,
		Replicate: &fakeProvider{secret: testWebhookSecret},
		Mailer:    mailer,
	}
}

func webhookRequest(t *testing.T, body []byte, userID, modelID, fileName, signature string) *http.Request {
	t.Helper()
	q := url.Values{}
	q.Set("userId", userID)
	q.Set("modelId", modelID)
	q.Set("fileName", fileName)
	req := httptest.NewRequest("POST", "/api/webhooks/training?"+q.Encode(), bytes.NewReader(body))
	req.Header.Set("webhook-id", "msg_1")
	req.Header.Set("webhook-timestamp", "1700000000")
	req.Header.Set("webhook-signature", signature)
	return req
}

func TestTrainingWebhookRejectsBadSignature(t *testing.T) {
	sql := newStubSQL()
	sql.credits["user-1"] = &domain.Credit{UserID: "user-1"}
	sql.models["model-1"] = &stubModelRow{userID: "user-1", modelID: "model-1", status: domain.StatusStarting}
	store := &fakeStore{}
	app := newWebhookApp(sql, store, &fakeMailer{})

	body := []byte(`{"status":"succeeded","version":"v-abc"}`)
	req := webhookRequest(t, body, "user-1", "model-1", "photos.zip", "v1,not-a-real-signature")
	rr := httptest.NewRecorder()
	app.TrainingWebhook(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if sql.models["model-1"].status != domain.StatusStarting {
		t.Fatalf("model status mutated on rejected delivery: %s", sql.models["model-1"].status)
	}
	if len(store.removed) != 0 {
		t.Fatalf("cleanup ran on rejected delivery: %v", store.removed)
	}
}

func TestTrainingWebhookRejectsUnknownUser(t *testing.T) {
	sql := newStubSQL()
	sql.models["model-1"] = &stubModelRow{userID: "user-1", modelID: "model-1", status: domain.StatusStarting}
	store := &fakeStore{}
	app := newWebhookApp(sql, store, &fakeMailer{})

	body := []byte(`{"status":"succeeded","version":"v-abc"}`)
	sig := signDelivery(t, testWebhookSecret, "msg_1", "1700000000", body)
	req := webhookRequest(t, body, "ghost-user", "model-1", "photos.zip", sig)
	rr := httptest.NewRecorder()
	app.TrainingWebhook(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if sql.models["model-1"].status != domain.StatusStarting {
		t.Fatalf("model status mutated for unknown user: %s", sql.models["model-1"].status)
	}
	if len(store.removed) != 0 {
		t.Fatalf("cleanup ran for unknown user: %v", store.removed)
	}
}

func TestTrainingWebhookSucceededSetsDurationAndVersion(t *testing.T) {
	sql := newStubSQL()
	sql.credits["user-1"] = &domain.Credit{UserID: "user-1"}
	sql.emails["user-1"] = "user@example.com"
	sql.models["model-1"] = &stubModelRow{userID: "user-1", modelID: "model-1", modelName: "My Model", status: domain.StatusProcessing}
	store := &fakeStore{}
	mailer := &fakeMailer{}
	app := newWebhookApp(sql, store, mailer)

	body := []byte(`{"status":"succeeded","version":"v-abc","metrics":{"predict_time":412.5}}`)
	sig := signDelivery(t, testWebhookSecret, "msg_1", "1700000000", body)
	req := webhookRequest(t, body, "user-1", "model-1", "photos.zip", sig)
	rr := httptest.NewRecorder()
	app.TrainingWebhook(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rr.Code, rr.Body.String())
	}
	row := sql.models["model-1"]
	if row.status != domain.StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", row.status)
	}
	if row.trainingTime == nil || *row.trainingTime != 412.5 {
		t.Fatalf("training time = %v, want 412.5", row.trainingTime)
	}
	if row.version == nil || *row.version != "v-abc" {
		t.Fatalf("version = %v, want v-abc", row.version)
	}
	if len(mailer.sent) != 1 || mailer.sent[0].to != "user@example.com" || mailer.sent[0].status != domain.StatusSucceeded {
		t.Fatalf("unexpected notifications: %+v", mailer.sent)
	}
	if mailer.sent[0].modelName != "My Model" {
		t.Fatalf("notification model name = %q, want the user-facing name", mailer.sent[0].modelName)
	}
	if len(store.removed) != 1 || store.removed[0] != "training-data/user-1/photos.zip" {
		t.Fatalf("cleanup = %v, want exactly the training upload", store.removed)
	}
}

func TestTrainingWebhookIntermediateStatusKeepsVersion(t *testing.T) {
	sql := newStubSQL()
	sql.credits["user-1"] = &domain.Credit{UserID: "user-1"}
	sql.emails["user-1"] = "user@example.com"
	sql.models["model-1"] = &stubModelRow{userID: "user-1", modelID: "model-1", status: domain.StatusStarting}
	store := &fakeStore{}
	app := newWebhookApp(sql, store, &fakeMailer{})

	body := []byte(`{"status":"processing"}`)
	sig := signDelivery(t, testWebhookSecret, "msg_1", "1700000000", body)
	req := webhookRequest(t, body, "user-1", "model-1", "photos.zip", sig)
	rr := httptest.NewRecorder()
	app.TrainingWebhook(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rr.Code)
	}
	row := sql.models["model-1"]
	if row.status != domain.StatusProcessing {
		t.Fatalf("status = %s, want processing", row.status)
	}
	if row.trainingTime != nil || row.version != nil {
		t.Fatalf("intermediate delivery wrote duration/version: %+v", row)
	}
}

func TestTrainingWebhookStaleDeliveryDoesNotRegress(t *testing.T) {
	sql := newStubSQL()
	sql.credits["user-1"] = &domain.Credit{UserID: "user-1"}
	sql.emails["user-1"] = "user@example.com"
	v := "v-abc"
	sql.models["model-1"] = &stubModelRow{userID: "user-1", modelID: "model-1", status: domain.StatusSucceeded, version: &v}
	store := &fakeStore{}
	app := newWebhookApp(sql, store, &fakeMailer{})

	body := []byte(`{"status":"processing"}`)
	sig := signDelivery(t, testWebhookSecret, "msg_1", "1700000000", body)
	req := webhookRequest(t, body, "user-1", "model-1", "photos.zip", sig)
	rr := httptest.NewRecorder()
	app.TrainingWebhook(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 for an acknowledged stale delivery", rr.Code)
	}
	if sql.models["model-1"].status != domain.StatusSucceeded {
		t.Fatalf("stale delivery moved the job backward to %s", sql.models["model-1"].status)
	}
}

func TestTrainingWebhookCleanupFailureAnswers500(t *testing.T) {
	sql := newStubSQL()
	sql.credits["user-1"] = &domain.Credit{UserID: "user-1"}
	sql.emails["user-1"] = "user@example.com"
	sql.models["model-1"] = &stubModelRow{userID: "user-1", modelID: "model-1", status: domain.StatusStarting}
	store := &fakeStore{removeErr: fmt.Errorf("bucket unavailable")}
	app := newWebhookApp(sql, store, &fakeMailer{})

	body := []byte(`{"status":"failed"}`)
	sig := signDelivery(t, testWebhookSecret, "msg_1", "1700000000", body)
	req := webhookRequest(t, body, "user-1", "model-1", "photos.zip", sig)
	rr := httptest.NewRecorder()
	app.TrainingWebhook(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 so the delivery is retried", rr.Code)
	}
	if sql.models["model-1"].status != domain.StatusFailed {
		t.Fatalf("status write should precede cleanup, got %s", sql.models["model-1"].status)
	}
}
