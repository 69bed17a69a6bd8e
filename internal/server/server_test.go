package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/config"
	"github.com/aman-churiwal/api-marketplace/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type envelope struct {
	Status         bool            `json:"status"`
	Code           int             `json:"code"`
	Message        string          `json:"message"`
	Data           json.RawMessage `json:"data"`
	RemainingLimit *int            `json:"remaining_limit"`
}

func testConfig(upstreams ...string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Environment: "test", CORSOrigins: []string{"*"}},
		JWT:    config.JWTConfig{Secret: "test-secret", ExpiryHours: 1},
		Billing: config.BillingConfig{
			DefaultCurrency: "IDR",
			PeriodDays:      30,
			PlanPrices:      map[string]int64{"PAID": 5000, "RESELLER": 15000},
			PlanDailyLimits: map[string]int{"FREE": 3, "PAID": 5000, "RESELLER": 50000},
		},
		Upstreams:        upstreams,
		UpstreamStrategy: "round-robin",
	}
}

func newTestServer(t *testing.T, upstreams ...string) *Server {
	t.Helper()
	return newTestServerWith(t, Options{}, upstreams...)
}

// newTestServerWith lets a test plug in optional collaborators such as the
// proof store.
func newTestServerWith(t *testing.T, opts Options, upstreams ...string) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDatabase(t)
	clock := testutil.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	opts.Now = clock.Now
	opts.Logger = zerolog.Nop()

	srv, err := New(testConfig(upstreams...), db, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(srv.stopProxies)

	return srv
}

func do(t *testing.T, srv *Server, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	srv.GetRouter().ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: body is not an envelope: %s", method, path, w.Body.String())
	}
	return w, env
}

func register(t *testing.T, srv *Server, email string) (token, secret string) {
	t.Helper()

	w, env := do(t, srv, http.MethodPost, "/auth/register", map[string]string{
		"email": email, "password": "password123", "name": "Test",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	var reg struct {
		Key string `json:"key"`
	}
	json.Unmarshal(env.Data, &reg)

	return login(t, srv, email), reg.Key
}

func login(t *testing.T, srv *Server, email string) string {
	t.Helper()

	w, env := do(t, srv, http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": "password123",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	json.Unmarshal(env.Data, &out)
	return out.Token
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	w, env := do(t, srv, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK || !env.Status {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterLoginMe(t *testing.T) {
	srv := newTestServer(t)
	token, secret := register(t, srv, "alice@example.com")
	if secret == "" {
		t.Fatal("register did not return the key secret")
	}

	w, env := do(t, srv, http.MethodGet, "/me", nil, bearer(token))
	if w.Code != http.StatusOK {
		t.Fatalf("me: %d %s", w.Code, w.Body.String())
	}
	var me struct {
		Email string `json:"email"`
		Plan  string `json:"plan"`
	}
	json.Unmarshal(env.Data, &me)
	if me.Email != "alice@example.com" || me.Plan != "FREE" {
		t.Errorf("me = %+v", me)
	}

	w, _ = do(t, srv, http.MethodGet, "/me", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous /me = %d, want 401", w.Code)
	}
}

func TestMeteredQuotaReportsRemaining(t *testing.T) {
	srv := newTestServer(t)
	_, secret := register(t, srv, "bob@example.com")
	headers := map[string]string{"X-API-Key": secret}

	for want := 2; want >= 0; want-- {
		w, env := do(t, srv, http.MethodGet, "/v1/me/quota", nil, headers)
		if w.Code != http.StatusOK {
			t.Fatalf("quota: %d %s", w.Code, w.Body.String())
		}
		if env.RemainingLimit == nil || *env.RemainingLimit != want {
			t.Fatalf("remaining_limit = %v, want %d", env.RemainingLimit, want)
		}
	}

	w, env := do(t, srv, http.MethodGet, "/v1/me/quota", nil, headers)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over quota: %d, want 429", w.Code)
	}
	if env.Status || env.RemainingLimit == nil || *env.RemainingLimit != 0 {
		t.Errorf("rejection envelope = %+v", env)
	}

	w, _ = do(t, srv, http.MethodGet, "/v1/me/quota", nil, map[string]string{"X-API-Key": "mk_unknown"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unknown key: %d, want 401", w.Code)
	}
}

func TestMeteredUpstreamProxy(t *testing.T) {
	var gotKey string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":true,"code":200,"data":{"path":"` + r.URL.Path + `"}}`))
	}))
	defer upstream.Close()

	srv := newTestServer(t, "/v1/echo="+upstream.URL)
	_, secret := register(t, srv, "carol@example.com")

	w, env := do(t, srv, http.MethodGet, "/v1/echo/ping", nil, map[string]string{"X-API-Key": secret})
	if w.Code != http.StatusOK {
		t.Fatalf("proxy: %d %s", w.Code, w.Body.String())
	}
	if env.RemainingLimit == nil || *env.RemainingLimit != 2 {
		t.Errorf("remaining_limit = %v, want 2", env.RemainingLimit)
	}
	if gotKey != "" {
		t.Error("api key leaked to upstream")
	}
}

func TestAdminRoutesRequireSuperAdmin(t *testing.T) {
	srv := newTestServer(t)
	token, _ := register(t, srv, "dave@example.com")

	w, _ := do(t, srv, http.MethodGet, "/admin/users", nil, bearer(token))
	if w.Code != http.StatusForbidden {
		t.Errorf("non-admin /admin/users = %d, want 403", w.Code)
	}
}

func TestAdminInvoiceUpgradesPlan(t *testing.T) {
	srv := newTestServer(t)
	if err := srv.Services().Auth.EnsureAdmin(context.Background(), "root@example.com", "password123"); err != nil {
		t.Fatal(err)
	}
	adminToken := login(t, srv, "root@example.com")
	userToken, _ := register(t, srv, "erin@example.com")

	_, env := do(t, srv, http.MethodGet, "/me", nil, bearer(userToken))
	var me struct {
		ID string `json:"id"`
	}
	json.Unmarshal(env.Data, &me)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	w, env := do(t, srv, http.MethodPost, "/admin/invoices", map[string]interface{}{
		"user_id":      me.ID,
		"plan":         "PAID",
		"amount":       5000,
		"period_start": start,
		"period_end":   start.AddDate(0, 0, 30),
		"reason":       "manual transfer",
	}, bearer(adminToken))
	if w.Code != http.StatusCreated {
		t.Fatalf("create invoice: %d %s", w.Code, w.Body.String())
	}
	var invoice struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	json.Unmarshal(env.Data, &invoice)
	if invoice.Status != "UNPAID" {
		t.Fatalf("invoice status = %s, want UNPAID", invoice.Status)
	}

	w, _ = do(t, srv, http.MethodPatch, "/admin/invoices/"+invoice.ID, map[string]string{
		"status": "PAID",
		"reason": "transfer verified",
	}, bearer(adminToken))
	if w.Code != http.StatusOK {
		t.Fatalf("mark paid: %d %s", w.Code, w.Body.String())
	}

	_, env = do(t, srv, http.MethodGet, "/me", nil, bearer(userToken))
	var after struct {
		Plan string `json:"plan"`
	}
	json.Unmarshal(env.Data, &after)
	if after.Plan != "PAID" {
		t.Errorf("plan after payment = %s, want PAID", after.Plan)
	}

	w, _ = do(t, srv, http.MethodGet, "/me/subscription", nil, bearer(userToken))
	if w.Code != http.StatusOK {
		t.Errorf("subscription: %d %s", w.Code, w.Body.String())
	}
}

type memoryProofStore struct {
	mu    sync.Mutex
	types map[string]string
}

func (m *memoryProofStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types[key] = contentType
	return "s3://proofs/" + key, nil
}

func (m *memoryProofStore) PresignGet(ctx context.Context, uri string, ttl time.Duration) (string, error) {
	return "https://signed.example/" + strings.TrimPrefix(uri, "s3://"), nil
}

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) Notify(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.count++
	return nil
}

// uploadProof posts a multipart proof. partType is the Content-Type the
// client claims for the file part.
func uploadProof(t *testing.T, srv *Server, token, invoiceID string, content []byte, partType, method string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if content != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="file"; filename="receipt.png"`)
		header.Set("Content-Type", partType)
		part, err := mw.CreatePart(header)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(content)
	}
	mw.WriteField("method", method)
	mw.WriteField("note", "transfer from BCA")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/me/invoices/"+invoiceID+"/proof", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	srv.GetRouter().ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("proof upload: body is not an envelope: %s", w.Body.String())
	}
	return w, env
}

func TestPaymentProofUpload(t *testing.T) {
	store := &memoryProofStore{types: make(map[string]string)}
	notifier := &countingNotifier{}
	srv := newTestServerWith(t, Options{ProofStore: store, Notifier: notifier})

	if err := srv.Services().Auth.EnsureAdmin(context.Background(), "root@example.com", "password123"); err != nil {
		t.Fatal(err)
	}
	adminToken := login(t, srv, "root@example.com")
	token, _ := register(t, srv, "frank@example.com")

	w, env := do(t, srv, http.MethodPost, "/me/invoices", map[string]string{"plan": "PAID"}, bearer(token))
	if w.Code != http.StatusCreated {
		t.Fatalf("create invoice: %d %s", w.Code, w.Body.String())
	}
	var invoice struct {
		ID string `json:"id"`
	}
	json.Unmarshal(env.Data, &invoice)

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

	tests := []struct {
		name     string
		content  []byte
		partType string
		method   string
		want     int
	}{
		{"missing file", nil, "", "bank", http.StatusBadRequest},
		{"text claiming to be png", []byte("definitely not an image"), "image/png", "bank", http.StatusBadRequest},
		{"file over 5MB", append(png, make([]byte, 5<<20)...), "image/png", "bank", http.StatusRequestEntityTooLarge},
		{"body over the form limit", append(png, make([]byte, 6<<20)...), "image/png", "bank", http.StatusRequestEntityTooLarge},
		{"missing method", png, "image/png", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := uploadProof(t, srv, token, invoice.ID, tt.content, tt.partType, tt.method)
			if w.Code != tt.want || env.Status {
				t.Errorf("upload = %d %s, want %d", w.Code, w.Body.String(), tt.want)
			}
		})
	}
	if len(store.types) != 0 || notifier.count != 0 {
		t.Fatalf("rejected uploads reached the store (%d) or notifier (%d)", len(store.types), notifier.count)
	}

	// The stored type comes from the file bytes, not the client's header.
	w, env = uploadProof(t, srv, token, invoice.ID, png, "application/octet-stream", "bank")
	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	var proofed struct {
		Status          string `json:"status"`
		PaymentMethod   string `json:"payment_method"`
		PaymentProofURL string `json:"payment_proof_url"`
	}
	json.Unmarshal(env.Data, &proofed)
	if proofed.Status != "UNPAID" || proofed.PaymentMethod != "bank" {
		t.Errorf("invoice after upload = %+v", proofed)
	}
	if !strings.HasPrefix(proofed.PaymentProofURL, "s3://proofs/proofs/") {
		t.Errorf("payment_proof_url = %q", proofed.PaymentProofURL)
	}
	key := strings.TrimPrefix(proofed.PaymentProofURL, "s3://proofs/")
	if got := store.types[key]; got != "image/png" {
		t.Errorf("stored content type = %q, want image/png", got)
	}
	if notifier.count != 1 {
		t.Errorf("notifications = %d, want 1", notifier.count)
	}

	w, env = do(t, srv, http.MethodGet, fmt.Sprintf("/admin/invoices/%s/proof", invoice.ID), nil, bearer(adminToken))
	if w.Code != http.StatusOK {
		t.Fatalf("admin proof link: %d %s", w.Code, w.Body.String())
	}
	var link struct {
		URL string `json:"url"`
	}
	json.Unmarshal(env.Data, &link)
	if link.URL != "https://signed.example/proofs/"+key {
		t.Errorf("proof link = %q", link.URL)
	}
}
