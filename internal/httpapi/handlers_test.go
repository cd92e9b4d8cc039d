package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jassperfumes/backend/internal/cache"
	"jassperfumes/backend/internal/service"
	"jassperfumes/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopOverviewCache{}, 5*time.Second)
	auth := NewAuthManager("test-secret-key-0123456789abcdef", time.Hour, repo)

	return New(svc, auth, "*")
}

func bearerToken(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("no access token in login response")
	}
	return token
}

func authedRequest(t *testing.T, method, path, token string, payload any) *http.Request {
	t.Helper()

	var req *http.Request
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	token := bearerToken(t, api.Handler(), "admin", "admin123")
	if token == "" {
		t.Fatalf("expected token")
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin_RateLimit(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "badpass",
	})

	var lastCode int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		lastCode = rec.Code
	}

	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after exceeding limit, got %d", lastCode)
	}
}

func TestRequireAuth_MissingToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/invoices", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAuth_StaffForbiddenFromAdminRoutes(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := bearerToken(t, handler, "staff", "staff123")

	req := authedRequest(t, http.MethodGet, "/api/v1/promos", token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff on admin route, got %d", rec.Code)
	}
}

func TestInvoiceLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := bearerToken(t, handler, "admin", "admin123")

	draft := map[string]any{
		"customer":    map[string]any{"name": "Asha Verma", "mobile": "9876501234"},
		"paymentType": "upi",
		"items": []map[string]any{
			{"productId": "prod-oud-01", "quantity": 2, "batchNumber": "B-OUD-01-01"},
		},
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/invoices", token, draft))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var created struct {
		Invoice struct {
			InvoiceNumber string  `json:"invoiceNumber"`
			Total         float64 `json:"total"`
		} `json:"invoice"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode create body: %v", err)
	}
	if created.Invoice.InvoiceNumber == "" || created.Invoice.Total <= 0 {
		t.Fatalf("unexpected invoice payload: %+v", created.Invoice)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/invoices/"+created.Invoice.InvoiceNumber, token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodDelete, "/api/v1/invoices/"+created.Invoice.InvoiceNumber, token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var deleted struct {
		Restoration struct {
			Items []struct {
				Quantity int `json:"quantity"`
			} `json:"items"`
		} `json:"restoration"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&deleted); err != nil {
		t.Fatalf("decode delete body: %v", err)
	}
	if len(deleted.Restoration.Items) != 1 || deleted.Restoration.Items[0].Quantity != 2 {
		t.Fatalf("unexpected restoration summary: %+v", deleted.Restoration)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/invoices/"+created.Invoice.InvoiceNumber, token, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestCreateInvoiceInsufficientStockStatusAndBody(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := bearerToken(t, handler, "admin", "admin123")

	draft := map[string]any{
		"customer":    map[string]any{"name": "Asha Verma", "mobile": "9876501234"},
		"paymentType": "cash",
		"items": []map[string]any{
			{"productId": "prod-oud-01", "quantity": 999, "batchNumber": "B-OUD-01-01"},
		},
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/invoices", token, draft))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Kind  string `json:"kind"`
		Items []struct {
			Available int `json:"available"`
			Requested int `json:"requested"`
		} `json:"items"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Kind != "InsufficientStock" {
		t.Fatalf("expected InsufficientStock kind, got %q", body.Kind)
	}
	if len(body.Items) != 1 || body.Items[0].Available != 40 || body.Items[0].Requested != 999 {
		t.Fatalf("unexpected items detail: %+v", body.Items)
	}
}

func TestInventoryEndpoints(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := bearerToken(t, handler, "staff", "staff123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/inventory", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on overview, got %d", rec.Code)
	}

	addReq := map[string]any{
		"productId": "prod-musk-01",
		"batches": []map[string]any{
			{"batchNumber": "B-MUSK-01-03", "quantity": 20, "manufactureDate": "2026-05-01"},
		},
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/inventory/batches", token, addReq))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on add batches, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	disposeReq := map[string]any{
		"productId":   "prod-musk-01",
		"type":        "defective",
		"batchNumber": "B-MUSK-01-03",
		"quantity":    3,
		"reason":      "damaged in transit",
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/inventory/dispose", token, disposeReq))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 on dispose, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/inventory/disposals?productId=prod-musk-01", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on disposal history, got %d", rec.Code)
	}

	var history struct {
		Total int `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if history.Total != 1 {
		t.Fatalf("expected one disposal, got %d", history.Total)
	}
}

func TestCustomerEndpoints(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := bearerToken(t, handler, "staff", "staff123")

	createReq := map[string]any{
		"customerName":  "Ravi Nair",
		"email":         "ravi@example.com",
		"contactNumber": "9000011111",
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/customers", token, createReq))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// Same email again must be refused.
	dupReq := map[string]any{
		"customerName":  "Other Ravi",
		"email":         "ravi@example.com",
		"contactNumber": "9000022222",
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/customers", token, dupReq))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate email, got %d", rec.Code)
	}
}

func TestRegisterUserRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	staffToken := bearerToken(t, handler, "staff", "staff123")
	newUser := map[string]any{"username": "clerk01", "password": "secret99"}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/users", staffToken, newUser))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d", rec.Code)
	}

	adminToken := bearerToken(t, handler, "admin", "admin123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/users", adminToken, newUser))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	// The fresh account can log in right away.
	if token := bearerToken(t, handler, "clerk01", "secret99"); token == "" {
		t.Fatalf("expected new user to log in")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := bearerToken(t, handler, "admin", "admin123")

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodDelete, "/api/v1/invoices"},
		{http.MethodPut, "/api/v1/customers"},
		{http.MethodPost, "/healthz"},
	} {
		req := authedRequest(t, tc.method, tc.path, token, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected 405, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/invoices", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on preflight, got %d", rec.Code)
	}
	if origin := rec.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Fatalf("expected wildcard origin, got %q", origin)
	}
}

func TestSalesEndpoints(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := bearerToken(t, handler, "admin", "admin123")

	payload := map[string]any{
		"customer":        map[string]string{"name": "Mehra Trading Co", "mobile": "9812345678"},
		"workOrderNumber": "WO-1042",
		"items": []map[string]any{
			{"description": "Royal Oud 50ml x 24 carton", "quantity": 24, "price": 1200},
		},
		"ewayBill": map[string]string{"billNumber": "EWB-9912", "vehicleNumber": "DL01AB1234"},
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/sales", token, payload))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Sale struct {
			InvoiceNumber string  `json:"invoiceNumber"`
			Total         float64 `json:"total"`
			EwayBill      struct {
				DocNo string `json:"docNo"`
			} `json:"ewayBill"`
		} `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode create body: %v", err)
	}
	if created.Sale.InvoiceNumber == "" {
		t.Fatalf("expected an invoice number in the response")
	}
	if created.Sale.EwayBill.DocNo != created.Sale.InvoiceNumber {
		t.Fatalf("expected eway bill doc number %s, got %s", created.Sale.InvoiceNumber, created.Sale.EwayBill.DocNo)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/sales?workOrderNumber=WO-1042", token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list sales: expected 200, got %d", rec.Code)
	}
	var listed struct {
		Sales []json.RawMessage `json:"sales"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("decode list body: %v", err)
	}
	if len(listed.Sales) != 1 {
		t.Fatalf("expected 1 sale for WO-1042, got %d", len(listed.Sales))
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodDelete, "/api/v1/sales/"+created.Sale.InvoiceNumber, token, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete sale: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/sales/"+created.Sale.InvoiceNumber, token, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted sale: expected 404, got %d", rec.Code)
	}
}

func TestUserAdminEndpoints(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	adminToken := bearerToken(t, handler, "admin", "admin123")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/users", adminToken, map[string]string{
		"username": "clerk01",
		"password": "secret99",
		"role":     "staff",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPatch, "/api/v1/users/clerk01", adminToken, map[string]any{
		"active": false,
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("patch user: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	payload, _ := json.Marshal(map[string]string{"username": "clerk01", "password": "secret99"})
	loginReq := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	loginReq.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, loginReq)
	if rec.Code == http.StatusOK {
		t.Fatalf("expected login to be refused for a deactivated account")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodDelete, "/api/v1/users/admin", adminToken, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("self delete: expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodDelete, "/api/v1/users/clerk01", adminToken, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete user: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodDelete, "/api/v1/users/clerk01", adminToken, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete missing user: expected 404, got %d", rec.Code)
	}
}
