package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"hqms/queue-service/internal/models"
	"hqms/queue-service/internal/queue"
	"hqms/queue-service/internal/store"
)

type fakeService struct {
	admitFn     func(ctx context.Context, input queue.AdmitTokenInput) (models.Token, error)
	dispatchFn  func(ctx context.Context, counterID, serviceTypeID string) (models.Token, error)
	completeFn  func(ctx context.Context, tokenID string) error
	skipFn      func(ctx context.Context, tokenID string) error
	approveFn   func(ctx context.Context, tokenID string) (models.Token, error)
	rejectFn    func(ctx context.Context, tokenID string) error
	depthFn     func(ctx context.Context, serviceTypeID string) (int, error)
	etaFn       func(ctx context.Context, tokenID string) (int, error)
	historyFn   func(ctx context.Context, phone string) ([]models.Token, error)
	dashboardFn func(ctx context.Context) ([]queue.DepartmentSummary, error)
	loadsFn     func(ctx context.Context) ([]queue.DoctorLoad, error)
	statsFn     func(ctx context.Context, serviceTypeID string) (queue.ServiceStats, error)
}

func (f fakeService) AdmitToken(ctx context.Context, input queue.AdmitTokenInput) (models.Token, error) {
	if f.admitFn == nil {
		return models.Token{}, nil
	}
	return f.admitFn(ctx, input)
}

func (f fakeService) DispatchNext(ctx context.Context, counterID, serviceTypeID string) (models.Token, error) {
	if f.dispatchFn == nil {
		return models.Token{}, nil
	}
	return f.dispatchFn(ctx, counterID, serviceTypeID)
}

func (f fakeService) CompleteToken(ctx context.Context, tokenID string) error {
	if f.completeFn == nil {
		return nil
	}
	return f.completeFn(ctx, tokenID)
}

func (f fakeService) SkipToken(ctx context.Context, tokenID string) error {
	if f.skipFn == nil {
		return nil
	}
	return f.skipFn(ctx, tokenID)
}

func (f fakeService) ApproveEmergency(ctx context.Context, tokenID string) (models.Token, error) {
	if f.approveFn == nil {
		return models.Token{}, nil
	}
	return f.approveFn(ctx, tokenID)
}

func (f fakeService) RejectEmergency(ctx context.Context, tokenID string) error {
	if f.rejectFn == nil {
		return nil
	}
	return f.rejectFn(ctx, tokenID)
}

func (f fakeService) QueueDepth(ctx context.Context, serviceTypeID string) (int, error) {
	if f.depthFn == nil {
		return 0, nil
	}
	return f.depthFn(ctx, serviceTypeID)
}

func (f fakeService) EstimateETA(ctx context.Context, tokenID string) (int, error) {
	if f.etaFn == nil {
		return 0, nil
	}
	return f.etaFn(ctx, tokenID)
}

func (f fakeService) PatientHistory(ctx context.Context, phone string) ([]models.Token, error) {
	if f.historyFn == nil {
		return nil, nil
	}
	return f.historyFn(ctx, phone)
}

func (f fakeService) DashboardSummary(ctx context.Context) ([]queue.DepartmentSummary, error) {
	if f.dashboardFn == nil {
		return nil, nil
	}
	return f.dashboardFn(ctx)
}

func (f fakeService) DoctorLoads(ctx context.Context) ([]queue.DoctorLoad, error) {
	if f.loadsFn == nil {
		return nil, nil
	}
	return f.loadsFn(ctx)
}

func (f fakeService) ServiceStatsFor(ctx context.Context, serviceTypeID string) (queue.ServiceStats, error) {
	if f.statsFn == nil {
		return queue.ServiceStats{}, nil
	}
	return f.statsFn(ctx, serviceTypeID)
}

func postJSON(t *testing.T, handler http.Handler, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateToken(t *testing.T) {
	var captured queue.AdmitTokenInput
	handler := NewHandler(fakeService{
		admitFn: func(ctx context.Context, input queue.AdmitTokenInput) (models.Token, error) {
			captured = input
			return models.Token{TokenID: "t-1", TokenNumber: "C101", Status: models.StatusWaiting}, nil
		},
	}).Routes()

	rec := postJSON(t, handler, "/api/tokens", map[string]interface{}{
		"service_type_id": "cardiology",
		"patient_name":    "Siti",
		"patient_phone":   "081234567890",
		"urgent":          true,
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}
	if captured.ServiceTypeID != "cardiology" || !captured.Urgent {
		t.Errorf("captured input = %+v", captured)
	}

	var token models.Token
	if err := json.Unmarshal(rec.Body.Bytes(), &token); err != nil {
		t.Fatal(err)
	}
	if token.TokenNumber != "C101" {
		t.Errorf("token number = %q, want C101", token.TokenNumber)
	}
}

func TestCreateTokenValidation(t *testing.T) {
	handler := NewHandler(fakeService{}).Routes()

	tests := []struct {
		name    string
		payload map[string]interface{}
	}{
		{"missing service type", map[string]interface{}{"patient_phone": "081234567890"}},
		{"missing phone", map[string]interface{}{"service_type_id": "cardiology"}},
		{"short phone", map[string]interface{}{"service_type_id": "cardiology", "patient_phone": "0812"}},
		{"letters in phone", map[string]interface{}{"service_type_id": "cardiology", "patient_phone": "08123456abcd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, handler, "/api/tokens", tt.payload)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestCreateTokenRejectsUnknownFields(t *testing.T) {
	handler := NewHandler(fakeService{}).Routes()
	rec := postJSON(t, handler, "/api/tokens", map[string]interface{}{
		"service_type_id": "cardiology",
		"patient_phone":   "081234567890",
		"bogus":           true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCallNext(t *testing.T) {
	handler := NewHandler(fakeService{
		dispatchFn: func(ctx context.Context, counterID, serviceTypeID string) (models.Token, error) {
			if counterID != "counter-1" || serviceTypeID != "cardiology" {
				t.Errorf("dispatch args = %q %q", counterID, serviceTypeID)
			}
			return models.Token{TokenNumber: "C101", Status: models.StatusServing}, nil
		},
	}).Routes()

	rec := postJSON(t, handler, "/api/tokens/actions/call-next", map[string]interface{}{
		"counter_id":      "counter-1",
		"service_type_id": "cardiology",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
}

func TestCallNextEmptyQueue(t *testing.T) {
	handler := NewHandler(fakeService{
		dispatchFn: func(ctx context.Context, counterID, serviceTypeID string) (models.Token, error) {
			return models.Token{}, store.ErrNoToken
		},
	}).Routes()

	rec := postJSON(t, handler, "/api/tokens/actions/call-next", map[string]interface{}{
		"counter_id":      "counter-1",
		"service_type_id": "cardiology",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error.Code != "queue_empty" {
		t.Errorf("error code = %q, want queue_empty", resp.Error.Code)
	}
}

func TestTokenActions(t *testing.T) {
	tests := []struct {
		action     string
		wantStatus int
	}{
		{"complete", http.StatusNoContent},
		{"skip", http.StatusNoContent},
		{"approve", http.StatusOK},
		{"reject", http.StatusNoContent},
		{"unknown", http.StatusNotFound},
	}
	handler := NewHandler(fakeService{}).Routes()
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			rec := postJSON(t, handler, "/api/tokens/t-1/actions/"+tt.action, map[string]interface{}{})
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestTokenActionInvalidState(t *testing.T) {
	handler := NewHandler(fakeService{
		completeFn: func(ctx context.Context, tokenID string) error {
			return store.ErrInvalidState
		},
	}).Routes()

	rec := postJSON(t, handler, "/api/tokens/t-1/actions/complete", map[string]interface{}{})
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestETA(t *testing.T) {
	handler := NewHandler(fakeService{
		etaFn: func(ctx context.Context, tokenID string) (int, error) {
			return 9, nil
		},
	}).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/tokens/t-1/eta", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp etaResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.EstimatedMinutes != 9 {
		t.Errorf("estimated_minutes = %d, want 9", resp.EstimatedMinutes)
	}
}

func TestETAUnknownToken(t *testing.T) {
	handler := NewHandler(fakeService{
		etaFn: func(ctx context.Context, tokenID string) (int, error) {
			return 0, store.ErrTokenNotFound
		},
	}).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/tokens/nope/eta", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestQueueDepth(t *testing.T) {
	handler := NewHandler(fakeService{
		depthFn: func(ctx context.Context, serviceTypeID string) (int, error) {
			return 4, nil
		},
	}).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/queue/depth?service_type_id=cardiology", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp queueDepthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Waiting != 4 {
		t.Errorf("waiting = %d, want 4", resp.Waiting)
	}
}

func TestQueueDepthRequiresServiceType(t *testing.T) {
	handler := NewHandler(fakeService{}).Routes()
	req := httptest.NewRequest(http.MethodGet, "/api/queue/depth", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPatientHistory(t *testing.T) {
	handler := NewHandler(fakeService{
		historyFn: func(ctx context.Context, phone string) ([]models.Token, error) {
			return []models.Token{{TokenNumber: "C102"}, {TokenNumber: "C101"}}, nil
		},
	}).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/patients/history?phone=081234567890", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var history []models.Token
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Errorf("history length = %d, want 2", len(history))
	}
}

func TestDashboard(t *testing.T) {
	handler := NewHandler(fakeService{
		dashboardFn: func(ctx context.Context) ([]queue.DepartmentSummary, error) {
			return []queue.DepartmentSummary{{ServiceTypeID: "cardiology", Waiting: 2}}, nil
		},
	}).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := NewHandler(fakeService{}).Routes()
	req := httptest.NewRequest(http.MethodGet, "/api/tokens", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
