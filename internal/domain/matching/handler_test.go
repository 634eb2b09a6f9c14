package matching

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/refermed/refermed/internal/domain/hospital"
	"github.com/refermed/refermed/internal/platform/auth"
)

func matchRequest(t *testing.T, h *Handler, target, userID string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, userID))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var fn echo.HandlerFunc
	switch req.URL.Path {
	case "/matching/optimal":
		fn = h.FindOptimal
	case "/matching/validate":
		fn = h.ValidateSelection
	default:
		t.Fatalf("unexpected path %s", req.URL.Path)
	}
	if err := fn(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestFindOptimalHandler_QueryParams(t *testing.T) {
	hospitals := newMockHospitals()
	home := &hospital.Hospital{ID: uuid.New(), Name: "Home", Lat: 0, Lon: 0}
	dest := &hospital.Hospital{ID: uuid.New(), Name: "Dest", Lat: 0.1, Lon: 0.1}
	hospitals.hospitals[home.ID] = home
	hospitals.add(dest, "cardiology", 5, 10)
	homes := &mockHomes{homes: map[string]uuid.UUID{"doctor-1": home.ID}}
	h := NewHandler(NewService(homes, hospitals))

	rec := matchRequest(t, h, "/matching/optimal?department=cardiology", "doctor-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp matchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success || resp.Match == nil || resp.Match.Hospital.ID != dest.ID {
		t.Errorf("unexpected response %+v", resp)
	}

	rec = matchRequest(t, h, "/matching/optimal", "doctor-1")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing department: status = %d, want 400", rec.Code)
	}

	// Routing failures come back as a non-success payload, not an HTTP error.
	rec = matchRequest(t, h, "/matching/optimal?department=neurology", "doctor-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp = matchResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Success || resp.Reason == "" {
		t.Errorf("expected failure payload, got %+v", resp)
	}
}

func TestValidateSelectionHandler_QueryParams(t *testing.T) {
	hospitals := newMockHospitals()
	dest := &hospital.Hospital{ID: uuid.New(), Name: "Dest", Lat: 0.1, Lon: 0.1}
	hospitals.add(dest, "cardiology", 5, 10)
	homes := &mockHomes{homes: map[string]uuid.UUID{}}
	h := NewHandler(NewService(homes, hospitals))

	rec := matchRequest(t, h, "/matching/validate?hospital_id="+dest.ID.String()+"&department=cardiology", "doctor-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var v Validation
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !v.IsValid || !v.HasDepartment || !v.HasCapacity {
		t.Errorf("unexpected validation %+v", v)
	}

	rec = matchRequest(t, h, "/matching/validate?hospital_id=not-a-uuid&department=cardiology", "doctor-1")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad hospital_id: status = %d, want 400", rec.Code)
	}
	rec = matchRequest(t, h, "/matching/validate?hospital_id="+dest.ID.String(), "doctor-1")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing department: status = %d, want 400", rec.Code)
	}
}
