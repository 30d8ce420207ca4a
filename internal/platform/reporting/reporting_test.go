package reporting

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"

	"github.com/celloxen/intake/internal/platform/auth"
)

type failingQuerier struct {
	gotArgs []any
}

func (f *failingQuerier) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	f.gotArgs = args
	return nil, errors.New("dial tcp: connection refused")
}

func TestCatalog(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range Measures() {
		if seen[m.ID] {
			t.Errorf("duplicate measure %s", m.ID)
		}
		seen[m.ID] = true
		if m.SQL == "" || m.Name == "" || len(m.Columns) == 0 {
			t.Errorf("measure %s is incomplete", m.ID)
		}
		if !strings.Contains(m.SQL, "clinic_id = $1") {
			t.Errorf("measure %s is not scoped to the clinic", m.ID)
		}
	}
	if m, ok := Lookup("stage-distribution"); !ok || m.Name != "Workflow Stage Distribution" {
		t.Errorf("unexpected lookup %+v", m)
	}
	if _, ok := Lookup("nonexistent"); ok {
		t.Error("expected miss for unknown measure")
	}
}

func newMeasureContext(target, id string, sess *auth.Session) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if sess != nil {
		req = req.WithContext(auth.WithSession(req.Context(), *sess))
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c, rec
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestEvaluateMeasure_Errors(t *testing.T) {
	clinic := &auth.Session{ClinicID: "c1"}
	tests := []struct {
		name   string
		target string
		id     string
		sess   *auth.Session
		want   int
	}{
		{"unknown measure", "/", "nope", clinic, http.StatusNotFound},
		{"no session", "/", "stage-distribution", nil, http.StatusUnauthorized},
		{"bad format", "/?format=pdf", "stage-distribution", clinic, http.StatusBadRequest},
		{"store down", "/", "stage-distribution", clinic, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newMeasureContext(tt.target, tt.id, tt.sess)
			if got := statusOf(t, NewHandler(&failingQuerier{}).EvaluateMeasure(c)); got != tt.want {
				t.Errorf("status %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEvaluateMeasure_ScopesToClinic(t *testing.T) {
	q := &failingQuerier{}
	c, _ := newMeasureContext("/", "outcomes", &auth.Session{ClinicID: "clinic-7"})
	_ = NewHandler(q).EvaluateMeasure(c)
	if len(q.gotArgs) != 1 || q.gotArgs[0] != "clinic-7" {
		t.Errorf("expected clinic id argument, got %v", q.gotArgs)
	}
}

func TestListMeasures_HidesSQL(t *testing.T) {
	c, rec := newMeasureContext("/", "", nil)
	if err := NewHandler(nil).ListMeasures(c); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(rec.Body.String(), "SELECT") {
		t.Error("measure SQL must not be exposed")
	}
}

func TestXLSX(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	res := &Result{
		MeasureID:   "stage-distribution",
		MeasureName: "Workflow Stage Distribution",
		ClinicID:    "clinic-1",
		GeneratedAt: at,
		Columns:     []string{"stage", "total"},
		Rows: []map[string]any{
			{"stage": "IN_TREATMENT", "total": int64(4)},
			{"stage": "REASSESSMENT", "total": int64(1)},
		},
	}
	data, err := XLSX(res)
	if err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := f.GetRows("Measure")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected title, blank, header and 2 data rows, got %d", len(rows))
	}
	if !strings.HasPrefix(rows[0][0], "Workflow Stage Distribution") {
		t.Errorf("unexpected title %q", rows[0][0])
	}
	if rows[2][0] != "stage" || rows[3][0] != "IN_TREATMENT" || rows[3][1] != "4" {
		t.Errorf("unexpected rows %v", rows)
	}
	if Filename(res) != "stage-distribution-20260302.xlsx" {
		t.Errorf("unexpected filename %s", Filename(res))
	}
}
