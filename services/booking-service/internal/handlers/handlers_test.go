package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/detailbook/detailbook/libs/httpx"
	"github.com/detailbook/detailbook/services/booking-service/internal/availability"
	"github.com/detailbook/detailbook/services/booking-service/internal/bookings"
	"github.com/detailbook/detailbook/services/booking-service/internal/clients"
	"github.com/detailbook/detailbook/services/booking-service/internal/model"
	"github.com/detailbook/detailbook/services/booking-service/internal/notify"
	"github.com/detailbook/detailbook/services/booking-service/internal/storage/memory"
	"github.com/detailbook/detailbook/services/booking-service/internal/tenants"
	"github.com/detailbook/detailbook/services/booking-service/internal/threads"
	"github.com/detailbook/detailbook/services/booking-service/internal/workflow"
)

// futureDate is a Monday far enough ahead that no request counts as past.
const futureDate = "2099-06-15"

type testEnv struct {
	store      *memory.Store
	mux        *http.ServeMux
	dispatcher *workflow.InProcessDispatcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	if err := store.CreateTenant(ctx, model.Tenant{ID: "t1", Name: "Shine", Timezone: "UTC", Hours: model.DefaultBusinessHours()}); err != nil {
		t.Fatalf("CreateTenant: %v", err)
	}

	notifier := notify.NewService(store, logger, notify.Config{})
	mgr := bookings.NewManager(store, notifier, logger)
	engine := availability.NewEngine(store)
	clientSvc := clients.NewService(store, logger)
	threadSvc := threads.NewService(store)
	runner := workflow.NewEngine(workflow.Deps{
		Store:        store,
		Availability: engine,
		Clients:      clientSvc,
		Bookings:     mgr,
		Notifier:     notifier,
		Threads:      threadSvc,
		Logger:       logger,
	})
	d := workflow.NewInProcessDispatcher(ctx, runner, logger)

	mux := http.NewServeMux()
	Register(mux, Deps{
		Tenants:      tenants.NewService(store),
		Availability: engine,
		Clients:      clientSvc,
		Bookings:     mgr,
		Notifier:     notifier,
		Threads:      threadSvc,
		Workflows:    workflow.NewService(store, threadSvc, d, logger),
		Logger:       logger,
	})
	return &testEnv{store: store, mux: mux, dispatcher: d}
}

func (e *testEnv) do(t *testing.T, method, path, tenant string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if tenant != "" {
		req.Header.Set(httpx.TenantHeader, tenant)
	}
	rw := httptest.NewRecorder()
	e.mux.ServeHTTP(rw, req)
	return rw
}

func decode[T any](t *testing.T, rw *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rw.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rw.Body.String(), err)
	}
	return v
}

func (e *testEnv) createBooking(t *testing.T, service, clock string) model.Booking {
	t.Helper()
	rw := e.do(t, http.MethodPost, "/api/v1/bookings", "t1", createBookingRequest{
		ClientName: "Jane Doe",
		Service:    service,
		Date:       futureDate,
		Time:       clock,
	})
	if rw.Code != http.StatusCreated {
		t.Fatalf("create booking: expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	return decode[model.Booking](t, rw)
}

func TestServicesListsCatalog(t *testing.T) {
	e := newTestEnv(t)
	rw := e.do(t, http.MethodGet, "/api/v1/services", "", nil)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	items := decode[[]map[string]any](t, rw)
	if len(items) != 6 || items[0]["name"] != "Basic Wash" {
		t.Fatalf("unexpected catalog: %v", items)
	}
}

func TestRequestsRequireTenant(t *testing.T) {
	e := newTestEnv(t)
	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/availability?date=" + futureDate},
		{http.MethodGet, "/api/v1/bookings"},
		{http.MethodGet, "/api/v1/notifications"},
		{http.MethodGet, "/api/v1/tenants"},
	}
	for _, tc := range cases {
		if rw := e.do(t, tc.method, tc.path, "", nil); rw.Code != http.StatusBadRequest {
			t.Fatalf("%s %s: expected 400, got %d", tc.method, tc.path, rw.Code)
		}
	}
	if rw := e.do(t, http.MethodGet, "/api/v1/bookings?date="+futureDate, "ghost", nil); rw.Code != http.StatusNotFound {
		t.Fatalf("unknown tenant: expected 404, got %d", rw.Code)
	}
}

func TestAvailabilityReflectsBookings(t *testing.T) {
	e := newTestEnv(t)
	e.createBooking(t, "Full Detailing", "10:00")

	rw := e.do(t, http.MethodGet, "/api/v1/availability?date="+futureDate+"&service=Basic+Wash", "t1", nil)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	res := decode[availabilityResponse](t, rw)
	free := map[string]bool{}
	for _, s := range res.Slots {
		free[s.Time] = s.Available
	}
	if free["10:00"] || free["11:30"] || !free["12:00"] || !free["09:30"] {
		t.Fatalf("unexpected slots: %+v", res.Slots)
	}

	rw = e.do(t, http.MethodGet, "/api/v1/availability?date="+futureDate+"&service=Basic+Wash&time=11:00", "t1", nil)
	check := decode[availability.Result](t, rw)
	if check.Available || len(check.Alternatives) == 0 || check.Alternatives[0] != "12:00" {
		t.Fatalf("unexpected check result: %+v", check)
	}

	if rw := e.do(t, http.MethodGet, "/api/v1/availability", "t1", nil); rw.Code != http.StatusBadRequest {
		t.Fatalf("missing date: expected 400, got %d", rw.Code)
	}
	if rw := e.do(t, http.MethodGet, "/api/v1/availability?date=June", "t1", nil); rw.Code != http.StatusBadRequest {
		t.Fatalf("bad date: expected 400, got %d", rw.Code)
	}
}

func TestConflictCheck(t *testing.T) {
	e := newTestEnv(t)
	existing := e.createBooking(t, "Full Detailing", "10:00")

	cases := []struct {
		name    string
		req     conflictRequest
		want    bool
		wantMsg string
	}{
		{"inside", conflictRequest{Date: futureDate, Time: "11:30", Service: "Basic Wash"}, true, "Full Detailing"},
		{"adjacent after", conflictRequest{Date: futureDate, Time: "12:00", Service: "Basic Wash"}, false, ""},
		{"adjacent before", conflictRequest{Date: futureDate, Time: "09:00", Service: "Interior Detailing"}, false, ""},
		{"straddles start", conflictRequest{Date: futureDate, Time: "09:30", DurationMinutes: 45}, true, ""},
		{"excluded", conflictRequest{Date: futureDate, Time: "11:00", Service: "Basic Wash", ExcludeBookingID: existing.ID}, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rw := e.do(t, http.MethodPost, "/api/v1/conflicts/check", "t1", tc.req)
			if rw.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
			}
			res := decode[availability.ConflictResult](t, rw)
			if res.HasConflict != tc.want {
				t.Fatalf("expected conflict=%v, got %+v", tc.want, res)
			}
			if tc.wantMsg != "" && !strings.Contains(res.Message, tc.wantMsg) {
				t.Fatalf("expected message to mention %q, got %q", tc.wantMsg, res.Message)
			}
		})
	}
}

func TestDirectCreateRejectsConflictWithAlternatives(t *testing.T) {
	e := newTestEnv(t)
	e.createBooking(t, "Full Detailing", "10:00")

	rw := e.do(t, http.MethodPost, "/api/v1/bookings", "t1", createBookingRequest{
		ClientName: "Sam Lee",
		Service:    "Basic Wash",
		Date:       futureDate,
		Time:       "11:00",
	})
	if rw.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rw.Code, rw.Body.String())
	}
	res := decode[conflictResponse](t, rw)
	want := []string{"12:00", "09:30", "12:30"}
	if len(res.Alternatives) != len(want) {
		t.Fatalf("expected %v, got %v", want, res.Alternatives)
	}
	for i := range want {
		if res.Alternatives[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, res.Alternatives)
		}
	}
	if got := len(e.store.Notifications("t1")); got != 1 {
		t.Fatalf("rejected create must not notify, got %d notifications", got)
	}
}

func TestDirectCreateValidation(t *testing.T) {
	e := newTestEnv(t)
	cases := []struct {
		name string
		req  createBookingRequest
		code int
	}{
		{"past", createBookingRequest{ClientName: "A", Service: "Basic Wash", Date: "2020-01-06", Time: "10:00"}, http.StatusBadRequest},
		{"missing service", createBookingRequest{ClientName: "A", Date: futureDate, Time: "10:00"}, http.StatusBadRequest},
		{"bad time", createBookingRequest{ClientName: "A", Service: "Basic Wash", Date: futureDate, Time: "25:99"}, http.StatusBadRequest},
		{"end of day", createBookingRequest{ClientName: "A", Service: "Basic Wash", Date: futureDate, Time: "24:00"}, http.StatusBadRequest},
		{"no client", createBookingRequest{Service: "Basic Wash", Date: futureDate, Time: "10:00"}, http.StatusBadRequest},
		{"unknown client", createBookingRequest{ClientID: "nope", Service: "Basic Wash", Date: futureDate, Time: "10:00"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rw := e.do(t, http.MethodPost, "/api/v1/bookings", "t1", tc.req); rw.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, rw.Code, rw.Body.String())
			}
		})
	}
}

func TestDirectCreateIdempotencyKey(t *testing.T) {
	e := newTestEnv(t)
	send := func() model.Booking {
		raw, _ := json.Marshal(createBookingRequest{ClientName: "Jane", Service: "Basic Wash", Date: futureDate, Time: "09:00"})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewReader(raw))
		req.Header.Set(httpx.TenantHeader, "t1")
		req.Header.Set("Idempotency-Key", "abc")
		rw := httptest.NewRecorder()
		e.mux.ServeHTTP(rw, req)
		if rw.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
		}
		return decode[model.Booking](t, rw)
	}
	first := send()
	again := send()
	if again.ID != first.ID {
		t.Fatalf("replay created a second booking: %s != %s", again.ID, first.ID)
	}
	if got := len(e.store.Notifications("t1")); got != 1 {
		t.Fatalf("expected one notification, got %d", got)
	}
}

func TestUpdateAndCancel(t *testing.T) {
	e := newTestEnv(t)
	e.createBooking(t, "Full Detailing", "10:00")
	b := e.createBooking(t, "Basic Wash", "14:00")

	rw := e.do(t, http.MethodPost, "/api/v1/bookings/update", "t1", map[string]any{"id": b.ID, "time": "11:00"})
	if rw.Code != http.StatusConflict {
		t.Fatalf("move onto busy slot: expected 409, got %d", rw.Code)
	}

	rw = e.do(t, http.MethodPost, "/api/v1/bookings/update", "t1", map[string]any{"id": b.ID, "time": "14:30", "notes": "white sedan"})
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	moved := decode[model.Booking](t, rw)
	if moved.DateTime.Hour() != 14 || moved.DateTime.Minute() != 30 || moved.Notes != "white sedan" {
		t.Fatalf("unexpected update: %+v", moved)
	}

	rw = e.do(t, http.MethodPost, "/api/v1/bookings/cancel", "t1", cancelBookingRequest{ID: b.ID, Reason: "car sold"})
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	cancelled := decode[model.Booking](t, rw)
	if cancelled.Status != model.BookingCancelled || cancelled.Notes != "white sedan\nCancellation reason: car sold" {
		t.Fatalf("unexpected cancel: %+v", cancelled)
	}

	rw = e.do(t, http.MethodPost, "/api/v1/bookings/update", "t1", map[string]any{"id": b.ID, "service": "Full Detailing"})
	if rw.Code != http.StatusConflict {
		t.Fatalf("changing a cancelled booking: expected 409, got %d", rw.Code)
	}
	rw = e.do(t, http.MethodPost, "/api/v1/bookings/update", "t1", map[string]any{"id": b.ID, "notes": "refund sent"})
	if rw.Code != http.StatusOK {
		t.Fatalf("notes on a cancelled booking: expected 200, got %d", rw.Code)
	}

	if rw := e.do(t, http.MethodPost, "/api/v1/bookings/cancel", "t1", cancelBookingRequest{ID: "missing"}); rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}

	rw = e.do(t, http.MethodGet, "/api/v1/bookings?date="+futureDate, "t1", nil)
	if items := decode[[]model.Booking](t, rw); len(items) != 2 {
		t.Fatalf("expected 2 bookings on the day, got %d", len(items))
	}
}

func TestClientEndpoints(t *testing.T) {
	e := newTestEnv(t)
	rw := e.do(t, http.MethodPost, "/api/v1/clients", "t1", createClientRequest{Name: "Jane Doe", Email: "jane@example.com"})
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	c := decode[model.Client](t, rw)

	rw = e.do(t, http.MethodGet, "/api/v1/clients?search=JANE", "t1", nil)
	if found := decode[[]model.Client](t, rw); len(found) != 1 || found[0].ID != c.ID {
		t.Fatalf("unexpected search result: %+v", found)
	}
	if rw := e.do(t, http.MethodGet, "/api/v1/clients?search=jane", "t2", nil); rw.Code == http.StatusOK {
		if found := decode[[]model.Client](t, rw); len(found) != 0 {
			t.Fatalf("clients leaked across tenants: %+v", found)
		}
	}
	if rw := e.do(t, http.MethodGet, "/api/v1/clients", "t1", nil); rw.Code != http.StatusBadRequest {
		t.Fatalf("empty search: expected 400, got %d", rw.Code)
	}
	if rw := e.do(t, http.MethodPost, "/api/v1/clients", "t1", createClientRequest{Email: "x@example.com"}); rw.Code != http.StatusBadRequest {
		t.Fatalf("nameless client: expected 400, got %d", rw.Code)
	}

	if rw := e.do(t, http.MethodPost, "/api/v1/clients/delete", "t1", idRequest{ID: c.ID}); rw.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rw.Code)
	}
	rw = e.do(t, http.MethodGet, "/api/v1/clients?search=jane", "t1", nil)
	if found := decode[[]model.Client](t, rw); len(found) != 0 {
		t.Fatalf("deleted client still listed: %+v", found)
	}
}

func TestAssistantBookingFlow(t *testing.T) {
	e := newTestEnv(t)
	rw := e.do(t, http.MethodPost, "/api/v1/assistant/book", "t1", assistantBookRequest{
		Message: "I'd like a full detailing on " + futureDate + " at 10:00",
		Contact: model.Contact{Name: "Jane Doe", Email: "jane@example.com"},
	})
	if rw.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rw.Code, rw.Body.String())
	}
	accepted := decode[runAccepted](t, rw)
	e.dispatcher.Wait()

	rw = e.do(t, http.MethodGet, "/api/v1/workflows?id="+accepted.RunID, "t1", nil)
	run := decode[model.Run](t, rw)
	if run.State != model.StateCompleted || run.Result == nil || !run.Result.Success || run.Result.BookingID == "" {
		t.Fatalf("unexpected run: %+v", run)
	}

	rw = e.do(t, http.MethodGet, "/api/v1/assistant/threads?id="+accepted.ThreadID, "t1", nil)
	th := decode[threadResponse](t, rw)
	if th.Thread.Status != model.ThreadCompleted || len(th.Messages) < 2 {
		t.Fatalf("unexpected thread: %+v", th)
	}

	rw = e.do(t, http.MethodGet, "/api/v1/notifications?unread=true", "t1", nil)
	items := decode[[]model.Notification](t, rw)
	if len(items) != 1 || items[0].Type != model.NotificationBookingCreated {
		t.Fatalf("unexpected notifications: %+v", items)
	}
	if rw := e.do(t, http.MethodPost, "/api/v1/notifications/read", "t1", idRequest{ID: items[0].ID}); rw.Code != http.StatusNoContent {
		t.Fatalf("mark read: expected 204, got %d", rw.Code)
	}
	rw = e.do(t, http.MethodGet, "/api/v1/notifications?unread=true", "t1", nil)
	if left := decode[[]model.Notification](t, rw); len(left) != 0 {
		t.Fatalf("expected no unread notifications, got %+v", left)
	}

	if rw := e.do(t, http.MethodPost, "/api/v1/workflows/cancel", "t1", idRequest{ID: accepted.RunID}); rw.Code != http.StatusConflict {
		t.Fatalf("cancelling a finished run: expected 409, got %d", rw.Code)
	}
	if rw := e.do(t, http.MethodGet, "/api/v1/workflows?id="+accepted.RunID, "t2", nil); rw.Code != http.StatusNotFound {
		t.Fatalf("other tenant: expected 404, got %d", rw.Code)
	}
}

func TestAssistantRescheduleAndCancel(t *testing.T) {
	e := newTestEnv(t)
	b := e.createBooking(t, "Basic Wash", "09:00")

	rw := e.do(t, http.MethodPost, "/api/v1/assistant/reschedule", "t1", assistantRescheduleRequest{BookingID: b.ID, Date: futureDate, Time: "15:00"})
	if rw.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rw.Code, rw.Body.String())
	}
	e.dispatcher.Wait()

	rw = e.do(t, http.MethodPost, "/api/v1/assistant/cancel", "t1", assistantCancelRequest{BookingID: b.ID, Reason: "out of town"})
	if rw.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rw.Code, rw.Body.String())
	}
	e.dispatcher.Wait()

	rw = e.do(t, http.MethodGet, "/api/v1/bookings?date="+futureDate, "t1", nil)
	items := decode[[]model.Booking](t, rw)
	if len(items) != 1 {
		t.Fatalf("expected one booking, got %d", len(items))
	}
	got := items[0]
	if got.DateTime.Hour() != 15 || got.Status != model.BookingCancelled || !strings.Contains(got.Notes, "out of town") {
		t.Fatalf("unexpected booking: %+v", got)
	}

	if rw := e.do(t, http.MethodPost, "/api/v1/assistant/reschedule", "t1", assistantRescheduleRequest{BookingID: b.ID, Date: "tomorrow", Time: "15:00"}); rw.Code != http.StatusBadRequest {
		t.Fatalf("bad date: expected 400, got %d", rw.Code)
	}
	if rw := e.do(t, http.MethodPost, "/api/v1/assistant/book", "t1", assistantBookRequest{}); rw.Code != http.StatusBadRequest {
		t.Fatalf("empty message: expected 400, got %d", rw.Code)
	}
}

func TestTenantSignupAndGet(t *testing.T) {
	e := newTestEnv(t)
	rw := e.do(t, http.MethodPost, "/api/v1/tenants", "t2", tenants.SignupInput{Name: "Gloss Bros", Timezone: "America/Chicago"})
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	created := decode[model.Tenant](t, rw)
	if created.ID != "t2" {
		t.Fatalf("expected tenant id from header, got %q", created.ID)
	}

	rw = e.do(t, http.MethodGet, "/api/v1/tenants", "t2", nil)
	if got := decode[model.Tenant](t, rw); got.Name != "Gloss Bros" || got.Timezone != "America/Chicago" {
		t.Fatalf("unexpected tenant: %+v", got)
	}

	if rw := e.do(t, http.MethodPost, "/api/v1/tenants", "t2", tenants.SignupInput{Name: "Again"}); rw.Code != http.StatusConflict {
		t.Fatalf("duplicate signup: expected 409, got %d", rw.Code)
	}
	if rw := e.do(t, http.MethodPost, "/api/v1/tenants", "t3", tenants.SignupInput{ID: "t4", Name: "Mismatch"}); rw.Code != http.StatusForbidden {
		t.Fatalf("mismatched id: expected 403, got %d", rw.Code)
	}
	if rw := e.do(t, http.MethodPost, "/api/v1/tenants", "t5", tenants.SignupInput{Name: "Bad Zone", Timezone: "Mars/Olympus"}); rw.Code != http.StatusBadRequest {
		t.Fatalf("bad timezone: expected 400, got %d", rw.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t)
	if rw := e.do(t, http.MethodDelete, "/api/v1/bookings", "t1", nil); rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rw.Code)
	}
	if rw := e.do(t, http.MethodGet, "/api/v1/bookings/cancel", "t1", nil); rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rw.Code)
	}
}
