package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/channel"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/config"
	ordersvc "github.com/zhangsherry780-arch/order-robot-sub000/internal/dailyorder/service"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/events"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
	optoutdomain "github.com/zhangsherry780-arch/order-robot-sub000/internal/optout/domain"
	optoutsvc "github.com/zhangsherry780-arch/order-robot-sub000/internal/optout/service"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/reconcile"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/recordstore"
	regdomain "github.com/zhangsherry780-arch/order-robot-sub000/internal/registration/domain"
	regsvc "github.com/zhangsherry780-arch/order-robot-sub000/internal/registration/service"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type serverFixture struct {
	router *gin.Engine
	optSvc optoutdomain.Service
	store  *recordstore.Store
}

func setupRouter(t *testing.T) serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store := recordstore.New(db, zap.NewNop())
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate store: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM record_collections`)
		db.Exec(`DELETE FROM event_journal`)
	})

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	clk := fixedClock{now: time.Date(2025, 9, 17, 8, 0, 0, 0, time.UTC)}
	log := zap.NewNop()
	cfg := config.Config{
		Environment: "test",
		Orders:      config.OrderConfig{DefaultHeadcount: 30},
	}

	orders := ordersvc.NewService(ordersvc.ServiceParam{
		Store: store, Log: log, GenID: node, Clock: clk, Config: cfg,
	})
	registrations := regsvc.NewService(regsvc.ServiceParam{
		Store: store, Log: log, GenID: node, Clock: clk,
	})
	optOuts := optoutsvc.NewService(optoutsvc.ServiceParam{
		Store: store, Log: log, Clock: clk, Observer: orders,
	})
	engine := reconcile.NewEngine(reconcile.EngineParam{
		Store: store, Log: log, GenID: node, Clock: clk, Orders: orders,
	})

	journal := events.NewJournal(db, node, clk)
	if err := journal.Migrate(); err != nil {
		t.Fatalf("migrate journal: %v", err)
	}

	srv := NewServer(ServerParams{
		Config:  cfg,
		Log:     log,
		RegSvc:  registrations,
		OptSvc:  optOuts,
		Orders:  orders,
		Engine:  engine,
		Journal: journal,
		Channel: channel.NewSupervisor(),
		Clock:   clk,
	})
	return serverFixture{router: srv.Router(), optSvc: optOuts, store: store}
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func doRaw(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	fixture := setupRouter(t)
	rec := doJSON(t, fixture.router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCreateNoEatRegistration(t *testing.T) {
	fixture := setupRouter(t)

	rec := doJSON(t, fixture.router, http.MethodPost, "/api/registrations/no-eat", map[string]string{
		"userId":   "u1",
		"date":     "2025-09-17",
		"mealType": "lunch",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	key := meal.Key{UserID: "u1", Date: "2025-09-17", Meal: meal.Lunch}
	optedOut, err := fixture.optSvc.Exists(context.Background(), key)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !optedOut {
		t.Fatal("no-eat registration must land in the opt-out index")
	}

	check := doJSON(t, fixture.router, http.MethodGet, "/api/optouts/check?userId=u1&date=2025-09-17&meal=lunch", nil)
	if check.Code != http.StatusOK {
		t.Fatalf("check failed: %d %s", check.Code, check.Body.String())
	}
	if !bytes.Contains(check.Body.Bytes(), []byte(`"optedOut":true`)) {
		t.Fatalf("unexpected check body: %s", check.Body.String())
	}
}

func TestRegistrationValidation(t *testing.T) {
	fixture := setupRouter(t)

	rec := doJSON(t, fixture.router, http.MethodPost, "/api/registrations", map[string]string{
		"userId":   "u1",
		"date":     "2025-09-17",
		"mealType": "brunch",
		"dishName": "noodles",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid meal type, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOrderLifecycleEndpoints(t *testing.T) {
	fixture := setupRouter(t)

	rec := doJSON(t, fixture.router, http.MethodPost, "/api/orders/2025-09-17/lunch/open", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("open: %d %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"status":"open"`)) {
		t.Fatalf("unexpected open body: %s", rec.Body.String())
	}

	rec = doJSON(t, fixture.router, http.MethodPut, "/api/orders/2025-09-17/lunch/headcount", map[string]int{
		"totalPeople": 40,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("headcount: %d %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"totalPeople":40`)) {
		t.Fatalf("unexpected headcount body: %s", rec.Body.String())
	}

	rec = doJSON(t, fixture.router, http.MethodPost, "/api/orders/2025-09-17/lunch/toggle", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: %d %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"status":"closed"`)) {
		t.Fatalf("toggle from open must close: %s", rec.Body.String())
	}

	rec = doJSON(t, fixture.router, http.MethodGet, "/api/orders/2025-09-17/brunch", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid meal, got %d", rec.Code)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	fixture := setupRouter(t)

	rec := doJSON(t, fixture.router, http.MethodPost, "/api/registrations/no-eat", map[string]string{
		"userId": "u1", "date": "2025-09-17", "mealType": "lunch",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("seed no-eat: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, fixture.router, http.MethodPost, "/api/reconcile", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reconcile: %d %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"alreadyConsistent":true`)) {
		t.Fatalf("API path writes both collections, reconcile should find nothing: %s", rec.Body.String())
	}

	rec = doJSON(t, fixture.router, http.MethodGet, "/api/reconcile/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"totalChecks":1`)) {
		t.Fatalf("unexpected status body: %s", rec.Body.String())
	}
}

func TestWebhookCardActionFlatShape(t *testing.T) {
	fixture := setupRouter(t)

	rec := doRaw(t, fixture.router, http.MethodPost, "/webhook/event", `{
		"eventId": "ev-1",
		"type": "card_action",
		"operatorId": "u7",
		"action": "register_no_eat",
		"mealType": "dinner",
		"date": "2025-09-17"
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("webhook: %d %s", rec.Code, rec.Body.String())
	}

	key := meal.Key{UserID: "u7", Date: "2025-09-17", Meal: meal.Dinner}
	optedOut, err := fixture.optSvc.Exists(context.Background(), key)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !optedOut {
		t.Fatal("card action must register the opt-out")
	}
}

func TestWebhookCardActionNestedShape(t *testing.T) {
	fixture := setupRouter(t)

	register := `{
		"header": {"event_id": "ev-2", "event_type": "card.action.trigger"},
		"event": {
			"operator": {"open_id": "u8"},
			"action": {"value": {"action": "register_no_eat", "mealType": "lunch", "date": "2025-09-17"}}
		}
	}`
	if rec := doRaw(t, fixture.router, http.MethodPost, "/webhook/event", register); rec.Code != http.StatusOK {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}

	cancel := `{
		"header": {"event_id": "ev-3", "event_type": "card.action.trigger"},
		"event": {
			"operator": {"open_id": "u8"},
			"action": {"value": {"action": "cancel_no_eat", "mealType": "lunch", "date": "2025-09-17"}}
		}
	}`
	if rec := doRaw(t, fixture.router, http.MethodPost, "/webhook/event", cancel); rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", rec.Code, rec.Body.String())
	}

	key := meal.Key{UserID: "u8", Date: "2025-09-17", Meal: meal.Lunch}
	optedOut, err := fixture.optSvc.Exists(context.Background(), key)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if optedOut {
		t.Fatal("cancel must clear the opt-out")
	}
}

func TestWebhookRejectsMissingOperator(t *testing.T) {
	fixture := setupRouter(t)

	rec := doRaw(t, fixture.router, http.MethodPost, "/webhook/event", `{"type": "message", "text": "hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestWebhookSuppressesRedelivery(t *testing.T) {
	fixture := setupRouter(t)

	payload := `{
		"eventId": "ev-9",
		"type": "card_action",
		"operatorId": "u9",
		"action": "register_no_eat",
		"mealType": "lunch",
		"date": "2025-09-17"
	}`
	first := doRaw(t, fixture.router, http.MethodPost, "/webhook/event", payload)
	if first.Code != http.StatusOK {
		t.Fatalf("first delivery: %d %s", first.Code, first.Body.String())
	}

	second := doRaw(t, fixture.router, http.MethodPost, "/webhook/event", payload)
	if second.Code != http.StatusOK {
		t.Fatalf("redelivery must still be acknowledged: %d", second.Code)
	}
	if !bytes.Contains(second.Body.Bytes(), []byte(`"duplicate":true`)) {
		t.Fatalf("redelivery should be flagged duplicate: %s", second.Body.String())
	}
}

func TestWebhookRedeliveryAppliesAfterStorageFailure(t *testing.T) {
	fixture := setupRouter(t)
	ctx := context.Background()

	// A ledger document that is valid JSON but not an array makes every
	// ledger read fail with a storage error.
	if err := fixture.store.WriteRaw(ctx, regdomain.CollectionLedger, []byte(`{"not":"an array"}`)); err != nil {
		t.Fatalf("corrupt ledger: %v", err)
	}

	payload := `{
		"eventId": "ev-20",
		"type": "card_action",
		"operatorId": "u20",
		"action": "register_no_eat",
		"mealType": "lunch",
		"date": "2025-09-17"
	}`
	first := doRaw(t, fixture.router, http.MethodPost, "/webhook/event", payload)
	if first.Code != http.StatusInternalServerError {
		t.Fatalf("expected the failed write to surface, got %d: %s", first.Code, first.Body.String())
	}

	if err := fixture.store.WriteRaw(ctx, regdomain.CollectionLedger, []byte(`[]`)); err != nil {
		t.Fatalf("repair ledger: %v", err)
	}

	// The failed event was never journaled, so the redelivery must apply
	// the action instead of being acknowledged as a duplicate.
	second := doRaw(t, fixture.router, http.MethodPost, "/webhook/event", payload)
	if second.Code != http.StatusOK {
		t.Fatalf("redelivery: %d %s", second.Code, second.Body.String())
	}
	if !bytes.Contains(second.Body.Bytes(), []byte(`"handled":true`)) {
		t.Fatalf("redelivery of a failed event must be handled, got: %s", second.Body.String())
	}

	key := meal.Key{UserID: "u20", Date: "2025-09-17", Meal: meal.Lunch}
	optedOut, err := fixture.optSvc.Exists(ctx, key)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !optedOut {
		t.Fatal("redelivered action must land in the opt-out index")
	}

	ledger, err := recordstore.Read[regdomain.RegistrationRecord](ctx, fixture.store, regdomain.CollectionLedger)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if len(ledger) != 1 || !ledger[0].IsNoEat() {
		t.Fatalf("redelivered action must land in the ledger, got %+v", ledger)
	}
}
