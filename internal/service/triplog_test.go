package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/fleettrack/internal/api/backend"
	"github.com/langchou/fleettrack/internal/models"
	"github.com/langchou/fleettrack/internal/store"
)

func newTestTripLog(api *fakeBackend, st *fakeStore) *TripLogService {
	return NewTripLogService(testConfig(), zap.NewNop(), api, st)
}

func ticketFixture() *models.TripTicket {
	return &models.TripTicket{
		ID:          42,
		VehicleID:   7,
		Date:        "2026-08-30",
		Destination: "Baguio City",
		Purpose:     "Equipment delivery",
	}
}

func TestOpenDraft_SeedsFromTicket(t *testing.T) {
	api := &fakeBackend{
		ticket:   ticketFixture(),
		vehicles: []models.Vehicle{{ID: 7, FuelLevel: 35, EfficiencyKmPerL: 12}},
	}
	s := newTestTripLog(api, newFakeStore())

	draft, err := s.OpenDraft(context.Background(), 42)
	if err != nil {
		t.Fatalf("OpenDraft: %v", err)
	}
	if draft.TripTicketID != 42 || draft.VehicleID != 7 {
		t.Fatalf("draft not seeded from ticket: %+v", draft)
	}
	if draft.Destination != "Baguio City" {
		t.Fatalf("expected destination from ticket, got %q", draft.Destination)
	}
	if draft.FuelBalanceStart != 35 {
		t.Fatalf("expected fuel balance start from vehicle, got %f", draft.FuelBalanceStart)
	}
	if draft.IdempotencyKey == "" {
		t.Fatal("expected idempotency key to be assigned")
	}
	if draft.FuelTotal != 35 {
		t.Fatalf("expected fuel total computed, got %f", draft.FuelTotal)
	}
}

func TestOpenDraft_RefreshesFuelBalanceStart(t *testing.T) {
	api := &fakeBackend{
		ticket:   ticketFixture(),
		vehicles: []models.Vehicle{{ID: 7, FuelLevel: 28}},
	}
	st := newFakeStore()
	stale := models.TripLogDraft{
		TripTicketID:     42,
		VehicleID:        7,
		FuelBalanceStart: 99,
		IdempotencyKey:   "existing-key",
		Notes:            "kept",
	}
	if err := st.Set(store.DraftKey(42), stale); err != nil {
		t.Fatalf("seed stale draft: %v", err)
	}
	s := newTestTripLog(api, st)

	draft, err := s.OpenDraft(context.Background(), 42)
	if err != nil {
		t.Fatalf("OpenDraft: %v", err)
	}
	if draft.FuelBalanceStart != 28 {
		t.Fatalf("persisted fuel balance must be overwritten with fresh value, got %f", draft.FuelBalanceStart)
	}
	if draft.Notes != "kept" {
		t.Fatal("other persisted fields must survive reopen")
	}
	if draft.IdempotencyKey != "existing-key" {
		t.Fatalf("idempotency key must be stable across reopens, got %q", draft.IdempotencyKey)
	}
}

func TestUpdateDraft_RecomputesFuel(t *testing.T) {
	api := &fakeBackend{
		ticket:   ticketFixture(),
		vehicles: []models.Vehicle{{ID: 7, FuelLevel: 10}},
	}
	s := newTestTripLog(api, newFakeStore())
	if _, err := s.OpenDraft(context.Background(), 42); err != nil {
		t.Fatalf("OpenDraft: %v", err)
	}

	issued, purchased, used := 5.0, 2.0, 20.0
	draft, err := s.UpdateDraft(42, DraftPatch{
		FuelIssuedOffice:  &issued,
		FuelPurchasedTrip: &purchased,
		FuelUsed:          &used,
	})
	if err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}
	if draft.FuelTotal != 17 {
		t.Fatalf("expected fuel total 17, got %f", draft.FuelTotal)
	}
	if draft.FuelBalanceEnd != 0 {
		t.Fatalf("over-consumption must clamp balance to 0, got %f", draft.FuelBalanceEnd)
	}
}

func TestUpdateDraft_OdometerSyncAndEstimate(t *testing.T) {
	api := &fakeBackend{
		ticket:   ticketFixture(),
		vehicles: []models.Vehicle{{ID: 7, FuelLevel: 50, EfficiencyKmPerL: 12}},
	}
	s := newTestTripLog(api, newFakeStore())
	if _, err := s.OpenDraft(context.Background(), 42); err != nil {
		t.Fatalf("OpenDraft: %v", err)
	}

	start, end := 12000.0, 12100.0
	draft, err := s.UpdateDraft(42, DraftPatch{OdometerStart: &start, OdometerEnd: &end})
	if err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}
	if draft.SpeedometerStart != 12000 || draft.SpeedometerEnd != 12100 {
		t.Fatalf("speedometer must mirror odometer, got %f/%f", draft.SpeedometerStart, draft.SpeedometerEnd)
	}
	if draft.SpeedometerDistance != 100 {
		t.Fatalf("expected speedometer distance 100, got %f", draft.SpeedometerDistance)
	}
	// 100 km / 12 km/L，四舍五入到分位
	if draft.FuelUsed != 8.33 {
		t.Fatalf("expected estimated fuel used 8.33, got %f", draft.FuelUsed)
	}
}

func TestUpdateDraft_ManualFuelWinsOverEstimate(t *testing.T) {
	api := &fakeBackend{
		ticket:   ticketFixture(),
		vehicles: []models.Vehicle{{ID: 7, FuelLevel: 50}},
	}
	s := newTestTripLog(api, newFakeStore())
	if _, err := s.OpenDraft(context.Background(), 42); err != nil {
		t.Fatalf("OpenDraft: %v", err)
	}

	start, end, manual := 100.0, 200.0, 15.0
	draft, err := s.UpdateDraft(42, DraftPatch{
		OdometerStart: &start,
		OdometerEnd:   &end,
		FuelUsed:      &manual,
	})
	if err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}
	if draft.FuelUsed != 15 {
		t.Fatalf("manual fuel entry must not be overwritten, got %f", draft.FuelUsed)
	}
}

func TestUpdateDraft_DebouncedAutosave(t *testing.T) {
	api := &fakeBackend{
		ticket:   ticketFixture(),
		vehicles: []models.Vehicle{{ID: 7, FuelLevel: 10}},
	}
	st := newFakeStore()
	s := newTestTripLog(api, st)
	if _, err := s.OpenDraft(context.Background(), 42); err != nil {
		t.Fatalf("OpenDraft: %v", err)
	}

	notes := "autosaved"
	if _, err := s.UpdateDraft(42, DraftPatch{Notes: &notes}); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}

	waitFor(t, func() bool {
		var d models.TripLogDraft
		if err := st.Get(store.DraftKey(42), &d); err != nil {
			return false
		}
		return d.Notes == "autosaved"
	})
}

func TestSubmit_ValidationListsAllMissing(t *testing.T) {
	api := &fakeBackend{
		ticket:   ticketFixture(),
		vehicles: []models.Vehicle{{ID: 7, FuelLevel: 10}},
	}
	s := newTestTripLog(api, newFakeStore())
	if _, err := s.OpenDraft(context.Background(), 42); err != nil {
		t.Fatalf("OpenDraft: %v", err)
	}
	empty := ""
	if _, err := s.UpdateDraft(42, DraftPatch{Date: &empty}); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}

	_, err := s.Submit(context.Background(), 42, false)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := []string{"date", "office_departure", "destination_arrival", "fuel_used"}
	if len(verr.Missing) != len(want) {
		t.Fatalf("expected all missing fields reported at once, got %v", verr.Missing)
	}
	for i, f := range want {
		if verr.Missing[i] != f {
			t.Fatalf("expected missing[%d]=%s, got %v", i, f, verr.Missing)
		}
	}
	if len(api.created) != 0 {
		t.Fatal("submission must not reach backend on validation failure")
	}
}

func TestSubmit_CreatesWithIdempotencyKey(t *testing.T) {
	api := &fakeBackend{
		ticket:   ticketFixture(),
		vehicles: []models.Vehicle{{ID: 7, FuelLevel: 30}},
	}
	st := newFakeStore()
	s := newTestTripLog(api, st)
	draft, err := s.OpenDraft(context.Background(), 42)
	if err != nil {
		t.Fatalf("OpenDraft: %v", err)
	}

	dep, arr, used := "08:30 AM", "01:15 PM", 8.0
	if _, err := s.UpdateDraft(42, DraftPatch{
		OfficeDeparture:    &dep,
		DestinationArrival: &arr,
		FuelUsed:           &used,
	}); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}

	log, err := s.Submit(context.Background(), 42, false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if log.ID != 100 {
		t.Fatalf("unexpected log id %d", log.ID)
	}
	if len(api.createdKeys) != 1 || api.createdKeys[0] != draft.IdempotencyKey {
		t.Fatalf("expected create with draft idempotency key, got %v", api.createdKeys)
	}

	payload := api.created[0]
	if payload.OfficeDeparture != "08:30" || payload.DestinationArrival != "13:15" {
		t.Fatalf("times must be converted to 24h at the boundary, got %q/%q",
			payload.OfficeDeparture, payload.DestinationArrival)
	}

	// 未完成提交保留草稿，允许继续编辑
	if !st.has(store.DraftKey(42)) {
		t.Fatal("draft must survive a save-only submit")
	}
}

func TestSubmit_ConflictFallsBackToUpdate(t *testing.T) {
	api := &fakeBackend{
		ticket:    ticketFixture(),
		vehicles:  []models.Vehicle{{ID: 7, FuelLevel: 30}},
		createErr: &backend.ConflictError{ExistingID: 55},
	}
	s := newTestTripLog(api, newFakeStore())
	if _, err := s.OpenDraft(context.Background(), 42); err != nil {
		t.Fatalf("OpenDraft: %v", err)
	}

	dep, arr, used := "08:30 AM", "09:45 AM", 5.0
	if _, err := s.UpdateDraft(42, DraftPatch{
		OfficeDeparture:    &dep,
		DestinationArrival: &arr,
		FuelUsed:           &used,
	}); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}

	log, err := s.Submit(context.Background(), 42, false)
	if err != nil {
		t.Fatalf("conflict must fall back to update, got %v", err)
	}
	if log.ID != 55 {
		t.Fatalf("expected update of existing log 55, got %d", log.ID)
	}
	if api.updatedID != 55 || len(api.updated) != 1 {
		t.Fatalf("expected one update against log 55, got id=%d n=%d", api.updatedID, len(api.updated))
	}
}

func TestSubmit_CompleteReportsFuelAndClearsDraft(t *testing.T) {
	api := &fakeBackend{
		ticket:   ticketFixture(),
		vehicles: []models.Vehicle{{ID: 7, FuelLevel: 30}},
	}
	st := newFakeStore()
	s := newTestTripLog(api, st)
	if _, err := s.OpenDraft(context.Background(), 42); err != nil {
		t.Fatalf("OpenDraft: %v", err)
	}

	dep, arr, used := "08:30 AM", "09:45 AM", 6.5
	if _, err := s.UpdateDraft(42, DraftPatch{
		OfficeDeparture:    &dep,
		DestinationArrival: &arr,
		FuelUsed:           &used,
	}); err != nil {
		t.Fatalf("UpdateDraft: %v", err)
	}

	if _, err := s.Submit(context.Background(), 42, true); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if len(api.fuelReports) != 1 {
		t.Fatalf("expected fuel consumption reported once, got %d", len(api.fuelReports))
	}
	fc := api.fuelReports[0]
	if fc.LitersConsumed != 6.5 || fc.TripTicketID != 42 {
		t.Fatalf("unexpected fuel report %+v", fc)
	}
	if st.has(store.DraftKey(42)) {
		t.Fatal("draft must be cleared after completing submit")
	}

	// 等待可能在途的防抖定时器，确认不会把草稿写回来
	time.Sleep(3 * testConfig().AutosaveDebounce)
	if st.has(store.DraftKey(42)) {
		t.Fatal("debounced autosave must not resurrect a cleared draft")
	}
}
