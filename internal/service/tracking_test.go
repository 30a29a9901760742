package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/fleettrack/internal/api/backend"
	"github.com/langchou/fleettrack/internal/config"
	"github.com/langchou/fleettrack/internal/location"
	"github.com/langchou/fleettrack/internal/models"
	"github.com/langchou/fleettrack/internal/state"
	"github.com/langchou/fleettrack/internal/store"
)

// ---- 测试替身 ----

type fakeBackend struct {
	mu sync.Mutex

	startCalls    int
	completeCalls int
	pings         []backend.LocationPing

	ticket      *models.TripTicket
	vehicles    []models.Vehicle
	trips       []models.TripRecord
	startErr    error
	completeErr error

	createErr   error
	createdKeys []string
	created     []backend.TripLogPayload
	updatedID   int64
	updated     []backend.TripLogPayload
	fuelReports []backend.FuelConsumption
}

func (f *fakeBackend) DriverVehicles(ctx context.Context) ([]models.Vehicle, error) {
	return f.vehicles, nil
}

func (f *fakeBackend) FuelRecords(ctx context.Context) ([]models.FuelRecord, error) {
	return nil, nil
}

func (f *fakeBackend) Trips(ctx context.Context) ([]models.TripRecord, error) {
	return f.trips, nil
}

func (f *fakeBackend) ActiveTrip(ctx context.Context) (*models.TripTicket, error) {
	return nil, backend.ErrNotFound
}

func (f *fakeBackend) TripTicket(ctx context.Context, id int64) (*models.TripTicket, error) {
	if f.ticket == nil {
		return nil, backend.ErrNotFound
	}
	return f.ticket, nil
}

func (f *fakeBackend) StartTrip(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	return f.startErr
}

func (f *fakeBackend) CompleteTrip(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	return f.completeErr
}

func (f *fakeBackend) UpdateLocation(ctx context.Context, ping backend.LocationPing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings = append(f.pings, ping)
	return nil
}

func (f *fakeBackend) CreateTripLog(ctx context.Context, payload backend.TripLogPayload, key string) (*backend.TripLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, payload)
	f.createdKeys = append(f.createdKeys, key)
	return &backend.TripLog{ID: 100, TripTicketID: payload.TripTicketID}, nil
}

func (f *fakeBackend) UpdateTripLog(ctx context.Context, id int64, payload backend.TripLogPayload) (*backend.TripLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedID = id
	f.updated = append(f.updated, payload)
	return &backend.TripLog{ID: id, TripTicketID: payload.TripTicketID}, nil
}

func (f *fakeBackend) UpdateFuelConsumption(ctx context.Context, vehicleID int64, fc backend.FuelConsumption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fuelReports = append(f.fuelReports, fc)
	return nil
}

func (f *fakeBackend) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pings)
}

type fakeStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (f *fakeStore) Get(key string, v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.data[key]
	if !ok {
		return store.ErrNotFound
	}
	return json.Unmarshal(raw, v)
}

func (f *fakeStore) Set(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = raw
	return nil
}

func (f *fakeStore) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

type fakeSub struct {
	ch chan models.LocationSample
}

func (f *fakeSub) Updates() <-chan models.LocationSample { return f.ch }
func (f *fakeSub) Stop()                                 {}

type fakeLocation struct {
	mu         sync.Mutex
	foreground bool
	background bool
	fix        *models.LocationSample
	fixErr     error
	sub        *fakeSub
}

func (f *fakeLocation) HasPermission(kind location.PermissionKind) bool {
	if kind == location.PermissionForeground {
		return f.foreground
	}
	return f.background
}

func (f *fakeLocation) CurrentPosition(ctx context.Context) (*models.LocationSample, error) {
	if f.fixErr != nil {
		return nil, f.fixErr
	}
	return f.fix, nil
}

func (f *fakeLocation) LastKnown() *models.LocationSample {
	return f.fix
}

func (f *fakeLocation) Subscribe(ctx context.Context, policy location.SamplingPolicy) (location.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sub = &fakeSub{ch: make(chan models.LocationSample, 16)}
	return f.sub, nil
}

func (f *fakeLocation) emit(sample models.LocationSample) {
	f.mu.Lock()
	sub := f.sub
	f.mu.Unlock()
	sub.ch <- sample
}

func testConfig() *config.Config {
	return &config.Config{
		FixTimeout:         time.Second,
		SampleMinInterval:  0,
		SampleMinDistanceM: 0,
		GeocodeInterval:    time.Hour,
		BackgroundInterval: time.Hour,
		AutosaveDebounce:   10 * time.Millisecond,
		FuelEfficiency:     10,
	}
}

func newTestTracking(api *fakeBackend, prov *fakeLocation, st *fakeStore) *TrackingService {
	logger := zap.NewNop()
	stream := location.NewStream(prov, logger)
	return NewTrackingService(testConfig(), logger, api, nil, st, prov, stream, nil)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

// ---- 用例 ----

func TestRequestStart_Lifecycle(t *testing.T) {
	api := &fakeBackend{}
	prov := &fakeLocation{
		foreground: true,
		fix:        &models.LocationSample{Lat: 14.5995, Lng: 120.9842, Timestamp: time.Now()},
	}
	st := newFakeStore()
	s := newTestTracking(api, prov, st)
	defer s.Shutdown()

	if err := s.RequestStart(context.Background(), 42); err != nil {
		t.Fatalf("RequestStart: %v", err)
	}

	snap := s.Status()
	if snap.Status != state.StateActive {
		t.Fatalf("expected active, got %s", snap.Status)
	}
	if snap.TripID != 42 {
		t.Fatalf("expected trip 42, got %d", snap.TripID)
	}
	if len(snap.Route) != 1 {
		t.Fatalf("expected route seeded with initial fix, got %d points", len(snap.Route))
	}
	if api.startCalls != 1 {
		t.Fatalf("expected 1 StartTrip call, got %d", api.startCalls)
	}
	if !st.has(store.KeyActiveTripMarker) {
		t.Fatal("expected active trip marker to be persisted")
	}
}

func TestRequestStart_DuplicateCollapsed(t *testing.T) {
	api := &fakeBackend{}
	prov := &fakeLocation{foreground: true, fix: &models.LocationSample{Lat: 1, Lng: 2}}
	s := newTestTracking(api, prov, newFakeStore())
	defer s.Shutdown()

	if err := s.RequestStart(context.Background(), 42); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := s.RequestStart(context.Background(), 42); err != nil {
		t.Fatalf("duplicate start should be a no-op, got %v", err)
	}
	if api.startCalls != 1 {
		t.Fatalf("expected 1 StartTrip call, got %d", api.startCalls)
	}
}

func TestRequestStart_OtherTripRejected(t *testing.T) {
	api := &fakeBackend{}
	prov := &fakeLocation{foreground: true, fix: &models.LocationSample{Lat: 1, Lng: 2}}
	s := newTestTracking(api, prov, newFakeStore())
	defer s.Shutdown()

	if err := s.RequestStart(context.Background(), 42); err != nil {
		t.Fatalf("first start: %v", err)
	}
	err := s.RequestStart(context.Background(), 43)
	if !errors.Is(err, ErrTripInProgress) {
		t.Fatalf("expected ErrTripInProgress, got %v", err)
	}
}

func TestRequestStart_BackendFailureEntersError(t *testing.T) {
	api := &fakeBackend{startErr: backend.ErrNetwork}
	prov := &fakeLocation{foreground: true, fix: &models.LocationSample{Lat: 1, Lng: 2}}
	s := newTestTracking(api, prov, newFakeStore())

	err := s.RequestStart(context.Background(), 42)
	if !errors.Is(err, backend.ErrNetwork) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if got := s.Status().Status; got != state.StateError {
		t.Fatalf("expected error state, got %s", got)
	}

	// error 状态允许重试
	api.startErr = nil
	if err := s.RequestStart(context.Background(), 42); err != nil {
		t.Fatalf("retry after error: %v", err)
	}
	defer s.Shutdown()
	if got := s.Status().Status; got != state.StateActive {
		t.Fatalf("expected active after retry, got %s", got)
	}
}

func TestRequestStart_NoFixEntersError(t *testing.T) {
	api := &fakeBackend{}
	prov := &fakeLocation{foreground: true, fixErr: location.ErrProviderUnavailable}
	s := newTestTracking(api, prov, newFakeStore())

	err := s.RequestStart(context.Background(), 42)
	if !errors.Is(err, location.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if got := s.Status().Status; got != state.StateError {
		t.Fatalf("expected error state, got %s", got)
	}
}

func TestRequestStart_PermissionDenied(t *testing.T) {
	api := &fakeBackend{}
	prov := &fakeLocation{foreground: false}
	s := newTestTracking(api, prov, newFakeStore())

	err := s.RequestStart(context.Background(), 42)
	if !errors.Is(err, location.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestSamplesExtendRouteAndPushToBackend(t *testing.T) {
	api := &fakeBackend{}
	prov := &fakeLocation{foreground: true, fix: &models.LocationSample{Lat: 14.5995, Lng: 120.9842}}
	s := newTestTracking(api, prov, newFakeStore())
	defer s.Shutdown()

	if err := s.RequestStart(context.Background(), 42); err != nil {
		t.Fatalf("RequestStart: %v", err)
	}

	prov.emit(models.LocationSample{Lat: 14.6042, Lng: 120.9822, Timestamp: time.Now()})
	prov.emit(models.LocationSample{Lat: 14.6091, Lng: 120.9799, Timestamp: time.Now()})

	waitFor(t, func() bool { return len(s.Status().Route) == 3 })
	waitFor(t, func() bool { return api.pingCount() == 2 })

	snap := s.Status()
	if snap.DistanceKm <= 0 {
		t.Fatalf("expected positive distance, got %f", snap.DistanceKm)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	for _, p := range api.pings {
		if p.TripTicketID != 42 {
			t.Fatalf("ping attributed to wrong trip: %d", p.TripTicketID)
		}
	}
}

func TestLateSampleDiscardedAfterStop(t *testing.T) {
	api := &fakeBackend{}
	prov := &fakeLocation{foreground: true, fix: &models.LocationSample{Lat: 1, Lng: 2}}
	s := newTestTracking(api, prov, newFakeStore())

	if err := s.RequestStart(context.Background(), 42); err != nil {
		t.Fatalf("RequestStart: %v", err)
	}
	if err := s.RequestStop(); err != nil {
		t.Fatalf("RequestStop: %v", err)
	}

	before := api.pingCount()
	s.pushLocation(42, models.LocationSample{Lat: 3, Lng: 4, Timestamp: time.Now()})
	if got := api.pingCount(); got != before {
		t.Fatalf("late ping should be discarded, pings went %d -> %d", before, got)
	}
}

func TestRequestStop_Idempotent(t *testing.T) {
	api := &fakeBackend{}
	prov := &fakeLocation{foreground: true, fix: &models.LocationSample{Lat: 1, Lng: 2}}
	st := newFakeStore()
	s := newTestTracking(api, prov, st)

	if err := s.RequestStart(context.Background(), 42); err != nil {
		t.Fatalf("RequestStart: %v", err)
	}
	if err := s.RequestStop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := s.RequestStop(); err != nil {
		t.Fatalf("second stop should be a no-op, got %v", err)
	}

	snap := s.Status()
	if snap.Status != state.StateStopped {
		t.Fatalf("expected stopped, got %s", snap.Status)
	}
	if len(snap.Route) != 0 {
		t.Fatalf("expected route cleared, got %d points", len(snap.Route))
	}
	if st.has(store.KeyActiveTripMarker) {
		t.Fatal("expected active trip marker to be deleted")
	}
}

func TestCompleteTrip_RequiresTripLog(t *testing.T) {
	api := &fakeBackend{ticket: &models.TripTicket{ID: 42, VehicleID: 7}}
	prov := &fakeLocation{foreground: true, fix: &models.LocationSample{Lat: 1, Lng: 2}}
	s := newTestTracking(api, prov, newFakeStore())
	defer s.Shutdown()

	if err := s.RequestStart(context.Background(), 42); err != nil {
		t.Fatalf("RequestStart: %v", err)
	}

	err := s.CompleteTrip(context.Background(), 42)
	if !errors.Is(err, ErrTripLogRequired) {
		t.Fatalf("expected ErrTripLogRequired, got %v", err)
	}
	if api.completeCalls != 0 {
		t.Fatalf("CompleteTrip must not reach backend without a trip log, got %d calls", api.completeCalls)
	}
	if got := s.Status().Status; got != state.StateActive {
		t.Fatalf("tracking should keep running, got %s", got)
	}
}

func TestCompleteTrip_StopsSession(t *testing.T) {
	logID := int64(9)
	api := &fakeBackend{ticket: &models.TripTicket{ID: 42, VehicleID: 7, TripLogID: &logID}}
	prov := &fakeLocation{foreground: true, fix: &models.LocationSample{Lat: 1, Lng: 2}}
	st := newFakeStore()
	s := newTestTracking(api, prov, st)

	if err := s.RequestStart(context.Background(), 42); err != nil {
		t.Fatalf("RequestStart: %v", err)
	}
	if err := s.CompleteTrip(context.Background(), 42); err != nil {
		t.Fatalf("CompleteTrip: %v", err)
	}

	if api.completeCalls != 1 {
		t.Fatalf("expected 1 CompleteTrip call, got %d", api.completeCalls)
	}
	if got := s.Status().Status; got != state.StateStopped {
		t.Fatalf("expected stopped, got %s", got)
	}
	if st.has(store.KeyActiveTripMarker) {
		t.Fatal("expected marker cleared after completion")
	}
}

func TestReconcileOnResume_AdoptsOrphanedTrip(t *testing.T) {
	api := &fakeBackend{}
	prov := &fakeLocation{foreground: true, fix: &models.LocationSample{Lat: 1, Lng: 2}}
	st := newFakeStore()
	if err := st.Set(store.KeyActiveTripMarker, models.ActiveTripMarker{
		TripID:    42,
		StartedAt: time.Now().Add(-10 * time.Minute),
		UpdatedAt: time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("seed marker: %v", err)
	}

	s := newTestTracking(api, prov, st)
	defer s.Shutdown()

	s.ReconcileOnResume(context.Background())

	snap := s.Status()
	if snap.Status != state.StateActive {
		t.Fatalf("expected orphaned trip resumed into active, got %s", snap.Status)
	}
	if snap.TripID != 42 {
		t.Fatalf("expected trip 42, got %d", snap.TripID)
	}
	// 后端早已处于 in_progress，恢复时不得重复调用 start
	if api.startCalls != 0 {
		t.Fatalf("resume must not call StartTrip, got %d calls", api.startCalls)
	}
}

func TestReconcileOnResume_NoopWhenClean(t *testing.T) {
	api := &fakeBackend{}
	prov := &fakeLocation{foreground: true}
	s := newTestTracking(api, prov, newFakeStore())

	s.ReconcileOnResume(context.Background())

	if got := s.Status().Status; got != state.StateStopped {
		t.Fatalf("expected stopped, got %s", got)
	}
}
