package registration

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackas/internal/attendance"
	"trackas/internal/geo"
)

type fakeStore struct {
	mu        sync.Mutex
	classes   map[string]attendance.Class
	records   []attendance.Record
	updates   int
	inserts   int
	updateErr error
	findErr   error
}

func newFakeStore(classes ...attendance.Class) *fakeStore {
	f := &fakeStore{classes: map[string]attendance.Class{}}
	for _, c := range classes {
		f.classes[c.ID] = c
	}
	return f
}

func (f *fakeStore) GetClass(_ context.Context, id string) (*attendance.Class, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.classes[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeStore) UpdateClassCoordinates(_ context.Context, id string, lat, lng float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return f.updateErr
	}
	c := f.classes[id]
	c.Latitude, c.Longitude = &lat, &lng
	f.classes[id] = c
	return nil
}

func (f *fakeStore) FindRecord(_ context.Context, classID, matricNo string) (*attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, r := range f.records {
		if r.ClassID == classID && r.MatricNo == matricNo {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) InsertRecord(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	for _, r := range f.records {
		if r.ClassID == rec.ClassID && r.MatricNo == rec.MatricNo {
			return attendance.Record{}, attendance.ErrDuplicate
		}
	}
	rec.ID = "rec-1"
	f.records = append(f.records, rec)
	return rec, nil
}

type fakeResolver struct {
	mu    sync.Mutex
	coord geo.Coordinate
	ok    bool
	calls int
	// gate, when set, blocks Resolve until closed.
	gate chan struct{}
}

func (r *fakeResolver) Resolve(ctx context.Context, _ string) (geo.Coordinate, bool) {
	r.mu.Lock()
	r.calls++
	gate := r.gate
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return r.coord, r.ok
}

func (r *fakeResolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func float(v float64) *float64 { return &v }

func classAt(id string, lat, lng *float64) attendance.Class {
	return attendance.Class{
		ID:           id,
		LecturerID:   "lect-1",
		CourseTitle:  "Data Structures",
		CourseCode:   "CSC201",
		LocationName: "Main Auditorium",
		Latitude:     lat,
		Longitude:    lng,
	}
}

func newWorkflow(store Store, resolver Resolver, threshold float64) *Workflow {
	return NewWorkflow(store, resolver, threshold, nil, zerolog.Nop())
}

func TestInvalidVenueIsResolvedAndWrittenBackOnce(t *testing.T) {
	store := newFakeStore(classAt("c1", float(91), float(200)))
	resolver := &fakeResolver{coord: geo.Coordinate{Lat: 6.5, Lng: 3.4}, ok: true}
	wf := newWorkflow(store, resolver, 0)

	s, err := wf.Start(context.Background(), "c1")
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, StateAwaitingPosition, snap.State)
	require.NotNil(t, snap.Venue)
	assert.Equal(t, geo.Coordinate{Lat: 6.5, Lng: 3.4}, *snap.Venue)
	assert.True(t, snap.VenueResolved)
	assert.False(t, snap.CheckDisabled)
	assert.Equal(t, 1, store.updates)
	assert.Equal(t, 1, resolver.Calls())

	// The stored coordinate is now valid so no further lookups happen.
	_, err = wf.Start(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.Calls())
	assert.Equal(t, 1, store.updates)
}

func TestFailedWriteBackKeepsResolvedVenue(t *testing.T) {
	store := newFakeStore(classAt("c1", nil, nil))
	store.updateErr = errors.New("db down")
	resolver := &fakeResolver{coord: geo.Coordinate{Lat: 6.5, Lng: 3.4}, ok: true}

	s, err := newWorkflow(store, resolver, 0).Start(context.Background(), "c1")
	require.NoError(t, err)

	snap := s.Snapshot()
	require.NotNil(t, snap.Venue)
	assert.Equal(t, 6.5, snap.Venue.Lat)
	assert.Equal(t, 1, store.updates)
}

func TestUnresolvableVenueDisablesCheck(t *testing.T) {
	store := newFakeStore(classAt("c1", nil, nil))
	wf := newWorkflow(store, &fakeResolver{}, 0)

	s, err := wf.Start(context.Background(), "c1")
	require.NoError(t, err)

	snap, err := s.UpdatePosition(Available(geo.Coordinate{Lat: 6.5, Lng: 3.4}))
	require.NoError(t, err)
	assert.True(t, snap.CheckDisabled)
	assert.Nil(t, snap.DistanceMeters)
	assert.Contains(t, snap.Notice, "Distance check is disabled")

	_, err = s.Submit(context.Background(), "Ada Obi", "csc/001")
	assert.ErrorIs(t, err, ErrDistanceCheckDisabled)
	assert.Zero(t, store.inserts)
	assert.Zero(t, store.updates)
}

func TestSubmitAtBoundaryThenDuplicate(t *testing.T) {
	venue := geo.Coordinate{Lat: 6.5, Lng: 3.4}
	live := geo.Coordinate{Lat: 6.6, Lng: 3.4}
	threshold := geo.DistanceMeters(live, venue)

	store := newFakeStore(classAt("c1", float(venue.Lat), float(venue.Lng)))
	wf := newWorkflow(store, nil, threshold)

	s, err := wf.Start(context.Background(), "c1")
	require.NoError(t, err)
	snap, err := s.UpdatePosition(Available(live))
	require.NoError(t, err)
	assert.True(t, snap.WithinRange)
	assert.Empty(t, snap.Notice)

	rec, err := s.Submit(context.Background(), "  ada   obi ", " csc/001 ")
	require.NoError(t, err)
	assert.Equal(t, "ADA OBI", rec.StudentName)
	assert.Equal(t, "CSC/001", rec.MatricNo)
	require.NotNil(t, rec.Distance)
	assert.InDelta(t, threshold, *rec.Distance, 1e-9)
	assert.True(t, rec.Status)
	assert.Equal(t, StateSubmitted, s.Snapshot().State)

	// A second attempt through a new session is rejected before insert.
	s2, err := wf.Start(context.Background(), "c1")
	require.NoError(t, err)
	_, err = s2.UpdatePosition(Available(live))
	require.NoError(t, err)
	_, err = s2.Submit(context.Background(), "Ada Obi", "CSC/001")
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, StateRejected, s2.Snapshot().State)
	assert.Equal(t, 1, store.inserts)
}

func TestOutOfRangeIsBlocked(t *testing.T) {
	store := newFakeStore(classAt("c1", float(6.5), float(3.4)))
	s, err := newWorkflow(store, nil, 1000).Start(context.Background(), "c1")
	require.NoError(t, err)

	snap, err := s.UpdatePosition(Available(geo.Coordinate{Lat: 7.5, Lng: 3.4}))
	require.NoError(t, err)
	assert.False(t, snap.WithinRange)
	require.NotNil(t, snap.DistanceMeters)
	assert.Equal(t, "You are not within range of the lecture venue (1.00 km).", snap.Notice)

	_, err = s.Submit(context.Background(), "Ada", "CSC/001")
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Zero(t, store.inserts)
}

func TestDeniedPositionBlocksSubmission(t *testing.T) {
	store := newFakeStore(classAt("c1", float(6.5), float(3.4)))
	s, err := newWorkflow(store, nil, 0).Start(context.Background(), "c1")
	require.NoError(t, err)

	snap, err := s.UpdatePosition(Denied())
	require.NoError(t, err)
	assert.True(t, snap.LocationUnavailable)
	assert.Equal(t, PositionDenied, snap.Position)
	assert.False(t, snap.WithinRange)
	assert.Contains(t, snap.Notice, "Location unavailable")

	_, err = s.Submit(context.Background(), "Ada", "CSC/001")
	assert.ErrorIs(t, err, ErrLocationUnavailable)

	// A later fix recovers the session.
	snap, err = s.UpdatePosition(Available(geo.Coordinate{Lat: 6.5, Lng: 3.4}))
	require.NoError(t, err)
	assert.True(t, snap.WithinRange)
	assert.False(t, snap.LocationUnavailable)
}

func TestSubmitWithoutPosition(t *testing.T) {
	store := newFakeStore(classAt("c1", float(6.5), float(3.4)))
	s, err := newWorkflow(store, nil, 0).Start(context.Background(), "c1")
	require.NoError(t, err)
	snap := s.Snapshot()
	assert.Equal(t, PositionUnknown, snap.Position)
	assert.Equal(t, StateAwaitingPosition, snap.State)
	assert.Contains(t, snap.Notice, "Eligibility cannot be verified")

	_, err = s.Submit(context.Background(), "Ada", "CSC/001")
	assert.ErrorIs(t, err, ErrPositionUnknown)
	assert.NotErrorIs(t, err, ErrOutOfRange)
	assert.Zero(t, store.inserts)
}

func TestMissingFields(t *testing.T) {
	store := newFakeStore(classAt("c1", float(6.5), float(3.4)))
	s, err := newWorkflow(store, nil, 0).Start(context.Background(), "c1")
	require.NoError(t, err)
	_, err = s.UpdatePosition(Available(geo.Coordinate{Lat: 6.5, Lng: 3.4}))
	require.NoError(t, err)

	for _, tc := range []struct{ name, matric string }{
		{"", "CSC/001"},
		{"Ada", "   "},
	} {
		_, err := s.Submit(context.Background(), tc.name, tc.matric)
		assert.ErrorIs(t, err, ErrMissingFields)
	}
	assert.Zero(t, store.inserts)
}

func TestStorageFailureAllowsRetry(t *testing.T) {
	store := newFakeStore(classAt("c1", float(6.5), float(3.4)))
	store.findErr = errors.New("connection reset")
	s, err := newWorkflow(store, nil, 0).Start(context.Background(), "c1")
	require.NoError(t, err)
	_, err = s.UpdatePosition(Available(geo.Coordinate{Lat: 6.5, Lng: 3.4}))
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), "Ada", "CSC/001")
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, StateEvaluated, s.Snapshot().State)

	store.mu.Lock()
	store.findErr = nil
	store.mu.Unlock()
	_, err = s.Submit(context.Background(), "Ada", "CSC/001")
	require.NoError(t, err)
	assert.Equal(t, StateSubmitted, s.Snapshot().State)
}

func TestUnknownClass(t *testing.T) {
	_, err := newWorkflow(newFakeStore(), nil, 0).Start(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrClassNotFound)
}

func TestCloseDuringLoadSkipsWriteBack(t *testing.T) {
	store := newFakeStore(classAt("c1", nil, nil))
	resolver := &fakeResolver{coord: geo.Coordinate{Lat: 6.5, Lng: 3.4}, ok: true, gate: make(chan struct{})}
	s := newWorkflow(store, resolver, 0).NewSession("c1")

	done := make(chan error, 1)
	go func() { done <- s.Load(context.Background()) }()

	require.Eventually(t, func() bool { return resolver.Calls() == 1 }, time.Second, 5*time.Millisecond)
	s.Close()
	close(resolver.gate)

	assert.ErrorIs(t, <-done, ErrSessionClosed)
	assert.Zero(t, store.updates)
	assert.Equal(t, StateLoading, s.Snapshot().State)

	_, err := s.UpdatePosition(Available(geo.Coordinate{Lat: 6.5, Lng: 3.4}))
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestUpdateBeforeLoad(t *testing.T) {
	s := newWorkflow(newFakeStore(), nil, 0).NewSession("c1")
	_, err := s.UpdatePosition(Denied())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSessionsRegistry(t *testing.T) {
	store := newFakeStore(classAt("c1", float(6.5), float(3.4)))
	wf := newWorkflow(store, nil, 0)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	wf.now = func() time.Time { return now }
	reg := NewSessions(wf, time.Minute)

	s, err := reg.Create(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())

	got, err := reg.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = reg.Create(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrClassNotFound)
	assert.Equal(t, 1, reg.Len())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, reg.Sweep())
	assert.True(t, s.Closed())
	_, err = reg.Get(s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionsRunClosesOnShutdown(t *testing.T) {
	store := newFakeStore(classAt("c1", float(6.5), float(3.4)))
	reg := NewSessions(newWorkflow(store, nil, 0), time.Minute)
	s, err := reg.Create(context.Background(), "c1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { reg.Run(ctx); close(done) }()
	cancel()
	<-done

	assert.True(t, s.Closed())
	assert.Zero(t, reg.Len())
}

func TestAntipodalPositionEncodes(t *testing.T) {
	store := newFakeStore(classAt("c1", float(18.8389), float(158.5833)))
	s, err := newWorkflow(store, nil, 0).Start(context.Background(), "c1")
	require.NoError(t, err)

	snap, err := s.UpdatePosition(Available(geo.Coordinate{Lat: -18.8389, Lng: -21.4167}))
	require.NoError(t, err)
	require.NotNil(t, snap.DistanceMeters)
	assert.False(t, math.IsNaN(*snap.DistanceMeters))
	assert.False(t, snap.WithinRange)
	assert.NotContains(t, snap.DistanceDisplay, "NaN")

	_, err = json.Marshal(snap)
	assert.NoError(t, err)
}
