package application

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/cart-scheduler/internal/persistence"
)

type meetingPointRepoStub struct {
	points    map[string]MeetingPoint
	people    map[string]Person
	createErr error
	batches   [][]MeetingPoint
}

func newMeetingPointRepoStub() *meetingPointRepoStub {
	return &meetingPointRepoStub{points: make(map[string]MeetingPoint), people: make(map[string]Person)}
}

func (r *meetingPointRepoStub) resolve(p MeetingPoint) MeetingPoint {
	p.Conductor = nil
	if p.ConductorID != nil {
		if person, ok := r.people[*p.ConductorID]; ok {
			p.Conductor = &person
		}
	}
	return p
}

func (r *meetingPointRepoStub) CreateMeetingPoints(_ context.Context, points []MeetingPoint) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.batches = append(r.batches, points)
	for _, p := range points {
		r.points[p.ID] = p
	}
	return nil
}

func (r *meetingPointRepoStub) UpdateMeetingPoint(_ context.Context, point MeetingPoint) error {
	if _, ok := r.points[point.ID]; !ok {
		return persistence.ErrNotFound
	}
	r.points[point.ID] = point
	return nil
}

func (r *meetingPointRepoStub) GetMeetingPoint(_ context.Context, id string) (MeetingPoint, error) {
	p, ok := r.points[id]
	if !ok {
		return MeetingPoint{}, persistence.ErrNotFound
	}
	return r.resolve(p), nil
}

func (r *meetingPointRepoStub) ListMeetingPointsByMonth(_ context.Context, month string) ([]MeetingPoint, error) {
	var out []MeetingPoint
	for _, p := range r.points {
		if p.Month == month {
			out = append(out, r.resolve(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (r *meetingPointRepoStub) DeleteMeetingPoint(_ context.Context, id string) error {
	if _, ok := r.points[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(r.points, id)
	return nil
}

func (r *meetingPointRepoStub) DeleteSeries(_ context.Context, seriesID string) (int, error) {
	n := 0
	for id, p := range r.points {
		if p.SeriesID != nil && *p.SeriesID == seriesID {
			delete(r.points, id)
			n++
		}
	}
	return n, nil
}

type rendererStub struct {
	month  string
	points []MeetingPoint
	err    error
}

func (r *rendererStub) RenderMonth(month string, points []MeetingPoint) ([]byte, error) {
	r.month, r.points = month, points
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF"), nil
}

func (r *rendererStub) ContentType() string          { return "application/pdf" }
func (r *rendererStub) Filename(month string) string { return "export_" + month + ".pdf" }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

func newMeetingPointFixture() (*MeetingPointService, *meetingPointRepoStub) {
	repo := newMeetingPointRepoStub()
	repo.people["conductor"] = Person{ID: "conductor", FirstName: "Carla", LastName: "Ruiz"}
	users := userDirectoryStub{known: map[string]bool{"conductor": true}}
	n := 0
	ids := func() string {
		n++
		return "mp-" + strconv.Itoa(n)
	}
	now := time.Date(2026, time.January, 10, 8, 0, 0, 0, time.UTC)
	return NewMeetingPointService(repo, users, ids, func() time.Time { return now }), repo
}

var (
	planner   = Principal{UserID: "planner", Roles: NewRoleSet(RolePublisher, RoleFieldServicePlanner)}
	publisher = Principal{UserID: "publisher", Roles: NewRoleSet(RolePublisher)}
)

func TestMeetingPointService_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("requires planner role", func(t *testing.T) {
		t.Parallel()
		svc, _ := newMeetingPointFixture()
		_, err := svc.Create(ctx, publisher, MeetingPointInput{Date: date(2026, 1, 12), Time: "10:00", Location: "Plaza"})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("derives month and resolves conductor", func(t *testing.T) {
		t.Parallel()
		svc, repo := newMeetingPointFixture()

		got, err := svc.Create(ctx, planner, MeetingPointInput{
			Date:        time.Date(2026, 2, 3, 18, 30, 0, 0, time.UTC),
			Time:        "09:30:00",
			Location:    "  Salón  ",
			ConductorID: strPtr("conductor"),
			Outline:     strPtr("   "),
		})
		require.NoError(t, err)
		assert.Equal(t, "2026-02", got.Month)
		assert.True(t, got.Date.Equal(date(2026, 2, 3)))
		assert.Equal(t, "09:30", got.Time)
		assert.Equal(t, "Salón", got.Location)
		assert.Nil(t, got.Outline)
		require.NotNil(t, got.Conductor)
		assert.Equal(t, "Carla Ruiz", got.Conductor.DisplayName())
		assert.Nil(t, repo.points[got.ID].SeriesID)
	})

	t.Run("validates attributes", func(t *testing.T) {
		t.Parallel()
		svc, _ := newMeetingPointFixture()

		_, err := svc.Create(ctx, planner, MeetingPointInput{Date: date(2026, 1, 12), Time: "25:00", Location: ""})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "time")
		assert.Contains(t, vErr.FieldErrors, "location")

		_, err = svc.Create(ctx, planner, MeetingPointInput{Date: date(2026, 1, 12), Time: "10:00", Location: "Plaza", ConductorID: strPtr("ghost")})
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "conductor_id")
	})
}

func TestMeetingPointService_CreateSeries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("weekly series shares one series id", func(t *testing.T) {
		t.Parallel()
		svc, repo := newMeetingPointFixture()

		points, err := svc.CreateSeries(ctx, planner, MeetingPointSeriesInput{
			StartDate:   date(2026, 1, 5),
			EndDate:     date(2026, 1, 26),
			Frequency:   "weekly",
			Time:        "10:00",
			Location:    "Plaza",
			ConductorID: strPtr("conductor"),
		})
		require.NoError(t, err)
		require.Len(t, points, 4)
		require.Len(t, repo.batches, 1, "series must be stored in one batch")

		seriesID := *points[0].SeriesID
		for i, p := range points {
			assert.Equal(t, seriesID, *p.SeriesID)
			assert.True(t, p.Date.Equal(date(2026, 1, 5+7*i)))
			assert.Equal(t, "2026-01", p.Month)
			require.NotNil(t, p.Conductor)
		}
		assert.NotEqual(t, seriesID, points[0].ID)
	})

	t.Run("monthly series clamps day to 28", func(t *testing.T) {
		t.Parallel()
		svc, _ := newMeetingPointFixture()

		points, err := svc.CreateSeries(ctx, planner, MeetingPointSeriesInput{
			StartDate: date(2026, 1, 30),
			EndDate:   date(2026, 3, 31),
			Frequency: "monthly",
			Time:      "10:00",
			Location:  "Plaza",
		})
		require.NoError(t, err)
		require.Len(t, points, 3)
		assert.Equal(t, []string{"2026-01", "2026-02", "2026-03"}, []string{points[0].Month, points[1].Month, points[2].Month})
		assert.Equal(t, 28, points[1].Date.Day())
		assert.Equal(t, 28, points[2].Date.Day())
	})

	t.Run("rejects invalid range and frequency without writing", func(t *testing.T) {
		t.Parallel()
		svc, repo := newMeetingPointFixture()

		_, err := svc.CreateSeries(ctx, planner, MeetingPointSeriesInput{
			StartDate: date(2026, 3, 1), EndDate: date(2026, 2, 1), Frequency: "weekly", Time: "10:00", Location: "Plaza",
		})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "end_date")

		_, err = svc.CreateSeries(ctx, planner, MeetingPointSeriesInput{
			StartDate: date(2026, 1, 1), EndDate: date(2026, 2, 1), Frequency: "daily", Time: "10:00",
		})
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors, "recurrence")
		assert.Contains(t, vErr.FieldErrors, "location")

		_, err = svc.CreateSeries(ctx, planner, MeetingPointSeriesInput{
			StartDate: date(2000, 1, 1), EndDate: date(2030, 1, 1), Frequency: "weekly", Time: "10:00", Location: "Plaza",
		})
		require.ErrorAs(t, err, &vErr)
		assert.Contains(t, vErr.FieldErrors["end_date"], "1000")
		assert.Empty(t, repo.batches)
	})
}

func TestMeetingPointService_Update(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newMeetingPointFixture()

	created, err := svc.Create(ctx, planner, MeetingPointInput{
		Date: date(2026, 1, 31), Time: "10:00", Location: "Plaza", ConductorID: strPtr("conductor"), Link: strPtr("https://meet.example/a"),
	})
	require.NoError(t, err)

	moved := date(2026, 2, 1)
	got, err := svc.Update(ctx, planner, created.ID, MeetingPointPatch{Date: &moved})
	require.NoError(t, err)
	assert.Equal(t, "2026-02", got.Month)
	assert.Equal(t, "Plaza", got.Location)
	require.NotNil(t, got.ConductorID, "absent fields are preserved")
	assert.Equal(t, "https://meet.example/a", *got.Link)

	got, err = svc.Update(ctx, planner, created.ID, MeetingPointPatch{
		ConductorID: Nullable[string]{Set: true},
		Outline:     NullableOf("Lucas 4"),
	})
	require.NoError(t, err)
	assert.Nil(t, got.ConductorID, "explicit null clears the conductor")
	assert.Nil(t, got.Conductor)
	assert.Equal(t, "Lucas 4", *got.Outline)

	_, err = svc.Update(ctx, planner, "missing", MeetingPointPatch{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Update(ctx, publisher, created.ID, MeetingPointPatch{})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestMeetingPointService_DeleteSeries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, repo := newMeetingPointFixture()

	series, err := svc.CreateSeries(ctx, planner, MeetingPointSeriesInput{
		StartDate: date(2026, 1, 5), EndDate: date(2026, 1, 19), Frequency: "weekly", Time: "10:00", Location: "Plaza",
	})
	require.NoError(t, err)
	single, err := svc.Create(ctx, planner, MeetingPointInput{Date: date(2026, 1, 6), Time: "10:00", Location: "Plaza"})
	require.NoError(t, err)

	deleted, err := svc.DeleteSeries(ctx, planner, *series[0].SeriesID)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
	assert.Contains(t, repo.points, single.ID)
	assert.Len(t, repo.points, 1)

	_, err = svc.DeleteSeries(ctx, planner, *series[0].SeriesID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.Delete(ctx, planner, single.ID))
	assert.ErrorIs(t, svc.Delete(ctx, planner, single.ID), ErrNotFound)
}

func TestMeetingPointService_ListAndExport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _ := newMeetingPointFixture()

	for _, in := range []MeetingPointInput{
		{Date: date(2026, 3, 10), Time: "18:00", Location: "B"},
		{Date: date(2026, 3, 10), Time: "09:00", Location: "A"},
		{Date: date(2026, 4, 1), Time: "09:00", Location: "C"},
	} {
		_, err := svc.Create(ctx, planner, in)
		require.NoError(t, err)
	}

	points, err := svc.ListByMonth(ctx, publisher, "2026-03")
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "A", points[0].Location)

	_, err = svc.ListByMonth(ctx, publisher, "March")
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = svc.ListByMonth(ctx, Principal{}, "2026-03")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	renderer := &rendererStub{}
	doc, err := svc.ExportMonth(ctx, publisher, "2026-03", renderer)
	require.NoError(t, err)
	assert.Equal(t, "export_2026-03.pdf", doc.Filename)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, []byte("%PDF"), doc.Body)
	assert.Len(t, renderer.points, 2)

	renderer.err = errors.New("font missing")
	_, err = svc.ExportMonth(ctx, publisher, "2026-03", renderer)
	assert.ErrorIs(t, err, renderer.err)
}

func TestMeetingPointService_ExportMonthNilService(t *testing.T) {
	t.Parallel()
	var svc *MeetingPointService

	_, err := svc.ExportMonth(context.Background(), publisher, "2026-03", &rendererStub{})
	assert.EqualError(t, err, "MeetingPointService is nil")
}
