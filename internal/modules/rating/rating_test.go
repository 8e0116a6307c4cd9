package rating

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yatra/internal/events"
	"yatra/internal/failure"
	"yatra/internal/infra"
	"yatra/internal/modules/booking"
	"yatra/internal/modules/route"
	"yatra/internal/modules/trip"
	"yatra/internal/testutil"
	"yatra/internal/types"
)

func TestAggregateAdd(t *testing.T) {
	agg := Aggregate{Party: PartyDriver, ID: "d"}
	agg = agg.Add(4).Add(5)
	assert.InDelta(t, 4.5, agg.Average, 1e-9)
	assert.Equal(t, 2, agg.Count)

	agg = Aggregate{Average: 3, Count: 3}.Add(5)
	assert.InDelta(t, 3.5, agg.Average, 1e-9)
	assert.Equal(t, 4, agg.Count)
}

func TestDirection(t *testing.T) {
	assert.Equal(t, PartyDriver, RiderToDriver.Ratee())
	assert.Equal(t, PartyRider, DriverToRider.Ratee())
	assert.False(t, Direction("sideways").Valid())
	assert.True(t, ValidScore(1))
	assert.True(t, ValidScore(5))
	assert.False(t, ValidScore(0))
	assert.False(t, ValidScore(6))
}

func TestSubmitRatingRejectsBadInputBeforeTouchingStore(t *testing.T) {
	svc := NewService(Deps{})
	err := svc.SubmitRating(context.Background(), SubmitCommand{RequestID: "r", ActorID: "a", Direction: RiderToDriver, Score: 0})
	assert.ErrorIs(t, err, failure.ErrInvalidScore)

	err = svc.SubmitRating(context.Background(), SubmitCommand{RequestID: "r", ActorID: "a", Direction: RiderToDriver, Score: 6})
	assert.ErrorIs(t, err, failure.ErrInvalidScore)

	err = svc.SubmitRating(context.Background(), SubmitCommand{RequestID: "r", ActorID: "a", Direction: "up", Score: 3})
	assert.ErrorIs(t, err, failure.ErrInvalidInput)
}

var eastbound = []types.Point{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.01}, {Lat: 0, Lng: 0.02}}

type env struct {
	db       *pgxpool.Pool
	svc      *Service
	trips    *trip.Service
	bookings *booking.Service
	events   *events.Recorder
}

func setupEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewPool(t)
	tx := infra.NewTxRunner(db, 3*time.Second, 5*time.Second)
	rstore, tstore, bstore := route.NewStore(), trip.NewStore(), booking.NewStore()
	rec := &events.Recorder{}

	testutil.SeedDriver(t, db, "driver-1")
	return &env{
		db:     db,
		events: rec,
		trips: trip.NewService(trip.Deps{
			Store: tstore, Routes: route.NewService(rstore, db, 100), RouteStore: rstore, Tx: tx,
		}),
		bookings: booking.NewService(booking.Deps{Store: bstore, Trips: tstore, Routes: rstore, Tx: tx}),
		svc:      NewService(Deps{Store: NewStore(), Trips: tstore, Requests: bstore, Tx: tx, Events: rec}),
	}
}

// ride books every rider on one trip, boards and drops them off and
// completes the trip. Riders listed in noShow never board.
func (e *env) ride(t *testing.T, riders []types.ID, noShow ...types.ID) map[types.ID]*booking.RideRequest {
	t.Helper()
	ctx := context.Background()
	tr, err := e.trips.CreateTrip(ctx, trip.CreateCommand{
		DriverID: "driver-1", Path: eastbound, TravelDate: time.Now().Add(time.Hour),
		FarePerSeat: types.Money{Amount: 10000}, TotalSeats: 4,
	})
	require.NoError(t, err)

	out := map[types.ID]*booking.RideRequest{}
	for _, r := range append(append([]types.ID{}, riders...), noShow...) {
		req, err := e.bookings.CreateRideRequest(ctx, booking.BookCommand{TripID: tr.ID, RiderID: r, Seats: 1})
		require.NoError(t, err)
		out[r] = req
	}
	require.NoError(t, e.bookings.StartTrip(ctx, tr.ID, "driver-1"))
	for _, r := range riders {
		req := out[r]
		require.NoError(t, e.bookings.MarkOnboard(ctx, booking.PositionCommand{RequestID: req.ID, RiderID: r, Position: req.PickupOnRoute}))
		require.NoError(t, e.bookings.MarkDroppedOff(ctx, booking.PositionCommand{RequestID: req.ID, RiderID: r, Position: req.DropOnRoute}))
	}
	require.NoError(t, e.bookings.CompleteTrip(ctx, booking.CompleteTripCommand{TripID: tr.ID, DriverID: "driver-1"}))
	return out
}

func TestSubmitRatingUpdatesAggregates(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	reqs := e.ride(t, []types.ID{"rider-a", "rider-b"})

	require.NoError(t, e.svc.SubmitRating(ctx, SubmitCommand{RequestID: reqs["rider-a"].ID, ActorID: "rider-a", Direction: RiderToDriver, Score: 4}))
	require.NoError(t, e.svc.SubmitRating(ctx, SubmitCommand{RequestID: reqs["rider-b"].ID, ActorID: "rider-b", Direction: RiderToDriver, Score: 5, Comment: "smooth"}))
	require.NoError(t, e.svc.SubmitRating(ctx, SubmitCommand{RequestID: reqs["rider-a"].ID, ActorID: "driver-1", Direction: DriverToRider, Score: 3}))

	driver, err := e.svc.Aggregate(ctx, PartyDriver, "driver-1")
	require.NoError(t, err)
	assert.InDelta(t, 4.5, driver.Average, 1e-9)
	assert.Equal(t, 2, driver.Count)

	rider, err := e.svc.Aggregate(ctx, PartyRider, "rider-a")
	require.NoError(t, err)
	assert.InDelta(t, 3.0, rider.Average, 1e-9)
	assert.Equal(t, 1, rider.Count)

	list, err := e.svc.ListByRequest(ctx, reqs["rider-a"].ID, "rider-a")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	list, err = e.svc.ListByRequest(ctx, reqs["rider-a"].ID, "driver-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
	_, err = e.svc.ListByRequest(ctx, reqs["rider-a"].ID, "rider-b")
	assert.ErrorIs(t, err, failure.ErrRequestNotFound)
	_, err = e.svc.ListByRequest(ctx, "missing", "rider-a")
	assert.ErrorIs(t, err, failure.ErrRequestNotFound)
	assert.Len(t, e.events.Events(), 3)
}

func TestSubmitRatingTwiceIsAlreadyRated(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	req := e.ride(t, []types.ID{"rider-a"})["rider-a"]
	cmd := SubmitCommand{RequestID: req.ID, ActorID: "rider-a", Direction: RiderToDriver, Score: 5}

	require.NoError(t, e.svc.SubmitRating(ctx, cmd))
	cmd.Score = 1
	assert.ErrorIs(t, e.svc.SubmitRating(ctx, cmd), failure.ErrAlreadyRated)

	driver, err := e.svc.Aggregate(ctx, PartyDriver, "driver-1")
	require.NoError(t, err)
	assert.Equal(t, 1, driver.Count)
	assert.InDelta(t, 5.0, driver.Average, 1e-9)
}

func TestSubmitRatingPreconditions(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	reqs := e.ride(t, []types.ID{"rider-a"}, "rider-late")

	err := e.svc.SubmitRating(ctx, SubmitCommand{RequestID: reqs["rider-a"].ID, ActorID: "rider-b", Direction: RiderToDriver, Score: 4})
	assert.ErrorIs(t, err, failure.ErrUnauthorized)

	err = e.svc.SubmitRating(ctx, SubmitCommand{RequestID: reqs["rider-a"].ID, ActorID: "rider-a", Direction: DriverToRider, Score: 4})
	assert.ErrorIs(t, err, failure.ErrUnauthorized, "riders cannot rate themselves")

	err = e.svc.SubmitRating(ctx, SubmitCommand{RequestID: reqs["rider-late"].ID, ActorID: "rider-late", Direction: RiderToDriver, Score: 4})
	assert.ErrorIs(t, err, failure.ErrInvalidState, "cancelled at completion")

	err = e.svc.SubmitRating(ctx, SubmitCommand{RequestID: "missing", ActorID: "rider-a", Direction: RiderToDriver, Score: 4})
	assert.ErrorIs(t, err, failure.ErrRequestNotFound)

	driver, err := e.svc.Aggregate(ctx, PartyDriver, "driver-1")
	require.NoError(t, err)
	assert.Equal(t, 0, driver.Count)
}

func TestSubmitRatingRequiresCompletedTrip(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	tr, err := e.trips.CreateTrip(ctx, trip.CreateCommand{
		DriverID: "driver-1", Path: eastbound, TravelDate: time.Now().Add(time.Hour), TotalSeats: 2,
	})
	require.NoError(t, err)
	req, err := e.bookings.CreateRideRequest(ctx, booking.BookCommand{TripID: tr.ID, RiderID: "rider-a", Seats: 1})
	require.NoError(t, err)

	err = e.svc.SubmitRating(ctx, SubmitCommand{RequestID: req.ID, ActorID: "rider-a", Direction: RiderToDriver, Score: 4})
	assert.ErrorIs(t, err, failure.ErrInvalidState)
}

func TestConcurrentDuplicateRatings(t *testing.T) {
	e := setupEnv(t)
	ctx := context.Background()
	req := e.ride(t, []types.ID{"rider-a"})["rider-a"]

	const attempts = 5
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(score int) {
			defer wg.Done()
			<-start
			errs <- e.svc.SubmitRating(ctx, SubmitCommand{RequestID: req.ID, ActorID: "rider-a", Direction: RiderToDriver, Score: score})
		}(i + 1)
	}
	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !failure.IsTransient(err) {
			assert.ErrorIs(t, err, failure.ErrAlreadyRated)
		}
	}
	assert.Equal(t, 1, success)

	driver, err := e.svc.Aggregate(ctx, PartyDriver, "driver-1")
	require.NoError(t, err)
	assert.Equal(t, 1, driver.Count)
}
