package model

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func bookTestReservation(t *testing.T, out, ret *Flight, party int) *Reservation {
	t.Helper()
	require.NoError(t, out.ReserveSeats(party))
	if ret != nil {
		require.NoError(t, ret.ReserveSeats(party))
	}
	return NewReservation(out, ret, party, "", epoch)
}

func TestReservation_NewSnapshotsPrices(t *testing.T) {
	out := newTestFlight(t, "JU100", 100)
	ret := newTestFlight(t, "JU101", 100)
	r := bookTestReservation(t, out, ret, 25)

	assert.NotEmpty(t, r.ID())
	assert.Equal(t, StatusActive, r.Status())
	assert.Equal(t, epoch.Add(24*time.Hour), r.Deadline())
	assert.Equal(t, (140.0+140.0)*25, r.BookedPrice())

	require.NoError(t, out.ReserveSeats(10))
	assert.Equal(t, (140.0+140.0)*25, r.BookedPrice(), "snapshot must not follow the live price")
	assert.Equal(t, (160.0+140.0)*25, r.CurrentPrice())
}

func TestReservation_PayChargesCurrentPrice(t *testing.T) {
	out := newTestFlight(t, "JU100", 100)
	r := bookTestReservation(t, out, nil, 25)

	amount, err := r.Pay(epoch.Add(time.Hour), 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 140*25*0.95, amount, 1e-9)
	assert.Equal(t, StatusPaid, r.Status())

	_, err = r.Pay(epoch.Add(2*time.Hour), 0)
	assert.ErrorIs(t, err, ErrAlreadyPaid)
	assert.Equal(t, 75, out.RemainingSeats(), "paid seats stay taken")
}

func TestReservation_PayAfterDeadlineExpires(t *testing.T) {
	out := newTestFlight(t, "JU100", 100)
	ret := newTestFlight(t, "JU101", 100)
	r := bookTestReservation(t, out, ret, 4)

	_, err := r.Pay(epoch.Add(PaymentWindow+time.Second), 0)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, StatusExpired, r.Status())
	assert.Equal(t, 100, out.RemainingSeats())
	assert.Equal(t, 100, ret.RemainingSeats())

	_, err = r.Pay(epoch.Add(PaymentWindow+time.Minute), 0)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestReservation_PayExactlyAtDeadlineSucceeds(t *testing.T) {
	r := bookTestReservation(t, newTestFlight(t, "JU100", 100), nil, 1)
	_, err := r.Pay(r.Deadline(), 0)
	assert.NoError(t, err)
}

func TestReservation_Cancel(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(r *Reservation)
		wantErr error
	}{
		{name: "active", prepare: func(*Reservation) {}},
		{name: "paid", prepare: func(r *Reservation) { _, _ = r.Pay(epoch, 0) }, wantErr: ErrAlreadyPaid},
		{name: "already cancelled", prepare: func(r *Reservation) { _ = r.Cancel() }, wantErr: ErrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := newTestFlight(t, "JU100", 100)
			r := bookTestReservation(t, out, nil, 30)
			tt.prepare(r)
			before := out.RemainingSeats()

			err := r.Cancel()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, out.RemainingSeats())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusExpired, r.Status())
			assert.Equal(t, 100, out.RemainingSeats())
			assert.Equal(t, 100.0, out.CurrentPrice())
		})
	}
}

func TestReservation_ExactlyOncePayment(t *testing.T) {
	r := bookTestReservation(t, newTestFlight(t, "JU100", 100), nil, 2)

	var (
		wg       sync.WaitGroup
		winners  atomic.Int32
		rejected atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Pay(epoch.Add(time.Minute), 0)
			switch {
			case err == nil:
				winners.Add(1)
			case errors.Is(err, ErrAlreadyPaid):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, int32(31), rejected.Load())
}

func TestReservation_ExpireReleasesOnce(t *testing.T) {
	out := newTestFlight(t, "JU100", 100)
	r := bookTestReservation(t, out, nil, 10)
	// Another booking keeps the flight partly full so a double release
	// would show up in the counter instead of being hidden by the clamp.
	require.NoError(t, out.ReserveSeats(20))

	late := epoch.Add(PaymentWindow + time.Hour)
	var (
		wg          sync.WaitGroup
		transitions atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Expire(late) {
				transitions.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), transitions.Load())
	assert.Equal(t, 80, out.RemainingSeats())
	assert.Equal(t, StatusExpired, r.Status())
}

func TestReservation_ExpireIgnoresUnexpired(t *testing.T) {
	out := newTestFlight(t, "JU100", 100)
	r := bookTestReservation(t, out, nil, 10)
	assert.False(t, r.Expire(epoch.Add(time.Hour)))
	assert.Equal(t, StatusActive, r.Status())
	assert.Equal(t, 90, out.RemainingSeats())
}

func TestRestoreReservation_RoundTrip(t *testing.T) {
	out := newTestFlight(t, "JU100", 100)
	ret := newTestFlight(t, "JU101", 100)
	r := bookTestReservation(t, out, ret, 3)
	_, err := r.Pay(epoch.Add(time.Hour), 0)
	require.NoError(t, err)

	restored, err := RestoreReservation(r.Data(), out, ret)
	require.NoError(t, err)
	assert.Equal(t, r.Data(), restored.Data())

	_, err = RestoreReservation(r.Data(), out, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
