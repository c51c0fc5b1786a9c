package health

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// staleAfter is how many refresh intervals may pass without a successful
// fetch before on-air data counts as stale.
const staleAfter = 3

// Sizer reports how many items a store holds. *catalog.Catalog satisfies it.
type Sizer interface {
	Len() int
}

// Refresher reports the progress of a periodic refresh. *refresh.Loop
// satisfies it.
type Refresher interface {
	LastSuccess() (time.Time, bool)
	Interval() time.Duration
}

// Readier reports whether a connection is usable. *discord.Bot satisfies it.
type Readier interface {
	Ready() bool
}

// Catalog passes when the station catalog is non-empty.
func Catalog(c Sizer) Checker {
	return Checker{Name: "catalog", Check: func(context.Context) error {
		if c.Len() == 0 {
			return errors.New("no stations loaded")
		}
		return nil
	}}
}

// OnAir passes while the last successful refresh is younger than three
// refresh intervals. now defaults to [time.Now].
func OnAir(r Refresher, now func() time.Time) Checker {
	if now == nil {
		now = time.Now
	}
	return Checker{Name: "onair", Check: func(context.Context) error {
		last, ok := r.LastSuccess()
		if !ok {
			return errors.New("no successful refresh yet")
		}
		if age, limit := now().Sub(last), staleAfter*r.Interval(); age >= limit {
			return fmt.Errorf("last refresh %s ago exceeds %s", age.Round(time.Second), limit)
		}
		return nil
	}}
}

// Discord passes while the gateway session is ready.
func Discord(r Readier) Checker {
	return Checker{Name: "discord", Check: func(context.Context) error {
		if !r.Ready() {
			return errors.New("gateway not ready")
		}
		return nil
	}}
}
