package worker

import (
	"net/http"
	"strconv"
	"time"
)

// TimestampHeader carries the time, in Unix milliseconds, at which a
// response was written to a cache store.
const TimestampHeader = "sw-cache-timestamp"

// MaxAges holds the freshness limit for each store category. Zero means
// entries never expire.
type MaxAges struct {
	Static  time.Duration
	Runtime time.Duration
	Images  time.Duration
	Fonts   time.Duration
}

const day = 24 * time.Hour

// DefaultMaxAges returns the stock policy: static 7 days, runtime 1 day,
// images 30 days, fonts unbounded.
func DefaultMaxAges() MaxAges {
	return MaxAges{
		Static:  7 * day,
		Runtime: day,
		Images:  30 * day,
		Fonts:   0,
	}
}

// Expired reports whether an entry stored with header h is older than
// maxAge at now. Entries without a readable timestamp never expire.
func Expired(h http.Header, maxAge time.Duration, now time.Time) bool {
	if maxAge <= 0 {
		return false
	}
	v := h.Get(TimestampHeader)
	if v == "" {
		return false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return false
	}
	return now.Sub(time.UnixMilli(ms)) > maxAge
}

func stamp(h http.Header, now time.Time) {
	h.Set(TimestampHeader, strconv.FormatInt(now.UnixMilli(), 10))
}
