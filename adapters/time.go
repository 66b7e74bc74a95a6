package adapters

import (
	"time"

	ds "github.com/wippyai/datastruct"
	"github.com/wippyai/datastruct/errors"
	"github.com/wippyai/datastruct/internal/coerce"
)

// Declared types of the time fields.
var (
	TimeType     = ds.TypeFor[time.Time]()
	DurationType = ds.TypeFor[time.Duration]()
)

// fileTimeEpoch is 1601-01-01, the origin of Windows FILETIME values.
var fileTimeEpoch = time.Date(1601, time.January, 1, 0, 0, 0, 0, time.UTC)

// UnixTime declares a timestamp stored as whole seconds since the Unix epoch
// in an integer layout.
func UnixTime(name, layout string) *ds.FieldSpec {
	return ds.Field(name, layout).As(TimeType).Adapt(Epoch{Origin: time.Unix(0, 0).UTC(), Unit: time.Second})
}

// FileTime declares a Windows FILETIME: 100ns ticks since 1601 in a little
// endian uint64.
func FileTime(name string) *ds.FieldSpec {
	return ds.Field(name, "<Q").As(TimeType).Adapt(Epoch{Origin: fileTimeEpoch, Unit: 100 * time.Nanosecond})
}

// Duration declares a duration stored as an integer count of unit.
func Duration(name, layout string, unit time.Duration) *ds.FieldSpec {
	return ds.Field(name, layout).As(DurationType).Adapt(Ticks{Unit: unit})
}

// Epoch converts time.Time values to an integer count of Unit since Origin.
// Decoded times are in UTC.
type Epoch struct {
	Origin time.Time
	Unit   time.Duration
}

func (a Epoch) Encode(value any, ctx *ds.Context) (any, error) {
	t, ok := value.(time.Time)
	if !ok {
		return nil, errors.TypeMismatch(ctx.G.Phase(), coerce.TypeName(value), "expected time.Time")
	}
	if t.Before(a.Origin) {
		return nil, errors.Overflow(ctx.G.Phase(), t, "time before "+a.Origin.Format(time.DateOnly))
	}
	// Seconds are split off first so far-away dates do not overflow the
	// nanosecond Duration range.
	secs := t.Unix() - a.Origin.Unix()
	nanos := int64(t.Nanosecond() - a.Origin.Nanosecond())
	if a.Unit >= time.Second {
		return secs / int64(a.Unit/time.Second), nil
	}
	perSec := int64(time.Second / a.Unit)
	return uint64(secs)*uint64(perSec) + uint64(nanos/int64(a.Unit)), nil
}

func (a Epoch) Decode(raw any, ctx *ds.Context) (any, error) {
	n, ok := coerce.ToUint64(raw)
	if !ok {
		return nil, errors.TypeMismatch(ctx.G.Phase(), coerce.TypeName(raw), "expected an unsigned tick count")
	}
	if a.Unit >= time.Second {
		return time.Unix(a.Origin.Unix()+int64(n)*int64(a.Unit/time.Second), 0).UTC(), nil
	}
	perSec := uint64(time.Second / a.Unit)
	secs, rem := n/perSec, n%perSec
	return time.Unix(a.Origin.Unix()+int64(secs), int64(rem)*int64(a.Unit)).UTC(), nil
}

// Ticks converts time.Duration values to an integer count of Unit,
// truncating toward zero.
type Ticks struct {
	Unit time.Duration
}

func (a Ticks) Encode(value any, ctx *ds.Context) (any, error) {
	d, ok := value.(time.Duration)
	if !ok {
		n, isInt := coerce.ToInt64(value)
		if !isInt {
			return nil, errors.TypeMismatch(ctx.G.Phase(), coerce.TypeName(value), "expected time.Duration")
		}
		d = time.Duration(n) * a.Unit
	}
	return int64(d / a.Unit), nil
}

func (a Ticks) Decode(raw any, ctx *ds.Context) (any, error) {
	n, ok := coerce.ToInt64(raw)
	if !ok {
		return nil, errors.TypeMismatch(ctx.G.Phase(), coerce.TypeName(raw), "expected a tick count")
	}
	return time.Duration(n) * a.Unit, nil
}
