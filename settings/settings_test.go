package settings_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/go-cnc/cncfw/settings"
)

// Invariant 5: settings round-trip through Pack/Unpack (and, with it,
// through a Store) unchanged.
func TestRoundTrip(t *testing.T) {
	c := qt.New(t)

	s := settings.Defaults()
	s.StepsPerMM = [3]float32{250, 250, 400}
	s.Acceleration = 12000
	s.JunctionDeviation = 0.01
	s.Flags = settings.FlagHomingEnable | settings.FlagReportInches

	packed := s.Pack()

	var out settings.Settings
	c.Assert(out.Unpack(packed), qt.IsNil)
	c.Assert(out, qt.DeepEquals, s)
}

func TestUnpackRejectsVersionMismatch(t *testing.T) {
	c := qt.New(t)
	buf := settings.Defaults().Pack()
	buf[0] = 0xFF

	var out settings.Settings
	err := out.Unpack(buf)
	c.Assert(err, qt.Equals, settings.ErrVersionMismatch)
}

func TestLoadFallsBackToDefaultsOnEmptyStore(t *testing.T) {
	c := qt.New(t)
	store := &settings.MemStore{}

	loaded := settings.Load(store)
	c.Assert(loaded, qt.DeepEquals, settings.Defaults())

	// Defaults should now have been persisted back to the store.
	raw, err := store.Read()
	c.Assert(err, qt.IsNil)
	var reread settings.Settings
	c.Assert(reread.Unpack(raw), qt.IsNil)
	c.Assert(reread, qt.DeepEquals, settings.Defaults())
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	c := qt.New(t)
	store := &settings.MemStore{}

	s := settings.Defaults()
	s.DefaultFeedRate = 777
	c.Assert(settings.Save(store, &s), qt.IsNil)

	loaded := settings.Load(store)
	c.Assert(loaded, qt.DeepEquals, s)
}
