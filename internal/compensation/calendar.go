package compensation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/farmlink-backend/pkg/db/models"
)

const (
	workdayStartHour = 8
	workdayEndHour   = 20
)

// Conditions are the special-condition flags that add surcharges. They are
// independent and may all apply at once.
type Conditions struct {
	WeekendHoliday  bool `json:"weekendHoliday"`
	AfterHours      bool `json:"afterHours"`
	RemoteArea      bool `json:"remoteArea"`
	DifficultAccess bool `json:"difficultAccess"`
}

// SurchargeRate sums the configured premium of every active flag.
func (c Conditions) SurchargeRate(cfg *models.CompensationConfiguration) decimal.Decimal {
	rate := decimal.Zero
	if c.WeekendHoliday {
		rate = rate.Add(cfg.WeekendHolidayRate)
	}
	if c.AfterHours {
		rate = rate.Add(cfg.AfterHoursRate)
	}
	if c.RemoteArea {
		rate = rate.Add(cfg.RemoteAreaRate)
	}
	if c.DifficultAccess {
		rate = rate.Add(cfg.DifficultAccessRate)
	}
	return rate
}

// Calendar classifies completion timestamps in the drivers' local time.
type Calendar struct {
	Location *time.Location
	Holidays []time.Time
}

func (c Calendar) local(t time.Time) time.Time {
	if c.Location == nil {
		return t.UTC()
	}
	return t.In(c.Location)
}

// IsWeekendOrHoliday is true on local Saturdays, Sundays and configured holidays.
func (c Calendar) IsWeekendOrHoliday(t time.Time) bool {
	local := c.local(t)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	y, m, d := local.Date()
	for _, h := range c.Holidays {
		hy, hm, hd := h.Date()
		if hy == y && hm == m && hd == d {
			return true
		}
	}
	return false
}

// IsAfterHours is true before 08:00 or at/after 20:00 local time.
func (c Calendar) IsAfterHours(t time.Time) bool {
	hour := c.local(t).Hour()
	return hour < workdayStartHour || hour >= workdayEndHour
}
