package uptime

import (
	"errors"
	"testing"
	"time"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%q) error = %v", name, err)
	}
	return loc
}

func mustResolver(t *testing.T, zone string, hours []BusinessHours) *Resolver {
	t.Helper()
	sched, err := ParseWeeklySchedule("store-1", hours)
	if err != nil {
		t.Fatalf("ParseWeeklySchedule() error = %v", err)
	}
	return NewResolver("store-1", mustLoad(t, zone), sched)
}

func utc(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		panic(err)
	}
	return t
}

func everyDay(start, end string) []BusinessHours {
	hours := make([]BusinessHours, 0, 7)
	for d := 0; d < 7; d++ {
		hours = append(hours, BusinessHours{StoreID: "store-1", DayOfWeek: d, StartLocal: start, EndLocal: end})
	}
	return hours
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		isEnd   bool
		want    time.Duration
		wantErr bool
	}{
		{"hours and minutes", "09:00", false, 9 * time.Hour, false},
		{"with seconds", "09:30:15", false, 9*time.Hour + 30*time.Minute + 15*time.Second, false},
		{"fractional seconds", "00:00:00.5", false, 500 * time.Millisecond, false},
		{"single digit hour", "7:05", false, 7*time.Hour + 5*time.Minute, false},
		{"end of day as 23:59:59", "23:59:59", true, 24 * time.Hour, false},
		{"end of day as 24:00", "24:00:00", true, 24 * time.Hour, false},
		{"23:59:59 as start", "23:59:59", false, 23*time.Hour + 59*time.Minute + 59*time.Second, false},
		{"24:00 as start", "24:00", false, 0, true},
		{"empty", "", false, 0, true},
		{"garbage", "9am", false, 0, true},
		{"hour out of range", "25:00:00", true, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseClock(tt.in, tt.isEnd)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseClock(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseClock(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseWeeklySchedule(t *testing.T) {
	tests := []struct {
		name       string
		hours      []BusinessHours
		wantErr    bool
		wantField  string
		alwaysOpen bool
	}{
		{name: "no rows means always open", hours: nil, alwaysOpen: true},
		{name: "valid shift", hours: []BusinessHours{{DayOfWeek: 0, StartLocal: "09:00:00", EndLocal: "17:00:00"}}},
		{name: "day out of range", hours: []BusinessHours{{DayOfWeek: 7, StartLocal: "09:00", EndLocal: "17:00"}}, wantErr: true, wantField: "day_of_week"},
		{name: "negative day", hours: []BusinessHours{{DayOfWeek: -1, StartLocal: "09:00", EndLocal: "17:00"}}, wantErr: true, wantField: "day_of_week"},
		{name: "malformed start", hours: []BusinessHours{{DayOfWeek: 1, StartLocal: "nine", EndLocal: "17:00"}}, wantErr: true, wantField: "start_time_local"},
		{name: "malformed end", hours: []BusinessHours{{DayOfWeek: 1, StartLocal: "09:00", EndLocal: "17:61"}}, wantErr: true, wantField: "end_time_local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched, err := ParseWeeklySchedule("store-1", tt.hours)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWeeklySchedule() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var perr *ScheduleParseError
				if !errors.As(err, &perr) {
					t.Fatalf("error %T is not a *ScheduleParseError", err)
				}
				if perr.Field != tt.wantField {
					t.Errorf("Field = %q, want %q", perr.Field, tt.wantField)
				}
				if perr.StoreID != "store-1" {
					t.Errorf("StoreID = %q, want store-1", perr.StoreID)
				}
				return
			}
			if sched.AlwaysOpen() != tt.alwaysOpen {
				t.Errorf("AlwaysOpen() = %v, want %v", sched.AlwaysOpen(), tt.alwaysOpen)
			}
		})
	}
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("s", "")
	if err != nil {
		t.Fatalf("LoadLocation(\"\") error = %v", err)
	}
	if loc.String() != DefaultTimezone {
		t.Errorf("default location = %s, want %s", loc, DefaultTimezone)
	}

	_, err = LoadLocation("s", "Mars/Olympus_Mons")
	var perr *ScheduleParseError
	if !errors.As(err, &perr) {
		t.Fatalf("LoadLocation(unknown) error = %v, want *ScheduleParseError", err)
	}
	if perr.Field != "timezone" {
		t.Errorf("Field = %q, want timezone", perr.Field)
	}
}

func TestResolverFor(t *testing.T) {
	r, err := ResolverFor("s", &StoreTimezone{StoreID: "s", TimezoneName: "Asia/Kolkata"}, nil)
	if err != nil {
		t.Fatalf("ResolverFor() error = %v", err)
	}
	if r.Location().String() != "Asia/Kolkata" || !r.AlwaysOpen() {
		t.Errorf("ResolverFor() = %s alwaysOpen=%v", r.Location(), r.AlwaysOpen())
	}

	if _, err := ResolverFor("s", nil, []BusinessHours{{DayOfWeek: 0, StartLocal: "x", EndLocal: "y"}}); err == nil {
		t.Error("ResolverFor() with malformed hours returned nil error")
	}
	if _, err := ResolverFor("s", &StoreTimezone{TimezoneName: "Nowhere/Land"}, nil); err == nil {
		t.Error("ResolverFor() with unknown zone returned nil error")
	}
}

func TestDateWeekday(t *testing.T) {
	tests := []struct {
		date Date
		want int
	}{
		{Date{2023, time.January, 23}, 0},
		{Date{2023, time.January, 27}, 4},
		{Date{2023, time.January, 29}, 6},
		{Date{2023, time.March, 12}, 6},
	}
	for _, tt := range tests {
		if got := tt.date.Weekday(); got != tt.want {
			t.Errorf("%s.Weekday() = %d, want %d", tt.date, got, tt.want)
		}
	}

	if got := (Date{2023, time.February, 28}).AddDays(1); got != (Date{2023, time.March, 1}) {
		t.Errorf("AddDays across month = %s", got)
	}
}

func TestResolver_BusinessIntervalsUTC(t *testing.T) {
	tests := []struct {
		name  string
		zone  string
		hours []BusinessHours
		date  Date
		want  []Interval
	}{
		{
			name:  "daytime shift in Chicago winter",
			zone:  "America/Chicago",
			hours: []BusinessHours{{DayOfWeek: 0, StartLocal: "09:00:00", EndLocal: "17:00:00"}},
			date:  Date{2023, time.January, 23},
			want:  []Interval{{utc("2023-01-23T15:00:00Z"), utc("2023-01-23T23:00:00Z")}},
		},
		{
			name:  "closed weekday",
			zone:  "America/Chicago",
			hours: []BusinessHours{{DayOfWeek: 0, StartLocal: "09:00:00", EndLocal: "17:00:00"}},
			date:  Date{2023, time.January, 24},
			want:  nil,
		},
		{
			name:  "overnight shift stays contiguous",
			zone:  "UTC",
			hours: []BusinessHours{{DayOfWeek: 4, StartLocal: "22:00", EndLocal: "02:00"}},
			date:  Date{2023, time.January, 27},
			want:  []Interval{{utc("2023-01-27T22:00:00Z"), utc("2023-01-28T02:00:00Z")}},
		},
		{
			name:  "local evening shift crosses UTC midnight",
			zone:  "America/Chicago",
			hours: []BusinessHours{{DayOfWeek: 0, StartLocal: "20:00", EndLocal: "01:00"}},
			date:  Date{2023, time.January, 23},
			want:  []Interval{{utc("2023-01-24T02:00:00Z"), utc("2023-01-24T07:00:00Z")}},
		},
		{
			name: "adjacent shifts merge",
			zone: "UTC",
			hours: []BusinessHours{
				{DayOfWeek: 0, StartLocal: "12:00", EndLocal: "17:00"},
				{DayOfWeek: 0, StartLocal: "09:00", EndLocal: "12:00"},
			},
			date: Date{2023, time.January, 23},
			want: []Interval{{utc("2023-01-23T09:00:00Z"), utc("2023-01-23T17:00:00Z")}},
		},
		{
			name:  "spring forward shortens the shift",
			zone:  "America/New_York",
			hours: []BusinessHours{{DayOfWeek: 6, StartLocal: "00:00", EndLocal: "04:00"}},
			date:  Date{2023, time.March, 12},
			want:  []Interval{{utc("2023-03-12T05:00:00Z"), utc("2023-03-12T08:00:00Z")}},
		},
		{
			name:  "fall back lengthens the shift",
			zone:  "America/New_York",
			hours: []BusinessHours{{DayOfWeek: 6, StartLocal: "00:00", EndLocal: "04:00"}},
			date:  Date{2023, time.November, 5},
			want:  []Interval{{utc("2023-11-05T04:00:00Z"), utc("2023-11-05T09:00:00Z")}},
		},
		{
			name:  "always open day on spring forward is 23 hours",
			zone:  "America/New_York",
			hours: nil,
			date:  Date{2023, time.March, 12},
			want:  []Interval{{utc("2023-03-12T05:00:00Z"), utc("2023-03-13T04:00:00Z")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mustResolver(t, tt.zone, tt.hours)
			got := r.BusinessIntervalsUTC(tt.date)
			if len(got) != len(tt.want) {
				t.Fatalf("BusinessIntervalsUTC() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if !got[i].Start.Equal(tt.want[i].Start) || !got[i].End.Equal(tt.want[i].End) {
					t.Errorf("interval %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestResolver_IsOpen(t *testing.T) {
	chicago := mustResolver(t, "America/Chicago", []BusinessHours{{DayOfWeek: 0, StartLocal: "09:00", EndLocal: "17:00"}})
	overnight := mustResolver(t, "UTC", []BusinessHours{{DayOfWeek: 4, StartLocal: "22:00", EndLocal: "02:00"}})
	always := mustResolver(t, "UTC", nil)

	tests := []struct {
		name string
		r    *Resolver
		at   time.Time
		want bool
	}{
		{"opening instant is open", chicago, utc("2023-01-23T15:00:00Z"), true},
		{"last second is open", chicago, utc("2023-01-23T22:59:59Z"), true},
		{"closing instant is closed", chicago, utc("2023-01-23T23:00:00Z"), false},
		{"before opening", chicago, utc("2023-01-23T14:59:00Z"), false},
		{"other weekday", chicago, utc("2023-01-24T16:00:00Z"), false},
		{"spill past midnight", overnight, utc("2023-01-28T01:00:00Z"), true},
		{"after spill", overnight, utc("2023-01-28T02:00:00Z"), false},
		{"always open", always, utc("2023-01-28T03:17:00Z"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.IsOpen(tt.at); got != tt.want {
				t.Errorf("IsOpen(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}
