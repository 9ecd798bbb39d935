package schedule

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/fpang/reelbot/internal/reelerr"
)

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		in      string
		want    Trigger
		wantErr bool
	}{
		{"06:00", Trigger{6, 0}, false},
		{"6:05", Trigger{6, 5}, false},
		{" 22:30 ", Trigger{22, 30}, false},
		{"23:59", Trigger{23, 59}, false},
		{"24:00", Trigger{}, true},
		{"12:60", Trigger{}, true},
		{"12:5", Trigger{}, true},
		{"1200", Trigger{}, true},
		{"ab:cd", Trigger{}, true},
		{"", Trigger{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTrigger(tt.in)
			if tt.wantErr {
				if !errors.Is(err, reelerr.ErrConfig) {
					t.Errorf("expected ErrConfig, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseTrigger(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestParseTriggers_SortsAndDedupes(t *testing.T) {
	got, err := ParseTriggers([]string{"18:00,06:00", "10:00", "06:00", ""})
	if err != nil {
		t.Fatal(err)
	}
	want := []Trigger{{6, 0}, {10, 0}, {18, 0}}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if _, err := ParseTriggers([]string{" , "}); !errors.Is(err, reelerr.ErrConfig) {
		t.Errorf("empty list: expected ErrConfig, got %v", err)
	}
}

func TestParse_UnknownZone(t *testing.T) {
	if _, err := Parse(DefaultTimes, "Mars/Olympus"); !errors.Is(err, reelerr.ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}
}

func mustParse(t *testing.T, times []string, zone string) *Schedule {
	t.Helper()
	s, err := Parse(times, zone)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestNext(t *testing.T) {
	tests := []struct {
		name  string
		times []string
		zone  string
		after time.Time
		want  time.Time
	}{
		{"later today", []string{"06:00", "18:00"}, "UTC", utc(2024, 5, 1, 7, 0), utc(2024, 5, 1, 18, 0)},
		{"strictly after", []string{"06:00", "18:00"}, "UTC", utc(2024, 5, 1, 18, 0), utc(2024, 5, 2, 6, 0)},
		{"rolls to tomorrow", []string{"06:00"}, "UTC", utc(2024, 5, 1, 23, 59), utc(2024, 5, 2, 6, 0)},
		{"month end", []string{"06:00"}, "UTC", utc(2024, 2, 29, 12, 0), utc(2024, 3, 1, 6, 0)},
		{"half-hour zone", []string{"10:00"}, "Asia/Kolkata", utc(2024, 5, 1, 0, 0), utc(2024, 5, 1, 4, 30)},
		{"local date differs from UTC date", []string{"06:00"}, "Asia/Tokyo", utc(2024, 5, 1, 22, 0), utc(2024, 5, 2, 21, 0)},
		{"before spring forward", []string{"06:00"}, "America/New_York", utc(2024, 3, 9, 0, 0), utc(2024, 3, 9, 11, 0)},
		{"after spring forward", []string{"06:00"}, "America/New_York", utc(2024, 3, 9, 12, 0), utc(2024, 3, 10, 10, 0)},
		{"before fall back", []string{"06:00"}, "Europe/Berlin", utc(2024, 10, 26, 0, 0), utc(2024, 10, 26, 4, 0)},
		{"after fall back", []string{"06:00"}, "Europe/Berlin", utc(2024, 10, 26, 5, 0), utc(2024, 10, 27, 5, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustParse(t, tt.times, tt.zone).Next(tt.after)
			if !got.Equal(tt.want) {
				t.Errorf("Next(%s) = %s, want %s", tt.after, got.UTC(), tt.want)
			}
		})
	}
}

func TestNext_KeepsLocalTimeAcrossDST(t *testing.T) {
	s := mustParse(t, []string{"20:00"}, "Europe/London")
	for _, at := range s.Upcoming(utc(2024, 3, 28, 0, 0), 6) {
		local := at.In(s.Location())
		if local.Hour() != 20 || local.Minute() != 0 {
			t.Errorf("%s fires at local %s", at.UTC(), local.Format("15:04"))
		}
	}
}

func TestNext_DSTGapStillAdvances(t *testing.T) {
	// 02:30 does not exist in New York on 2024-03-10.
	s := mustParse(t, []string{"02:30"}, "America/New_York")
	runs := s.Upcoming(utc(2024, 3, 9, 12, 0), 4)
	for i := 1; i < len(runs); i++ {
		gap := runs[i].Sub(runs[i-1])
		if gap < 22*time.Hour || gap > 26*time.Hour {
			t.Errorf("gap between %s and %s is %s", runs[i-1].UTC(), runs[i].UTC(), gap)
		}
	}
}

func TestScheduleString(t *testing.T) {
	s := mustParse(t, []string{"18:00", "06:00"}, "Europe/Berlin")
	if got := s.String(); got != "06:00,18:00 Europe/Berlin" {
		t.Errorf("String() = %q", got)
	}
}
