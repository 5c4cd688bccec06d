package tracker

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/suspectuso/boost-tracker/internal/boostapi"
	"github.com/suspectuso/boost-tracker/internal/payment"
)

// Filter names accepted by SetFilter
const (
	FilterBefore          = "before"
	FilterAfter           = "after"
	FilterPodcast         = "podcast"
	FilterPodcasts        = "podcasts"
	FilterExcludePodcasts = "excludePodcasts"
	FilterEventGUIDs      = "eventGuids"
	FilterEpisodeGUIDs    = "episodeGuids"
)

var ErrUnknownFilter = errors.New("unknown filter")

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Filters is the tracker's filter state. Zero Before/After mean unbounded.
type Filters struct {
	Before          int64
	After           int64
	Podcasts        []string
	ExcludePodcasts []string
	EventGUIDs      []string
	EpisodeGUIDs    []string
}

func (f Filters) clone() Filters {
	f.Podcasts = append([]string(nil), f.Podcasts...)
	f.ExcludePodcasts = append([]string(nil), f.ExcludePodcasts...)
	f.EventGUIDs = append([]string(nil), f.EventGUIDs...)
	f.EpisodeGUIDs = append([]string(nil), f.EpisodeGUIDs...)
	return f
}

func (f Filters) history() boostapi.Filters {
	return boostapi.Filters{
		Before:       f.Before,
		After:        f.After,
		Podcasts:     f.Podcasts,
		EventGUIDs:   f.EventGUIDs,
		EpisodeGUIDs: f.EpisodeGUIDs,
	}
}

// excluded reports a case-insensitive substring hit on excludePodcasts
func (f Filters) excluded(podcast string) bool {
	return containsAny(podcast, f.ExcludePodcasts)
}

func (f Filters) inRange(date int64) bool {
	if f.Before != 0 && f.Before < date {
		return false
	}
	if f.After != 0 && f.After > date {
		return false
	}
	return true
}

// included applies the podcast/event/episode include lists to a boost. With
// no include list configured everything passes; otherwise any hit does.
func (f Filters) included(p payment.Payment) bool {
	if len(f.Podcasts) == 0 && len(f.EventGUIDs) == 0 && len(f.EpisodeGUIDs) == 0 {
		return true
	}

	if containsAny(p.Podcast, f.Podcasts) {
		return true
	}
	if p.EventGUID != "" && hasExact(p.EventGUID, f.EventGUIDs) {
		return true
	}
	if p.EpisodeGUID != "" && hasExact(p.EpisodeGUID, f.EpisodeGUIDs) {
		return true
	}
	return false
}

func (f *Filters) set(name string, value any) error {
	switch name {
	case FilterBefore, FilterAfter:
		ts, err := parseDate(value)
		if err != nil {
			return fmt.Errorf("filter %s: %w", name, err)
		}
		if name == FilterBefore {
			f.Before = ts
		} else {
			f.After = ts
		}

	case FilterPodcast:
		list, err := parseList(value)
		if err != nil {
			return fmt.Errorf("filter %s: %w", name, err)
		}
		f.Podcasts = append(f.Podcasts, list...)

	case FilterPodcasts, FilterExcludePodcasts, FilterEventGUIDs, FilterEpisodeGUIDs:
		list, err := parseList(value)
		if err != nil {
			return fmt.Errorf("filter %s: %w", name, err)
		}
		switch name {
		case FilterPodcasts:
			f.Podcasts = list
		case FilterExcludePodcasts:
			f.ExcludePodcasts = list
		case FilterEventGUIDs:
			f.EventGUIDs = list
		default:
			f.EpisodeGUIDs = list
		}

	default:
		return fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	return nil
}

// parseDate coerces a filter value to Unix seconds. Numeric strings are
// taken as seconds, anything else is parsed as a date.
func parseDate(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("invalid timestamp %v", v)
		}
		return int64(math.Floor(v)), nil
	case time.Time:
		return v.Unix(), nil
	case string:
		s := strings.TrimSpace(v)
		if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
			return ts, nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Unix(), nil
			}
		}
		return 0, fmt.Errorf("unrecognized date %q", v)
	default:
		return 0, fmt.Errorf("unsupported date type %T", value)
	}
}

func parseList(value any) ([]string, error) {
	var raw []string
	switch v := value.(type) {
	case []string:
		raw = v
	case string:
		raw = strings.Split(v, ",")
	default:
		return nil, fmt.Errorf("unsupported list type %T", value)
	}

	list := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			list = append(list, s)
		}
	}
	return list, nil
}

func containsAny(s string, needles []string) bool {
	s = strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(s, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func hasExact(s string, list []string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
