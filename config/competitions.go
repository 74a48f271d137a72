package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/deutschtag/germanday/pipeline"
)

// Competition describes one German Day competition and the rules its
// submissions are validated against. Everything here is configuration data,
// not pipeline logic.
type Competition struct {
	Tag          string                 `json:"tag"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	RequiresFile bool                   `json:"requires_file"`
	Constraints  pipeline.ConstraintSet `json:"constraints"`
	// When true the category is derived from the school name via the
	// lookup table; otherwise the participant picks one of Categories.
	DerivedCategory bool     `json:"derived_category"`
	Categories      []string `json:"categories,omitempty"`
	// School/category pairs that are rejected at validation time.
	BlockedPairs map[string]string `json:"blocked_pairs,omitempty"`
}

// ScheduleItem is one row of the public event schedule.
type ScheduleItem struct {
	Time  string `json:"time"`
	Title string `json:"title"`
	Venue string `json:"venue"`
}

// EventConfig bundles the competition catalogue, the school lookup table
// and the marketing schedule served to the frontend.
type EventConfig struct {
	Competitions []Competition          `json:"competitions"`
	Schedule     []ScheduleItem         `json:"schedule"`
	Categories   pipeline.CategoryRules `json:"categories"`
}

var event *EventConfig

const (
	maxImageOrPDFBytes = 10 << 20  // 10MB for art/essay entries
	maxVideoBytes      = 100 << 20 // 100MB for performance entries
)

// defaultEvent returns the built-in catalogue used when config/event.json is absent.
func defaultEvent() *EventConfig {
	return &EventConfig{
		Competitions: []Competition{
			{
				Tag:          "poster",
				Name:         "Poster Design",
				Description:  "Design a poster on this year's German Day theme.",
				RequiresFile: true,
				Constraints: pipeline.ConstraintSet{
					MaxBytes:         maxImageOrPDFBytes,
					AllowedMIMETypes: []string{"image/jpeg", "image/png", "application/pdf"},
				},
				DerivedCategory: true,
			},
			{
				Tag:          "essay",
				Name:         "Essay Writing",
				Description:  "Submit an essay in German, PDF only.",
				RequiresFile: true,
				Constraints: pipeline.ConstraintSet{
					MaxBytes:         maxImageOrPDFBytes,
					AllowedMIMETypes: []string{"application/pdf"},
				},
				DerivedCategory: true,
			},
			{
				Tag:          "performance",
				Name:         "Performance Video",
				Description:  "Record a song, skit or dance performance.",
				RequiresFile: true,
				Constraints: pipeline.ConstraintSet{
					MaxBytes:         maxVideoBytes,
					AllowedMIMETypes: []string{"video/mp4", "video/quicktime", "video/webm"},
				},
				DerivedCategory: false,
				Categories:      []string{"Junior", "Senior", "Inter School"},
				// Host school entries compete in their own bracket, not Inter School.
				BlockedPairs: map[string]string{"DSD Partner School": "Inter School"},
			},
			{
				Tag:             "quiz",
				Name:            "German Quiz",
				Description:     "On-site team quiz, registration only.",
				RequiresFile:    false,
				DerivedCategory: true,
			},
		},
		Schedule: []ScheduleItem{
			{Time: "09:00", Title: "Opening ceremony", Venue: "Main auditorium"},
			{Time: "10:00", Title: "Poster and essay judging", Venue: "Hall B"},
			{Time: "12:30", Title: "Performance screenings", Venue: "Main auditorium"},
			{Time: "15:00", Title: "Quiz finals and prizes", Venue: "Main auditorium"},
		},
		Categories: pipeline.CategoryRules{
			Lookup: map[string]string{
				"dsd partner school": "DSD",
				"goethe institut":    "Goethe",
				"pasch school":       "PASCH",
			},
			Default: "Inter School",
		},
	}
}

// LoadEvent loads the competition catalogue, preferring config/event.json
// when present so organizers can adjust rules without a rebuild.
func LoadEvent() *EventConfig {
	if event != nil {
		return event
	}
	ev := defaultEvent()
	if f, err := os.Open(filepath.Join("config", "event.json")); err == nil {
		defer f.Close()
		var fileEv EventConfig
		if err := json.NewDecoder(f).Decode(&fileEv); err == nil {
			if len(fileEv.Competitions) > 0 {
				ev.Competitions = fileEv.Competitions
			}
			if len(fileEv.Schedule) > 0 {
				ev.Schedule = fileEv.Schedule
			}
			if len(fileEv.Categories.Lookup) > 0 {
				ev.Categories = fileEv.Categories
			}
		}
	}
	event = ev
	return event
}

// Event returns the cached catalogue, loading it if necessary.
func Event() *EventConfig {
	if event == nil {
		return LoadEvent()
	}
	return event
}

// Find returns the competition with the given tag.
func (e *EventConfig) Find(tag string) (Competition, bool) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, c := range e.Competitions {
		if c.Tag == tag {
			return c, true
		}
	}
	return Competition{}, false
}

// Tags lists all competition tags, the fixed enumeration submissions are kept under.
func (e *EventConfig) Tags() []string {
	tags := make([]string, 0, len(e.Competitions))
	for _, c := range e.Competitions {
		tags = append(tags, c.Tag)
	}
	return tags
}

// ResolveCategory applies the per-competition category rules: derived
// competitions ignore the requested category and use the school lookup,
// pick-your-own competitions validate the request against the allowed list
// and the blocked school/category pairs.
func (c Competition) ResolveCategory(school, requested string, rules pipeline.CategoryRules) (string, bool) {
	if c.DerivedCategory {
		return rules.CategoryFor(school), true
	}
	requested = strings.TrimSpace(requested)
	valid := false
	for _, cat := range c.Categories {
		if strings.EqualFold(cat, requested) {
			requested = cat
			valid = true
			break
		}
	}
	if !valid {
		return "", false
	}
	for blockedSchool, blockedCat := range c.BlockedPairs {
		if strings.EqualFold(blockedSchool, strings.TrimSpace(school)) && strings.EqualFold(blockedCat, requested) {
			return "", false
		}
	}
	return requested, true
}
