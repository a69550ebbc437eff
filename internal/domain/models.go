package domain

import (
	"encoding/json"
	"fmt"
)

// LngLat is a [longitude, latitude] pair, the GeoJSON axis order.
type LngLat [2]float64

// Geometry holds the outline of a quizzable region. Rings keeps the raw
// coordinate tuples rather than a fixed-size pair type so that malformed
// vertices survive parsing and can be handled (skipped, warned about) by the
// geo package instead of failing the whole dataset load.
type Geometry struct {
	Type  string
	Rings [][][]float64
}

type rawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// UnmarshalJSON accepts GeoJSON Polygon and MultiPolygon geometries. A
// MultiPolygon is flattened to its rings; ring grouping per polygon is not
// needed for adjacency or anchor-point lookups.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	var raw rawGeometry
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	g.Type = raw.Type
	g.Rings = nil

	switch raw.Type {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(raw.Coordinates, &rings); err != nil {
			return fmt.Errorf("polygon coordinates: %w", err)
		}
		g.Rings = rings
	case "MultiPolygon":
		var polygons [][][][]float64
		if err := json.Unmarshal(raw.Coordinates, &polygons); err != nil {
			return fmt.Errorf("multipolygon coordinates: %w", err)
		}
		for _, rings := range polygons {
			g.Rings = append(g.Rings, rings...)
		}
	default:
		return fmt.Errorf("unsupported geometry type %q", raw.Type)
	}
	return nil
}

// MarshalJSON writes the geometry back out as a GeoJSON Polygon.
func (g Geometry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        string        `json:"type"`
		Coordinates [][][]float64 `json:"coordinates"`
	}{Type: "Polygon", Coordinates: g.Rings})
}

// QuestionFeature is one quizzable region: static map data joined with the
// user's scheduling history. Scheduling fields are pointers; nil means
// "never asked". AnsweredThisSession is transient and never persisted.
type QuestionFeature struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Center   LngLat   `json:"center"`
	Geometry Geometry `json:"geometry"`

	LastAskDate *int64   `json:"lastAskDate,omitempty"` // epoch millis
	NextAskDate *int64   `json:"nextAskDate,omitempty"` // epoch millis
	LastScore   *float64 `json:"lastScore,omitempty"`   // in [0,1]

	AnsweredThisSession bool `json:"-"`
}

// QuestionProps is a partial update to a QuestionFeature's mutable fields.
// Nil pointers leave the existing value untouched.
type QuestionProps struct {
	LastAskDate         *int64
	NextAskDate         *int64
	LastScore           *float64
	AnsweredThisSession *bool
}

// WithProps returns a copy of the feature with the given props applied.
// Untouched fields are carried over unchanged; the original is not modified.
func (f QuestionFeature) WithProps(props QuestionProps) QuestionFeature {
	next := f
	if props.LastAskDate != nil {
		v := *props.LastAskDate
		next.LastAskDate = &v
	}
	if props.NextAskDate != nil {
		v := *props.NextAskDate
		next.NextAskDate = &v
	}
	if props.LastScore != nil {
		v := *props.LastScore
		next.LastScore = &v
	}
	if props.AnsweredThisSession != nil {
		next.AnsweredThisSession = *props.AnsweredThisSession
	}
	return next
}

// HistoryItem extracts the persisted subset of the feature's fields.
func (f QuestionFeature) HistoryItem() AnswerHistoryItem {
	return AnswerHistoryItem{
		ID:          f.ID,
		LastAskDate: f.LastAskDate,
		LastScore:   f.LastScore,
		NextAskDate: f.NextAskDate,
	}
}

// AnswerHistoryItem is the persisted subset of a question's scheduling state.
// Geometry, name and center are re-supplied from the static dataset each load
// and joined by ID.
type AnswerHistoryItem struct {
	ID          int64    `json:"id"`
	LastAskDate *int64   `json:"lastAskDate,omitempty"`
	LastScore   *float64 `json:"lastScore,omitempty"`
	NextAskDate *int64   `json:"nextAskDate,omitempty"`
}

// QuestionFeatureCollection is the static question dataset, a GeoJSON
// FeatureCollection fetched once at startup.
type QuestionFeatureCollection struct {
	Features []RawFeature
}

// RawFeature mirrors the wire shape of one feature in the collection.
type RawFeature struct {
	ID         int64    `json:"id"`
	Properties RawProps `json:"properties"`
	Geometry   Geometry `json:"geometry"`
}

// RawProps holds the static per-feature properties.
type RawProps struct {
	Name   string `json:"name"`
	Center LngLat `json:"center"`
}

type rawCollection struct {
	Type     string       `json:"type"`
	Features []RawFeature `json:"features"`
}

// UnmarshalJSON validates the collection shape at the boundary; internal code
// only ever sees typed QuestionFeatures.
func (c *QuestionFeatureCollection) UnmarshalJSON(data []byte) error {
	var raw rawCollection
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Type != "" && raw.Type != "FeatureCollection" {
		return fmt.Errorf("expected FeatureCollection, got %q", raw.Type)
	}
	c.Features = raw.Features
	return nil
}

// MarshalJSON writes the collection back out in GeoJSON form.
func (c QuestionFeatureCollection) MarshalJSON() ([]byte, error) {
	return json.Marshal(rawCollection{Type: "FeatureCollection", Features: c.Features})
}

// QuestionFeatures converts the raw collection into domain features.
func (c QuestionFeatureCollection) QuestionFeatures() []QuestionFeature {
	features := make([]QuestionFeature, 0, len(c.Features))
	for _, f := range c.Features {
		features = append(features, QuestionFeature{
			ID:       f.ID,
			Name:     f.Properties.Name,
			Center:   f.Properties.Center,
			Geometry: f.Geometry,
		})
	}
	return features
}

// TapEvent is a user action from the map layer. A nil Feature means the user
// gave up ("no idea") or tapped empty space.
type TapEvent struct {
	Feature     *QuestionFeature
	ClickCoords *LngLat
}

// SessionStats counts first answers per question within one session, bucketed
// by score: Wrong (0), Close (between 0 and 1), Right (1).
type SessionStats struct {
	Wrong int `json:"wrong"`
	Close int `json:"close"`
	Right int `json:"right"`
}

// Total is the number of distinct questions answered this session.
func (s SessionStats) Total() int {
	return s.Wrong + s.Close + s.Right
}

// String renders per-bucket percentages, for the end-of-review notice.
func (s SessionStats) String() string {
	total := s.Total()
	if total == 0 {
		return "no questions answered"
	}
	pct := func(count int) int {
		return int(float64(count)/float64(total)*100 + 0.5)
	}
	return fmt.Sprintf("Wrong: %d%% (%d)\nClose: %d%% (%d)\nRight: %d%% (%d)",
		pct(s.Wrong), s.Wrong, pct(s.Close), s.Close, pct(s.Right), s.Right)
}

// PageStats summarizes the whole question set for the UI: due now (in the
// session queue), scheduled for later, and never seen.
type PageStats struct {
	Now    int `json:"now"`
	Later  int `json:"later"`
	Unseen int `json:"unseen"`
}

// AnswerResult is what the UI shows after grading a tap.
type AnswerResult struct {
	Score       float64 `json:"score"`
	Text        string  `json:"text"`
	NextReview  string  `json:"nextReview"`  // humanized, e.g. "a week"
	NextAskDate int64   `json:"nextAskDate"` // epoch millis
	CorrectID   int64   `json:"correctId"`
	CorrectName string  `json:"correctName"`

	// PopupPoint anchors the "this was the answer" popup; set when the
	// answer was not exactly right and the geometry yields a top point.
	PopupPoint *LngLat `json:"popupPoint,omitempty"`

	// SessionComplete is set when this answer cleared a significant review
	// backlog; Stats then carries the session summary.
	SessionComplete bool          `json:"sessionComplete,omitempty"`
	Stats           *SessionStats `json:"stats,omitempty"`
}
