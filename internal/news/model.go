package news

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EventType string

const (
	EventCreate      EventType = "CREATE"
	EventLiked       EventType = "LIKED"
	EventFakeFlagged EventType = "FAKEFLAGGED"
)

// Event is the wire payload received from the message source. Feedback
// events (LIKED / FAKEFLAGGED) carry only Type, MessageID and UserID.
type Event struct {
	Type      EventType    `json:"type"`
	MessageID string       `json:"message_id"`
	UserID    string       `json:"userid"`
	URL       string       `json:"url"`
	Title     string       `json:"title"`
	Body      string       `json:"body"`
	Geo       *Coordinates `json:"geo"`
	Articles  []Event      `json:"articles"`
}

// DecodeEvent parses a raw message body. Some producers double-encode the
// payload (a JSON object serialized inside a JSON string); one extra
// unwrap handles that.
func DecodeEvent(body []byte) (Event, error) {
	var inner string
	if err := json.Unmarshal(body, &inner); err == nil {
		body = []byte(inner)
	}

	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.Type == "" {
		e.Type = EventCreate
	}
	return e, nil
}

// Coordinates is a GeoJSON position, [lon, lat]. Any other arity is
// rejected at decode time.
type Coordinates [2]float64

func (c *Coordinates) UnmarshalJSON(b []byte) error {
	var raw []float64
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("coordinates: expected 2 elements, got %d", len(raw))
	}
	c[0], c[1] = raw[0], raw[1]
	return nil
}

func (c Coordinates) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64(c))
}

// Document is one stored article: a GeoJSON FeatureCollection holding a
// single point Feature. Lookup key is properties.message_id, not _id.
type Document struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Type     string             `bson:"type" json:"type"`
	Features []Feature          `bson:"features" json:"features"`
}

type Feature struct {
	Type       string     `bson:"type" json:"type"`
	Geometry   Geometry   `bson:"geometry" json:"geometry"`
	Properties Properties `bson:"properties" json:"properties"`
}

type Geometry struct {
	Type        string      `bson:"type" json:"type"`
	Coordinates Coordinates `bson:"coordinates" json:"coordinates"`
}

type Properties struct {
	Density    int               `bson:"density" json:"density"`
	MessageID  string            `bson:"message_id" json:"message_id"`
	Title      string            `bson:"title" json:"title"`
	Summary    string            `bson:"summary" json:"summary"`
	Link       string            `bson:"link" json:"link"`
	Category   string            `bson:"category" json:"category"`
	UserID     string            `bson:"userid" json:"userid"`
	Likes      uint              `bson:"likes" json:"likes"`
	FakeFlags  uint              `bson:"fakeflags" json:"fakeflags"`
	Attributes map[string]string `bson:"attributes,omitempty" json:"attributes,omitempty"`
	Timestamp  float64           `bson:"timestamp" json:"timestamp"`
}

const defaultDensity = 5

// NewDocument assembles the stored FeatureCollection for an enriched article.
func NewDocument(coords Coordinates, props Properties, at time.Time) *Document {
	props.Density = defaultDensity
	props.Timestamp = float64(at.UnixNano()) / float64(time.Second)

	return &Document{
		Type: "FeatureCollection",
		Features: []Feature{
			{
				Type: "Feature",
				Geometry: Geometry{
					Type:        "Point",
					Coordinates: coords,
				},
				Properties: props,
			},
		},
	}
}

// Props returns the single feature's properties. Documents always carry
// exactly one feature.
func (d *Document) Props() *Properties {
	return &d.Features[0].Properties
}

// DefaultCredibility is assumed for any user without a stored record.
const DefaultCredibility = 50.0

type UserCredibility struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	UserID           string             `bson:"userid"`
	CredibilityScore float64            `bson:"credibility_score"`
}
