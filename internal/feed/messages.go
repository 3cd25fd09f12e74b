package feed

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/wirapratamaz/terminal-polyburg/internal/book"
)

// epochMillis tolerates the feed's two timestamp encodings: a bare number
// and a quoted decimal string.
type epochMillis int64

func (e *epochMillis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*e = 0
			return nil
		}
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*e = epochMillis(ms)
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	*e = epochMillis(ms)
	return nil
}

// flexString tolerates string-or-number fields (error codes vary by variant).
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(data)
	return nil
}

// envelope is the superset of fields across all inbound message shapes. The
// feed is not strongly typed at the transport boundary and different
// protocol variants use different discriminant names for the same semantic
// event, so classification sniffs shape first and tags second.
type envelope struct {
	EventType string `json:"event_type"`
	Type      string `json:"type"`
	Event     string `json:"event"`

	Market  string `json:"market"`
	AssetID string `json:"asset_id"`

	Bids []book.Level `json:"bids"`
	Asks []book.Level `json:"asks"`

	Price string `json:"price"`
	Size  string `json:"size"`
	Side  string `json:"side"`

	Timestamp epochMillis `json:"timestamp"`
	Hash      string      `json:"hash"`

	Code    flexString `json:"code"`
	Message string     `json:"message"`
}

// tag returns the message discriminant, trying the variant field names in
// their observed precedence.
func (e *envelope) tag() string {
	switch {
	case e.EventType != "":
		return e.EventType
	case e.Event != "":
		return e.Event
	default:
		return e.Type
	}
}

// PriceChange is the payload published on TopicPriceChange.
type PriceChange struct {
	InstrumentID string
	AssetID      string
	Price        string
	Size         string
	Side         string
	Timestamp    int64
}

// Trade is the payload published on TopicTrade.
type Trade struct {
	InstrumentID string
	AssetID      string
	Price        string
	Size         string
	Side         string
	Timestamp    int64
}

// Status is the payload published on TopicStatus for control frames.
type Status struct {
	Type    string
	Message string
}

// flattenFrame splits one transport frame into individual message objects.
// The feed batches: a frame is either a single JSON object or an array of
// objects.
func flattenFrame(raw []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var msgs []json.RawMessage
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, err
		}
		return msgs, nil
	}
	var msg json.RawMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, err
	}
	return []json.RawMessage{msg}, nil
}
