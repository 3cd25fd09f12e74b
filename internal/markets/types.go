package markets

import "encoding/json"

// Outcome is one tradable outcome token within an instrument. TokenID is the
// feed asset ID used as the subscription key on the streaming side; it joins
// the snapshot identifier space to the streaming identifier space.
type Outcome struct {
	Label   string
	TokenID string
	Price   string
}

// Instrument is a cleaned snapshot-API market record. Records that survive
// ingestion always have a ConditionID and at least one outcome with a
// non-empty TokenID.
type Instrument struct {
	ConditionID string
	QuestionID  string
	Question    string
	Description string
	Slug        string
	EndDate     string
	Active      bool
	Closed      bool
	Archived    bool
	Volume      string
	Volume24hr  string
	Outcomes    []Outcome
}

// rawMarket mirrors the snapshot API's wire shape. The outcome data arrives
// as three parallel arrays, each JSON-encoded inside a string field.
type rawMarket struct {
	ConditionID string `json:"conditionId"`
	QuestionID  string `json:"questionID"`
	Question    string `json:"question"`
	Description string `json:"description"`
	Slug        string `json:"slug"`
	EndDateIso  string `json:"endDateIso"`
	EndDate     string `json:"endDate"`
	Active      bool   `json:"active"`
	Closed      bool   `json:"closed"`
	Archived    bool   `json:"archived"`
	Volume      string `json:"volume"`
	Volume24hr  string `json:"volume24hr"`

	ClobTokenIDs  string `json:"clobTokenIds"`
	Outcomes      string `json:"outcomes"`
	OutcomePrices string `json:"outcomePrices"`
}

// instrument converts a raw record, zipping the parallel arrays into
// outcomes. It returns false for malformed records (missing identifier or no
// resolvable outcome tokens); those are filtered at ingestion and never
// reach consumers.
func (r rawMarket) instrument() (Instrument, bool) {
	if r.ConditionID == "" {
		return Instrument{}, false
	}

	labels := decodeStringArray(r.Outcomes)
	tokens := decodeStringArray(r.ClobTokenIDs)
	prices := decodeStringArray(r.OutcomePrices)

	outcomes := make([]Outcome, 0, len(labels))
	for i, label := range labels {
		if i >= len(tokens) || tokens[i] == "" {
			continue
		}
		o := Outcome{Label: label, TokenID: tokens[i]}
		if i < len(prices) {
			o.Price = prices[i]
		}
		outcomes = append(outcomes, o)
	}
	if len(outcomes) == 0 {
		return Instrument{}, false
	}

	endDate := r.EndDateIso
	if endDate == "" {
		endDate = r.EndDate
	}

	return Instrument{
		ConditionID: r.ConditionID,
		QuestionID:  r.QuestionID,
		Question:    r.Question,
		Description: r.Description,
		Slug:        r.Slug,
		EndDate:     endDate,
		Active:      r.Active,
		Closed:      r.Closed,
		Archived:    r.Archived,
		Volume:      r.Volume,
		Volume24hr:  r.Volume24hr,
		Outcomes:    outcomes,
	}, true
}

// decodeStringArray unwraps a JSON array encoded inside a string field.
// Fabricated or empty values decode to nil.
func decodeStringArray(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
