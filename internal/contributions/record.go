package contributions

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// contributionRecord is the persisted flat object; parentContributionId encodes as null when absent.
type contributionRecord struct {
	ID                   string   `json:"id"`
	Contributor          string   `json:"contributor"`
	ProjectID            string   `json:"projectId"`
	Type                 string   `json:"type"`
	Description          string   `json:"description"`
	Timestamp            string   `json:"timestamp"`
	ParentContributionID *string  `json:"parentContributionId"`
	Tags                 []string `json:"tags"`
	Resonance            int      `json:"resonance"`
}

func newRecord(c Contribution) contributionRecord {
	record := contributionRecord{
		ID:          c.ID,
		Contributor: c.Contributor,
		ProjectID:   c.ProjectID,
		Type:        c.Type.String(),
		Description: c.Description,
		Timestamp:   c.FormattedTimestamp(),
		Tags:        c.Tags,
		Resonance:   c.Resonance,
	}
	if record.Tags == nil {
		record.Tags = []string{}
	}
	if c.ParentContributionID != "" {
		parent := c.ParentContributionID
		record.ParentContributionID = &parent
	}
	return record
}

func marshalRecord(record contributionRecord) ([]byte, error) {
	return json.Marshal(record)
}

// defaults carries the dependencies needed to fill constructor defaults.
type defaults struct {
	clock      func() time.Time
	idProvider IDProvider
}

// construct applies the constructor defaults shared by fresh creation and deserialization.
func (d defaults) construct(c Contribution) (Contribution, error) {
	if c.ID == "" {
		id, err := d.idProvider.NewID()
		if err != nil {
			return Contribution{}, fmt.Errorf("generate contribution id: %w", err)
		}
		c.ID = id
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = d.clock().UTC().Truncate(time.Millisecond)
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.Resonance < 0 {
		c.Resonance = 0
	}
	return c, nil
}

// fromRecord rebuilds a canonical contribution from a possibly older persisted record.
func (d defaults) fromRecord(record contributionRecord) (Contribution, error) {
	c := Contribution{
		ID:          record.ID,
		Contributor: record.Contributor,
		ProjectID:   record.ProjectID,
		Type:        ContributionType(record.Type),
		Description: record.Description,
		Tags:        record.Tags,
		Resonance:   record.Resonance,
	}
	if record.ParentContributionID != nil {
		c.ParentContributionID = *record.ParentContributionID
	}
	if parsed, ok := parseTimestamp(record.Timestamp); ok {
		c.Timestamp = parsed
	}
	return d.construct(c)
}

// decodeCollection fails only when the payload is not a JSON array. Records that are not
// objects, or that cannot be constructed, are dropped and reported through skipped.
func (d defaults) decodeCollection(payload []byte) (items []Contribution, skipped []error, err error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(payload, &raws); err != nil {
		return nil, nil, err
	}
	items = make([]Contribution, 0, len(raws))
	for index, raw := range raws {
		record, err := decodeRecord(raw)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("record %d: %w", index, err))
			continue
		}
		item, err := d.fromRecord(record)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("record %d: %w", index, err))
			continue
		}
		items = append(items, item)
	}
	return items, skipped, nil
}

// decodeRecord reads one persisted object field by field. A field holding the wrong JSON type
// is left at its zero value so the constructor default applies.
func decodeRecord(raw json.RawMessage) (contributionRecord, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return contributionRecord{}, err
	}
	if fields == nil {
		return contributionRecord{}, errors.New("record is null")
	}
	record := contributionRecord{
		ID:          decodeString(fields["id"]),
		Contributor: decodeString(fields["contributor"]),
		ProjectID:   decodeString(fields["projectId"]),
		Type:        decodeString(fields["type"]),
		Description: decodeString(fields["description"]),
		Timestamp:   decodeString(fields["timestamp"]),
		Tags:        decodeTags(fields["tags"]),
		Resonance:   decodeResonance(fields["resonance"]),
	}
	if parent := decodeString(fields["parentContributionId"]); parent != "" {
		record.ParentContributionID = &parent
	}
	return record, nil
}

func decodeString(raw json.RawMessage) string {
	var value string
	if len(raw) == 0 || json.Unmarshal(raw, &value) != nil {
		return ""
	}
	return value
}

// decodeTags accepts an array of strings or the form's comma-separated string.
func decodeTags(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return ParseTags(joined)
	}
	return nil
}

// decodeResonance truncates fractional numbers and accepts numeric strings.
func decodeResonance(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return clampResonance(number)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
			return clampResonance(parsed)
		}
	}
	return 0
}

func clampResonance(value float64) int {
	if math.IsNaN(value) || value <= 0 {
		return 0
	}
	if value >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(value)
}

func encodeCollection(items []Contribution) ([]byte, error) {
	records := make([]contributionRecord, 0, len(items))
	for _, item := range items {
		records = append(records, newRecord(item))
	}
	return json.Marshal(records)
}

// timestampLayouts lists the ISO-8601 forms accepted when reading persisted records.
// Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05Z07",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseTimestamp(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, trimmed)
		if err == nil {
			return parsed.UTC().Truncate(time.Millisecond), true
		}
	}
	return time.Time{}, false
}
