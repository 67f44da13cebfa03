package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Status describes how completely a field or page was extracted.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusBlocked Status = "blocked"
	StatusFailed  Status = "failed"
)

// Field names used as keys of ProductInfo.FieldStatus.
const (
	FieldTitle           = "title"
	FieldPrice           = "price"
	FieldRating          = "rating"
	FieldAboutThisItem   = "about_this_item"
	FieldServices        = "services"
	FieldParagraph       = "paragraph"
	FieldSpecifications  = "technical_specifications"
	FieldRatingBreakdown = "rating_breakdown"
	FieldFeatureRatings  = "feature_ratings"
)

// TitlePlaceholder is the title some upstream tools emit when no title
// was found. A product carrying it is treated as unusable.
const TitlePlaceholder = "Title not found"

// ProductInfo is the structured result of scraping one product page.
// When Error is set every other field is best-effort.
type ProductInfo struct {
	URL                     string             `json:"url" bson:"url"`
	Title                   string             `json:"title,omitempty" bson:"title,omitempty"`
	Price                   string             `json:"price,omitempty" bson:"price,omitempty"`
	Rating                  string             `json:"rating,omitempty" bson:"rating,omitempty"`
	AboutThisItem           []string           `json:"about_this_item" bson:"about_this_item"`
	Services                []string           `json:"services" bson:"services"`
	Paragraph               []string           `json:"paragraph" bson:"paragraph"`
	TechnicalSpecifications SpecTable          `json:"technical_specifications" bson:"technical_specifications"`
	RatingBreakdown         map[int]int        `json:"rating_breakdown" bson:"rating_breakdown"`
	FeatureRatings          map[string]float64 `json:"feature_ratings" bson:"feature_ratings"`
	Error                   string             `json:"error,omitempty" bson:"error,omitempty"`
	Status                  Status             `json:"status" bson:"status"`
	FieldStatus             map[string]Status  `json:"field_status" bson:"field_status"`
}

// NewProductInfo returns an empty ProductInfo for url with all
// collections initialized.
func NewProductInfo(url string) *ProductInfo {
	return &ProductInfo{
		URL:             url,
		AboutThisItem:   []string{},
		Services:        []string{},
		Paragraph:       []string{},
		RatingBreakdown: make(map[int]int),
		FeatureRatings:  make(map[string]float64),
		FieldStatus:     make(map[string]Status),
	}
}

// SetStatus records the extraction status of a single field.
func (p *ProductInfo) SetStatus(field string, s Status) {
	if p.FieldStatus == nil {
		p.FieldStatus = make(map[string]Status)
	}
	p.FieldStatus[field] = s
}

// Usable reports whether the product can be analyzed further.
func (p *ProductInfo) Usable() bool {
	if p == nil || p.Error != "" || p.Status == StatusBlocked {
		return false
	}
	title := strings.TrimSpace(p.Title)
	return title != "" && title != TitlePlaceholder
}

// Finalize derives the page-level Status from the per-field statuses.
// A blocked status is sticky.
func (p *ProductInfo) Finalize() {
	switch {
	case p.Status == StatusBlocked:
		return
	case p.Error != "":
		p.Status = StatusFailed
		return
	}
	p.Status = StatusOK
	for _, s := range p.FieldStatus {
		if s != StatusOK {
			p.Status = StatusPartial
			return
		}
	}
}

// SpecEntry is one row of a technical specification table.
type SpecEntry struct {
	Key   string `json:"key" bson:"key"`
	Value string `json:"value" bson:"value"`
}

// SpecTable keeps specification rows in page order. It encodes to a JSON
// object whose keys appear in that order.
type SpecTable []SpecEntry

// Get returns the value for key.
func (t SpecTable) Get(key string) (string, bool) {
	for _, e := range t {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Set replaces the value for an existing key or appends a new row.
func (t *SpecTable) Set(key, value string) {
	for i := range *t {
		if (*t)[i].Key == key {
			(*t)[i].Value = value
			return
		}
	}
	*t = append(*t, SpecEntry{Key: key, Value: value})
}

func (t SpecTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t *SpecTable) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*t = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("spec table: expected object, got %v", tok)
	}
	out := SpecTable{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := kt.(string)
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("spec table key %q: %w", key, err)
		}
		out = append(out, SpecEntry{Key: key, Value: value})
	}
	*t = out
	return nil
}

// Review is one customer review card.
type Review struct {
	Rating    string `json:"rating" bson:"rating"`
	Summary   string `json:"summary" bson:"summary"`
	Review    string `json:"review" bson:"review"`
	Location  string `json:"location" bson:"location"`
	Date      string `json:"date" bson:"date"`
	Upvotes   string `json:"upvotes" bson:"upvotes"`
	Downvotes string `json:"downvotes" bson:"downvotes"`
}

// ShoppingResult is one similar-product search hit.
type ShoppingResult struct {
	Title   string `json:"title" bson:"title"`
	Price   string `json:"price" bson:"price"`
	Rating  any    `json:"rating" bson:"rating"`
	Reviews any    `json:"reviews" bson:"reviews"`
	Source  string `json:"source" bson:"source"`
	Link    string `json:"link" bson:"link"`
}

// VideoResult is one video search hit.
type VideoResult struct {
	Title         string `json:"title" bson:"title"`
	Link          string `json:"link" bson:"link"`
	Channel       string `json:"channel" bson:"channel"`
	PublishedDate string `json:"published_date" bson:"published_date"`
	Description   string `json:"description" bson:"description"`
}
