package extractor

import (
	"fmt"
	"sort"
	"strings"
)

// Selectors maps every product field to the markup that carries it.
type Selectors struct {
	Title           string
	Price           string
	Rating          string
	AboutThisItem   string
	Services        string
	Paragraph       string
	SpecContainer   string
	SpecSection     string
	SpecTable       string
	RatingBreakdown string
	FeatureBlock    string
	FeatureRating   string // XPath, relative to a feature block
	FeatureLabel    string
}

// DefaultSelectors returns the selectors for Flipkart product pages.
func DefaultSelectors() Selectors {
	return Selectors{
		Title:           ".VU-ZEz",
		Price:           "div.Nx9bqj.CxhGGd",
		Rating:          ".XQDdHH",
		AboutThisItem:   "div.xFVion ul li",
		Services:        "ul.C3EUFP li div.YhUgfO",
		Paragraph:       `div.yN\+eNk.w9jEaj p`,
		SpecContainer:   "div._1OjC5I",
		SpecSection:     "div.GNDEQ-",
		SpecTable:       "table._0ZhAN9",
		RatingBreakdown: `ul.\+psZUR li.fQ-FC1 div.BArk-j`,
		FeatureBlock:    "a.col-3-12.zbCsdp.zsSYMX",
		FeatureRating:   ".//*[local-name()='text' and contains(@class,'_2DdnFS')]",
		FeatureLabel:    "div.NTiEl0",
	}
}

func (s *Selectors) fields() map[string]*string {
	return map[string]*string{
		"title":            &s.Title,
		"price":            &s.Price,
		"rating":           &s.Rating,
		"about_this_item":  &s.AboutThisItem,
		"services":         &s.Services,
		"paragraph":        &s.Paragraph,
		"spec_container":   &s.SpecContainer,
		"spec_section":     &s.SpecSection,
		"spec_table":       &s.SpecTable,
		"rating_breakdown": &s.RatingBreakdown,
		"feature_block":    &s.FeatureBlock,
		"feature_rating":   &s.FeatureRating,
		"feature_label":    &s.FeatureLabel,
	}
}

// ApplyOverrides replaces selectors by key, e.g. {"title": "h1.name"}.
// Unknown keys and empty values are rejected.
func (s *Selectors) ApplyOverrides(overrides map[string]string) error {
	fields := s.fields()
	for key, value := range overrides {
		ptr, ok := fields[strings.ToLower(key)]
		if !ok {
			known := make([]string, 0, len(fields))
			for k := range fields {
				known = append(known, k)
			}
			sort.Strings(known)
			return fmt.Errorf("unknown selector %q (known: %s)", key, strings.Join(known, ", "))
		}
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("selector %q must not be empty", key)
		}
		*ptr = value
	}
	return nil
}
