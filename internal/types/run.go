package types

import "time"

// RunState is the position of an analysis run in its lifecycle.
type RunState string

const (
	StateIdle             RunState = "idle"
	StateExtracting       RunState = "extracting"
	StateEnriching        RunState = "enriching"
	StateClassifying      RunState = "classifying"
	StateReviewFetching   RunState = "review_fetching"
	StateReportGenerating RunState = "report_generating"
	StateDone             RunState = "done"
	StateFailed           RunState = "failed"
)

// ClassificationError is the marker stored when the classifier reply
// could not be parsed as JSON.
const ClassificationError = "Invalid JSON response from LLM"

// Classification is the LLM's category verdict for a product.
type Classification struct {
	ProductClassifier string   `json:"product_classifier,omitempty" bson:"product_classifier,omitempty"`
	RelevantItems     []string `json:"relevant_items,omitempty" bson:"relevant_items,omitempty"`
	Error             string   `json:"error,omitempty" bson:"error,omitempty"`
}

// Category returns the classifier label, or "" when classification failed.
func (c *Classification) Category() string {
	if c == nil || c.Error != "" {
		return ""
	}
	return c.ProductClassifier
}

// CustomerProfile is the single customer profile loaded from disk.
type CustomerProfile struct {
	UserID        string                    `json:"user_id" validate:"omitempty,max=128"`
	Name          string                    `json:"name"`
	Location      string                    `json:"location"`
	ReviewTone    any                       `json:"review_tone"`
	DecisionStyle any                       `json:"decision_style"`
	Categories    map[string]map[string]any `json:"categories"`
}

// CustomerData is a profile projected onto one product category.
type CustomerData struct {
	UserID        string         `json:"user_id" bson:"user_id"`
	Name          string         `json:"name" bson:"name"`
	Location      string         `json:"location" bson:"location"`
	ReviewTone    any            `json:"review_tone" bson:"review_tone"`
	DecisionStyle any            `json:"decision_style" bson:"decision_style"`
	Preferences   map[string]any `json:"preferences" bson:"preferences"`
}

// RelevantSearch is the shopping search for one relevant item, kept in the
// order the classifier listed the items.
type RelevantSearch struct {
	Item    string           `json:"item" bson:"item"`
	Results []ShoppingResult `json:"results" bson:"results"`
}

// CombinedRecord is everything known about a product, assembled once per
// run and read-only afterwards.
type CombinedRecord struct {
	ClassificationResult Classification   `json:"classification_result" bson:"classification_result"`
	ProductInfo          *ProductInfo     `json:"product_info" bson:"product_info"`
	Specifications       SpecTable        `json:"specifications" bson:"specifications"`
	Reviews              []Review         `json:"reviews" bson:"reviews"`
	SimilarItems         []ShoppingResult `json:"similar_items" bson:"similar_items"`
	YoutubeVideos        []VideoResult    `json:"youtube_videos" bson:"youtube_videos"`
	RelevantSearchItems  []RelevantSearch `json:"relevant_search_items" bson:"relevant_search_items"`
	CustomerData         CustomerData     `json:"customer_data" bson:"customer_data"`
}

// Run carries every intermediate result of one analysis.
type Run struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	State      RunState  `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`

	Product        *ProductInfo     `json:"product,omitempty"`
	SimilarItems   []ShoppingResult `json:"similar_items,omitempty"`
	Videos         []VideoResult    `json:"videos,omitempty"`
	Classification Classification   `json:"classification"`
	Reviews        []Review         `json:"reviews,omitempty"`
	RelevantItems  []RelevantSearch `json:"relevant_items,omitempty"`
	Customer       CustomerData     `json:"customer"`
	Record         *CombinedRecord  `json:"record,omitempty"`
	Markdown       string           `json:"markdown,omitempty"`

	Err error `json:"-"`
}

// NewRun returns an idle run for url.
func NewRun(id, url string) *Run {
	return &Run{
		ID:        id,
		URL:       url,
		State:     StateIdle,
		StartedAt: time.Now().UTC(),
	}
}

// Report is the archived form of a finished run.
type Report struct {
	RunID     string          `json:"run_id" bson:"run_id"`
	URL       string          `json:"url" bson:"url"`
	Category  string          `json:"category" bson:"category"`
	Markdown  string          `json:"markdown" bson:"markdown"`
	Record    *CombinedRecord `json:"record" bson:"record"`
	CreatedAt time.Time       `json:"created_at" bson:"created_at"`
}

// NewReport builds the archive record for a finished run.
func NewReport(run *Run) *Report {
	return &Report{
		RunID:     run.ID,
		URL:       run.URL,
		Category:  run.Classification.Category(),
		Markdown:  run.Markdown,
		Record:    run.Record,
		CreatedAt: run.FinishedAt,
	}
}

// ChatEntry is one row of the chat history log.
type ChatEntry struct {
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
	Question  string `json:"question"`
	Response  string `json:"conversation_response"`
}
