package results

import "time"

// ItemResult aggregates the answers to one template item.
type ItemResult struct {
	TemplateItemID string   `json:"template_item_id"`
	ItemID         string   `json:"item_id"`
	DisplayOrder   int      `json:"display_order"`
	Text           string   `json:"text"`
	Classification string   `json:"classification"`
	Options        []string `json:"options,omitempty"`
	Answers        int      `json:"answers"` // answered, N/A excluded
	NACount        int      `json:"na_count"`
	OptionCounts   []int    `json:"option_counts,omitempty"`
	Mean           *float64 `json:"mean,omitempty"`
	StdDev         *float64 `json:"std_dev,omitempty"`
	TextAnswers    []string `json:"text_answers,omitempty"`
}

type Results struct {
	EvaluationID string       `json:"evaluation_id"`
	Title        string       `json:"title"`
	GroupID      string       `json:"group_id,omitempty"`
	Responses    int          `json:"responses"`
	Enrolled     int          `json:"enrolled"`
	ResponseRate float64      `json:"response_rate"`
	Items        []ItemResult `json:"items"`
	GeneratedAt  time.Time    `json:"generated_at"` // UTC
}
