package results

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tathmini/core/response"
	"github.com/trezcool/tathmini/core/scale"
	"github.com/trezcool/tathmini/core/template"
)

func iPtr(i int) *int { return &i }

func TestAggregate(t *testing.T) {
	agreement := &scale.Scale{ID: "s1", Options: []string{"Disagree", "Neutral", "Agree"}}
	items := []template.FullItem{
		{
			TemplateItem: template.TemplateItem{ID: "ti0", DisplayOrder: 1},
			Item:         template.Item{ID: "i0", Text: "Course", Classification: template.ClassHeader},
		},
		{
			TemplateItem: template.TemplateItem{ID: "ti1", DisplayOrder: 2, UsesNA: true},
			Item:         template.Item{ID: "i1", Text: "Clear goals", Classification: template.ClassScaled, ScaleID: "s1"},
			Scale:        agreement,
		},
		{
			TemplateItem: template.TemplateItem{ID: "ti2", DisplayOrder: 3},
			Item:         template.Item{ID: "i2", Text: "Topics liked", Classification: template.ClassMultipleAnswer, ScaleID: "s1"},
			Scale:        agreement,
		},
		{
			TemplateItem: template.TemplateItem{ID: "ti3", DisplayOrder: 4},
			Item:         template.Item{ID: "i3", Text: "Comments", Classification: template.ClassText},
		},
	}
	now := time.Now()
	responses := []response.Response{
		{EndTime: &now, Answers: []response.Answer{
			{TemplateItemID: "ti1", Numeric: iPtr(2)},
			{TemplateItemID: "ti2", Multi: []int{0, 2}},
			{TemplateItemID: "ti3", Text: "Great"},
		}},
		{EndTime: &now, Answers: []response.Answer{
			{TemplateItemID: "ti1", Numeric: iPtr(0)},
			{TemplateItemID: "ti2", Multi: []int{2}},
		}},
		{EndTime: &now, Answers: []response.Answer{
			{TemplateItemID: "ti1", Numeric: iPtr(response.NA)},
		}},
		// drafts are ignored
		{Answers: []response.Answer{{TemplateItemID: "ti1", Numeric: iPtr(1)}}},
	}

	res := aggregate(items, responses)
	require.Len(t, res, 3)

	scaled := res[0]
	assert.Equal(t, "ti1", scaled.TemplateItemID)
	assert.Equal(t, 2, scaled.Answers)
	assert.Equal(t, 1, scaled.NACount)
	assert.Equal(t, []int{1, 0, 1}, scaled.OptionCounts)
	require.NotNil(t, scaled.Mean)
	assert.Equal(t, 1.0, *scaled.Mean)
	assert.Equal(t, 1.0, *scaled.StdDev)

	multi := res[1]
	assert.Equal(t, 2, multi.Answers)
	assert.Equal(t, []int{1, 0, 2}, multi.OptionCounts)
	assert.Nil(t, multi.Mean)

	text := res[2]
	assert.Equal(t, 1, text.Answers)
	assert.Equal(t, []string{"Great"}, text.TextAnswers)
}

func TestWriteCSV(t *testing.T) {
	mean, stdDev := 1.5, 0.5
	res := Results{Items: []ItemResult{
		{
			DisplayOrder: 1, Text: "Clear goals", Classification: template.ClassScaled,
			Options: []string{"No", "Yes"}, OptionCounts: []int{1, 3}, Answers: 4, Mean: &mean, StdDev: &stdDev,
		},
		{DisplayOrder: 2, Text: "Comments, if any", Classification: template.ClassText, Answers: 1, TextAnswers: []string{"ok"}},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, res))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "order,item,classification,answers,na,mean,std_dev,option_counts,text_answers", lines[0])
	assert.Equal(t, "1,Clear goals,scaled,4,0,1.5,0.5,No: 1; Yes: 3,", lines[1])
	assert.Equal(t, `2,"Comments, if any",text,1,0,,,,ok`, lines[2])
}
