package response

import (
	"fmt"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/template"
)

// checkAnswers validates answers against the items of the evaluation template and
// returns them as stored Answers.
func checkAnswers(items []template.FullItem, answers []NewAnswer, blankAllowed, draft bool) ([]Answer, error) {
	itemsByID := make(map[string]template.FullItem, len(items))
	for _, fi := range items {
		itemsByID[fi.ID] = fi
	}

	var fldErrs []core.FieldError
	report := func(tiID, msg string) {
		fldErrs = append(fldErrs, core.FieldError{Field: "answers." + tiID, Error: msg})
	}

	answered := make(map[string]bool, len(answers))
	result := make([]Answer, 0, len(answers))
	for _, na := range answers {
		fi, ok := itemsByID[na.TemplateItemID]
		if !ok {
			report(na.TemplateItemID, "this item is not part of the evaluation")
			continue
		}
		if _, dup := answered[fi.ID]; dup {
			report(fi.ID, "this item is answered more than once")
			continue
		}

		ans := Answer{TemplateItemID: fi.ID, Numeric: na.Numeric, Text: na.Text, Multi: na.Multi}
		if msg := checkAnswer(fi, ans); msg != "" {
			report(fi.ID, msg)
			continue
		}
		answered[fi.ID] = !ans.IsBlank()
		if !ans.IsBlank() {
			result = append(result, ans)
		}
	}

	if !draft {
		for _, fi := range items {
			if !fi.IsAnswerable() || answered[fi.ID] {
				continue
			}
			if fi.Compulsory {
				report(fi.ID, "this item must be answered")
			} else if !blankAllowed {
				report(fi.ID, "all items must be answered")
			}
		}
	}

	if len(fldErrs) > 0 {
		return nil, core.NewValidationError(fmt.Errorf("%d invalid answers", len(fldErrs)), fldErrs...)
	}
	return result, nil
}

// checkAnswer returns why ans is not a valid answer to fi, if it is not.
func checkAnswer(fi template.FullItem, ans Answer) string {
	if ans.IsBlank() {
		return ""
	}
	if !fi.IsAnswerable() {
		return "header items take no answers"
	}
	if ans.IsNA() {
		if !fi.UsesNA {
			return "this item cannot be answered N/A"
		}
		if ans.Text != "" || len(ans.Multi) > 0 {
			return "an N/A answer takes no other value"
		}
		return ""
	}

	switch fi.Item.Classification {
	case template.ClassText:
		if ans.Numeric != nil || len(ans.Multi) > 0 {
			return "text items only take a text answer"
		}
	case template.ClassScaled, template.ClassMultipleChoice:
		if len(ans.Multi) > 0 || ans.Text != "" {
			return "this item takes a single option"
		}
		if fi.Scale == nil || !fi.Scale.InRange(*ans.Numeric) {
			return "option out of range"
		}
	case template.ClassMultipleAnswer:
		if ans.Numeric != nil || ans.Text != "" {
			return "this item takes a list of options"
		}
		seen := make(map[int]struct{}, len(ans.Multi))
		for _, idx := range ans.Multi {
			if fi.Scale == nil || !fi.Scale.InRange(idx) {
				return "option out of range"
			}
			if _, dup := seen[idx]; dup {
				return "options must be unique"
			}
			seen[idx] = struct{}{}
		}
	}
	return ""
}
