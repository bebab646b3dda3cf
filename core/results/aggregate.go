package results

import (
	"math"

	"github.com/trezcool/tathmini/core/response"
	"github.com/trezcool/tathmini/core/template"
)

// aggregate computes the results of the completed responses over items; headers are skipped.
func aggregate(items []template.FullItem, responses []response.Response) []ItemResult {
	answersByItem := make(map[string][]response.Answer, len(items))
	for _, r := range responses {
		if !r.IsComplete() {
			continue
		}
		for _, a := range r.Answers {
			answersByItem[a.TemplateItemID] = append(answersByItem[a.TemplateItemID], a)
		}
	}

	res := make([]ItemResult, 0, len(items))
	for _, fi := range items {
		if !fi.IsAnswerable() {
			continue
		}
		ir := ItemResult{
			TemplateItemID: fi.ID,
			ItemID:         fi.Item.ID,
			DisplayOrder:   fi.DisplayOrder,
			Text:           fi.Item.Text,
			Classification: fi.Item.Classification,
		}
		if fi.Scale != nil {
			ir.Options = fi.Scale.Options
			ir.OptionCounts = make([]int, len(fi.Scale.Options))
		}

		var values []float64
		for _, a := range answersByItem[fi.ID] {
			if a.IsNA() {
				ir.NACount++
				continue
			}
			switch fi.Item.Classification {
			case template.ClassText:
				if a.Text == "" {
					continue
				}
				ir.TextAnswers = append(ir.TextAnswers, a.Text)
			case template.ClassMultipleAnswer:
				if len(a.Multi) == 0 {
					continue
				}
				for _, idx := range a.Multi {
					if idx >= 0 && idx < len(ir.OptionCounts) {
						ir.OptionCounts[idx]++
					}
				}
			default:
				if a.Numeric == nil {
					continue
				}
				idx := *a.Numeric
				if idx < 0 || idx >= len(ir.OptionCounts) {
					continue
				}
				ir.OptionCounts[idx]++
				values = append(values, float64(idx))
			}
			ir.Answers++
		}

		if fi.Item.Classification == template.ClassScaled && len(values) > 0 {
			mean, stdDev := meanStdDev(values)
			ir.Mean, ir.StdDev = &mean, &stdDev
		}
		res = append(res, ir)
	}
	return res
}

// meanStdDev returns the mean and the population standard deviation of values.
func meanStdDev(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return round(mean), round(math.Sqrt(sq / float64(len(values))))
}

func round(f float64) float64 {
	return math.Round(f*1000) / 1000
}
