package results

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var csvHeader = []string{
	"order", "item", "classification", "answers", "na", "mean", "std_dev", "option_counts", "text_answers",
}

// WriteCSV writes one row per item result.
func WriteCSV(w io.Writer, res Results) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return errors.Wrap(err, "writing csv header")
	}

	formatFloat := func(f *float64) string {
		if f == nil {
			return ""
		}
		return strconv.FormatFloat(*f, 'f', -1, 64)
	}
	for _, ir := range res.Items {
		counts := make([]string, len(ir.OptionCounts))
		for i, c := range ir.OptionCounts {
			counts[i] = ir.Options[i] + ": " + strconv.Itoa(c)
		}
		row := []string{
			strconv.Itoa(ir.DisplayOrder),
			ir.Text,
			ir.Classification,
			strconv.Itoa(ir.Answers),
			strconv.Itoa(ir.NACount),
			formatFloat(ir.Mean),
			formatFloat(ir.StdDev),
			strings.Join(counts, "; "),
			strings.Join(ir.TextAnswers, " | "),
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "writing csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}
