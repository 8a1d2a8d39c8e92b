package shipmatrix

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"gorsi/lib/fuzzy"
	"gorsi/lib/htmlutil"
	"gorsi/lib/telemetry"

	"github.com/PuerkitoBio/goquery"
)

// LoanerException restricts a "Series"/"Variants" loaner line to the ships of the
// series whose name contains Variant.
type LoanerException struct {
	// Ship is matched as a prefix of the line's ship column.
	Ship    string
	Variant string
}

var DefaultLoanerExceptions = []LoanerException{
	{Ship: "600i Series", Variant: "Explorer"},
}

var dashReplacer = strings.NewReplacer(
	"\u00a0", " ",
	"â€“", "-",
	"\u2013", "-",
)

// loanerLines returns the normalized text of each entry of the loaner list, the
// second list of the article body.
func loanerLines(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	list := doc.Find(".article-body ul").Eq(1)
	if list.Length() == 0 {
		return nil, fmt.Errorf("loaner list not found")
	}

	var lines []string
	list.Find("li").Each(func(_ int, li *goquery.Selection) {
		lines = append(lines, dashReplacer.Replace(strings.TrimSpace(li.Text())))
	})
	return lines, nil
}

type loanerEntry struct {
	ship    string
	loaners []string
}

// expandLoanerLine turns a line like "Cutlass Black & Red - Dragonfly Black" into
// one entry per ship named by its left column.
func expandLoanerLine(line string, labels []string, exceptions []LoanerException) ([]loanerEntry, error) {
	left, right, ok := strings.Cut(line, " - ")
	if !ok {
		return nil, fmt.Errorf("malformed loaner line %q", line)
	}
	left = htmlutil.NormalizeSpace(left)
	right = strings.ReplaceAll(htmlutil.NormalizeSpace(right), "Passenger", "Personnel")
	if left == "" || right == "" {
		return nil, fmt.Errorf("malformed loaner line %q", line)
	}
	loaners := strings.Split(right, ", ")

	switch {
	case strings.Contains(left, "Variants") || strings.Contains(left, "Series"):
		variant := ""
		for _, ex := range exceptions {
			if strings.HasPrefix(left, ex.Ship) {
				variant = ex.Variant
				break
			}
		}

		var entries []loanerEntry
		series := strings.Fields(left)[0]
		for _, match := range fuzzy.Extract(series, labels, fuzzy.DefaultCutoff, 0) {
			if slices.Contains(loaners, match.Label) {
				continue
			}
			if variant != "" && !strings.Contains(match.Label, variant) {
				continue
			}
			entries = append(entries, loanerEntry{ship: match.Label, loaners: loaners})
		}
		return entries, nil
	case strings.ContainsAny(left, "&,/"):
		parts := strings.FieldsFunc(left, func(r rune) bool {
			return r == '&' || r == ',' || r == '/'
		})
		var names []string
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				names = append(names, p)
			}
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("malformed loaner line %q", line)
		}

		// "P-52 & 72" means P-72, "Cutlass Black & Red" means Cutlass Red
		var stem string
		if head, _, found := strings.Cut(names[0], "-"); found {
			stem = head + "-"
		} else {
			stem = strings.Fields(names[0])[0] + " "
		}

		entries := make([]loanerEntry, len(names))
		for i, name := range names {
			if i > 0 && !strings.HasPrefix(name, stem) {
				name = stem + name
			}
			entries[i] = loanerEntry{ship: name, loaners: loaners}
		}
		return entries, nil
	default:
		return []loanerEntry{{ship: left, loaners: loaners}}, nil
	}
}

// reconcileLoaners assigns the loaners of each line to the matching ships and
// returns how many ships were assigned loaners. Lines or names that cannot be
// matched are reported and skipped.
func reconcileLoaners(ships []Ship, lines []string, exceptions []LoanerException, tel telemetry.API) int {
	labels := make([]string, len(ships))
	for i, s := range ships {
		labels[i] = s.Name
	}

	assigned := map[int]struct{}{}
	for _, line := range lines {
		entries, err := expandLoanerLine(line, labels, exceptions)
		if err != nil {
			tel.ReportWarning(report_shipmatrix_loaners, err)
			continue
		}

		for _, entry := range entries {
			ship, ok := fuzzy.ExtractOne(entry.ship, labels, fuzzy.DefaultCutoff)
			if !ok {
				tel.ReportWarning(report_shipmatrix_loaners, fmt.Errorf("no ship matches %q", entry.ship))
				continue
			}

			refs := []LoanerRef{}
			for _, name := range entry.loaners {
				loaner, ok := fuzzy.ExtractOne(name, labels, fuzzy.DefaultCutoff)
				if !ok {
					tel.ReportWarning(report_shipmatrix_loaners, fmt.Errorf("no loaner matches %q", name))
					continue
				}
				refs = append(refs, LoanerRef{
					ID:   int(ships[loaner.Index].ID),
					Name: ships[loaner.Index].Name,
				})
			}
			ships[ship.Index].Loaners = refs
			assigned[ship.Index] = struct{}{}
		}
	}
	return len(assigned)
}
