package tools

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// NoneInserted is the sentinel used when a prediction row carries no inserted
// sequence.
const NoneInserted = "none inserted"

// DefaultTopPredictions bounds the number of records kept when the caller does
// not specify a limit.
const DefaultTopPredictions = 10

// MutationClass classifies a predicted mutation outcome by its outcome code.
type MutationClass int

const (
	Insertion1bp MutationClass = iota
	InsertionMulti
	DeletionShort
	DeletionMedium
	DeletionLong
	OtherOutcome
)

func (c MutationClass) String() string {
	switch c {
	case Insertion1bp:
		return "Insertion (1 bp)"
	case InsertionMulti:
		return "Insertion (>1 bp)"
	case DeletionShort:
		return "Deletion (1-2 bp)"
	case DeletionMedium:
		return "Deletion (3-9 bp)"
	case DeletionLong:
		return "Deletion (>9 bp)"
	default:
		return "Other"
	}
}

// MarshalJSON renders the class as its human-readable label so tool results
// stay legible to the model.
func (c MutationClass) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(c.String())), nil
}

// OutcomeRecord is one classified, scored prediction row.
type OutcomeRecord struct {
	Outcome  string        `json:"outcome"`
	Class    MutationClass `json:"type"`
	Inserted string        `json:"inserted"`
	Score    float64       `json:"score"`
}

var deletionSizeRe = regexp.MustCompile(`D(\d+)`)

// ClassifyOutcome maps an outcome code to its mutation class. The match is a
// case-sensitive prefix match; a D code without digits counts as size 0.
func ClassifyOutcome(code string) MutationClass {
	switch {
	case strings.HasPrefix(code, "I1"):
		return Insertion1bp
	case strings.HasPrefix(code, "I"):
		return InsertionMulti
	case strings.HasPrefix(code, "D"):
		size := 0
		if m := deletionSizeRe.FindStringSubmatch(code); m != nil {
			size, _ = strconv.Atoi(m[1])
		}
		switch {
		case size <= 2:
			return DeletionShort
		case size <= 9:
			return DeletionMedium
		default:
			return DeletionLong
		}
	default:
		return OtherOutcome
	}
}

// NormalizeOutcomes parses the row-text payload returned by the forecasting
// APIs into classified, ranked records and a rendered summary.
//
// The first line is a header and is discarded. Each remaining line must carry
// at least four comma-delimited fields: [unused, outcome code, inserted
// sequence, score]. Rows with too few fields or an unparseable score are
// skipped silently so partial payloads stay useful. Records are sorted by
// score descending (stable, so payload order breaks ties) and truncated to
// topK.
func NormalizeOutcomes(raw string, topK int) ([]OutcomeRecord, string) {
	if topK <= 0 {
		topK = DefaultTopPredictions
	}

	lines := strings.Split(strings.TrimSpace(raw), "\n")
	var records []OutcomeRecord
	for i, line := range lines {
		if i == 0 {
			continue // header
		}
		fields := strings.Split(line, ",")
		if len(fields) < 4 {
			continue
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
		if err != nil {
			continue
		}
		inserted := strings.TrimSpace(fields[2])
		if inserted == "" {
			inserted = NoneInserted
		}
		outcome := strings.TrimSpace(fields[1])
		records = append(records, OutcomeRecord{
			Outcome:  outcome,
			Class:    ClassifyOutcome(outcome),
			Inserted: inserted,
			Score:    score,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Score > records[j].Score
	})
	if len(records) > topK {
		records = records[:topK]
	}

	return records, renderOutcomeSummary(records)
}

// renderOutcomeSummary produces the assistant-facing enumeration of the kept
// records. The model quotes these lines verbatim, so the format is load-bearing.
func renderOutcomeSummary(records []OutcomeRecord) string {
	if len(records) == 0 {
		return "No valid predictions were returned."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top %d predicted editing outcomes:\n", len(records))
	for i, rec := range records {
		desc := rec.Inserted
		if desc != NoneInserted {
			desc = "inserted " + desc
		}
		fmt.Fprintf(&b, "%d. %s %s, %s, score %.2f\n", i+1, rec.Class, rec.Outcome, desc, rec.Score)
	}
	return strings.TrimRight(b.String(), "\n")
}
