package score

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/signalbid/oie/internal/models"
)

// Deadline buckets, ordered by urgency.
const (
	BucketImmediate = "immediate"
	BucketNearTerm  = "near_term"
	BucketPlanning  = "planning"
	BucketUnknown   = "unknown"
)

// Budget buckets.
const (
	BudgetMicro      = "micro"
	BudgetSmall      = "small"
	BudgetMid        = "mid"
	BudgetEnterprise = "enterprise"
)

// Decisions.
const (
	DecisionGo    = "GO"
	DecisionMaybe = "MAYBE"
	DecisionNoGo  = "NO_GO"
)

// Scorer applies the deterministic scoring rules to a candidate.
// Now is overridable for tests; it defaults to time.Now in UTC.
type Scorer struct {
	Now func() time.Time
}

func NewScorer() *Scorer {
	return &Scorer{Now: func() time.Time { return time.Now().UTC() }}
}

// Process scores a candidate and returns the enriched record. The
// candidate itself is not modified.
func (s *Scorer) Process(c models.CandidateRecord) models.ScoredRecord {
	rec := models.ScoredRecord{CandidateRecord: c}

	if iso, ok := NormalizeDeadline(c.RawDeadlineText); ok {
		rec.Deadline = &iso
	}
	rec.DeadlineBucket = DeadlineBucket(deref(rec.Deadline), s.Now())

	if value, ok := ExtractBudget(c.Description); ok {
		rec.BudgetValue = &value
		rec.BudgetBucket = BudgetBucket(value)
	} else {
		rec.BudgetBucket = BucketUnknown
	}

	rec.Decision = Decide(rec.DeadlineBucket, rec.BudgetBucket)
	rec.OneLiner = oneLiner(rec)
	rec.Tags = tags(rec)
	return rec
}

var (
	isoDateRe   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	usDateRe    = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})`)
	longDateRe  = regexp.MustCompile(`(?i)^([A-Za-z]+)\s+(\d{1,2}),\s+(\d{4})`)
	monthByName = map[string]string{
		"january": "01", "february": "02", "march": "03", "april": "04",
		"may": "05", "june": "06", "july": "07", "august": "08",
		"september": "09", "october": "10", "november": "11", "december": "12",
	}
)

// NormalizeDeadline converts heterogeneous deadline text into an ISO
// calendar date. It is intentionally a best-effort normalizer, not a
// full date parser: ambiguous or partial dates come back as unknown
// rather than guessed.
func NormalizeDeadline(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	if isoDateRe.MatchString(raw) {
		return raw, true
	}

	if m := usDateRe.FindStringSubmatch(raw); m != nil {
		return fmt.Sprintf("%s-%s-%s", m[3], zeroPad(m[1]), zeroPad(m[2])), true
	}

	if m := longDateRe.FindStringSubmatch(raw); m != nil {
		month, ok := monthByName[strings.ToLower(m[1])]
		if ok {
			return fmt.Sprintf("%s-%s-%s", m[3], month, zeroPad(m[2])), true
		}
	}

	return "", false
}

func zeroPad(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// budgetPatterns are tried in priority order; the first one matching
// anywhere in the text wins.
var budgetPatterns = []struct {
	re         *regexp.Regexp
	multiplier float64
}{
	{regexp.MustCompile(`(?i)\$\s*([\d,]+(?:\.\d+)?)\s*m(?:illion)?`), 1_000_000},
	{regexp.MustCompile(`(?i)\$\s*([\d,]+(?:\.\d+)?)\s*k`), 1_000},
	{regexp.MustCompile(`(?i)\$\s*([\d,]+(?:\.\d+)?)`), 1},
	{regexp.MustCompile(`(?i)USD\s*([\d,]+(?:\.\d+)?)\s*m(?:illion)?`), 1_000_000},
	{regexp.MustCompile(`(?i)USD\s*([\d,]+(?:\.\d+)?)\s*k`), 1_000},
	{regexp.MustCompile(`(?i)USD\s*([\d,]+(?:\.\d+)?)`), 1},
}

// ExtractBudget scans free text for the first currency-amount mention
// and resolves it to a USD estimate. A matched pattern whose number
// fails to parse falls through to the next pattern.
func ExtractBudget(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}
	for _, p := range budgetPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		return value * p.multiplier, true
	}
	return 0, false
}

// DeadlineBucket classifies an ISO date by days remaining. A deadline
// already in the past still lands in "immediate"; there is no
// separate expired bucket.
func DeadlineBucket(iso string, now time.Time) string {
	if iso == "" {
		return BucketUnknown
	}
	if len(iso) > 10 {
		iso = iso[:10]
	}
	deadline, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return BucketUnknown
	}

	days := int(math.Floor(deadline.Sub(now).Hours() / 24))
	switch {
	case days < 7:
		return BucketImmediate
	case days < 30:
		return BucketNearTerm
	default:
		return BucketPlanning
	}
}

// BudgetBucket classifies a USD estimate into a size band.
func BudgetBucket(value float64) string {
	switch {
	case value < 50_000:
		return BudgetMicro
	case value < 250_000:
		return BudgetSmall
	case value < 1_000_000:
		return BudgetMid
	default:
		return BudgetEnterprise
	}
}

// Decide combines the two buckets into a verdict. Rules are evaluated
// top-down; the first match wins.
func Decide(deadlineBucket, budgetBucket string) string {
	if deadlineBucket == BucketPlanning &&
		(budgetBucket == BudgetMid || budgetBucket == BudgetEnterprise) {
		return DecisionGo
	}
	if (deadlineBucket == BucketNearTerm || deadlineBucket == BucketPlanning) &&
		(budgetBucket == BudgetSmall || budgetBucket == BudgetMid) {
		return DecisionMaybe
	}
	return DecisionNoGo
}

func oneLiner(rec models.ScoredRecord) string {
	org := rec.BuyerOrg
	if org == "" {
		org = "Unknown"
	}
	return fmt.Sprintf("%s opportunity - %s budget, %s deadline",
		org, rec.BudgetBucket, rec.DeadlineBucket)
}

// tags builds the five searchable tokens in their fixed order.
func tags(rec models.ScoredRecord) []string {
	return []string{
		"decision_" + orDefault(rec.Decision, DecisionNoGo),
		"buyer_" + orDefault(rec.BuyerType, BucketUnknown),
		"budget_" + orDefault(rec.BudgetBucket, BucketUnknown),
		"region_" + orDefault(rec.Region, BucketUnknown),
		"deadline_" + orDefault(rec.DeadlineBucket, BucketUnknown),
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
