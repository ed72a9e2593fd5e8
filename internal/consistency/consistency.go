// Package consistency reconciles normalized values across records that
// describe the same real-world entity. It never second-guesses a single
// extraction; it only reports where extractions disagree with each other.
package consistency

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dverna/verita/internal/policy"
	"github.com/dverna/verita/internal/review"
	"github.com/dverna/verita/internal/score"
	"github.com/dverna/verita/pkg/types"
)

const unknownPage = 1 << 30

// Check groups scored records by entity key and raises one issue per
// (entity, field) with conflicting canonical values, plus intra-record sign
// checks on refund transactions. Inconsistency issues carry no confidence:
// picking the right variant is not a property of any single extraction.
func Check(p policy.Policy, records []score.RecordOutcome) []types.Issue {
	var issues []types.Issue

	for _, g := range groupByEntity(p, records) {
		issues = append(issues, checkGroup(p, g)...)
	}
	for i := range records {
		issues = append(issues, checkRefundSign(p, &records[i])...)
	}
	return issues
}

type entityKey struct {
	kind  string
	value string
}

type entityGroup struct {
	entity  types.EntityRef
	members []*score.RecordOutcome
}

// groupByEntity keeps first-occurrence order for groups and members, so the
// checker output is stable for a given submission.
func groupByEntity(p policy.Policy, records []score.RecordOutcome) []*entityGroup {
	var ordered []*entityGroup
	index := map[entityKey]*entityGroup{}

	for i := range records {
		rec := &records[i]
		rr, ok := policy.RecordRuleFor(p, rec.Record.RecordType)
		if !ok {
			continue
		}
		for _, keyRule := range rr.EntityKeys {
			field := fieldByName(rec, keyRule.Field)
			if field == nil || field.Result.Failure != nil || field.Result.Value == "" {
				continue
			}
			key := entityKey{kind: keyRule.Kind, value: field.Result.Value}
			g, ok := index[key]
			if !ok {
				g = &entityGroup{entity: types.EntityRef{Kind: key.kind, Value: key.value}}
				index[key] = g
				ordered = append(ordered, g)
			}
			g.members = append(g.members, rec)
		}
	}
	return ordered
}

func checkGroup(p policy.Policy, g *entityGroup) []types.Issue {
	if len(g.members) < 2 {
		return nil
	}

	var issues []types.Issue
	for _, name := range reconciledFieldNames(p, g) {
		if issue, ok := checkField(p, g, name); ok {
			issues = append(issues, issue)
		}
	}
	return issues
}

// reconciledFieldNames lists, in first-occurrence order, the field names that
// participate in reconciliation for at least one member.
func reconciledFieldNames(p policy.Policy, g *entityGroup) []string {
	var ordered []string
	seen := map[string]bool{}
	for _, member := range g.members {
		for _, f := range member.Fields {
			if seen[f.Name] || !policy.Reconciled(p, member.Record.RecordType, f.Name) {
				continue
			}
			seen[f.Name] = true
			ordered = append(ordered, f.Name)
		}
	}
	return ordered
}

type occurrence struct {
	member *score.RecordOutcome
	field  *score.Field
}

func checkField(p policy.Policy, g *entityGroup, name string) (types.Issue, bool) {
	var occurrences []occurrence
	for _, member := range g.members {
		if !policy.Reconciled(p, member.Record.RecordType, name) {
			continue
		}
		field := fieldByName(member, name)
		if field == nil || field.Result.Failure != nil {
			continue
		}
		occurrences = append(occurrences, occurrence{member: member, field: field})
	}
	if len(occurrences) < 2 {
		return types.Issue{}, false
	}

	variants := buildVariants(occurrences)
	if len(variants) < 2 {
		return types.Issue{}, false
	}

	var records []types.RecordRef
	for _, occ := range occurrences {
		records = append(records, types.RecordRef{
			RecordType: occ.member.Record.RecordType,
			RecordID:   occ.member.Record.RecordID,
		})
	}

	decision := policy.Resolve(p, occurrences[0].member.Record.RecordType, name)
	severity := types.SeverityMedium
	if decision.Decisive {
		severity = types.SeverityHigh
	}

	issue := types.Issue{
		Type:     types.IssueInconsistency,
		Severity: severity,
		State:    types.IssueDetected,
		Field:    name,
		Reason:   conflictReason(decision, g.entity, name, variants, len(occurrences)),
		Entity:   &g.entity,
		Records:  records,
		Variants: variants,
	}
	if variants[0].Count > variants[1].Count {
		issue.Suggestion = variants[0].Value
	}
	issue.IssueID = inconsistencyID(issue)
	return issue, true
}

// buildVariants orders distinct values by frequency, then earliest source
// page, then value.
func buildVariants(occurrences []occurrence) []types.Variant {
	var ordered []string
	byValue := map[string]*types.Variant{}
	for _, occ := range occurrences {
		v := occ.field.Result.Value
		variant, ok := byValue[v]
		if !ok {
			byValue[v] = &types.Variant{Value: v}
			variant = byValue[v]
			ordered = append(ordered, v)
		}
		variant.Count++
		if src := occ.field.Raw.Source; src != (types.SourceRef{}) {
			variant.Sources = append(variant.Sources, src)
		}
	}

	variants := make([]types.Variant, 0, len(byValue))
	for _, v := range ordered {
		variants = append(variants, *byValue[v])
	}
	sortVariants(variants)
	return variants
}

func sortVariants(variants []types.Variant) {
	sort.SliceStable(variants, func(i, j int) bool {
		return variantLess(variants[i], variants[j])
	})
}

func variantLess(a, b types.Variant) bool {
	if a.Count != b.Count {
		return a.Count > b.Count
	}
	if pa, pb := minPage(a.Sources), minPage(b.Sources); pa != pb {
		return pa < pb
	}
	return a.Value < b.Value
}

func minPage(sources []types.SourceRef) int {
	page := unknownPage
	for _, s := range sources {
		if s.Page > 0 && s.Page < page {
			page = s.Page
		}
	}
	return page
}

func conflictReason(decision policy.FieldDecision, entity types.EntityRef, name string, variants []types.Variant, occurrences int) string {
	if decision.Type == types.FieldDate {
		if month, ok := granularityConflict(variants); ok {
			return fmt.Sprintf("%s values for %s %s agree on %s but differ in granularity",
				name, entity.Kind, entity.Value, month)
		}
	}
	return fmt.Sprintf("%s differs across %d records of %s %s",
		name, occurrences, entity.Kind, entity.Value)
}

// granularityConflict reports whether all variants share a year-month and
// differ only in precision.
func granularityConflict(variants []types.Variant) (string, bool) {
	month := ""
	sawDay, sawMonth := false, false
	for _, v := range variants {
		if len(v.Value) < 7 {
			return "", false
		}
		prefix := v.Value[:7]
		if month == "" {
			month = prefix
		} else if prefix != month {
			return "", false
		}
		switch len(v.Value) {
		case 7:
			sawMonth = true
		case 10:
			sawDay = true
		default:
			return "", false
		}
	}
	return month, sawDay && sawMonth
}

// checkRefundSign flags refund-typed transactions whose amount is positive.
func checkRefundSign(p policy.Policy, rec *score.RecordOutcome) []types.Issue {
	if rec.Record.RecordType != types.RecordTransaction {
		return nil
	}
	tipo := fieldByName(rec, "tipo")
	importo := fieldByName(rec, "importo")
	if tipo == nil || importo == nil || importo.Result.Failure != nil {
		return nil
	}
	if !isRefundType(tipo.Result.Value) || !isPositiveAmount(importo.Result.Value) {
		return nil
	}

	issue := types.Issue{
		Type:       types.IssueInconsistency,
		Severity:   types.SeverityHigh,
		State:      types.IssueDetected,
		RecordType: rec.Record.RecordType,
		RecordID:   rec.Record.RecordID,
		Field:      "importo",
		Reason:     fmt.Sprintf("transaction type %q implies a negative amount", tipo.Result.Value),
		Suggestion: "-" + importo.Result.Value,
	}
	if src := importo.Raw.Source; src != (types.SourceRef{}) {
		issue.Evidence = &src
	}
	issue.IssueID = review.IssueID(map[string]any{
		"type":        string(issue.Type),
		"record_type": string(issue.RecordType),
		"record_id":   issue.RecordID,
		"field":       issue.Field,
		"reason":      issue.Reason,
	})
	return []types.Issue{issue}
}

func isRefundType(tipo string) bool {
	t := strings.ToLower(tipo)
	for _, kw := range []string{"rimborso", "refund", "storno"} {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

func isPositiveAmount(canonical string) bool {
	num, _, ok := strings.Cut(canonical, " ")
	if !ok {
		return false
	}
	return !strings.HasPrefix(num, "-") && strings.Trim(num, "0.") != ""
}

func inconsistencyID(issue types.Issue) string {
	values := make([]any, 0, len(issue.Variants))
	for _, v := range issue.Variants {
		values = append(values, v.Value)
	}
	return review.IssueID(map[string]any{
		"type":   string(issue.Type),
		"entity": issue.Entity.Kind + ":" + issue.Entity.Value,
		"field":  issue.Field,
		"values": values,
	})
}

func fieldByName(rec *score.RecordOutcome, name string) *score.Field {
	for i := range rec.Fields {
		if rec.Fields[i].Name == name {
			return &rec.Fields[i]
		}
	}
	return nil
}
