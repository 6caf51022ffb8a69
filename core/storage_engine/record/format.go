package record

import (
	"fmt"
	"strings"
)

// Absent is printed in place of a missing value.
const Absent = "NADA CONSTA"

// Labels are the human-readable field descriptions stored in the heap header.
type Labels struct {
	ID              string
	Year            string
	FinancialLoss   string
	Country         string
	AttackType      string
	TargetIndustry  string
	DefenseStrategy string
}

// Format renders r one field per line, followed by a blank line.
func Format(r *Record, l Labels) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d\n", l.ID, r.ID)
	if r.Year != NoYear {
		fmt.Fprintf(&sb, "%s: %d\n", l.Year, r.Year)
	} else {
		fmt.Fprintf(&sb, "%s: %s\n", l.Year, Absent)
	}
	fmt.Fprintf(&sb, "%s: %s\n", l.Country, orAbsent(r.Country))
	fmt.Fprintf(&sb, "%s: %s\n", l.TargetIndustry, orAbsent(r.TargetIndustry))
	fmt.Fprintf(&sb, "%s: %s\n", l.AttackType, orAbsent(r.AttackType))
	if r.FinancialLoss != NoFinancialLoss {
		fmt.Fprintf(&sb, "%s: %.2f\n", l.FinancialLoss, r.FinancialLoss)
	} else {
		fmt.Fprintf(&sb, "%s: %s\n", l.FinancialLoss, Absent)
	}
	fmt.Fprintf(&sb, "%s: %s\n\n", l.DefenseStrategy, orAbsent(r.DefenseStrategy))
	return sb.String()
}

func orAbsent(s string) string {
	if s == "" {
		return Absent
	}
	return s
}
