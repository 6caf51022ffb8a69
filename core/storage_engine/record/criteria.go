package record

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
)

// Field names a searchable or updatable record attribute.
type Field int

const (
	FieldID Field = iota
	FieldYear
	FieldFinancialLoss
	FieldCountry
	FieldAttackType
	FieldTargetIndustry
	FieldDefenseStrategy
)

// MaxCriteria bounds the number of conditions or assignments per request.
const MaxCriteria = 3

// lossEpsilon is the tolerance used when comparing financial losses.
const lossEpsilon = 0.001

var fieldNames = map[Field]string{
	FieldID:              "idAttack",
	FieldYear:            "year",
	FieldFinancialLoss:   "financialLoss",
	FieldCountry:         "country",
	FieldAttackType:      "attackType",
	FieldTargetIndustry:  "targetIndustry",
	FieldDefenseStrategy: "defenseMechanism",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

// ParseField resolves a field name case-insensitively.
func ParseField(name string) (Field, error) {
	for f, n := range fieldNames {
		if strings.EqualFold(n, name) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown field %q", dberror.ErrInvalidCriteria, name)
}

// ParseInt converts a numeric field value; anything unparseable is absent (-1).
func ParseInt(value string) int32 {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return -1
	}
	return int32(n)
}

// ParseLoss converts a financial loss value; anything unparseable is absent (-1.0).
func ParseLoss(value string) float32 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
	if err != nil {
		return NoFinancialLoss
	}
	return float32(f)
}

// Condition is one (field, value) pair of a query.
type Condition struct {
	Field Field
	Value string
}

// Criteria is a conjunction of conditions. An empty Criteria matches every record.
type Criteria []Condition

func (c Criteria) Validate() error {
	if len(c) > MaxCriteria {
		return fmt.Errorf("%w: %d conditions, at most %d allowed", dberror.ErrInvalidCriteria, len(c), MaxCriteria)
	}
	return nil
}

// Match reports whether r satisfies every condition. Removed state is not considered.
func (c Criteria) Match(r *Record) bool {
	for _, cond := range c {
		if !cond.match(r) {
			return false
		}
	}
	return true
}

func (cond Condition) match(r *Record) bool {
	switch cond.Field {
	case FieldID:
		return r.ID == ParseInt(cond.Value)
	case FieldYear:
		return r.Year == ParseInt(cond.Value)
	case FieldFinancialLoss:
		return math.Abs(float64(r.FinancialLoss-ParseLoss(cond.Value))) < lossEpsilon
	case FieldCountry:
		return strings.EqualFold(r.Country, cond.Value)
	case FieldAttackType:
		return strings.EqualFold(r.AttackType, cond.Value)
	case FieldTargetIndustry:
		return strings.EqualFold(r.TargetIndustry, cond.Value)
	case FieldDefenseStrategy:
		return strings.EqualFold(r.DefenseStrategy, cond.Value)
	}
	return false
}

// Assignment sets one field to a new value. An empty value makes the field absent.
type Assignment struct {
	Field Field
	Value string
}

type Assignments []Assignment

func (a Assignments) Validate() error {
	if len(a) > MaxCriteria {
		return fmt.Errorf("%w: %d assignments, at most %d allowed", dberror.ErrInvalidCriteria, len(a), MaxCriteria)
	}
	return nil
}

// Apply writes the assignments into r and reports whether any value changed.
// The id is immutable and is skipped.
func (a Assignments) Apply(r *Record) bool {
	changed := false
	for _, as := range a {
		switch as.Field {
		case FieldID:
			continue
		case FieldYear:
			if y := ParseInt(as.Value); y != r.Year {
				r.Year = y
				changed = true
			}
		case FieldFinancialLoss:
			if l := ParseLoss(as.Value); math.Abs(float64(r.FinancialLoss-l)) > lossEpsilon {
				r.FinancialLoss = l
				changed = true
			}
		case FieldCountry:
			changed = setText(&r.Country, as.Value) || changed
		case FieldAttackType:
			changed = setText(&r.AttackType, as.Value) || changed
		case FieldTargetIndustry:
			changed = setText(&r.TargetIndustry, as.Value) || changed
		case FieldDefenseStrategy:
			changed = setText(&r.DefenseStrategy, as.Value) || changed
		}
	}
	return changed
}

func setText(dst *string, value string) bool {
	if *dst == value {
		return false
	}
	*dst = value
	return true
}
