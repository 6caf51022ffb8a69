// Package console turns command-line text into criteria, update assignments
// and records.
//
// Words are separated by whitespace. A double-quoted word may contain spaces
// and loses its quotes. The bare word NULO (any case) stands for an absent
// value and becomes the empty string; a quoted "NULO" is kept literally.
package console

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
	"github.com/renatospessotto/Trabalho-arquivos/core/storage_engine/record"
)

const nullWord = "NULO"

// Tokenize splits line into words.
func Tokenize(line string) ([]string, error) {
	var (
		tokens []string
		cur    strings.Builder
		inWord bool
		quoted bool
	)
	flush := func() {
		if !inWord {
			return
		}
		word := cur.String()
		if !quoted && strings.EqualFold(word, nullWord) {
			word = ""
		}
		tokens = append(tokens, word)
		cur.Reset()
		inWord, quoted = false, false
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"' && !inWord:
			end := strings.IndexByte(line[i+1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated quote at column %d", dberror.ErrInvalidCriteria, i+1)
			}
			cur.WriteString(line[i+1 : i+1+end])
			inWord, quoted = true, true
			i += end + 1
			flush()
		case unicode.IsSpace(rune(c)):
			flush()
		default:
			cur.WriteByte(c)
			inWord = true
		}
	}
	flush()
	return tokens, nil
}

// ParseCriteria reads "n field value ..." from the front of tokens and
// returns the criteria and the unread tokens.
func ParseCriteria(tokens []string) (record.Criteria, []string, error) {
	pairs, rest, err := parsePairs(tokens)
	if err != nil {
		return nil, nil, err
	}
	c := make(record.Criteria, 0, len(pairs))
	for _, p := range pairs {
		c = append(c, record.Condition{Field: p.field, Value: p.value})
	}
	return c, rest, c.Validate()
}

// ParseAssignments reads "m field value ..." from the front of tokens.
func ParseAssignments(tokens []string) (record.Assignments, []string, error) {
	pairs, rest, err := parsePairs(tokens)
	if err != nil {
		return nil, nil, err
	}
	a := make(record.Assignments, 0, len(pairs))
	for _, p := range pairs {
		a = append(a, record.Assignment{Field: p.field, Value: p.value})
	}
	return a, rest, a.Validate()
}

type pair struct {
	field record.Field
	value string
}

func parsePairs(tokens []string) ([]pair, []string, error) {
	if len(tokens) == 0 {
		return nil, nil, fmt.Errorf("%w: missing condition count", dberror.ErrInvalidCriteria)
	}
	n, err := strconv.Atoi(tokens[0])
	if err != nil || n < 0 || n > record.MaxCriteria {
		return nil, nil, fmt.Errorf("%w: condition count %q must be 0..%d", dberror.ErrInvalidCriteria, tokens[0], record.MaxCriteria)
	}
	tokens = tokens[1:]
	if len(tokens) < 2*n {
		return nil, nil, fmt.Errorf("%w: expected %d field/value pairs, got %d words", dberror.ErrInvalidCriteria, n, len(tokens))
	}
	pairs := make([]pair, 0, n)
	for i := 0; i < n; i++ {
		f, err := record.ParseField(tokens[2*i])
		if err != nil {
			return nil, nil, err
		}
		pairs = append(pairs, pair{field: f, value: tokens[2*i+1]})
	}
	return pairs, tokens[2*n:], nil
}

// ParseRecord reads "id year financialLoss country attackType targetIndustry
// defenseStrategy". Absent year and financialLoss take their sentinels.
func ParseRecord(tokens []string) (*record.Record, []string, error) {
	if len(tokens) < 7 {
		return nil, nil, fmt.Errorf("%w: a record needs 7 values, got %d", dberror.ErrInvalidCriteria, len(tokens))
	}
	id, err := strconv.Atoi(tokens[0])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: id %q is not a number", dberror.ErrInvalidCriteria, tokens[0])
	}
	year := record.NoYear
	if tokens[1] != "" {
		year = record.ParseInt(tokens[1])
	}
	loss := record.NoFinancialLoss
	if tokens[2] != "" {
		loss = record.ParseLoss(tokens[2])
	}
	r := record.New(int32(id), year, loss, tokens[3], tokens[4], tokens[5], tokens[6])
	return r, tokens[7:], nil
}

// Words applies the NULO convention to arguments that were already split,
// such as process arguments.
func Words(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if !strings.EqualFold(a, nullWord) {
			out[i] = a
		}
	}
	return out
}
