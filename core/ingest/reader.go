// Package ingest reads attack reports from comma-separated text.
//
// The first line is a header and is skipped. Each following line carries up
// to seven fields: id, year, financialLoss, country, attackType,
// targetIndustry, defenseStrategy. Fields are split on ',' without quote
// handling. An empty field is absent. A line whose id is empty or not a
// number ends the input.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
	"github.com/renatospessotto/Trabalho-arquivos/core/storage_engine/record"
)

const fieldsPerLine = 7

// Reader yields one record per line. It satisfies heapfile.Source.
type Reader struct {
	scanner    *bufio.Scanner
	logger     *zap.Logger
	line       int
	headerRead bool
	done       bool
}

func NewReader(r io.Reader, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{scanner: s, logger: logger.Named("ingest")}
}

// Next returns the next record, or io.EOF once the input is exhausted or the
// end-of-data id is reached.
func (r *Reader) Next() (*record.Record, error) {
	if r.done {
		return nil, io.EOF
	}
	if !r.headerRead {
		r.headerRead = true
		if !r.scan() {
			return nil, r.finish()
		}
	}
	if !r.scan() {
		return nil, r.finish()
	}

	fields := strings.SplitN(strings.TrimRight(r.scanner.Text(), "\r"), ",", fieldsPerLine)
	for len(fields) < fieldsPerLine {
		fields = append(fields, "")
	}
	id, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || id == -1 {
		r.logger.Debug("Input ended at line without id", zap.Int("line", r.line))
		r.done = true
		return nil, io.EOF
	}

	rec := record.New(int32(id), parseYear(fields[1]), parseLoss(fields[2]),
		fields[3], fields[4], fields[5], fields[6])
	return rec, nil
}

// Line reports the number of lines consumed so far, header included.
func (r *Reader) Line() int { return r.line }

func (r *Reader) scan() bool {
	if r.scanner.Scan() {
		r.line++
		return true
	}
	return false
}

func (r *Reader) finish() error {
	r.done = true
	if err := r.scanner.Err(); err != nil {
		return fmt.Errorf("%w: reading line %d: %v", dberror.ErrIO, r.line+1, err)
	}
	return io.EOF
}

func parseYear(s string) int32 {
	if s == "" {
		return record.NoYear
	}
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return record.NoYear
	}
	return int32(y)
}

func parseLoss(s string) float32 {
	if s == "" {
		return record.NoFinancialLoss
	}
	return record.ParseLoss(s)
}
