package heapfile

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
	"github.com/renatospessotto/Trabalho-arquivos/core/storage_engine/record"
)

// Change describes one record rewritten by Update.
type Change struct {
	ID        int32
	OldOffset int64
	NewOffset int64
	Record    *record.Record
}

// Relocated reports whether the record moved to another slot.
func (c Change) Relocated() bool { return c.OldOffset != c.NewOffset }

// FreeSlot is one entry of the free list.
type FreeSlot struct {
	Offset   int64
	Capacity int32
	ID       int32
}

// Insert stores r in the first free slot large enough to hold it, walking the
// free list from its head, or appends it when none fits. It returns the slot
// offset.
func (s *Store) Insert(r *record.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConsistent(); err != nil {
		return 0, err
	}
	if err := s.beginWrite(); err != nil {
		return 0, err
	}
	off, err := s.insert(r)
	if err != nil {
		return 0, err
	}
	return off, s.commit()
}

func (s *Store) insert(r *record.Record) (int64, error) {
	need := record.Size(r)
	prev := record.NoLink
	seen := make(map[int64]struct{})
	for cur := s.header.FreeListHead; cur != record.NoLink; {
		slot, err := s.freeSlot(cur, seen)
		if err != nil {
			return 0, err
		}
		if slot.PayloadSize < need {
			prev, cur = cur, slot.Next
			continue
		}
		if err := s.unlink(prev, slot.Next); err != nil {
			return 0, err
		}
		r.Removed = record.FlagActive
		r.Next = record.NoLink
		data, err := r.EncodeSlot(slot.PayloadSize)
		if err != nil {
			return 0, err
		}
		if err := s.writeAt(data, cur); err != nil {
			return 0, err
		}
		s.header.ActiveCount++
		s.header.RemovedCount--
		s.logger.Debug("Reused free slot", zap.Int32("id", r.ID), zap.Int64("offset", cur),
			zap.Int32("capacity", slot.PayloadSize), zap.Int32("size", need))
		return cur, nil
	}
	off, err := s.appendSlot(r)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("Appended record", zap.Int32("id", r.ID), zap.Int64("offset", off))
	return off, nil
}

// freeSlot reads a free-list member, rejecting cycles and active slots.
func (s *Store) freeSlot(off int64, seen map[int64]struct{}) (*record.Record, error) {
	if _, dup := seen[off]; dup {
		return nil, fmt.Errorf("%w: free list revisits offset %d", dberror.ErrRecordLinkCorrupt, off)
	}
	seen[off] = struct{}{}
	slot, err := s.readSlot(off)
	if err != nil {
		return nil, fmt.Errorf("%w: free slot at %d: %v", dberror.ErrRecordLinkCorrupt, off, err)
	}
	if !slot.IsRemoved() {
		return nil, fmt.Errorf("%w: free list reaches active slot at %d", dberror.ErrRecordLinkCorrupt, off)
	}
	return slot, nil
}

// unlink points prev (or the header when prev is -1) at next.
func (s *Store) unlink(prev, next int64) error {
	if prev == record.NoLink {
		s.header.FreeListHead = next
		return nil
	}
	return s.writeLink(prev, next)
}

func (s *Store) writeLink(off, next int64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(next))
	return s.writeAt(buf[:], off+record.SlotHeaderSize)
}

// push marks the slot at off removed and makes it the free list head.
func (s *Store) push(off int64) error {
	if err := s.writeAt([]byte{record.FlagRemoved}, off); err != nil {
		return err
	}
	if err := s.writeLink(off, s.header.FreeListHead); err != nil {
		return err
	}
	s.header.FreeListHead = off
	s.header.ActiveCount--
	s.header.RemovedCount++
	return nil
}

// Delete logically removes every active record matching c and returns them
// with their former offsets. The file is untouched when nothing matches.
func (s *Store) Delete(c record.Criteria) ([]Entry, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConsistent(); err != nil {
		return nil, err
	}
	matches, err := s.collect(c)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	if err := s.beginWrite(); err != nil {
		return nil, err
	}
	for _, m := range matches {
		if err := s.push(m.Offset); err != nil {
			return nil, err
		}
		m.Record.Removed = record.FlagRemoved
		s.logger.Debug("Removed record", zap.Int32("id", m.Record.ID), zap.Int64("offset", m.Offset))
	}
	return matches, s.commit()
}

// Update applies a to every active record matching c. Records whose values do
// not change are skipped. A record that still fits its slot is rewritten in
// place; otherwise its slot is freed and the record is inserted anew.
func (s *Store) Update(c record.Criteria, a record.Assignments) ([]Change, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConsistent(); err != nil {
		return nil, err
	}
	matches, err := s.collect(c)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for _, m := range matches {
		updated := m.Record.Clone()
		if !a.Apply(updated) {
			continue
		}
		if len(changes) == 0 {
			if err := s.beginWrite(); err != nil {
				return nil, err
			}
		}
		ch := Change{ID: updated.ID, OldOffset: m.Offset, NewOffset: m.Offset, Record: updated}
		if record.Size(updated) <= m.Record.PayloadSize {
			data, err := updated.EncodeSlot(m.Record.PayloadSize)
			if err != nil {
				return nil, err
			}
			if err := s.writeAt(data, m.Offset); err != nil {
				return nil, err
			}
		} else {
			if err := s.push(m.Offset); err != nil {
				return nil, err
			}
			if ch.NewOffset, err = s.insert(updated); err != nil {
				return nil, err
			}
		}
		s.logger.Debug("Updated record", zap.Int32("id", ch.ID),
			zap.Int64("old_offset", ch.OldOffset), zap.Int64("new_offset", ch.NewOffset))
		changes = append(changes, ch)
	}
	if len(changes) == 0 {
		return nil, nil
	}
	return changes, s.commit()
}

// FreeList walks the free list from its head.
func (s *Store) FreeList() ([]FreeSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireConsistent(); err != nil {
		return nil, err
	}
	var out []FreeSlot
	seen := make(map[int64]struct{})
	for cur := s.header.FreeListHead; cur != record.NoLink; {
		slot, err := s.freeSlot(cur, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, FreeSlot{Offset: cur, Capacity: slot.PayloadSize, ID: slot.ID})
		cur = slot.Next
	}
	return out, nil
}
