package bitmap

import (
	"io"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

// Set is a 32-bit index set backed by a Roaring bitmap.
// The zero value is not usable; create sets with New or Of.
type Set struct {
	rb *roaring.Bitmap
}

// New creates a new empty set.
func New() *Set {
	return &Set{rb: roaring.New()}
}

// Of creates a set holding the given indices.
func Of(ids ...uint32) *Set {
	s := New()
	s.rb.AddMany(ids)
	return s
}

// Add inserts an index.
func (s *Set) Add(id uint32) {
	s.rb.Add(id)
}

// AddMany inserts all indices.
func (s *Set) AddMany(ids []uint32) {
	s.rb.AddMany(ids)
}

// AddRange inserts [start, end).
func (s *Set) AddRange(start, end uint64) {
	s.rb.AddRange(start, end)
}

// RemoveRange deletes [start, end).
func (s *Set) RemoveRange(start, end uint64) {
	s.rb.RemoveRange(start, end)
}

// Remove deletes an index.
func (s *Set) Remove(id uint32) {
	s.rb.Remove(id)
}

// Contains reports whether id is in the set.
func (s *Set) Contains(id uint32) bool {
	return s.rb.Contains(id)
}

// Len returns the number of indices in the set.
func (s *Set) Len() int {
	return int(s.rb.GetCardinality())
}

// IsEmpty returns true if the set is empty.
func (s *Set) IsEmpty() bool {
	return s.rb.IsEmpty()
}

// Clear removes all indices.
func (s *Set) Clear() {
	s.rb.Clear()
}

// Clone returns a deep copy of the set.
func (s *Set) Clone() *Set {
	return &Set{rb: s.rb.Clone()}
}

// Or adds every index of other to s.
func (s *Set) Or(other *Set) {
	s.rb.Or(other.rb)
}

// AndNot removes every index of other from s.
func (s *Set) AndNot(other *Set) {
	s.rb.AndNot(other.rb)
}

// ForEach visits indices in ascending order until fn returns false.
func (s *Set) ForEach(fn func(id uint32) bool) {
	it := s.rb.Iterator()
	for it.HasNext() {
		if !fn(it.Next()) {
			break
		}
	}
}

// All returns an ascending iterator over the set.
func (s *Set) All() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		it := s.rb.Iterator()
		for it.HasNext() {
			if !yield(it.Next()) {
				return
			}
		}
	}
}

// ToSlice returns the indices in ascending order.
func (s *Set) ToSlice() []uint32 {
	return s.rb.ToArray()
}

// Equal reports whether both sets hold the same indices.
func (s *Set) Equal(other *Set) bool {
	return s.rb.Equals(other.rb)
}

// MarshalBinary encodes the set in the portable Roaring format.
func (s *Set) MarshalBinary() ([]byte, error) {
	return s.rb.ToBytes()
}

// UnmarshalBinary replaces the set contents with a portable Roaring encoding.
func (s *Set) UnmarshalBinary(data []byte) error {
	if s.rb == nil {
		s.rb = roaring.New()
	}
	return s.rb.UnmarshalBinary(data)
}

// WriteTo writes the set to an io.Writer.
func (s *Set) WriteTo(w io.Writer) (int64, error) {
	return s.rb.WriteTo(w)
}

// ReadFrom reads the set from an io.Reader.
func (s *Set) ReadFrom(r io.Reader) (int64, error) {
	return s.rb.ReadFrom(r)
}
