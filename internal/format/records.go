package format

import "nexus-catalog/internal/model"

// SliceSource serves records from memory.
type SliceSource struct {
	records []model.Record
	pos     int
	onClose func() error
	closed  bool
}

func NewSliceSource(records []model.Record, onClose func() error) *SliceSource {
	return &SliceSource{records: records, pos: -1, onClose: onClose}
}

func (s *SliceSource) Next() bool {
	if s.closed || s.pos+1 >= len(s.records) {
		s.pos = len(s.records)
		return false
	}
	s.pos++
	return true
}

func (s *SliceSource) Record() model.Record {
	if s.pos < 0 || s.pos >= len(s.records) {
		return nil
	}
	return s.records[s.pos]
}

func (s *SliceSource) Err() error { return nil }

func (s *SliceSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.onClose != nil {
		return s.onClose()
	}
	return nil
}

// ReadRecords drains up to limit records (limit <= 0 means all) and always
// closes the source.
func ReadRecords(rs RecordSource, limit int) (records []model.Record, err error) {
	defer func() {
		if cerr := rs.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	for (limit <= 0 || len(records) < limit) && rs.Next() {
		records = append(records, rs.Record())
	}
	return records, rs.Err()
}
