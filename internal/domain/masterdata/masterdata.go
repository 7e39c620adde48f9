// Package masterdata loads the ground-truth label table and exposes the fixed
// public/private partition of its record ids.
//
// The table is loaded once at startup and is immutable for the process
// lifetime; picking up new master data requires a restart.
package masterdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/okian/oraculus/internal/domain/model"
)

// Required master-data columns. Header matching is case-insensitive and
// order-insensitive.
const (
	columnID        = "id"
	columnLabel     = "label"
	columnPartition = "partition"
)

// Dataset is the immutable in-memory view of the master table.
type Dataset struct {
	records     []model.MasterRecord
	labels      map[int64]int
	byPartition map[model.Partition][]model.MasterRecord
}

// Load reads the master table from a CSV file at path.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open master data: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	return Read(f)
}

// Read parses master records from r. It fails with ErrSchema when a required
// column is absent or a row is malformed, and ErrEmptyDataset when the table
// has a header but zero data rows.
func Read(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrEmptyDataset
		}
		return nil, fmt.Errorf("read master data header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	for _, name := range []string{columnID, columnLabel, columnPartition} {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrSchema, strings.Join(missing, ", "))
	}

	d := &Dataset{
		labels:      map[int64]int{},
		byPartition: map[model.Partition][]model.MasterRecord{},
	}

	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read master data row: %w", err)
		}

		rec, err := parseRecord(row, cols)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrSchema, line, err)
		}
		if _, dup := d.labels[rec.ID]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate id %d", ErrSchema, line, rec.ID)
		}

		d.records = append(d.records, rec)
		d.labels[rec.ID] = rec.Label
		d.byPartition[rec.Partition] = append(d.byPartition[rec.Partition], rec)
	}

	if len(d.records) == 0 {
		return nil, ErrEmptyDataset
	}
	return d, nil
}

func parseRecord(row []string, cols map[string]int) (model.MasterRecord, error) {
	get := func(name string) (string, error) {
		i := cols[name]
		if i >= len(row) {
			return "", fmt.Errorf("missing %s value", name)
		}
		return strings.TrimSpace(row[i]), nil
	}

	rawID, err := get(columnID)
	if err != nil {
		return model.MasterRecord{}, err
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return model.MasterRecord{}, fmt.Errorf("invalid id %q", rawID)
	}

	rawLabel, err := get(columnLabel)
	if err != nil {
		return model.MasterRecord{}, err
	}
	label, err := strconv.Atoi(rawLabel)
	if err != nil || (label != 0 && label != 1) {
		return model.MasterRecord{}, fmt.Errorf("label must be 0 or 1, got %q", rawLabel)
	}

	rawPartition, err := get(columnPartition)
	if err != nil {
		return model.MasterRecord{}, err
	}
	partition := model.Partition(strings.ToLower(rawPartition))
	if partition != model.PartitionPublic && partition != model.PartitionPrivate {
		return model.MasterRecord{}, fmt.Errorf("partition must be public or private, got %q", rawPartition)
	}

	return model.MasterRecord{ID: id, Label: label, Partition: partition}, nil
}

// Len returns the number of master records.
func (d *Dataset) Len() int {
	return len(d.records)
}

// Contains reports whether id exists in the master table, in any partition.
func (d *Dataset) Contains(id int64) bool {
	_, ok := d.labels[id]
	return ok
}

// Label returns the true binary label for id.
func (d *Dataset) Label(id int64) (int, bool) {
	label, ok := d.labels[id]
	return label, ok
}

// AllIDs returns the full id set.
func (d *Dataset) AllIDs() map[int64]struct{} {
	ids := make(map[int64]struct{}, len(d.records))
	for _, rec := range d.records {
		ids[rec.ID] = struct{}{}
	}
	return ids
}

// Partition returns the records of one partition in load order. The returned
// slice is shared and must not be modified.
func (d *Dataset) Partition(p model.Partition) []model.MasterRecord {
	return d.byPartition[p]
}

// PartitionLen returns the number of records in partition p.
func (d *Dataset) PartitionLen(p model.Partition) int {
	return len(d.byPartition[p])
}
