package dedupe

import (
	"github.com/LuckySoftware/Aletheia/internal/model"
)

// Partition splits records into uniques and duplicates by derived key.
// The first record seen for a key (input order) is kept; every later holder
// of the same key becomes a DuplicateRecord. The tie-break depends only on
// input order, so re-running the same file set reproduces the same split.
// Duplicates are terminal: they never reach rule evaluation.
func Partition(records []model.RawRecord) ([]model.RawRecord, []model.DuplicateRecord) {
	unique := make([]model.RawRecord, 0, len(records))
	var duplicates []model.DuplicateRecord

	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		key := rec.Key()
		if seen[key] {
			duplicates = append(duplicates, model.DuplicateRecord{
				Record:  rec,
				KeptKey: key,
			})
			continue
		}
		seen[key] = true
		unique = append(unique, rec)
	}

	return unique, duplicates
}
