package indexing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
)

// DefaultBatchSize is the number of entries submitted per bleve batch
const DefaultBatchSize = 100

// Fingerprint identifies the search index file an index was built from
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VersionStamp renders the contents of an index version file
func VersionStamp(fingerprint string) string {
	return fmt.Sprintf("%d %s", IndexSchemaVersion, fingerprint)
}

// ParseVersionStamp reads a version file written by VersionStamp. Files
// from older builds carry only the schema version.
func ParseVersionStamp(stamp string) (version int, fingerprint string) {
	fields := strings.Fields(stamp)
	if len(fields) == 0 {
		return 0, ""
	}
	fmt.Sscanf(fields[0], "%d", &version)
	if len(fields) > 1 {
		fingerprint = fields[1]
	}
	return version, fingerprint
}

// IndexEntries adds entries to index in batches of batchSize. progress, if
// non-nil, is called after each submitted batch with the running total.
func IndexEntries(index bleve.Index, entries []DocEntry, batchSize int, progress func(done int)) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	batch := index.NewBatch()
	for i, entry := range entries {
		if err := batch.Index(entry.ID, entry); err != nil {
			return fmt.Errorf("failed to add entry %s to batch: %w", entry.ID, err)
		}

		if (i+1)%batchSize == 0 {
			if err := index.Batch(batch); err != nil {
				return fmt.Errorf("failed to index batch: %w", err)
			}
			batch = index.NewBatch()
			if progress != nil {
				progress(i + 1)
			}
		}
	}

	if batch.Size() > 0 {
		if err := index.Batch(batch); err != nil {
			return fmt.Errorf("failed to index final batch: %w", err)
		}
		if progress != nil {
			progress(len(entries))
		}
	}
	return nil
}
