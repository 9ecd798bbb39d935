package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/fpang/reelbot/internal/fileutil"
	"github.com/fpang/reelbot/internal/reelerr"
)

// FileLedger stores the ledger as a JSON array in a local file.
//
// Older deployments wrote a bare array of ID strings (["id1","id2"]); Load
// accepts that layout as well and the next Save upgrades it to records.
type FileLedger struct {
	path string
}

// Compile-time interface check.
var _ Ledger = (*FileLedger)(nil)

// NewFileLedger returns a ledger persisted at path.
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

// Path returns the backing file path.
func (l *FileLedger) Path() string {
	return l.path
}

func (l *FileLedger) Load(ctx context.Context) ([]Record, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("path", l.path).Msg("Ledger file not found, starting empty")
		return []Record{}, nil
	}
	if err != nil {
		return nil, reelerr.Wrap(reelerr.ErrIO, "read ledger", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Record{}, nil
	}

	records, err := decodeRecords(data)
	if err != nil {
		return nil, reelerr.Wrap(reelerr.ErrIO, "parse ledger "+l.path, err)
	}
	log.Debug().Str("path", l.path).Int("records", len(records)).Msg("Ledger loaded")
	return records, nil
}

func (l *FileLedger) Save(ctx context.Context, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return reelerr.Wrap(reelerr.ErrIO, "encode ledger", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteFileAtomic(l.path, data, 0o644); err != nil {
		return reelerr.Wrap(reelerr.ErrIO, "write ledger", err)
	}
	log.Debug().Str("path", l.path).Int("records", len(records)).Msg("Ledger saved")
	return nil
}

// decodeRecords parses either a list of record objects or a list of bare ID
// strings. Mixed lists are accepted element by element.
func decodeRecords(data []byte) ([]Record, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(raw))
	for i, elem := range raw {
		elem = bytes.TrimSpace(elem)
		if len(elem) > 0 && elem[0] == '"' {
			var id string
			if err := json.Unmarshal(elem, &id); err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			records = append(records, Record{ID: id})
			continue
		}
		var rec Record
		if err := json.Unmarshal(elem, &rec); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("entry %d: missing id", i)
		}
		records = append(records, rec)
	}
	return records, nil
}
