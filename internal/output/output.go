package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ElvertMora/grimoirelab-perceval/internal/core"
)

// Writer emits records as JSON lines: one compact object per record, written
// out as soon as the record arrives.
type Writer struct {
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

func (w *Writer) Write(rec core.Record) error {
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}
