package orchestrator

import (
	"fmt"
	"os"

	"github.com/vaultwork/orchestrator/internal/eventlog"
	"github.com/vaultwork/orchestrator/internal/vault"
)

func readNote(path string) (vault.Note, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return vault.Note{}, fmt.Errorf("orchestrator: read %s: %w", path, err)
	}
	note, err := vault.ParseNote(string(raw))
	if err != nil {
		return vault.Note{}, err
	}
	return note, nil
}

// writeErrorSibling records the cause of a rejection alongside the
// rejected file, per spec.md §4.5/§7: "move to Rejected/ with a sibling
// _error.md record."
func writeErrorSibling(path, stem string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	content := fmt.Sprintf("---\ntype: rejection_record\nfor_stem: %s\n---\n\n%s\n", stem, msg)
	return os.WriteFile(path, []byte(content), 0o644)
}

func logRecord(stem, action, result, detail string) eventlog.Record {
	return eventlog.Record{
		EventType: "dispatch",
		Actor:     "orchestrator",
		File:      stem,
		Action:    action,
		Result:    result,
		Detail:    detail,
	}
}
