package routing

import (
	"strings"
	"unicode"
)

// TransferTable maps spoken destinations to phone numbers for one organization.
// Keys match case-insensitively with whitespace collapsed, so "Front  Desk"
// finds "front desk".
type TransferTable struct {
	entries map[string]entry
}

type entry struct {
	label  string
	number string
}

// NewTransferTable builds a table from organizations.settings.transfer_numbers.
// Blank keys or numbers are skipped.
func NewTransferTable(numbers map[string]string) TransferTable {
	t := TransferTable{entries: make(map[string]entry, len(numbers))}
	for label, number := range numbers {
		k := normalize(label)
		number = strings.TrimSpace(number)
		if k == "" || number == "" {
			continue
		}
		t.entries[k] = entry{label: label, number: number}
	}
	return t
}

func (t TransferTable) Len() int { return len(t.entries) }

// Resolve returns a connect decision for a configured destination and a reject
// decision otherwise.
func (t TransferTable) Resolve(destination string) Decision {
	d := Decision{Destination: destination, Action: ActionReject}
	k := normalize(destination)
	if k == "" {
		d.Reason = "empty destination"
		return d
	}
	e, ok := t.entries[k]
	if !ok {
		d.Reason = "destination not configured"
		return d
	}
	d.Action = ActionConnect
	d.ConnectTo = e.number
	return d
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " "))
}
