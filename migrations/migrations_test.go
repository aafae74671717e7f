package migrations

import (
	"strings"
	"testing"
)

func TestAllOrderedAndOwnsLedger(t *testing.T) {
	files, err := All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(files) == 0 {
		t.Fatalf("expected embedded migrations")
	}
	for i := 1; i < len(files); i++ {
		if files[i-1].Name >= files[i].Name {
			t.Fatalf("migrations out of order: %s before %s", files[i-1].Name, files[i].Name)
		}
	}
	if !strings.Contains(files[0].SQL, "processed_webhook_events") {
		t.Fatalf("first migration should create the webhook ledger")
	}
}
