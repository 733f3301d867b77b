package export

import (
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"coursio/internal/constants"
	"coursio/internal/models"
	"coursio/internal/storage"
)

func TestLedgerJournal(t *testing.T) {
	store := storage.NewMemory()
	if err := store.CreateUser(models.User{
		ID: "u1", Name: "Awa Diop", Email: "awa@example.com",
		Role: constants.ROLE_CLIENT, Status: constants.ACCOUNT_STATUS_ACTIVE,
	}); err != nil {
		t.Fatal(err)
	}

	entries := []models.LedgerEntry{
		{ID: "e1", UserID: "u1", Amount: 5000, Kind: constants.LEDGER_KIND_WALLET_RECHARGE, RelatedRequestID: "tok-1", CreatedAt: time.Now()},
		{ID: "e2", UserID: "ghost", Amount: -500, Kind: constants.LEDGER_KIND_SERVICE_PAYMENT, CreatedAt: time.Now()},
	}

	buf, err := LedgerJournal(entries, store)
	if err != nil {
		t.Fatalf("LedgerJournal: %v", err)
	}

	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("reading workbook back: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Journal")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("%d rows, want header + 2 entries", len(rows))
	}
	if rows[0][0] != "ID" || rows[0][1] != "Utilisateur" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][1] != "Awa Diop" || rows[1][3] != "5000" {
		t.Errorf("row 1 = %v", rows[1])
	}
	// Unknown users fall back to the raw id instead of failing the export.
	if rows[2][1] != "ghost" {
		t.Errorf("row 2 user = %q, want ghost fallback", rows[2][1])
	}
}

func TestRequestRegister(t *testing.T) {
	store := storage.NewMemory()
	for _, u := range []models.User{
		{ID: "c1", Name: "Awa", Email: "awa@example.com", Role: constants.ROLE_CLIENT, Status: constants.ACCOUNT_STATUS_ACTIVE},
		{ID: "a1", Name: "Moussa", Email: "moussa@example.com", Role: constants.ROLE_AGENT, Status: constants.ACCOUNT_STATUS_ACTIVE},
	} {
		if err := store.CreateUser(u); err != nil {
			t.Fatal(err)
		}
	}

	requests := []models.ServiceRequest{
		{
			ID: "r1", ClientID: "c1", Type: constants.SERVICE_ETAT_CIVIL,
			Status: constants.REQUEST_STATUS_VALIDATED, PaymentMethod: constants.PAYMENT_METHOD_WALLET,
			Price: 5000, AssignedAgentID: "a1", CreatedAt: time.Now(), UpdatedAt: time.Now(),
		},
		{
			ID: "r2", ClientID: "c1", Type: constants.SERVICE_LEGALISATION,
			Status: constants.REQUEST_STATUS_PENDING, PaymentMethod: constants.PAYMENT_METHOD_DIRECT,
			Price: 2000, CreatedAt: time.Now(), UpdatedAt: time.Now(),
		},
	}

	buf, err := RequestRegister(requests, store)
	if err != nil {
		t.Fatalf("RequestRegister: %v", err)
	}

	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("reading workbook back: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Dossiers")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("%d rows, want header + 2 requests", len(rows))
	}
	if rows[1][1] != "Awa" || rows[1][6] != "Moussa" {
		t.Errorf("row 1 = %v", rows[1])
	}
	// Unassigned requests leave the agent column empty.
	if len(rows[2]) > 6 && rows[2][6] != "" {
		t.Errorf("row 2 agent = %q, want empty", rows[2][6])
	}
}
