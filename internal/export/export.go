// Package export builds XLSX reports for admins.
package export

import (
	"bytes"
	"fmt"
	"log"

	"github.com/xuri/excelize/v2"

	"coursio/internal/models"
	"coursio/internal/storage"
)

// LedgerJournal renders every ledger entry into a spreadsheet, one row per
// entry, most recent first.
func LedgerJournal(entries []models.LedgerEntry, users storage.UserStore) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	sheetName := "Journal"
	index, _ := f.NewSheet(sheetName)
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headers := []string{"ID", "Utilisateur", "Email", "Montant (FCFA)", "Type", "Référence", "Date"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	names := map[string]models.User{}
	rowIndex := 2
	for _, e := range entries {
		u, ok := names[e.UserID]
		if !ok {
			var err error
			u, err = users.UserByID(e.UserID)
			if err != nil {
				log.Printf("LedgerJournal: could not resolve user %s: %v", e.UserID, err)
				u = models.User{ID: e.UserID, Name: e.UserID}
			}
			names[e.UserID] = u
		}

		f.SetCellValue(sheetName, fmt.Sprintf("A%d", rowIndex), e.ID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", rowIndex), u.Name)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", rowIndex), u.Email)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", rowIndex), e.Amount)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", rowIndex), e.Kind)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", rowIndex), e.RelatedRequestID)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", rowIndex), e.CreatedAt.Format("02.01.2006 15:04"))
		rowIndex++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		log.Printf("LedgerJournal: error writing workbook: %v", err)
		return nil, err
	}
	return buf, nil
}

// RequestRegister renders the service request register, one row per request.
func RequestRegister(requests []models.ServiceRequest, users storage.UserStore) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	sheetName := "Dossiers"
	index, _ := f.NewSheet(sheetName)
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headers := []string{"ID", "Client", "Service", "Statut", "Paiement", "Prix (FCFA)", "Agent", "Créé le", "Mis à jour le"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	names := map[string]string{}
	resolve := func(id string) string {
		if id == "" {
			return ""
		}
		if name, ok := names[id]; ok {
			return name
		}
		u, err := users.UserByID(id)
		if err != nil {
			log.Printf("RequestRegister: could not resolve user %s: %v", id, err)
			names[id] = id
			return id
		}
		names[id] = u.Name
		return u.Name
	}

	rowIndex := 2
	for _, r := range requests {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", rowIndex), r.ID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", rowIndex), resolve(r.ClientID))
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", rowIndex), r.Type)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", rowIndex), r.Status)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", rowIndex), r.PaymentMethod)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", rowIndex), r.Price)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", rowIndex), resolve(r.AssignedAgentID))
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", rowIndex), r.CreatedAt.Format("02.01.2006 15:04"))
		f.SetCellValue(sheetName, fmt.Sprintf("I%d", rowIndex), r.UpdatedAt.Format("02.01.2006 15:04"))
		rowIndex++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		log.Printf("RequestRegister: error writing workbook: %v", err)
		return nil, err
	}
	return buf, nil
}
