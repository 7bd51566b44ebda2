package api

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportPayouts отдает журнал выплат как Excel-файл.
// ExportPayouts streams the payout log as an .xlsx file.
func (h *apiHandlers) ExportPayouts(w http.ResponseWriter, r *http.Request) {
	rows, err := h.deps.Store.GetPayoutsForExport()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "Failed to query payouts")
		return
	}
	defer rows.Close()

	f := excelize.NewFile()
	sheetName := "Payouts"
	index, _ := f.NewSheet(sheetName)
	f.DeleteSheet("Sheet1") // Удаляем стандартный лист / Delete default sheet
	f.SetActiveSheet(index)

	headers := []string{"ID", "Tg User ID", "Username", "Wallet", "Amount (BEAM)", "Kind", "Tx Hash", "Date"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	rowIndex := 2
	for rows.Next() {
		var id, tgUserID, amount int64
		var username, wallet, kind, txHash string
		var createdAt time.Time

		// Порядок сканирования должен соответствовать SELECT в db.GetPayoutsForExport()
		// Scan order must match SELECT in db.GetPayoutsForExport()
		if errScan := rows.Scan(&id, &tgUserID, &username, &wallet, &amount, &kind, &txHash, &createdAt); errScan != nil {
			log.Printf("ExportPayouts: ошибка сканирования строки выплаты: %v", errScan)
			continue
		}

		f.SetCellValue(sheetName, fmt.Sprintf("A%d", rowIndex), id)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", rowIndex), tgUserID)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", rowIndex), username)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", rowIndex), wallet)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", rowIndex), amount)
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", rowIndex), kind)
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", rowIndex), txHash)
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", rowIndex), createdAt.Format("2006-01-02 15:04:05"))
		rowIndex++
	}
	if err := rows.Err(); err != nil {
		log.Printf("ExportPayouts: ошибка обхода строк: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to read payouts")
		return
	}

	filename := fmt.Sprintf("payouts_%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := f.Write(w); err != nil {
		log.Printf("ExportPayouts: ошибка записи файла в ответ: %v", err)
	}
}
