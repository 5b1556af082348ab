package erp

import "github.com/shopspring/decimal"

// Offline fixtures. When the ERP is unreachable or unconfigured the client
// degrades to these so the receiving and transfer flows stay usable in
// development and during ERP outages.

func offlinePurchaseOrder(docNum int) *SourceDocument {
	return &SourceDocument{
		DocNum:   docNum,
		DocEntry: 1001,
		CardCode: "V001",
		CardName: "Sample Vendor Ltd",
		DocDate:  "2025-01-08",
		Status:   "bost_Open",
		DocTotal: decimal.NewFromInt(15000),
		Lines: []SourceLine{
			{
				LineNum:       0,
				ItemCode:      "ITM001",
				Description:   "Sample Item 1",
				Quantity:      decimal.NewFromInt(100),
				OpenQuantity:  decimal.NewFromInt(100),
				Price:         decimal.NewFromInt(50),
				UoMCode:       "EA",
				WarehouseCode: "WH01",
				Status:        "bost_Open",
			},
			{
				LineNum:       1,
				ItemCode:      "ITM002",
				Description:   "Sample Item 2",
				Quantity:      decimal.NewFromInt(50),
				OpenQuantity:  decimal.NewFromInt(30),
				Price:         decimal.NewFromInt(200),
				UoMCode:       "KGS",
				WarehouseCode: "WH01",
				Status:        "bost_Open",
			},
		},
	}
}

func offlineTransferRequest(docNum int) *SourceDocument {
	return &SourceDocument{
		DocNum:        docNum,
		DocEntry:      123,
		Status:        "bost_Open",
		FromWarehouse: "WH001",
		ToWarehouse:   "WH002",
		Lines: []SourceLine{
			{
				LineNum:       0,
				ItemCode:      "ITM001",
				Description:   "Sample Item",
				Quantity:      decimal.NewFromInt(10),
				OpenQuantity:  decimal.NewFromInt(10),
				FromWarehouse: "WH001",
				WarehouseCode: "WH002",
			},
		},
	}
}

func offlineBatchNumbers(itemCode string) []BatchDetail {
	return []BatchDetail{
		{
			BatchNumber: "BATCH-2025-001",
			ItemCode:    itemCode,
			Quantity:    decimal.NewFromInt(100),
			ExpiryDate:  "2026-01-08",
			Status:      "bdsStatus_Released",
		},
	}
}

func offlineWarehouseBins(whsCode string) []WarehouseBin {
	return []WarehouseBin{
		{AbsEntry: 1, BinCode: whsCode + "-A1", Warehouse: whsCode, Active: true},
		{AbsEntry: 2, BinCode: whsCode + "-A2", Warehouse: whsCode, Active: true},
	}
}

func offlineBinItems(binCode string) []BinItem {
	return []BinItem{
		{
			ItemCode:      "CO0726Y",
			ItemName:      "COATED LOWER PLATE",
			UoM:           "EA",
			InStock:       decimal.NewFromInt(100),
			WarehouseCode: "WH001",
			BinCode:       binCode,
			BinAbsEntry:   1,
			Batches: []BatchDetail{
				{
					BatchNumber: "BATCH-2025-001",
					ItemCode:    "CO0726Y",
					Quantity:    decimal.NewFromInt(100),
					ExpiryDate:  "2026-01-08",
					Status:      "bdsStatus_Released",
				},
			},
		},
	}
}
