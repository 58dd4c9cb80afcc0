package reporting

import "testing"

func TestValidateSalesByRegionTolerance(t *testing.T) {
	res := &Result{SalesByRegion: &SalesByRegion{
		Summary: SalesByRegionSummary{TotalRevenue: dec("300")},
		Rows: []SalesByRegionRow{
			{Region: "North", Percentage: dec("33.33")},
			{Region: "South", Percentage: dec("33.33")},
			{Region: "West", Percentage: dec("33.33")},
		},
	}}
	if diags := Validate(res); len(diags) != 0 {
		t.Fatalf("expected 99.99%% to pass within tolerance, got %+v", diags)
	}
	res.SalesByRegion.Rows[2].Percentage = dec("30")
	diags := Validate(res)
	if len(diags) != 1 || diags[0].Code != DiagOutOfBounds {
		t.Fatalf("expected one OUT_OF_BOUNDS diagnostic, got %+v", diags)
	}
}

func TestValidateInventoryCrossCheck(t *testing.T) {
	res := &Result{InventoryMovement: &InventoryMovement{Rows: []InventoryMovementRow{
		{ProductID: "p1", NetChange: dec("30"), SignedSum: dec("30"), Closing: dec("30")},
		{ProductID: "p2", NetChange: dec("5"), SignedSum: dec("4"), Closing: dec("-1")},
	}}}
	diags := Validate(res)
	if len(diags) != 2 {
		t.Fatalf("expected two diagnostics, got %+v", diags)
	}
	if diags[0].Code != DiagCrossCheck || diags[0].Ref != "p2" {
		t.Fatalf("unexpected cross check diagnostic: %+v", diags[0])
	}
	if diags[1].Code != DiagOutOfBounds {
		t.Fatalf("expected negative closing to be flagged, got %+v", diags[1])
	}
}

func TestValidateMachineHours(t *testing.T) {
	res := &Result{ProductionEfficiency: &ProductionEfficiency{
		Summary: ProductionEfficiencySummary{PeriodHours: dec("24")},
		Rows: []ProductionEfficiencyRow{
			{MachineID: "loom-1", RuntimeHours: dec("20"), DowntimeHours: dec("4"), Efficiency: dec("83.33")},
			{MachineID: "loom-2", RuntimeHours: dec("20"), DowntimeHours: dec("5"), Efficiency: dec("80")},
		},
	}}
	diags := Validate(res)
	if len(diags) != 1 || diags[0].Ref != "loom-2" {
		t.Fatalf("expected loom-2 to exceed period hours, got %+v", diags)
	}
}

func TestPostingDiagnostics(t *testing.T) {
	entries := []LedgerEntry{
		{ID: "ok", Debit: dec("1")},
		{ID: "both", Debit: dec("1"), Credit: dec("1")},
		{ID: "none"},
		{ID: "neg", Credit: dec("-1")},
	}
	diags := postingDiagnostics(entries)
	if len(diags) != 3 {
		t.Fatalf("expected three diagnostics, got %+v", diags)
	}
	for _, d := range diags {
		if d.Code != DiagOutOfBounds || d.Ref == "ok" {
			t.Fatalf("unexpected diagnostic %+v", d)
		}
	}
}
