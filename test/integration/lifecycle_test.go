package integration

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/medtrack/medtrack/internal/domain/implant"
	"github.com/medtrack/medtrack/internal/domain/maintenance"
	"github.com/medtrack/medtrack/internal/domain/performance"
	"github.com/medtrack/medtrack/internal/storage"
)

// TestImplantLifecycle walks one device through its full arc against a real
// database: registration, implantation, maintenance, patient-reported
// performance, and removal.
func TestImplantLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newStack(t, ctx)

	pacemaker := registerTestDevice(t, ctx, st, "UDI-PM-001", "pacemaker")
	if pacemaker.ID != 1 {
		t.Fatalf("first device id = %d, want 1", pacemaker.ID)
	}
	pump := registerTestDevice(t, ctx, st, "UDI-IP-002", "insulin-pump")
	if pump.ID != 2 {
		t.Fatalf("second device id = %d, want 2", pump.ID)
	}

	got, err := st.Devices.GetDevice(ctx, pacemaker.ID)
	if err != nil {
		t.Fatalf("get device: %v", err)
	}
	if got.UDI != "UDI-PM-001" || got.DeviceType != "pacemaker" || got.SpecsHash != pacemaker.SpecsHash {
		t.Errorf("device round-trip mismatch: %+v", got)
	}

	imp := implantTestDevice(t, ctx, st, pacemaker.ID, "PAT-100", "DR-HOUSE")
	if imp.ID != 1 {
		t.Fatalf("first implant id = %d, want 1", imp.ID)
	}
	if !imp.Active {
		t.Fatal("new implant is not active")
	}

	second := implantTestDevice(t, ctx, st, pump.ID, "PAT-200", "DR-HOUSE")
	if second.ID != 2 {
		t.Fatalf("second implant id = %d, want 2", second.ID)
	}

	// Implanting an unregistered device rolls the whole transaction back,
	// so the next implant still gets the next sequential id.
	err = st.Implants.ImplantDevice(ctx, "DR-HOUSE", &implant.Implant{
		PatientID:   "PAT-999",
		DeviceID:    999,
		ImplantDate: 1710000000,
		Location:    "abdomen",
		ProviderID:  "DR-HOUSE",
		NotesHash:   testHash("ghost"),
	})
	if !errors.Is(err, storage.ErrRecordNotFound) {
		t.Fatalf("implant of unregistered device: err = %v, want record not found", err)
	}
	third := implantTestDevice(t, ctx, st, pump.ID, "PAT-200", "DR-HOUSE")
	if third.ID != 3 {
		t.Fatalf("implant id after rollback = %d, want 3", third.ID)
	}

	// Two maintenance events append to the implant's history in order.
	ev1 := &maintenance.Event{
		ImplantID:   imp.ID,
		Date:        1712000000,
		Type:        "battery-check",
		PerformedBy: "TECH-42",
		NotesHash:   testHash("maint-1"),
	}
	if err := st.Maintenance.RecordMaintenance(ctx, "TECH-42", ev1); err != nil {
		t.Fatalf("record maintenance: %v", err)
	}
	ev2 := &maintenance.Event{
		ImplantID:   imp.ID,
		Date:        1712100000,
		Type:        "lead-inspection",
		PerformedBy: "TECH-42",
		NotesHash:   testHash("maint-2"),
	}
	if err := st.Maintenance.RecordMaintenance(ctx, "TECH-42", ev2); err != nil {
		t.Fatalf("record maintenance: %v", err)
	}
	if ev1.ID != 1 || ev2.ID != 2 {
		t.Errorf("event ids = %d, %d, want 1, 2", ev1.ID, ev2.ID)
	}

	history, err := st.Maintenance.ListMaintenance(ctx, imp.ID)
	if err != nil {
		t.Fatalf("list maintenance: %v", err)
	}
	if len(history) != 2 || history[0].ID != ev1.ID || history[1].ID != ev2.ID {
		t.Fatalf("maintenance history = %+v, want events 1 and 2 in order", history)
	}
	if history[0].Type != "battery-check" || history[1].Type != "lead-inspection" {
		t.Errorf("maintenance types = %q, %q", history[0].Type, history[1].Type)
	}

	fresh, err := st.Implants.GetImplant(ctx, imp.ID)
	if err != nil {
		t.Fatalf("get implant: %v", err)
	}
	if !reflect.DeepEqual(fresh.MaintenanceHistory, []uint64{ev1.ID, ev2.ID}) {
		t.Errorf("implant history = %v, want [1 2]", fresh.MaintenanceHistory)
	}

	// Maintenance on an implant that does not exist touches nothing.
	err = st.Maintenance.RecordMaintenance(ctx, "TECH-42", &maintenance.Event{
		ImplantID:   999,
		Date:        1712200000,
		Type:        "battery-check",
		PerformedBy: "TECH-42",
		NotesHash:   testHash("maint-ghost"),
	})
	if !errors.Is(err, storage.ErrRecordNotFound) {
		t.Errorf("maintenance on missing implant: err = %v, want record not found", err)
	}

	// Performance reports take dense per-implant positions starting at 0.
	rep1 := &performance.Report{
		ImplantID:    imp.ID,
		PatientID:    "PAT-100",
		DataHash:     testHash("perf-1"),
		ReportedDate: 1713000000,
	}
	if err := st.Performance.TrackPerformance(ctx, "PAT-100", rep1); err != nil {
		t.Fatalf("track performance: %v", err)
	}
	if rep1.Position != 0 {
		t.Errorf("first report position = %d, want 0", rep1.Position)
	}
	rep2 := &performance.Report{
		ImplantID:     imp.ID,
		PatientID:     "PAT-100",
		DataHash:      testHash("perf-2"),
		ReportedDate:  1713100000,
		Complications: []string{"mild swelling", "site tenderness"},
	}
	if err := st.Performance.TrackPerformance(ctx, "PAT-100", rep2); err != nil {
		t.Fatalf("track performance: %v", err)
	}
	if rep2.Position != 1 {
		t.Errorf("second report position = %d, want 1", rep2.Position)
	}

	reports, err := st.Performance.ListPerformance(ctx, imp.ID)
	if err != nil {
		t.Fatalf("list performance: %v", err)
	}
	if len(reports) != 2 || reports[0].Position != 0 || reports[1].Position != 1 {
		t.Fatalf("reports = %+v, want positions 0 and 1", reports)
	}
	if !reflect.DeepEqual(reports[1].Complications, []string{"mild swelling", "site tenderness"}) {
		t.Errorf("complications = %v", reports[1].Complications)
	}

	// The patient index lists implants in insertion order.
	mine, err := st.Implants.GetPatientImplants(ctx, "PAT-100", "PAT-100", false)
	if err != nil {
		t.Fatalf("get patient implants: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != imp.ID {
		t.Fatalf("PAT-100 implants = %+v, want implant 1", mine)
	}
	others, err := st.Implants.GetPatientImplants(ctx, "DR-HOUSE", "PAT-200", false)
	if err != nil {
		t.Fatalf("get patient implants: %v", err)
	}
	if len(others) != 2 || others[0].ID != second.ID || others[1].ID != third.ID {
		t.Fatalf("PAT-200 implants = %+v, want implants 2 and 3 in order", others)
	}

	// Removal flips the implant exactly once and records the explant fields.
	explantHash := ptrStr(testHash("explant"))
	removed, err := st.Implants.RemoveImplant(ctx, "DR-HOUSE", "DR-HOUSE", second.ID, 1714000000, "routine replacement", explantHash)
	if err != nil {
		t.Fatalf("remove implant: %v", err)
	}
	if removed.Active {
		t.Error("removed implant still active")
	}
	if removed.RemovalDate == nil || *removed.RemovalDate != 1714000000 {
		t.Errorf("removal date = %v, want 1714000000", removed.RemovalDate)
	}
	if removed.RemovalReason == nil || *removed.RemovalReason != "routine replacement" {
		t.Errorf("removal reason = %v", removed.RemovalReason)
	}
	if removed.ExplantHash == nil || *removed.ExplantHash != *explantHash {
		t.Errorf("explant hash = %v", removed.ExplantHash)
	}

	_, err = st.Implants.RemoveImplant(ctx, "DR-HOUSE", "DR-HOUSE", second.ID, 1714100000, "again", nil)
	if !errors.Is(err, storage.ErrDeviceNotActive) {
		t.Fatalf("second removal: err = %v, want device not active", err)
	}

	// Servicing an explanted device is still recorded.
	ev3 := &maintenance.Event{
		ImplantID:   second.ID,
		Date:        1714200000,
		Type:        "post-explant-inspection",
		PerformedBy: "TECH-42",
		NotesHash:   testHash("maint-3"),
	}
	if err := st.Maintenance.RecordMaintenance(ctx, "TECH-42", ev3); err != nil {
		t.Fatalf("maintenance on removed implant: %v", err)
	}
	gone, err := st.Implants.GetImplant(ctx, second.ID)
	if err != nil {
		t.Fatalf("get removed implant: %v", err)
	}
	if !reflect.DeepEqual(gone.MaintenanceHistory, []uint64{ev3.ID}) {
		t.Errorf("removed implant history = %v, want [%d]", gone.MaintenanceHistory, ev3.ID)
	}

	// The active-only view hides the removed implant.
	active, err := st.Implants.GetPatientImplants(ctx, "DR-HOUSE", "PAT-200", true)
	if err != nil {
		t.Fatalf("get active implants: %v", err)
	}
	if len(active) != 1 || active[0].ID != third.ID {
		t.Fatalf("active PAT-200 implants = %+v, want implant 3 only", active)
	}
}
