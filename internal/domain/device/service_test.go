package device

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"testing"

	"github.com/medtrack/medtrack/internal/storage"
)

// -- Mocks --

// mockDeviceRepo is an append-only in-memory registry; row position
// determines the id, like the sequence allocator does.
type mockDeviceRepo struct {
	rows []*Device
}

func (m *mockDeviceRepo) Create(_ context.Context, d *Device) error {
	d.ID = uint64(len(m.rows) + 1)
	m.rows = append(m.rows, d)
	return nil
}

func (m *mockDeviceRepo) GetByID(_ context.Context, id uint64) (*Device, error) {
	for _, d := range m.rows {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device: %w", storage.ErrRecordNotFound)
}

func (m *mockDeviceRepo) Exists(_ context.Context, id uint64) (bool, error) {
	return id >= 1 && id <= uint64(len(m.rows)), nil
}

func (m *mockDeviceRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Device, int, error) {
	matched := make([]*Device, 0, len(m.rows))
	for _, d := range m.rows {
		if f.UDI != "" && d.UDI != f.UDI {
			continue
		}
		if f.LotNumber != "" && d.LotNumber != f.LotNumber {
			continue
		}
		matched = append(matched, d)
	}
	lo := min(offset, len(matched))
	hi := min(lo+limit, len(matched))
	return matched[lo:hi], len(matched), nil
}

type txPassthrough struct{}

func (txPassthrough) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type recordingPublisher struct {
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, event, resourceID string, _ interface{}) {
	p.events = append(p.events, event+":"+resourceID)
}

func testHash(seed string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(seed)))
}

func newTestService() (*Service, *mockDeviceRepo) {
	repo := &mockDeviceRepo{}
	return NewService(txPassthrough{}, repo), repo
}

func validDevice() *Device {
	return &Device{
		UDI:               "(01)00844588003288",
		DeviceType:        "pacemaker",
		Manufacturer:      "CardioTech",
		ModelNumber:       "CT-500",
		LotNumber:         "LOT-2209",
		ManufacturingDate: 1660000000,
		SpecsHash:         testHash("specs"),
	}
}

// -- Service Tests --

func TestRegisterDevice_Success(t *testing.T) {
	svc, _ := newTestService()
	d := validDevice()
	if err := svc.RegisterDevice(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ID != 1 {
		t.Errorf("first device id = %d, want 1", d.ID)
	}
	if d.SpecsHash != testHash("specs") {
		t.Errorf("specs_hash changed on store: %q", d.SpecsHash)
	}
}

func TestRegisterDevice_SequentialIDs(t *testing.T) {
	svc, _ := newTestService()
	var last uint64
	for i := 0; i < 5; i++ {
		d := validDevice()
		if err := svc.RegisterDevice(context.Background(), d); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.ID != last+1 {
			t.Fatalf("id = %d, want %d", d.ID, last+1)
		}
		last = d.ID
	}
}

func TestRegisterDevice_MissingUDI(t *testing.T) {
	svc, _ := newTestService()
	d := validDevice()
	d.UDI = ""
	if err := svc.RegisterDevice(context.Background(), d); err == nil {
		t.Fatal("expected error for missing udi")
	}
}

func TestRegisterDevice_MissingDeviceType(t *testing.T) {
	svc, _ := newTestService()
	d := validDevice()
	d.DeviceType = ""
	if err := svc.RegisterDevice(context.Background(), d); err == nil {
		t.Fatal("expected error for missing device_type")
	}
}

func TestRegisterDevice_MissingManufacturer(t *testing.T) {
	svc, _ := newTestService()
	d := validDevice()
	d.Manufacturer = ""
	if err := svc.RegisterDevice(context.Background(), d); err == nil {
		t.Fatal("expected error for missing manufacturer")
	}
}

func TestRegisterDevice_InvalidSpecsHash(t *testing.T) {
	for _, bad := range []string{"", "abc123", "ZZ" + testHash("x")[2:]} {
		svc, _ := newTestService()
		d := validDevice()
		d.SpecsHash = bad
		if err := svc.RegisterDevice(context.Background(), d); err == nil {
			t.Errorf("specs_hash %q should be rejected", bad)
		}
	}
}

func TestRegisterDevice_OptionalExpiration(t *testing.T) {
	svc, _ := newTestService()
	exp := int64(1800000000)
	d := validDevice()
	d.ExpirationDate = &exp
	if err := svc.RegisterDevice(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := svc.GetDevice(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ExpirationDate == nil || *got.ExpirationDate != exp {
		t.Errorf("expiration_date not preserved: %v", got.ExpirationDate)
	}
}

func TestRegisterDevice_PublishesEvent(t *testing.T) {
	svc, _ := newTestService()
	pub := &recordingPublisher{}
	svc.SetPublisher(pub)
	d := validDevice()
	if err := svc.RegisterDevice(context.Background(), d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0] != "device.registered:1" {
		t.Errorf("events = %v, want [device.registered:1]", pub.events)
	}
}

func TestRegisterDevice_NoEventOnFailure(t *testing.T) {
	svc, _ := newTestService()
	pub := &recordingPublisher{}
	svc.SetPublisher(pub)
	d := validDevice()
	d.UDI = ""
	if err := svc.RegisterDevice(context.Background(), d); err == nil {
		t.Fatal("expected error")
	}
	if len(pub.events) != 0 {
		t.Errorf("no events expected on failure, got %v", pub.events)
	}
}

func TestGetDevice(t *testing.T) {
	svc, _ := newTestService()
	d := validDevice()
	svc.RegisterDevice(context.Background(), d)
	got, err := svc.GetDevice(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UDI != d.UDI {
		t.Errorf("UDI = %q, want %q", got.UDI, d.UDI)
	}
	if got.DeviceType != "pacemaker" {
		t.Errorf("DeviceType = %q, want pacemaker", got.DeviceType)
	}
}

func TestGetDevice_UnknownID(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.GetDevice(context.Background(), 42)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, storage.ErrRecordNotFound) {
		t.Errorf("expected record-not-found, got %v", err)
	}
}

func seedRegistry(t *testing.T, svc *Service, udis ...string) {
	t.Helper()
	for i, udi := range udis {
		d := validDevice()
		d.UDI = udi
		d.LotNumber = fmt.Sprintf("LOT-%d", i%2)
		if err := svc.RegisterDevice(context.Background(), d); err != nil {
			t.Fatalf("seed device %d: %v", i, err)
		}
	}
}

func TestListDevices_All(t *testing.T) {
	svc, _ := newTestService()
	seedRegistry(t, svc, "(01)1", "(01)2", "(01)3")
	items, total, err := svc.ListDevices(context.Background(), Filter{}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("expected 3 devices, got total=%d len=%d", total, len(items))
	}
	for i, d := range items {
		if d.ID != uint64(i+1) {
			t.Errorf("items[%d].ID = %d, want %d (id order)", i, d.ID, i+1)
		}
	}
}

func TestListDevices_Pagination(t *testing.T) {
	svc, _ := newTestService()
	seedRegistry(t, svc, "(01)1", "(01)2", "(01)3", "(01)4", "(01)5")
	items, total, err := svc.ListDevices(context.Background(), Filter{}, 2, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(items) != 2 || items[0].ID != 3 || items[1].ID != 4 {
		t.Errorf("page = %v, want ids [3 4]", ids(items))
	}
}

func TestListDevices_FilterByUDI(t *testing.T) {
	svc, _ := newTestService()
	seedRegistry(t, svc, "(01)1", "(01)2", "(01)1")

	items, total, err := svc.ListDevices(context.Background(), Filter{UDI: "(01)1"}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want the two registrations sharing the udi", total)
	}
	for _, d := range items {
		if d.UDI != "(01)1" {
			t.Errorf("foreign udi in result: %q", d.UDI)
		}
	}

	_, total, _ = svc.ListDevices(context.Background(), Filter{UDI: "(01)none"}, 10, 0)
	if total != 0 {
		t.Errorf("unknown udi total = %d, want 0", total)
	}
}

func TestListDevices_FilterByLot(t *testing.T) {
	svc, _ := newTestService()
	seedRegistry(t, svc, "(01)1", "(01)2", "(01)3", "(01)4")

	// seedRegistry alternates LOT-0 and LOT-1.
	items, total, err := svc.ListDevices(context.Background(), Filter{LotNumber: "LOT-0"}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("lot page: total=%d len=%d, want 2/2", total, len(items))
	}
	if items[0].ID != 1 || items[1].ID != 3 {
		t.Errorf("lot members = %v, want ids [1 3]", ids(items))
	}
}

func TestListDevices_CombinedFilters(t *testing.T) {
	svc, _ := newTestService()
	seedRegistry(t, svc, "(01)1", "(01)1", "(01)1")

	// Only the first and third rows carry LOT-0.
	_, total, err := svc.ListDevices(context.Background(),
		Filter{UDI: "(01)1", LotNumber: "LOT-1"}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 {
		t.Errorf("combined filter total = %d, want 1", total)
	}
}

func ids(items []*Device) []uint64 {
	out := make([]uint64, len(items))
	for i, d := range items {
		out[i] = d.ID
	}
	return out
}
