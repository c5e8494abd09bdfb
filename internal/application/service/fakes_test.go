package service

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/inspector-vouchers/internal/application/dispatcher"
	"github.com/garyjia/inspector-vouchers/internal/application/port"
	"github.com/garyjia/inspector-vouchers/internal/domain/entity"
	"github.com/garyjia/inspector-vouchers/internal/domain/event"
	"github.com/garyjia/inspector-vouchers/internal/domain/workflow"
)

// memStore backs every repository port with maps guarded by one mutex.
// Reads hand out copies so callers never share rows.
type memStore struct {
	mu          sync.Mutex
	nextID      int64
	people      map[int64]entity.Person
	trips       map[int64]entity.Trip
	vouchers    map[int64]entity.Voucher
	ledger      []entity.CertificationEntry
	assignments map[int64]entity.AssignmentRequest
	rates       []entity.MileageRate
}

func newMemStore() *memStore {
	return &memStore{
		people:      make(map[int64]entity.Person),
		trips:       make(map[int64]entity.Trip),
		vouchers:    make(map[int64]entity.Voucher),
		assignments: make(map[int64]entity.AssignmentRequest),
		rates: []entity.MileageRate{
			{ID: 1, EffectiveDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), Rate: decimal.RequireFromString("0.67")},
		},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

type memPeople struct{ *memStore }
type memTrips struct{ *memStore }
type memVouchers struct{ *memStore }
type memLedger struct{ *memStore }
type memAssignments struct{ *memStore }
type memRates struct{ *memStore }

func (r memPeople) Create(_ context.Context, p *entity.Person) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == 0 {
		p.ID = r.id()
	}
	r.people[p.ID] = *p
	return nil
}

func (r memPeople) GetByID(_ context.Context, id int64) (*entity.Person, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.people[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r memPeople) ListByRole(_ context.Context, role entity.Role) ([]*entity.Person, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Person
	for _, p := range r.people {
		if p.Role == role {
			cp := p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memPeople) UpdateRelation(_ context.Context, personID int64, relation entity.Relation, supervisorID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.people[personID]
	id := supervisorID
	if relation == entity.RelationFLSSupervisor {
		p.FLSSupervisorID = &id
	} else {
		p.AssignedSupervisorID = &id
	}
	r.people[personID] = p
	return nil
}

func (r memTrips) Create(_ context.Context, t *entity.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = r.id()
	r.trips[t.ID] = *t
	return nil
}

func (r memTrips) ListByVoucher(_ context.Context, voucherID int64) ([]*entity.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Trip
	for _, t := range r.trips {
		if t.VoucherID == voucherID {
			cp := t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memVouchers) Create(_ context.Context, v *entity.Voucher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v.ID = r.id()
	r.vouchers[v.ID] = *v
	return nil
}

func (r memVouchers) GetByID(_ context.Context, id int64) (*entity.Voucher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vouchers[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r memVouchers) GetOpenForPeriod(_ context.Context, personID int64, month, year int) (*entity.Voucher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.vouchers {
		if v.PersonID == personID && v.Month == month && v.Year == year && v.Status != workflow.StateApproved {
			cp := v
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memVouchers) UpdateTransition(_ context.Context, v *entity.Voucher, from workflow.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.vouchers[v.ID]
	if !ok || stored.Status != from {
		return port.ErrStatusConflict
	}
	r.vouchers[v.ID] = *v
	return nil
}

func (r memVouchers) list(match func(entity.Voucher) bool) []*entity.Voucher {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Voucher
	for _, v := range r.vouchers {
		if match(v) {
			cp := v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memVouchers) ListAwaitingSupervisor(_ context.Context, approverID int64) ([]*entity.Voucher, error) {
	return r.list(func(v entity.Voucher) bool {
		return v.Status == workflow.StateSubmitted && v.PendingApproverID != nil && *v.PendingApproverID == approverID
	}), nil
}

func (r memVouchers) ListByStatus(_ context.Context, status workflow.State) ([]*entity.Voucher, error) {
	return r.list(func(v entity.Voucher) bool { return v.Status == status }), nil
}

func (r memVouchers) ListStale(_ context.Context, cutoff time.Time) ([]*entity.Voucher, error) {
	return r.list(func(v entity.Voucher) bool {
		return v.Status.AwaitingApproval() && v.UpdatedAt.Before(cutoff)
	}), nil
}

func (r memVouchers) ListApprovedForPeriod(_ context.Context, month, year int) ([]*entity.Voucher, error) {
	return r.list(func(v entity.Voucher) bool {
		return v.Status == workflow.StateApproved && v.Month == month && v.Year == year
	}), nil
}

func (r memLedger) Append(_ context.Context, e *entity.CertificationEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = r.id()
	r.ledger = append(r.ledger, *e)
	return nil
}

func (r memLedger) ListByVoucher(_ context.Context, voucherID int64) ([]*entity.CertificationEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.CertificationEntry
	for _, e := range r.ledger {
		if e.VoucherID == voucherID {
			cp := e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r memAssignments) Create(_ context.Context, req *entity.AssignmentRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req.ID = r.id()
	r.assignments[req.ID] = *req
	return nil
}

func (r memAssignments) GetByID(_ context.Context, id int64) (*entity.AssignmentRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.assignments[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (r memAssignments) FindPending(_ context.Context, inspectorID, requesterID int64) (*entity.AssignmentRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.assignments {
		if req.InspectorID == inspectorID && req.RequestingSupervisorID == requesterID && req.Status == entity.AssignmentPending {
			cp := req
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memAssignments) ListPending(_ context.Context) ([]*entity.AssignmentRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.AssignmentRequest
	for _, req := range r.assignments {
		if req.Status == entity.AssignmentPending {
			cp := req
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memAssignments) UpdateResolution(_ context.Context, req *entity.AssignmentRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.assignments[req.ID]
	if !ok || stored.Status != entity.AssignmentPending {
		return port.ErrStatusConflict
	}
	r.assignments[req.ID] = *req
	return nil
}

func (r memRates) ListAll(_ context.Context) ([]entity.MileageRate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.MileageRate, len(r.rates))
	copy(out, r.rates)
	return out, nil
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// recordingPublisher keeps dispatched events for assertions
type recordingPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (p *recordingPublisher) DispatchAsync(_ context.Context, evt *event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []event.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// recordingNotifier captures messages instead of sending them
type recordingNotifier struct {
	mu       sync.Mutex
	messages []port.Message
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, msg port.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, msg)
	return nil
}

func (n *recordingNotifier) recipients() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]int64, 0, len(n.messages))
	for _, m := range n.messages {
		out = append(out, m.RecipientID)
	}
	return out
}

type recordingSubscriber struct {
	names map[event.Type][]string
}

func (s *recordingSubscriber) SubscribeNamed(eventType event.Type, name string, _ dispatcher.Handler) {
	if s.names == nil {
		s.names = make(map[event.Type][]string)
	}
	s.names[eventType] = append(s.names[eventType], name)
}

type stubExporter struct {
	sheet string
	rows  []port.ExportRow
}

func (e *stubExporter) Write(w io.Writer, sheet string, rows []port.ExportRow) error {
	e.sheet = sheet
	e.rows = rows
	_, err := w.Write([]byte("xlsx"))
	return err
}

type memArchive struct {
	files map[string][]byte
}

func (s *memArchive) Save(_ context.Context, path string, content []byte) error {
	if s.files == nil {
		s.files = make(map[string][]byte)
	}
	s.files[path] = content
	return nil
}

func (s *memArchive) GetFullPath(relativePath string) string {
	return "/exports/" + relativePath
}
