package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// MemoryDB is an in-memory stand-in for the patents and fee_events tables.
// WithinTx restores the previous contents when fn fails.
type MemoryDB struct {
	mu         sync.Mutex
	patents    map[int64]patent.Patent
	events     map[int64]patent.FeeEvent
	nextPatent int64
	nextEvent  int64
}

// NewMemoryDB returns an empty database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		patents: make(map[int64]patent.Patent),
		events:  make(map[int64]patent.FeeEvent),
	}
}

// Patents returns a patent.Repository over db.
func (db *MemoryDB) Patents() patent.Repository { return &memoryPatents{db: db} }

// FeeEvents returns a patent.FeeEventRepository over db.
func (db *MemoryDB) FeeEvents() patent.FeeEventRepository { return &memoryEvents{db: db} }

// WithinTx implements patent.Transactor.
func (db *MemoryDB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	db.mu.Lock()
	patents := make(map[int64]patent.Patent, len(db.patents))
	for k, v := range db.patents {
		patents[k] = v
	}
	events := make(map[int64]patent.FeeEvent, len(db.events))
	for k, v := range db.events {
		events[k] = v
	}
	nextPatent, nextEvent := db.nextPatent, db.nextEvent
	db.mu.Unlock()

	if err := fn(ctx); err != nil {
		db.mu.Lock()
		db.patents, db.events = patents, events
		db.nextPatent, db.nextEvent = nextPatent, nextEvent
		db.mu.Unlock()
		return err
	}
	return nil
}

// Seed inserts p directly and returns its id.
func (db *MemoryDB) Seed(p patent.Patent) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextPatent++
	p.ID = db.nextPatent
	db.patents[p.ID] = p
	return p.ID
}

// SeedEvent inserts e directly and returns its id.
func (db *MemoryDB) SeedEvent(e patent.FeeEvent) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextEvent++
	e.ID = db.nextEvent
	db.events[e.ID] = e
	return e.ID
}

// AllPatents returns every stored patent ordered by id.
func (db *MemoryDB) AllPatents() []patent.Patent {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]patent.Patent, 0, len(db.patents))
	for _, p := range db.patents {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllEvents returns every stored fee event ordered by id.
func (db *MemoryDB) AllEvents() []patent.FeeEvent {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]patent.FeeEvent, 0, len(db.events))
	for _, e := range db.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PatentByNumber returns the first patent with the given number.
func (db *MemoryDB) PatentByNumber(number string) (patent.Patent, bool) {
	for _, p := range db.AllPatents() {
		if p.PatentNumber == number {
			return p, true
		}
	}
	return patent.Patent{}, false
}

type memoryPatents struct{ db *MemoryDB }

func (r *memoryPatents) FindOne(ctx context.Context, l patent.Lookup) (*patent.Patent, error) {
	if l.ApplicationNumber == "" && l.PatentNumber == "" {
		return nil, errors.New(errors.ErrCodeValidation, "patent lookup needs an application or patent number")
	}
	var found []patent.Patent
	for _, p := range r.db.AllPatents() {
		if l.ApplicationNumber != "" && p.ApplicationNumber != l.ApplicationNumber {
			continue
		}
		if l.PatentNumber != "" && p.PatentNumber != l.PatentNumber {
			continue
		}
		found = append(found, p)
	}
	switch len(found) {
	case 0:
		return nil, patent.ErrNotFound(l)
	case 1:
		return &found[0], nil
	default:
		return nil, patent.ErrAmbiguous(l)
	}
}

func (r *memoryPatents) FindByIDs(ctx context.Context, ids []int64) ([]*patent.Patent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]*patent.Patent, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.db.patents[id]; ok {
			out = append(out, &p)
		}
	}
	return out, nil
}

// Create enforces the unique patent number. Seed does not, so tests can still
// build ambiguous data.
func (r *memoryPatents) Create(ctx context.Context, p *patent.Patent) error {
	if _, ok := r.db.PatentByNumber(p.PatentNumber); ok {
		return patent.ErrDuplicate(p.PatentNumber)
	}
	p.ID = r.db.Seed(*p)
	return nil
}

func (r *memoryPatents) update(id int64, fn func(p *patent.Patent)) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.patents[id]
	if !ok {
		return errors.New(errors.ErrCodePatentNotFound, "patent not found")
	}
	fn(&p)
	r.db.patents[id] = p
	return nil
}

func (r *memoryPatents) UpdateEntityStatus(ctx context.Context, id int64, status string) error {
	return r.update(id, func(p *patent.Patent) { p.EntityStatus = status })
}

func (r *memoryPatents) UpdateAssignment(ctx context.Context, id int64, a patent.Assignment) error {
	return r.update(id, func(p *patent.Patent) { p.ApplyAssignment(a) })
}

func (r *memoryPatents) UpdateAssignee(ctx context.Context, id int64, name, address string) error {
	return r.update(id, func(p *patent.Patent) {
		p.AssigneeName = name
		p.AssigneeAddress = address
	})
}

func (r *memoryPatents) ListIssuedBetween(ctx context.Context, from, to time.Time) ([]*patent.Patent, error) {
	var out []*patent.Patent
	for _, p := range r.db.AllPatents() {
		p := p
		if !p.IssueDate.Before(from) && !p.IssueDate.After(to) {
			out = append(out, &p)
		}
	}
	return out, nil
}

func (r *memoryPatents) ListIssuedBefore(ctx context.Context, before time.Time) ([]*patent.Patent, error) {
	var out []*patent.Patent
	for _, p := range r.db.AllPatents() {
		p := p
		if p.IssueDate.Before(before) {
			out = append(out, &p)
		}
	}
	return out, nil
}

func (r *memoryPatents) DeleteIssuedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for id, p := range r.db.patents {
		if p.IssueDate.Before(before) {
			delete(r.db.patents, id)
			n++
		}
	}
	for id, e := range r.db.events {
		if _, ok := r.db.patents[e.PatentID]; !ok {
			delete(r.db.events, id)
		}
	}
	return n, nil
}

type memoryEvents struct{ db *MemoryDB }

func (r *memoryEvents) Create(ctx context.Context, e *patent.FeeEvent) error {
	e.ID = r.db.SeedEvent(*e)
	return nil
}

func (r *memoryEvents) GetOrCreate(ctx context.Context, e *patent.FeeEvent) (bool, error) {
	for _, existing := range r.db.AllEvents() {
		if existing.SameEvent(e) {
			e.ID = existing.ID
			return false, nil
		}
	}
	return true, r.Create(ctx, e)
}

func (r *memoryEvents) ListByPatent(ctx context.Context, patentID int64) ([]*patent.FeeEvent, error) {
	var out []*patent.FeeEvent
	for _, e := range r.db.AllEvents() {
		e := e
		if e.PatentID == patentID {
			out = append(out, &e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MaintenanceDate.Before(out[j].MaintenanceDate) })
	return out, nil
}

func (r *memoryEvents) PaidPatentIDs(ctx context.Context, from, to time.Time, codes []string) ([]int64, error) {
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	paid := make(map[int64]bool)
	for _, e := range r.db.AllEvents() {
		if want[e.MaintenanceCode] {
			paid[e.PatentID] = true
		}
	}
	var ids []int64
	for _, p := range r.db.AllPatents() {
		if paid[p.ID] && !p.IssueDate.Before(from) && !p.IssueDate.After(to) {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}
