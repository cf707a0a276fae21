// Package memory provides an in-process record store used for development
// and tests.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"scadenzario/internal/core"
)

// Store keeps every record behind one mutex, so a series insert is
// observed either whole or not at all.
type Store struct {
	mu        sync.Mutex
	nextID    int64
	items     map[int64]core.Installment
	cats      []core.Category
	methods   []core.PaymentMethod
	catSeq    int64
	methodSeq int64
	now       func() time.Time
}

func New(cats []core.Category, methods []core.PaymentMethod) *Store {
	s := &Store{items: make(map[int64]core.Installment), now: time.Now}
	for _, c := range cats {
		_, _ = s.CreateCategory(context.Background(), c)
	}
	for _, p := range methods {
		_, _ = s.CreatePaymentMethod(context.Background(), p)
	}
	return s
}

// NewFromFiles seeds the store from seed_categories.txt ("TYPE:Name" per
// line) and seed_payment_methods.txt in base, falling back to defaults.
func NewFromFiles(base string) *Store {
	var cats []core.Category
	for _, line := range readLines(filepath.Join(base, "seed_categories.txt")) {
		typ, name, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		t, err := core.ParseTransactionType(typ)
		if err != nil {
			continue
		}
		cats = append(cats, core.Category{Name: strings.TrimSpace(name), Type: t})
	}
	var methods []core.PaymentMethod
	for _, line := range readLines(filepath.Join(base, "seed_payment_methods.txt")) {
		methods = append(methods, core.PaymentMethod{Name: line})
	}
	if len(cats) == 0 {
		cats = DefaultCategories()
	}
	if len(methods) == 0 {
		methods = DefaultPaymentMethods()
	}
	return New(cats, methods)
}

func DefaultCategories() []core.Category {
	return []core.Category{
		{Name: "Casa", Type: core.Expense},
		{Name: "Cibo", Type: core.Expense},
		{Name: "Trasporti", Type: core.Expense},
		{Name: "Stipendio", Type: core.Income},
	}
}

func DefaultPaymentMethods() []core.PaymentMethod {
	return []core.PaymentMethod{{Name: "Bonifico"}, {Name: "Carta"}, {Name: "Contanti"}}
}

func (s *Store) InsertMany(_ context.Context, items []core.Installment) ([]core.Installment, error) {
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range items {
		if !s.hasCategory(it.CategoryID) || !s.hasMethod(it.PaymentMethodID) {
			return nil, fmt.Errorf("%w: unknown category or payment method", core.ErrInvalidRequest)
		}
		for _, existing := range s.items {
			if existing.SeriesID == it.SeriesID && existing.InstallmentNumber == it.InstallmentNumber {
				return nil, fmt.Errorf("%w: installment %d of series %s exists", core.ErrConflict, it.InstallmentNumber, it.SeriesID)
			}
		}
	}

	now := s.now().UTC()
	out := make([]core.Installment, len(items))
	for i, it := range items {
		s.nextID++
		it.ID = s.nextID
		it.CreatedAt = now
		it.UpdatedAt = now
		s.items[it.ID] = it
		out[i] = it
	}
	return out, nil
}

func (s *Store) FindByID(_ context.Context, id int64) (core.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return core.Installment{}, core.ErrNotFound
	}
	return it, nil
}

func (s *Store) FindBySeries(_ context.Context, seriesID string) ([]core.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Installment
	for _, it := range s.items {
		if it.SeriesID == seriesID {
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		return nil, core.ErrNotFound
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstallmentNumber < out[j].InstallmentNumber })
	return out, nil
}

func (s *Store) FindInstallment(_ context.Context, seriesID string, number int) (core.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.SeriesID == seriesID && it.InstallmentNumber == number {
			return it, nil
		}
	}
	return core.Installment{}, core.ErrNotFound
}

func (s *Store) UpdateStatus(_ context.Context, id int64, status core.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return core.ErrNotFound
	}
	it.Status = status
	it.UpdatedAt = s.now().UTC()
	s.items[id] = it
	return nil
}

func (s *Store) CompareAndSwapStatus(_ context.Context, id int64, expected, next core.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok || it.Status != expected {
		return false, nil
	}
	it.Status = next
	it.UpdatedAt = s.now().UTC()
	s.items[id] = it
	return true, nil
}

func (s *Store) Update(_ context.Context, in core.Installment) (core.Installment, error) {
	if err := in.Validate(); err != nil {
		return core.Installment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[in.ID]
	if !ok {
		return core.Installment{}, core.ErrNotFound
	}
	if !s.hasCategory(in.CategoryID) || !s.hasMethod(in.PaymentMethodID) {
		return core.Installment{}, fmt.Errorf("%w: unknown category or payment method", core.ErrInvalidRequest)
	}
	in.CreatedAt = it.CreatedAt
	in.UpdatedAt = s.now().UTC()
	s.items[in.ID] = in
	return in, nil
}

func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return core.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// List orders by date descending, then id ascending.
func (s *Store) List(_ context.Context, f core.ListFilter) (core.Page, error) {
	s.mu.Lock()
	matched := make([]core.Installment, 0)
	for _, it := range s.items {
		if f.Matches(it) {
			matched = append(matched, it)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.Date.Equal(b.Date.Time) {
			return b.Date.Before(a.Date)
		}
		return a.ID < b.ID
	})

	total := len(matched)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return core.NewPage(f, matched[start:end], total), nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.cats {
		if existing.Name == c.Name && existing.Type == c.Type {
			return core.Category{}, fmt.Errorf("%w: category %q (%s) exists", core.ErrConflict, c.Name, c.Type)
		}
	}
	s.catSeq++
	c.ID = s.catSeq
	s.cats = append(s.cats, c)
	return c, nil
}

func (s *Store) ListCategories(_ context.Context, t core.TransactionType) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Category, 0, len(s.cats))
	for _, c := range s.cats {
		if t == "" || c.Type == t {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) FindCategory(_ context.Context, id int64) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cats {
		if c.ID == id {
			return c, nil
		}
	}
	return core.Category{}, core.ErrNotFound
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, existing := range s.cats {
		if existing.ID == c.ID {
			idx = i
			continue
		}
		if existing.Name == c.Name && existing.Type == c.Type {
			return core.Category{}, fmt.Errorf("%w: category %q (%s) exists", core.ErrConflict, c.Name, c.Type)
		}
	}
	if idx < 0 {
		return core.Category{}, core.ErrNotFound
	}
	if s.cats[idx].Type != c.Type {
		for _, it := range s.items {
			if it.CategoryID == c.ID {
				return core.Category{}, fmt.Errorf("%w: category %d is in use", core.ErrConflict, c.ID)
			}
		}
	}
	s.cats[idx] = c
	return c, nil
}

func (s *Store) CreatePaymentMethod(_ context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := p.Validate(); err != nil {
		return core.PaymentMethod{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.methods {
		if existing.Name == p.Name {
			return core.PaymentMethod{}, fmt.Errorf("%w: payment method %q exists", core.ErrConflict, p.Name)
		}
	}
	s.methodSeq++
	p.ID = s.methodSeq
	s.methods = append(s.methods, p)
	return p, nil
}

func (s *Store) ListPaymentMethods(_ context.Context) ([]core.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]core.PaymentMethod(nil), s.methods...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) FindPaymentMethod(_ context.Context, id int64) (core.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.methods {
		if p.ID == id {
			return p, nil
		}
	}
	return core.PaymentMethod{}, core.ErrNotFound
}

func (s *Store) UpdatePaymentMethod(_ context.Context, p core.PaymentMethod) (core.PaymentMethod, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := p.Validate(); err != nil {
		return core.PaymentMethod{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, existing := range s.methods {
		if existing.ID == p.ID {
			idx = i
			continue
		}
		if existing.Name == p.Name {
			return core.PaymentMethod{}, fmt.Errorf("%w: payment method %q exists", core.ErrConflict, p.Name)
		}
	}
	if idx < 0 {
		return core.PaymentMethod{}, core.ErrNotFound
	}
	s.methods[idx] = p
	return p, nil
}

// callers hold s.mu
func (s *Store) hasCategory(id int64) bool {
	for _, c := range s.cats {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) hasMethod(id int64) bool {
	for _, p := range s.methods {
		if p.ID == id {
			return true
		}
	}
	return false
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	seen := map[string]struct{}{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
