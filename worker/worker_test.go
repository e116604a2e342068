package worker

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nadlan-scraper/checkpoint"
	"nadlan-scraper/config"
	"nadlan-scraper/fetcher"
	"nadlan-scraper/models"
	"nadlan-scraper/storage"
	"nadlan-scraper/utils"
)

// fakePool replays canned pages. Row HTML is encoded as
// "address|date|price|parcel" and decoded by stubExtractor.
type fakePool struct {
	mu        sync.Mutex
	pages     map[string]map[int][]fetcher.Row
	failures  map[string]map[int]int // remaining fetch failures per page
	requested map[string][]int

	delay       time.Duration
	inFlight    int32
	maxInFlight int32
}

func newFakePool() *fakePool {
	return &fakePool{
		pages:     make(map[string]map[int][]fetcher.Row),
		failures:  make(map[string]map[int]int),
		requested: make(map[string][]int),
	}
}

func (p *fakePool) setPage(id string, page int, rows []fetcher.Row) {
	if p.pages[id] == nil {
		p.pages[id] = make(map[int][]fetcher.Row)
	}
	p.pages[id][page] = rows
}

func (p *fakePool) failPage(id string, page, times int) {
	if p.failures[id] == nil {
		p.failures[id] = make(map[int]int)
	}
	p.failures[id][page] = times
}

func (p *fakePool) Acquire(ctx context.Context) (fetcher.Session, error) {
	return &fakeSession{pool: p}, nil
}

type fakeSession struct {
	pool *fakePool
}

func (s *fakeSession) FetchPage(ctx context.Context, id string, page int) ([]fetcher.Row, error) {
	p := s.pool

	cur := atomic.AddInt32(&p.inFlight, 1)
	defer atomic.AddInt32(&p.inFlight, -1)
	for {
		max := atomic.LoadInt32(&p.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&p.maxInFlight, max, cur) {
			break
		}
	}

	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.requested[id] = append(p.requested[id], page)
	if p.failures[id][page] > 0 {
		p.failures[id][page]--
		return nil, errors.New("portal timeout")
	}
	return p.pages[id][page], nil
}

func (s *fakeSession) Close() error { return nil }

// stubExtractor decodes the fakePool row encoding.
type stubExtractor struct{}

func (stubExtractor) Extract(row fetcher.Row, neighborhood string) ([]models.TransactionRecord, error) {
	parts := strings.Split(row.HTML, "|")
	if len(parts) != 4 {
		return nil, fmt.Errorf("malformed row %q", row.HTML)
	}
	return []models.TransactionRecord{{
		Address:      parts[0],
		DealDate:     parts[1],
		Price:        parts[2],
		BlockParcel:  parts[3],
		Neighborhood: neighborhood,
	}}, nil
}

func pageRows(id string, page, n int) []fetcher.Row {
	rows := make([]fetcher.Row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, fetcher.Row{
			HTML: fmt.Sprintf("%s st %d-%d|01.01.2024|1,000,000|%s-%d-%d", id, page, i, id, page, i),
		})
	}
	return rows
}

func testConfig() *config.Config {
	return &config.Config{
		MaxConcurrency: 2,
		MaxRetries:     3,
		RetryBaseMs:    1,
		RateLimitMs:    0,
		MaxPages:       100,
	}
}

type testHarness struct {
	cfg    *config.Config
	pool   *fakePool
	cps    *checkpoint.Store
	store  *storage.CSVStore
	logger *utils.Logger
}

func newHarness(t *testing.T, cfg *config.Config) *testHarness {
	t.Helper()
	logger := utils.NewLogger()
	cps, err := checkpoint.NewStore(t.TempDir(), logger)
	if err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewCSVStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return &testHarness{cfg: cfg, pool: newFakePool(), cps: cps, store: store, logger: logger}
}

func (h *testHarness) worker(target models.NeighborhoodTarget) *Worker {
	return NewWorker(h.cfg, target, h.pool, stubExtractor{}, h.cps, h.store, h.logger)
}

func (h *testHarness) readOutput(t *testing.T, target models.NeighborhoodTarget) []models.TransactionRecord {
	t.Helper()
	records, err := storage.ReadRecordsFile(h.store.Path(target))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	return records
}

func TestWorkerThreePagesThenEmpty(t *testing.T) {
	h := newHarness(t, testConfig())
	target := models.NeighborhoodTarget{ID: "A", Name: "A"}
	for page := 1; page <= 3; page++ {
		h.pool.setPage("A", page, pageRows("A", page, 10))
	}

	out := h.worker(target).Run(context.Background())

	if out.Status != models.StatusDone {
		t.Fatalf("status: got %s, want DONE (%v)", out.Status, out.Err)
	}
	if out.Records != 30 {
		t.Errorf("records: got %d, want 30", out.Records)
	}
	if got := h.readOutput(t, target); len(got) != 30 {
		t.Errorf("output file: got %d records, want 30", len(got))
	}
	if _, ok := h.cps.Load("A"); ok {
		t.Error("checkpoint should be cleared after DONE")
	}
	if want := []int{1, 2, 3, 4}; !reflect.DeepEqual(h.pool.requested["A"], want) {
		t.Errorf("requested pages: got %v, want %v", h.pool.requested["A"], want)
	}
}

func TestWorkerRetryExhaustedPreservesProgress(t *testing.T) {
	h := newHarness(t, testConfig())
	target := models.NeighborhoodTarget{ID: "A", Name: "A"}
	h.pool.setPage("A", 1, pageRows("A", 1, 10))
	h.pool.failPage("A", 2, 100)

	out := h.worker(target).Run(context.Background())

	if out.Status != models.StatusFailed {
		t.Fatalf("status: got %s, want FAILED", out.Status)
	}
	if out.Records != 10 {
		t.Errorf("records: got %d, want 10", out.Records)
	}
	if out.Err == nil {
		t.Error("outcome should carry the fetch error")
	}

	cp, ok := h.cps.Load("A")
	if !ok {
		t.Fatal("checkpoint must be preserved after failure")
	}
	if cp.LastPage != 1 || len(cp.Records) != 10 {
		t.Errorf("checkpoint: got page=%d records=%d, want page=1 records=10", cp.LastPage, len(cp.Records))
	}
	if got := h.readOutput(t, target); len(got) != 10 {
		t.Errorf("output file: got %d records, want 10", len(got))
	}

	// Page 2 was attempted exactly MaxRetries times, page 1 once.
	if want := []int{1, 2, 2, 2}; !reflect.DeepEqual(h.pool.requested["A"], want) {
		t.Errorf("requested pages: got %v, want %v", h.pool.requested["A"], want)
	}
}

func TestWorkerTransientFailureRecovered(t *testing.T) {
	h := newHarness(t, testConfig())
	target := models.NeighborhoodTarget{ID: "A", Name: "A"}
	h.pool.setPage("A", 1, pageRows("A", 1, 10))
	h.pool.setPage("A", 2, pageRows("A", 2, 10))
	h.pool.failPage("A", 2, 2)

	out := h.worker(target).Run(context.Background())

	if out.Status != models.StatusDone {
		t.Fatalf("status: got %s, want DONE (%v)", out.Status, out.Err)
	}
	if out.Records != 20 {
		t.Errorf("records: got %d, want 20", out.Records)
	}
}

func TestWorkerResumeIsLossAndDuplicateFree(t *testing.T) {
	cfg := testConfig()

	// Reference: uninterrupted run over pages 1..3.
	ref := newHarness(t, cfg)
	target := models.NeighborhoodTarget{ID: "A", Name: "A"}
	for page := 1; page <= 3; page++ {
		ref.pool.setPage("A", page, pageRows("A", page, 10))
	}
	if out := ref.worker(target).Run(context.Background()); out.Status != models.StatusDone {
		t.Fatalf("reference run failed: %v", out.Err)
	}
	want := ref.readOutput(t, target)

	// Interrupted run: pages 1..2 succeed, page 3 keeps failing.
	h := newHarness(t, cfg)
	for page := 1; page <= 3; page++ {
		h.pool.setPage("A", page, pageRows("A", page, 10))
	}
	h.pool.failPage("A", 3, 100)
	if out := h.worker(target).Run(context.Background()); out.Status != models.StatusFailed {
		t.Fatal("first run should fail on page 3")
	}

	// Restart with the fetcher healthy again.
	h.pool.failures["A"][3] = 0
	h.pool.requested["A"] = nil
	out := h.worker(target).Run(context.Background())

	if out.Status != models.StatusDone || out.Records != 30 {
		t.Fatalf("resumed run: got %s/%d, want DONE/30", out.Status, out.Records)
	}
	for _, page := range h.pool.requested["A"] {
		if page <= 2 {
			t.Errorf("resumed run re-fetched completed page %d", page)
		}
	}
	if got := h.readOutput(t, target); !reflect.DeepEqual(got, want) {
		t.Errorf("resumed output differs from uninterrupted run:\n got %d records\nwant %d records", len(got), len(want))
	}
}

func TestWorkerStopsAtPageLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPages = 5
	h := newHarness(t, cfg)
	target := models.NeighborhoodTarget{ID: "A", Name: "A"}
	for page := 1; page <= 10; page++ {
		h.pool.setPage("A", page, pageRows("A", page, 10))
	}

	out := h.worker(target).Run(context.Background())

	if out.Status != models.StatusDone {
		t.Fatalf("status: got %s, want DONE at page limit", out.Status)
	}
	if out.Records != 50 {
		t.Errorf("records: got %d, want 50", out.Records)
	}
	for _, page := range h.pool.requested["A"] {
		if page > 5 {
			t.Errorf("fetched page %d beyond the limit", page)
		}
	}
	if _, ok := h.cps.Load("A"); ok {
		t.Error("checkpoint should be cleared after reaching the page limit")
	}
}

func TestWorkerSkipsDuplicateRecords(t *testing.T) {
	h := newHarness(t, testConfig())
	target := models.NeighborhoodTarget{ID: "A", Name: "A"}

	page1 := pageRows("A", 1, 5)
	// Page 2 repeats three deals from page 1 and adds one new.
	page2 := append([]fetcher.Row{}, page1[2:]...)
	page2 = append(page2, fetcher.Row{HTML: "new st 1|02.02.2024|900,000|A-9-9"})
	h.pool.setPage("A", 1, page1)
	h.pool.setPage("A", 2, page2)

	out := h.worker(target).Run(context.Background())

	if out.Status != models.StatusDone {
		t.Fatalf("status: %s (%v)", out.Status, out.Err)
	}
	if out.Records != 6 {
		t.Errorf("records: got %d, want 6 unique", out.Records)
	}

	got := h.readOutput(t, target)
	seen := utils.NewKeySet()
	for _, rec := range got {
		if !seen.Add(rec.Key()) {
			t.Errorf("duplicate key in output: %s (%s)", rec.Key(), rec.Address)
		}
	}
}

func TestWorkerSkipsUnparseableRows(t *testing.T) {
	h := newHarness(t, testConfig())
	target := models.NeighborhoodTarget{ID: "A", Name: "A"}
	rows := pageRows("A", 1, 3)
	rows = append(rows, fetcher.Row{HTML: "garbage-without-fields"})
	h.pool.setPage("A", 1, rows)

	out := h.worker(target).Run(context.Background())

	if out.Status != models.StatusDone {
		t.Fatalf("extraction error must not fail the page: %s (%v)", out.Status, out.Err)
	}
	if out.Records != 3 {
		t.Errorf("records: got %d, want 3", out.Records)
	}
}
