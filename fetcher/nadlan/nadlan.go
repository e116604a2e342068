package nadlan

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"

	"nadlan-scraper/config"
	"nadlan-scraper/fetcher"
	"nadlan-scraper/utils"
)

const dealsURLFormat = "https://www.nadlan.gov.il/?view=neighborhood&id=%s&page=deals"

// harvestRowsJS expands every deal row on the current page and returns each
// row's HTML together with its expanded details container. Row 0 is the
// table header and is skipped.
const harvestRowsJS = `
	(function() {
		var out = [];
		var table = document.querySelector('.mainTable');
		if (!table) return out;

		var rows = table.querySelectorAll('.mainTable__row');
		for (var i = 1; i < rows.length; i++) {
			var row = rows[i];
			var arrow = row.querySelector('.collapseArrow');
			if (arrow) { arrow.click(); }

			var inner = row.querySelector('.innerTablesContainer');
			if (!inner && row.nextElementSibling &&
					row.nextElementSibling.classList.contains('innerTablesContainer')) {
				inner = row.nextElementSibling;
			}

			var html = row.outerHTML;
			if (inner && !row.contains(inner)) {
				html += inner.outerHTML;
			}
			out.push(html);

			if (arrow) { arrow.click(); }
		}
		return out;
	})()
`

// clickNextJS clicks the portal's next-page button, returning false when the
// button is missing or disabled (end of the neighborhood's data).
const clickNextJS = `
	(function() {
		var next = document.getElementById('next');
		if (!next) return false;
		var style = window.getComputedStyle(next);
		if (style.display === 'none' || style.visibility === 'hidden') return false;
		if (next.disabled || next.classList.contains('disabled')) return false;
		next.scrollIntoView(true);
		next.click();
		return true;
	})()
`

// Pool is the chromedp-backed fetcher.Pool for nadlan.gov.il. It owns one
// headless Chrome process; each acquired session is a separate tab holding
// that worker's navigation state.
type Pool struct {
	allocCtx    context.Context
	cancelFns   []context.CancelFunc
	slots       chan struct{}
	pageTimeout time.Duration
	logger      *utils.Logger
}

// NewPool starts the browser allocator and returns a Pool sized to
// cfg.MaxConcurrency sessions.
func NewPool(cfg *config.Config, logger *utils.Logger) (*Pool, error) {
	chromeBin := findChromeBinary(cfg.ChromeBin)
	logger.Info("[nadlan] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	// Suppress chromedp log noise
	silentCtx, cancelSilent := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	p := &Pool{
		allocCtx:    silentCtx,
		cancelFns:   []context.CancelFunc{cancelSilent, cancelAlloc},
		slots:       make(chan struct{}, cfg.MaxConcurrency),
		pageTimeout: 90 * time.Second,
		logger:      logger,
	}
	for i := 0; i < cfg.MaxConcurrency; i++ {
		p.slots <- struct{}{}
	}
	return p, nil
}

// Acquire blocks until a session slot is free and returns a fresh browser tab.
func (p *Pool) Acquire(ctx context.Context) (fetcher.Session, error) {
	select {
	case <-p.slots:
	case <-ctx.Done():
		return nil, fmt.Errorf("nadlan: acquire session: %w", ctx.Err())
	}

	tabCtx, cancelTab := chromedp.NewContext(p.allocCtx)
	return &session{
		pool:   p,
		ctx:    tabCtx,
		cancel: cancelTab,
	}, nil
}

// Close shuts down the browser process. In-flight sessions must be closed
// first.
func (p *Pool) Close() error {
	for _, cancel := range p.cancelFns {
		cancel()
	}
	return nil
}

// session is one Chrome tab. It remembers which neighborhood and page the tab
// is currently showing so that sequential page requests advance with a single
// next-button click instead of a full navigation.
type session struct {
	pool   *Pool
	ctx    context.Context
	cancel context.CancelFunc

	neighborhoodID string
	page           int
}

// FetchPage returns the raw deal rows of one portal page. A request that is
// not the natural successor of the tab's current position triggers a fresh
// navigation with the next-clicks replayed, which is how a resumed fetch
// reaches its starting page.
func (s *session) FetchPage(ctx context.Context, neighborhoodID string, page int) ([]fetcher.Row, error) {
	if page < 1 {
		return nil, fmt.Errorf("nadlan: invalid page %d", page)
	}

	runCtx, cancelTimeout := context.WithTimeout(s.ctx, s.pool.pageTimeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	if neighborhoodID != s.neighborhoodID || page != s.page+1 {
		ok, err := s.seek(runCtx, neighborhoodID, page)
		if err != nil {
			s.page = 0 // force renavigation on retry
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	} else {
		ok, err := s.advance(runCtx)
		if err != nil {
			s.page = 0
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		s.page = page
	}

	var rowHTML []string
	err := chromedp.Run(runCtx,
		chromedp.WaitVisible(".mainTable", chromedp.ByQuery),
		chromedp.Sleep(1*time.Second),
		chromedp.Evaluate(harvestRowsJS, &rowHTML),
	)
	if err != nil {
		s.page = 0
		return nil, fmt.Errorf("nadlan: harvest rows %s page %d: %w", neighborhoodID, page, err)
	}

	s.pool.logger.Debug("[nadlan] %s page %d — %d rows", neighborhoodID, page, len(rowHTML))

	rows := make([]fetcher.Row, 0, len(rowHTML))
	for _, html := range rowHTML {
		rows = append(rows, fetcher.Row{HTML: html})
	}
	return rows, nil
}

// seek navigates to the neighborhood's deals view and clicks next until the
// tab shows the requested page. Returns ok=false when the portal runs out of
// pages before reaching it.
func (s *session) seek(ctx context.Context, neighborhoodID string, page int) (bool, error) {
	url := fmt.Sprintf(dealsURLFormat, neighborhoodID)
	s.pool.logger.Debug("[nadlan] Navigating to %s", url)

	err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(".mainTable", chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
	)
	if err != nil {
		return false, fmt.Errorf("nadlan: navigate %s: %w", neighborhoodID, err)
	}

	s.neighborhoodID = neighborhoodID
	s.page = 1

	for s.page < page {
		ok, err := s.advance(ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		s.page++
	}
	return true, nil
}

// advance clicks the next-page button and waits for the new page to settle.
// Returns ok=false when there is no further page.
func (s *session) advance(ctx context.Context) (bool, error) {
	var clicked bool
	err := chromedp.Run(ctx,
		chromedp.Evaluate(clickNextJS, &clicked),
	)
	if err != nil {
		return false, fmt.Errorf("nadlan: click next on %s: %w", s.neighborhoodID, err)
	}
	if !clicked {
		return false, nil
	}

	err = chromedp.Run(ctx,
		chromedp.Sleep(3*time.Second),
		chromedp.WaitVisible(".mainTable", chromedp.ByQuery),
	)
	if err != nil {
		return false, fmt.Errorf("nadlan: wait for page after next on %s: %w", s.neighborhoodID, err)
	}
	return true, nil
}

// Close releases the tab and returns its slot to the pool.
func (s *session) Close() error {
	s.cancel()
	s.pool.slots <- struct{}{}
	return nil
}

// findChromeBinary locates a Chrome/Chromium binary, preferring the
// configured path.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
