package chrome

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/edgecomet/pdfgen/internal/render/retry"
)

const blankPage = "about:blank"

// Backend launches a dedicated headless Chrome process per session
type Backend struct {
	config   *Config
	paper    PaperSize
	logger   *zap.Logger
	launched atomic.Int64
}

func NewBackend(config *Config, logger *zap.Logger) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chrome config: %w", err)
	}
	paper, _ := LookupPaper(config.Paper)

	return &Backend{config: config, paper: paper, logger: logger}, nil
}

func (b *Backend) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
	)
	if b.config.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(b.config.ChromePath))
	}
	return opts
}

// Launch starts a browser bound to ctx; cancelling ctx kills the process
func (b *Backend) Launch(ctx context.Context) (retry.Session, error) {
	id := b.launched.Add(1)
	start := time.Now()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, b.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// First Run starts the browser process
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	s := &Session{
		id:          id,
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		config:      b.config,
		paper:       b.paper,
		logger:      b.logger.With(zap.Int64("session_id", id)),
		startedAt:   start,
	}

	if err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, product, _, _, _, err := browser.GetVersion().Do(ctx)
		if err != nil {
			return err
		}
		s.browserVersion = product
		return nil
	})); err != nil {
		s.logger.Warn("Failed to capture browser version", zap.Error(err))
	}

	s.logger.Debug("Chrome session launched",
		zap.String("browser", s.browserVersion),
		zap.Duration("startup", time.Since(start)))

	return s, nil
}

// Session is one browser process with one tab. Not reusable across documents.
type Session struct {
	id             int64
	ctx            context.Context
	cancel         context.CancelFunc
	allocCancel    context.CancelFunc
	config         *Config
	paper          PaperSize
	logger         *zap.Logger
	startedAt      time.Time
	browserVersion string
	closed         atomic.Bool
}

// BrowserVersion returns the product string reported by the browser (e.g. "HeadlessChrome/126.0")
func (s *Session) BrowserVersion() string {
	return s.browserVersion
}

// Load replaces the blank page content with markup and waits until the network has
// been idle for NetworkIdle. Exceeding LoadTimeout fails with ErrLoadTimeout.
func (s *Session) Load(ctx context.Context, markup string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}

	loadCtx, cancel := context.WithTimeout(s.ctx, s.config.LoadTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	tracker := newIdleTracker()
	chromedp.ListenTarget(loadCtx, tracker.handle)

	err := chromedp.Run(loadCtx,
		network.Enable(),
		page.Enable(),
		chromedp.Navigate(blankPage),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("get frame tree: %w", err)
			}
			return page.SetDocumentContent(tree.Frame.ID, markup).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return tracker.wait(ctx, s.config.NetworkIdle)
		}),
	)

	total, failed, inflight := tracker.stats()
	if err != nil {
		if errors.Is(loadCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			s.logger.Warn("Document load timed out",
				zap.Duration("timeout", s.config.LoadTimeout),
				zap.Int("requests", total),
				zap.Int("in_flight", inflight))
			return fmt.Errorf("%w after %s (%d request(s) in flight)", ErrLoadTimeout, s.config.LoadTimeout, inflight)
		}
		return fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	s.logger.Debug("Document loaded",
		zap.Int("markup_bytes", len(markup)),
		zap.Int("requests", total),
		zap.Int("failed_requests", failed))

	return nil
}

// Export prints the loaded document with backgrounds, no margins and the configured paper
func (s *Session) Export(ctx context.Context) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}

	exportCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var pdf []byte
	err := chromedp.Run(exportCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().
			WithPrintBackground(true).
			WithPaperWidth(s.paper.Width).
			WithPaperHeight(s.paper.Height).
			WithMarginTop(0).
			WithMarginBottom(0).
			WithMarginLeft(0).
			WithMarginRight(0).
			Do(ctx)
		if err != nil {
			return err
		}
		pdf = data
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}

	return pdf, nil
}

// Close shuts the browser down gracefully, then kills the process. Safe to call twice.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	err := chromedp.Cancel(s.ctx)
	s.cancel()
	s.allocCancel()

	s.logger.Debug("Chrome session closed", zap.Duration("lifetime", time.Since(s.startedAt)))

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("chrome shutdown: %w", err)
	}
	return nil
}
