package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/aistaff-ai/agentcore/internal/apierr"
	"github.com/aistaff-ai/agentcore/internal/artifact"
)

// BrowserManager keeps one headless rod.Browser page per session, so a
// sequence of browser_start/browser_navigate/browser_screenshot calls
// within a turn (or across turns of the same session) share state the way
// a human driving a real browser tab would.
type BrowserManager struct {
	mu      sync.Mutex
	browser *rod.Browser
	pages   map[string]*rod.Page
}

func NewBrowserManager() *BrowserManager {
	return &BrowserManager{pages: make(map[string]*rod.Page)}
}

func (m *BrowserManager) ensureBrowser() (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser != nil {
		return m.browser, nil
	}
	url, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	m.browser = rod.New().ControlURL(url)
	if err := m.browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	return m.browser, nil
}

func (m *BrowserManager) pageFor(sessionID string) (*rod.Page, error) {
	m.mu.Lock()
	page, ok := m.pages[sessionID]
	m.mu.Unlock()
	if ok {
		return page, nil
	}
	browser, err := m.ensureBrowser()
	if err != nil {
		return nil, err
	}
	page, err = browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	m.mu.Lock()
	m.pages[sessionID] = page
	m.mu.Unlock()
	return page, nil
}

// Close releases the browser and all open pages, intended for server
// shutdown.
func (m *BrowserManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pages {
		_ = p.Close()
	}
	if m.browser != nil {
		_ = m.browser.Close()
	}
}

type BrowserNavigateInput struct {
	URL string `json:"url" validate:"required,url"`
}

type BrowserScreenshotInput struct {
	FullPage bool `json:"full_page"`
}

func browserNavigateDef(mgr *BrowserManager) Definition {
	return Definition{
		Name: "browser_navigate", Description: "Navigate the session's headless browser tab to a URL.",
		Risk: RiskBrowser,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"url": map[string]any{"type": "string"}},
			"required":   []string{"url"},
		},
		NewInput: func() any { return &BrowserNavigateInput{} },
		Handler: func(ctx context.Context, tc *Context, input any) (Result, error) {
			if !tc.EnableBrowser {
				return Result{}, apierr.New(apierr.KindToolDisabled, "browser_navigate is disabled for this session")
			}
			in := input.(*BrowserNavigateInput)
			page, err := mgr.pageFor(tc.SessionID)
			if err != nil {
				return Result{}, apierr.Wrap(apierr.KindToolFailure, "browser unavailable", err)
			}
			if err := page.Context(ctx).Navigate(in.URL); err != nil {
				return Result{}, apierr.Wrap(apierr.KindToolFailure, "navigate failed", err)
			}
			page.MustWaitLoad()
			title := ""
			if info, infoErr := page.Info(); infoErr == nil {
				title = info.Title
			}
			return Result{Content: fmt.Sprintf("navigated to %s (title: %s)", in.URL, title)}, nil
		},
	}
}

func browserStartDef(mgr *BrowserManager) Definition {
	return Definition{
		Name: "browser_start", Description: "Ensure the session has an open headless browser tab.",
		Risk:        RiskBrowser,
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		NewInput:    func() any { return &struct{}{} },
		Handler: func(ctx context.Context, tc *Context, input any) (Result, error) {
			if !tc.EnableBrowser {
				return Result{}, apierr.New(apierr.KindToolDisabled, "browser_start is disabled for this session")
			}
			if _, err := mgr.pageFor(tc.SessionID); err != nil {
				return Result{}, apierr.Wrap(apierr.KindToolFailure, "browser unavailable", err)
			}
			return Result{Content: "browser tab ready"}, nil
		},
	}
}

func browserScreenshotDef(mgr *BrowserManager, shots *artifact.Store) Definition {
	return Definition{
		Name: "browser_screenshot", Description: "Capture a PNG screenshot of the session's current browser tab, stored as an attachment.",
		Risk: RiskBrowser,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"full_page": map[string]any{"type": "boolean"}},
		},
		NewInput: func() any { return &BrowserScreenshotInput{} },
		Handler: func(ctx context.Context, tc *Context, input any) (Result, error) {
			if !tc.EnableBrowser {
				return Result{}, apierr.New(apierr.KindToolDisabled, "browser_screenshot is disabled for this session")
			}
			page, err := mgr.pageFor(tc.SessionID)
			if err != nil {
				return Result{}, apierr.Wrap(apierr.KindToolFailure, "browser unavailable", err)
			}
			in := input.(*BrowserScreenshotInput)
			data, err := page.Context(ctx).Screenshot(in.FullPage, nil)
			if err != nil {
				return Result{}, apierr.Wrap(apierr.KindToolFailure, "screenshot failed", err)
			}
			fileID, absPath, err := shots.WriteFile("screenshot.png", data)
			if err != nil {
				return Result{}, apierr.Wrap(apierr.KindToolFailure, "store screenshot", err)
			}
			return Result{
				Content: fmt.Sprintf("captured screenshot (%d bytes)", len(data)),
				Attachments: []ProducedAttachment{{
					FileID: fileID, AbsPath: absPath, Filename: "screenshot.png",
					ContentType: "image/png", SizeBytes: int64(len(data)), Kind: "generated",
				}},
			}, nil
		},
	}
}
