// Package webdriver sends campaign messages through WhatsApp Web in a
// Chrome instance driven by rod. Each lane owns one browser with its own
// profile directory, so a logged-in session survives restarts.
package webdriver

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"whatsapp-blaster/internal/campaign"
	"whatsapp-blaster/internal/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const (
	homeURL = "https://web.whatsapp.com"

	basePort = 9222

	sendTimeout       = 10 * time.Second
	attachSendTimeout = 30 * time.Second
	fileInputTimeout  = 5 * time.Second
)

const exposeFileInputs = `() => {
	document.querySelectorAll('input[type="file"]').forEach((input) => {
		input.style.display = 'block';
		input.style.visibility = 'visible';
		input.style.opacity = 1;
	});
}`

// SendURL is the deep link that opens a chat with text pre-filled. text is
// expected to be query-encoded already.
func SendURL(phone, text string) string {
	u := homeURL + "/send?phone=" + phone
	if text != "" {
		u += "&text=" + text
	}
	return u + "&app_absent=0"
}

// InvalidPopupXPath matches the OK button of the "invalid number" dialog.
func InvalidPopupXPath(marker string) string {
	return fmt.Sprintf(`//div[contains(text(), "%s")]/ancestor::div[@role='dialog']//button`, marker)
}

func fileInputXPath(kind campaign.AttachmentKind) string {
	if kind == campaign.KindMedia {
		return `//input[@type="file" and contains(@accept, "image")]`
	}
	return `//input[@type="file" and @accept="*"]`
}

// onChat reports whether the page is already showing the chat for phone.
func onChat(pageURL, phone string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	return u.Query().Get("phone") == phone
}

// Driver is one lane's browser. It implements campaign.Driver.
type Driver struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	settings config.BrowserSettings
	logger   *zap.Logger
}

// SendText opens the chat with the rendered text and presses send.
func (d *Driver) SendText(ctx context.Context, phone, text string) (campaign.SendResult, error) {
	page := d.page.Context(ctx)
	if err := page.Timeout(d.settings.NavigationTimeout).Navigate(SendURL(phone, text)); err != nil {
		return d.sendFailed(ctx, phone, "navigate", err)
	}

	invalid := false
	dismiss := func(el *rod.Element) error {
		invalid = true
		return el.Click(proto.InputMouseButtonLeft, 1)
	}
	_, err := page.Timeout(d.settings.NavigationTimeout).Race().
		ElementX(d.settings.Selectors.Text).
		ElementX(InvalidPopupXPath(d.settings.InvalidMarkerText)).Handle(dismiss).
		Do()
	if err != nil {
		return d.sendFailed(ctx, phone, "wait for chat", err)
	}
	if invalid {
		d.logger.Info("invalid number", zap.String("phone", phone))
		return campaign.SendInvalid, nil
	}

	btn, err := page.Timeout(sendTimeout).ElementX(d.settings.Selectors.Send)
	if err != nil {
		return d.sendFailed(ctx, phone, "find send button", err)
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		d.logger.Debug("send click failed, using script click", zap.String("phone", phone), zap.Error(err))
		if _, err := btn.Eval(`() => this.click()`); err != nil {
			return d.sendFailed(ctx, phone, "click send", err)
		}
	}
	return campaign.SendSent, nil
}

// Attach opens the attach menu and uploads every existing file of the group.
func (d *Driver) Attach(ctx context.Context, phone string, paths []string, kind campaign.AttachmentKind) (bool, error) {
	existing := campaign.ExistingPaths(paths)
	if len(existing) == 0 {
		d.logger.Info("no files to send", zap.String("phone", phone), zap.String("kind", string(kind)))
		return true, nil
	}
	if err := d.attach(ctx, phone, existing, kind); err != nil {
		if err := d.unavailable(ctx, err); err != nil {
			return false, err
		}
		d.logger.Warn("attach failed", zap.String("phone", phone), zap.String("kind", string(kind)), zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (d *Driver) attach(ctx context.Context, phone string, files []string, kind campaign.AttachmentKind) error {
	page := d.page.Context(ctx)
	info, err := page.Info()
	if err != nil {
		return err
	}
	if !onChat(info.URL, phone) {
		if err := page.Timeout(d.settings.NavigationTimeout).Navigate(SendURL(phone, "")); err != nil {
			return err
		}
		if _, err := page.Timeout(d.settings.NavigationTimeout).ElementX(d.settings.Selectors.Text); err != nil {
			return fmt.Errorf("chat did not open: %w", err)
		}
	}

	btn, err := page.Timeout(sendTimeout).ElementX(d.settings.Selectors.Attach)
	if err != nil {
		return fmt.Errorf("find attach button: %w", err)
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("open attach menu: %w", err)
	}
	if _, err := page.Eval(exposeFileInputs); err != nil {
		return fmt.Errorf("expose file inputs: %w", err)
	}

	input, err := page.Timeout(fileInputTimeout).ElementX(fileInputXPath(kind))
	if err != nil {
		// Older layouts only render the input after the menu entry is clicked.
		option := d.settings.Selectors.Docs
		if kind == campaign.KindMedia {
			option = d.settings.Selectors.Media
		}
		entry, err := page.Timeout(sendTimeout).ElementX(option)
		if err != nil {
			return fmt.Errorf("find %s menu entry: %w", kind, err)
		}
		if err := entry.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return err
		}
		if input, err = page.Timeout(fileInputTimeout).ElementX(fileInputXPath(kind)); err != nil {
			return fmt.Errorf("find %s file input: %w", kind, err)
		}
	}
	if err := input.SetFiles(files); err != nil {
		return fmt.Errorf("set files: %w", err)
	}

	send, err := page.Timeout(attachSendTimeout).ElementX(d.settings.Selectors.AttachSend)
	if err != nil {
		return fmt.Errorf("find attachment send button: %w", err)
	}
	return send.Click(proto.InputMouseButtonLeft, 1)
}

func (d *Driver) sendFailed(ctx context.Context, phone, step string, err error) (campaign.SendResult, error) {
	if err := d.unavailable(ctx, err); err != nil {
		return campaign.SendFailed, err
	}
	d.logger.Warn("send failed", zap.String("phone", phone), zap.String("step", step), zap.Error(err))
	return campaign.SendFailed, nil
}

// unavailable returns a non-nil error when err means the lane cannot go on:
// the run was cancelled or the browser is gone.
func (d *Driver) unavailable(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !d.Alive(ctx) {
		return fmt.Errorf("%w: %v", campaign.ErrDriverUnavailable, err)
	}
	return nil
}

func (d *Driver) Alive(ctx context.Context) bool {
	_, err := d.browser.Context(ctx).Version()
	return err == nil
}

func (d *Driver) Close() error {
	err := d.browser.Close()
	if d.launcher != nil {
		d.launcher.Kill()
	}
	return err
}

// Launcher starts one Chrome per lane.
type Launcher struct {
	Settings config.BrowserSettings
	Logger   *zap.Logger
}

func (l *Launcher) Launch(ctx context.Context, lane int) (campaign.Driver, error) {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.Int("lane", lane))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	profile := filepath.Join(l.Settings.UserDataRoot, fmt.Sprintf("lane-%d", lane))
	if err := os.MkdirAll(profile, 0o755); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	lch := launcher.New().
		Headless(l.Settings.Headless).
		UserDataDir(profile).
		RemoteDebuggingPort(basePort + lane).
		Leakless(false)
	if l.Settings.Bin != "" {
		lch = lch.Bin(l.Settings.Bin)
	}
	if l.Settings.UserAgent != "" {
		lch = lch.Set(flags.Flag("user-agent"), l.Settings.UserAgent)
	}
	controlURL, err := lch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome for lane %d: %w", lane, err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		lch.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: homeURL})
	if err != nil {
		_ = browser.Close()
		lch.Kill()
		return nil, fmt.Errorf("open whatsapp web: %w", err)
	}
	logger.Info("browser lane ready", zap.String("profile", profile))
	return &Driver{
		browser:  browser,
		page:     page,
		launcher: lch,
		settings: l.Settings,
		logger:   logger,
	}, nil
}
