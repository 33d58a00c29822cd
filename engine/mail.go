package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"helprelay/mailbox"
	"helprelay/protocol"
)

var (
	ErrBadTarget         = errors.New("target must be a lighthouse number or 'all'")
	ErrNoAudio           = errors.New("provide an audio URL or file")
	ErrNoSynthesizer     = errors.New("text-to-speech is not configured")
	ErrEmptyAnnouncement = errors.New("announcement text cannot be empty")
)

// Mail sources.
const (
	MailFromURL          = "url"
	MailFromFile         = "file"
	MailFromAnnouncement = "announcement"
)

// MailReceipt describes one queued mailbox clip.
type MailReceipt struct {
	Target string        `json:"target"`
	URL    string        `json:"url"`
	Entry  mailbox.Entry `json:"entry"`
}

// NormalizeTarget maps "all" (any case) to ALL and a device number to its
// canonical form. Numbers must lie in 1..fleet size.
func (e *Engine) NormalizeTarget(target string) (string, error) {
	t := strings.ToLower(strings.TrimSpace(target))
	if t == "all" {
		return protocol.MailTargetAll, nil
	}
	n, err := strconv.Atoi(t)
	if err != nil || strings.HasPrefix(t, "+") || strings.HasPrefix(t, "-") {
		return "", ErrBadTarget
	}
	if n < 1 || n > e.fleetSize {
		return "", fmt.Errorf("%w: lighthouse number must be 1-%d", ErrBadTarget, e.fleetSize)
	}
	return strconv.Itoa(n), nil
}

// SendMail queues a remote clip. Devices fetch it through the relay's
// /audio proxy.
func (e *Engine) SendMail(ctx context.Context, target, url string) (MailReceipt, error) {
	t, err := e.NormalizeTarget(target)
	if err != nil {
		return MailReceipt{}, err
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return MailReceipt{}, ErrNoAudio
	}
	if _, err := mailbox.AudioExt(url); err != nil {
		return MailReceipt{}, err
	}
	base, err := e.gateway.BaseURL(e.httpPort)
	if err != nil {
		return MailReceipt{}, err
	}
	entry, err := e.mailbox.AddURL(url)
	if err != nil {
		return MailReceipt{}, err
	}
	return e.queueMail(ctx, base, t, entry, MailFromURL), nil
}

// SendMailFile stores an uploaded clip in the cache directory and queues
// it. Nothing is written until a gateway route is known.
func (e *Engine) SendMailFile(ctx context.Context, target, filename string, r io.Reader) (MailReceipt, error) {
	t, err := e.NormalizeTarget(target)
	if err != nil {
		return MailReceipt{}, err
	}
	if _, err := mailbox.AudioExt(filename); err != nil {
		return MailReceipt{}, err
	}
	base, err := e.gateway.BaseURL(e.httpPort)
	if err != nil {
		return MailReceipt{}, err
	}
	path, err := e.cachePath(filename)
	if err != nil {
		return MailReceipt{}, err
	}
	if err := writeFile(path, r); err != nil {
		return MailReceipt{}, err
	}
	entry, err := e.mailbox.AddFile(path, filepath.Base(filename))
	if err != nil {
		return MailReceipt{}, err
	}
	return e.queueMail(ctx, base, t, entry, MailFromFile), nil
}

// Announce synthesizes text to a WAV clip and queues it.
func (e *Engine) Announce(ctx context.Context, target, text string) (MailReceipt, error) {
	if e.synth == nil {
		return MailReceipt{}, ErrNoSynthesizer
	}
	t, err := e.NormalizeTarget(target)
	if err != nil {
		return MailReceipt{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return MailReceipt{}, ErrEmptyAnnouncement
	}
	base, err := e.gateway.BaseURL(e.httpPort)
	if err != nil {
		return MailReceipt{}, err
	}
	path, err := e.cachePath("announcement.wav")
	if err != nil {
		return MailReceipt{}, err
	}
	if err := e.synth.Synthesize(ctx, mailbox.Request{Text: text}, path); err != nil {
		return MailReceipt{}, fmt.Errorf("%s synthesis: %w", e.synth.Name(), err)
	}
	entry, err := e.mailbox.AddFile(path, "announcement.wav")
	if err != nil {
		return MailReceipt{}, err
	}
	return e.queueMail(ctx, base, t, entry, MailFromAnnouncement), nil
}

func (e *Engine) queueMail(ctx context.Context, base, target string, entry mailbox.Entry, source string) MailReceipt {
	receipt := MailReceipt{
		Target: target,
		URL:    base + "/audio/" + entry.FileName(),
		Entry:  entry,
	}
	e.relay(ctx, protocol.Mail{Target: receipt.Target, URL: receipt.URL})
	e.logFn("engine: mail %s queued for %s (%s)", entry.ID, target, source)
	e.Events.Emit(Event{Type: EventMailQueued, Payload: MailQueuedEvent{
		Target: target, URL: receipt.URL, EntryID: entry.ID, Source: source,
	}})
	return receipt
}

func (e *Engine) cachePath(filename string) (string, error) {
	dir := e.cacheDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	return filepath.Join(dir, mailbox.NewFileName(filename)), nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
