package availability

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/intake-cli/internal/resilience"
)

// ErrBlocked marks a fetch stopped by anti-bot protection. Callers fall
// through to a proxy tier instead of treating the listing as unreachable.
var ErrBlocked = errors.New("availability: blocked")

// IsBlocked reports whether err stems from anti-bot protection.
func IsBlocked(err error) bool {
	return errors.Is(err, ErrBlocked)
}

// localFetcher fetches listing pages via net/http and converts them to
// plaintext. Free, no API calls. A circuit breaker stops the chain from
// hammering a marketplace that is timing out across records; block
// responses do not trip it.
type localFetcher struct {
	client  *http.Client
	breaker *resilience.CircuitBreaker
}

func newLocalFetcher(timeout time.Duration) *localFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &localFetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			// Only connectivity failures open the circuit. Blocks and dead
			// listings are per-URL outcomes, not marketplace outages.
			ShouldTrip: resilience.IsTransient,
		}),
	}
}

// Fetch returns the page as plaintext, or ErrBlocked when the marketplace's
// bot protection intervened.
func (l *localFetcher) Fetch(ctx context.Context, targetURL string) (string, error) {
	return resilience.ExecuteVal(ctx, l.breaker, func(ctx context.Context) (string, error) {
		return l.fetch(ctx, targetURL)
	})
}

func (l *localFetcher) fetch(ctx context.Context, targetURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "availability: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "availability: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return "", eris.Wrap(err, "availability: read body")
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		return "", eris.Wrapf(ErrBlocked, "fetch %s (%s)", targetURL, blockType)
	}

	if resp.StatusCode >= 400 {
		return "", eris.Errorf("availability: status %d for %s", resp.StatusCode, targetURL)
	}

	if len(body) < 100 {
		return "", eris.Errorf("availability: empty page %s", targetURL)
	}

	return stripHTML(string(body)), nil
}

// stripHTML removes scripts/styles/nav/footer, strips tags, decodes entities,
// and collapses whitespace. The result feeds the keyword classifier.
func stripHTML(html string) string {
	for _, tag := range []string{"script", "style", "nav", "footer"} {
		re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		html = re.ReplaceAllString(html, "")
	}

	tagRe := regexp.MustCompile(`<[^>]+>`)
	html = tagRe.ReplaceAllString(html, " ")

	r := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	html = r.Replace(html)

	spaceRe := regexp.MustCompile(`[ \t]+`)
	html = spaceRe.ReplaceAllString(html, " ")

	nlRe := regexp.MustCompile(`\n{3,}`)
	html = nlRe.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
