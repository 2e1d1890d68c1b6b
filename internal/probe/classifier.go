// Package probe はフィードURLへの単発リクエストによるエラー種別の分類を提供する。
package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/feedaudit/internal/security"
)

// エラー種別ラベル
const (
	LabelConnectionError = "CONNECTION_ERROR"
	LabelTimeoutError    = "TIMEOUT_ERROR"
	LabelRequestFailed   = "REQUEST_FAILED"
	LabelUnknownError    = "UNKNOWN_ERROR"
	LabelRedirected      = "REDIRECTED"
	LabelHTMLFormat      = "HTML_FORMAT"
	LabelNotValidated    = "NOT_VALIDATED"
	labelErrorPrefix     = "ERROR_"
)

// DefaultUserAgent はブラウザを模したUser-Agent。
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

const (
	// DefaultTimeout はリクエスト1回あたりのタイムアウト。
	DefaultTimeout = 10 * time.Second
	// DefaultMaxBodySize はボディ検査時に読み込む最大バイト数。
	DefaultMaxBodySize = 5 * 1024 * 1024
	maxRedirects       = 10
)

var errTooManyRedirects = errors.New("too many redirects")

// Result は1件のURL確認結果。
type Result struct {
	URL        string
	Label      string
	StatusCode int // 応答がなかった場合は0
	FinalURL   string
	Latency    time.Duration
	// Detail はボディ検査の補足情報。ラベルには影響しない。
	Detail string
}

// Category はラベルのコロンより前の部分を返す。
func (r Result) Category() string {
	if i := strings.IndexByte(r.Label, ':'); i >= 0 {
		return r.Label[:i]
	}
	return r.Label
}

// Options はClassifierの設定。
type Options struct {
	Timeout        time.Duration
	UserAgent      string
	TrackRedirects bool
	InspectBody    bool
	MaxBodySize    int64
	// Guard が設定されている場合、内部ネットワーク宛てのURLを確認しない。
	Guard security.URLGuard
}

// Classifier はURLを1回だけ取得し、結果をエラー種別ラベルに分類する。
type Classifier struct {
	client    *http.Client
	opts      Options
	inspector *Inspector
	logger    *slog.Logger
}

// NewClassifier はClassifierを生成する。未設定の項目はデフォルト値で補う。
func NewClassifier(opts Options, logger *slog.Logger) *Classifier {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}

	var client *http.Client
	if opts.Guard != nil {
		client = opts.Guard.NewClient(opts.Timeout)
	} else {
		client = &http.Client{Timeout: opts.Timeout}
	}
	client.CheckRedirect = limitRedirects

	return &Classifier{
		client:    client,
		opts:      opts,
		inspector: NewInspector(security.NewTextSanitizer(120)),
		logger:    logger,
	}
}

func limitRedirects(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errTooManyRedirects
	}
	return nil
}

// Classify はURLにGETリクエストを送信し、結果を分類する。
// 失敗はすべてラベルとして返し、エラーは返さない。
func (c *Classifier) Classify(ctx context.Context, rawURL string) Result {
	start := time.Now()
	res := c.classify(ctx, rawURL)
	res.URL = rawURL
	res.Latency = time.Since(start)

	c.logger.Debug("フィードURLを確認しました",
		slog.String("feed_url", rawURL),
		slog.String("label", res.Label),
		slog.Int("http_status", res.StatusCode),
		slog.String("detail", res.Detail),
		slog.Float64("duration_ms", float64(res.Latency.Milliseconds())),
	)
	return res
}

func (c *Classifier) classify(ctx context.Context, rawURL string) Result {
	if kind := invalidURLKind(rawURL); kind != "" {
		return Result{Label: requestFailed(kind)}
	}
	if c.opts.Guard != nil {
		if err := c.opts.Guard.ValidateURL(rawURL); err != nil {
			return Result{Label: requestFailed("BlockedURL")}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{Label: requestFailed("InvalidURL")}
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{Label: ClassifyError(err)}
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()
	res := Result{StatusCode: resp.StatusCode, FinalURL: finalURL}

	if c.opts.TrackRedirects && resp.Request.Response != nil {
		res.Label = fmt.Sprintf("%s:%s -> %s", LabelRedirected, rawURL, finalURL)
		return res
	}

	contentType := resp.Header.Get("Content-Type")
	res.Label = ClassifyResponse(resp.StatusCode, contentType)

	if c.opts.InspectBody && resp.StatusCode == http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodySize))
		if err != nil {
			res.Detail = fmt.Sprintf("body_read_error=%s", err.Error())
			return res
		}
		switch res.Label {
		case LabelHTMLFormat:
			res.Detail = c.inspector.InspectHTML(body, finalURL)
		case LabelNotValidated:
			res.Detail = c.inspector.InspectFeed(body)
		}
	}
	return res
}

// ClassifyResponse は応答のステータスコードとContent-Typeからラベルを決定する。
func ClassifyResponse(statusCode int, contentType string) string {
	if statusCode != http.StatusOK {
		return labelErrorPrefix + strconv.Itoa(statusCode)
	}
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return LabelHTMLFormat
	}
	return LabelNotValidated
}

// ClassifyError はリクエスト送信時のエラーをラベルに分類する。
// 判定順: 接続確立の失敗、タイムアウト、その他の通信エラー、未分類のエラー。
func ClassifyError(err error) string {
	if errors.Is(err, security.ErrBlockedURL) {
		return requestFailed("BlockedURL")
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return LabelConnectionError
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return LabelConnectionError
	}

	if isTimeout(err) {
		return LabelTimeoutError
	}

	if kind := requestFailureKind(err); kind != "" {
		return requestFailed(kind)
	}

	return unknownError(err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// requestFailureKind は通信層のエラー種別名を返す。該当しない場合は空文字列。
func requestFailureKind(err error) string {
	var (
		certErr      *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
		recordErr    tls.RecordHeaderError
		opErr        *net.OpError
	)

	switch {
	case errors.Is(err, errTooManyRedirects):
		return "TooManyRedirects"
	case errors.As(err, &certErr), errors.As(err, &authorityErr),
		errors.As(err, &hostnameErr), errors.As(err, &invalidErr),
		errors.As(err, &recordErr):
		return "TLSError"
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return "ConnectionClosed"
	case errors.As(err, &opErr):
		return "NetworkError"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && strings.Contains(urlErr.Err.Error(), "unsupported protocol scheme") {
		return "InvalidSchema"
	}
	return ""
}

// invalidURLKind はリクエスト前に判別できるURLの不備を返す。問題がなければ空文字列。
func invalidURLKind(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "InvalidURL"
	}
	switch {
	case u.Scheme == "":
		return "MissingSchema"
	case u.Scheme != "http" && u.Scheme != "https":
		return "InvalidSchema"
	case u.Host == "":
		return "InvalidURL"
	}
	return ""
}

func requestFailed(kind string) string {
	return LabelRequestFailed + ":" + kind
}

// unknownError はエラーの型名を種別としたラベルを返す。
func unknownError(err error) string {
	if errors.Is(err, context.Canceled) {
		return LabelUnknownError + ":Canceled"
	}
	inner := err
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		inner = urlErr.Err
	}
	kind := strings.TrimPrefix(fmt.Sprintf("%T", inner), "*")
	if i := strings.LastIndexByte(kind, '.'); i >= 0 {
		kind = kind[i+1:]
	}
	return LabelUnknownError + ":" + kind
}
