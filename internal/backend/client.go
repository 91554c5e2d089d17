// Package backend вызывает сервер чанков: загрузка архива, навигация, недавние сессии,
// сохранение и экспорт аннотаций, вложения. Сервер хранит состояние в cookie-сессии,
// поэтому у каждого клиента свой cookie jar. Повторов нет: ошибка возвращается вызывающему.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/sessionedit/internal/logger"
	"github.com/sessionedit/internal/metrics"
	"github.com/sessionedit/internal/model"
	"github.com/sony/gobreaker"
	"golang.org/x/net/publicsuffix"
)

// Операции сервера чанков; используются в метриках и сообщениях по умолчанию.
const (
	OpUpload          = "upload"
	OpNavigate        = "navigate"
	OpReload          = "reload"
	OpListRecents     = "list_recents"
	OpListRecentSaves = "list_recent_saves"
	OpLoadRecent      = "load_recent"
	OpSave            = "save"
	OpExport          = "export"
	OpAttachment      = "attachment"
)

var defaultMessages = map[string]string{
	OpUpload:          "upload failed",
	OpNavigate:        "navigate failed",
	OpReload:          "reload failed",
	OpListRecents:     "list recents failed",
	OpListRecentSaves: "list recent saves failed",
	OpLoadRecent:      "failed to load recent",
	OpSave:            "save failed",
	OpExport:          "export failed",
	OpAttachment:      "attachment not found",
}

// ErrUnavailable — breaker разомкнут, запрос к серверу не отправлялся.
var ErrUnavailable = errors.New("chunk server unavailable")

// APIError — ответ сервера с кодом не 2xx. Message — поле error из тела
// либо сообщение по умолчанию для операции.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// Download — потоковый бинарный ответ (экспорт, вложение). Body закрывает вызывающий.
type Download struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	Filename      string
}

// Options — настройки клиента.
type Options struct {
	Timeout time.Duration
	// Breaker общий для всех клиентов одного сервера; nil — без breaker.
	Breaker *gobreaker.CircuitBreaker
	Metrics *metrics.Collector
}

// Client — соединение одной сессии редактора с сервером чанков.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	metrics    *metrics.Collector
}

// NewBreaker создаёт circuit breaker, размыкающийся после failures подряд идущих сбоев
// (сетевых ошибок и ответов 5xx) на время cooldown.
func NewBreaker(name string, failures int, cooldown time.Duration, m *metrics.Collector) *gobreaker.CircuitBreaker {
	if failures <= 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("backend: breaker %s %v -> %v", name, from, to)
			m.SetBreakerOpen(to == gobreaker.StateOpen)
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < http.StatusInternalServerError
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// NewClient создаёт клиент с собственным cookie jar.
func NewClient(baseURL string, opts Options) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("backend.NewClient: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout, Jar: jar},
		breaker:    opts.Breaker,
		metrics:    opts.Metrics,
	}, nil
}

// Upload отправляет архив сессии multipart-полем file.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (*model.ChunkResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()
	defer pr.Close()
	var out model.ChunkResponse
	if err := c.do(ctx, OpUpload, http.MethodPost, "/upload", mw.FormDataContentType(), pr, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Navigate переходит к первому, последнему, следующему или предыдущему чанку.
func (c *Client) Navigate(ctx context.Context, dir model.Direction) (*model.ChunkResponse, error) {
	var out model.ChunkResponse
	if err := c.doJSON(ctx, OpNavigate, http.MethodPost, "/navigate", model.NavigateRequest{Direction: dir}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentChunk перечитывает текущий чанк.
func (c *Client) CurrentChunk(ctx context.Context) (*model.ChunkResponse, error) {
	var out model.ChunkResponse
	if err := c.doJSON(ctx, OpReload, http.MethodGet, "/get_chunk", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListRecents(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.doJSON(ctx, OpListRecents, http.MethodGet, "/list_recents", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListRecentSaves(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.doJSON(ctx, OpListRecentSaves, http.MethodGet, "/list_recent_saves", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadRecent открывает ранее загруженный архив или, при saveFolder, ранее сохранённую сессию.
func (c *Client) LoadRecent(ctx context.Context, folder string, saveFolder bool) (*model.ChunkResponse, error) {
	var out model.ChunkResponse
	req := model.LoadRecentRequest{Folder: folder, SaveFolder: saveFolder}
	if err := c.doJSON(ctx, OpLoadRecent, http.MethodPost, "/load_recent", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveMarked сохраняет отметки и группы на сервере.
func (c *Client) SaveMarked(ctx context.Context, p model.AnnotationsPayload) (*model.Ack, error) {
	var out model.Ack
	if err := c.doJSON(ctx, OpSave, http.MethodPost, "/save_marked", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExportMarked запрашивает архив экспорта; тело ответа отдаётся потоком.
func (c *Client) ExportMarked(ctx context.Context, p model.AnnotationsPayload) (*Download, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("backend.ExportMarked: %w", err)
	}
	return c.download(ctx, OpExport, http.MethodPost, "/export_marked", "application/json", bytes.NewReader(body))
}

// Attachment отдаёт вложение по нормализованному id.
func (c *Client) Attachment(ctx context.Context, id string) (*Download, error) {
	return c.download(ctx, OpAttachment, http.MethodGet, "/attachment/"+url.PathEscape(id), "", nil)
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend.%s: %w", op, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, op, method, path, contentType, body, out)
}

// do выполняет запрос и декодирует JSON-ответ в out.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out any) error {
	resp, err := c.send(ctx, op, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Op: op, Status: http.StatusBadGateway, Message: defaultMessages[op]}
	}
	return nil
}

func (c *Client) download(ctx context.Context, op, method, path, contentType string, body io.Reader) (*Download, error) {
	resp, err := c.send(ctx, op, method, path, contentType, body)
	if err != nil {
		return nil, err
	}
	d := &Download{
		Body:          resp.Body,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		d.Filename = params["filename"]
	}
	return d, nil
}

// send выполняет запрос через breaker. При успехе тело ответа остаётся открытым.
func (c *Client) send(ctx context.Context, op, method, path, contentType string, body io.Reader) (*http.Response, error) {
	start := time.Now()
	call := func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			defer resp.Body.Close()
			return nil, decodeAPIError(op, resp)
		}
		return resp, nil
	}

	var (
		res any
		err error
	)
	if c.breaker != nil {
		res, err = c.breaker.Execute(call)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("backend.%s: %w", op, ErrUnavailable)
		}
	} else {
		res, err = call()
	}
	c.metrics.ObserveBackend(op, time.Since(start), err)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) && !errors.Is(err, ErrUnavailable) {
			logger.Errorf("backend %s %s: %v", method, path, err)
			err = fmt.Errorf("backend.%s: %w", op, err)
		}
		return nil, err
	}
	return res.(*http.Response), nil
}

func decodeAPIError(op string, resp *http.Response) *APIError {
	e := &APIError{Op: op, Status: resp.StatusCode, Message: defaultMessages[op]}
	var body model.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil && body.Error != "" {
		e.Message = body.Error
	}
	return e
}
