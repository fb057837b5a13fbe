package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"purchases/apperrors"

	"github.com/google/uuid"
)

const (
	DefaultBaseURL       = "https://api.dify.ai"
	DefaultInputName     = "image"
	DefaultUser          = "purchases"
	DefaultUploadTimeout = 30 * time.Second
	DefaultRunTimeout    = 60 * time.Second
	defaultPollInterval  = 2 * time.Second

	uploadEndpoint         = "/v1/files/upload"
	workflowRunEndpoint    = "/v1/workflows/run"
	workflowDetailEndpoint = "/v1/workflows/run/%s"
)

// Config はワークフローAPIの接続設定です。
type Config struct {
	BaseURL       string
	APIKey        string
	User          string
	InputName     string
	UploadTimeout time.Duration
	RunTimeout    time.Duration
	PollInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.User == "" {
		c.User = DefaultUser
	}
	if c.InputName == "" {
		c.InputName = DefaultInputName
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = DefaultUploadTimeout
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	return c
}

// Client は画像から納品書データを抽出するワークフローAPIのクライアントです。
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg.withDefaults(), http: httpClient, logger: logger}
}

// WorkflowRun はワークフロー実行結果の data 部分です。
type WorkflowRun struct {
	ID      string                 `json:"id"`
	Status  string                 `json:"status"`
	Outputs map[string]interface{} `json:"-"`
	Error   string                 `json:"-"`
}

type uploadResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type runResponse struct {
	WorkflowRunID string  `json:"workflow_run_id"`
	TaskID        string  `json:"task_id"`
	Data          runData `json:"data"`
}

type runData struct {
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Outputs json.RawMessage `json:"outputs"`
	Error   json.RawMessage `json:"error"`
}

// send はリクエストを送り、レスポンス本文を返します。2xx 以外はエラーです。
func (c *Client) send(ctx context.Context, method, path string, body []byte, contentType string) ([]byte, error) {
	reqID := uuid.New().String()
	start := time.Now()
	url := c.cfg.BaseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("dify.http.build_request_error", "req_id", reqID, "error", err)
		return nil, apperrors.Wrap(apperrors.GatewayError, "リクエストの作成に失敗しました", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.Info("dify.http.request", "req_id", reqID, "method", method, "url", url, "content_length", len(body))

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("dify.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, gatewayErr(err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("dify.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("dify.http.read_error", "req_id", reqID, "error", err)
		return nil, gatewayErr(err)
	}

	c.logger.Info("dify.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return nil, apperrors.Newf(apperrors.GatewayError, "抽出サービスがエラーを返しました (status %d): %s", resp.StatusCode, errorMessage(raw))
	}
	return raw, nil
}

// gatewayErr はタイムアウトを GatewayTimeout、それ以外を GatewayError にします。
func gatewayErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.GatewayTimeout, "抽出サービスの応答がタイムアウトしました", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.Wrap(apperrors.GatewayTimeout, "抽出サービスの応答がタイムアウトしました", err)
	}
	return apperrors.Wrap(apperrors.GatewayError, "抽出サービスへの接続に失敗しました", err)
}

func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// UploadFile は画像をアップロードし、ファイルIDを返します。
func (c *Client) UploadFile(ctx context.Context, name string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", apperrors.Wrap(apperrors.GatewayError, "アップロードデータの作成に失敗しました", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", apperrors.Wrap(apperrors.GatewayError, "アップロードデータの作成に失敗しました", err)
	}
	if err := mw.WriteField("user", c.cfg.User); err != nil {
		return "", apperrors.Wrap(apperrors.GatewayError, "アップロードデータの作成に失敗しました", err)
	}
	if err := mw.Close(); err != nil {
		return "", apperrors.Wrap(apperrors.GatewayError, "アップロードデータの作成に失敗しました", err)
	}

	raw, err := c.send(ctx, http.MethodPost, uploadEndpoint, buf.Bytes(), mw.FormDataContentType())
	if err != nil {
		return "", err
	}
	var up uploadResponse
	if err := json.Unmarshal(raw, &up); err != nil || up.ID == "" {
		return "", apperrors.Newf(apperrors.GatewayError, "アップロード結果を解釈できません: %s", errorMessage(raw))
	}
	return up.ID, nil
}

// RunWorkflow はアップロード済みファイルでワークフローを blocking モードで実行します。
// 実行中のまま返ってきた場合は詳細APIで完了を待ちます。
func (c *Client) RunWorkflow(ctx context.Context, fileID string) (*WorkflowRun, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RunTimeout)
	defer cancel()

	payload := map[string]interface{}{
		"inputs": map[string]interface{}{
			c.cfg.InputName: map[string]interface{}{
				"type":            "image",
				"transfer_method": "local_file",
				"upload_file_id":  fileID,
			},
		},
		"response_mode": "blocking",
		"user":          c.cfg.User,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.GatewayError, "リクエストの作成に失敗しました", err)
	}

	raw, err := c.send(ctx, http.MethodPost, workflowRunEndpoint, body, "application/json")
	if err != nil {
		return nil, err
	}
	var resp runResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apperrors.Wrap(apperrors.GatewayError, "ワークフローの実行結果を解釈できません", err)
	}
	run, err := resp.Data.toRun()
	if err != nil {
		return nil, err
	}
	if run.ID == "" {
		run.ID = resp.WorkflowRunID
	}

	for run.Status == "running" {
		select {
		case <-ctx.Done():
			return nil, gatewayErr(ctx.Err())
		case <-time.After(c.cfg.PollInterval):
		}
		run, err = c.getWorkflowRun(ctx, run.ID)
		if err != nil {
			return nil, err
		}
	}
	return run, checkRun(run)
}

// getWorkflowRun は実行中のワークフローの詳細を取得します。
func (c *Client) getWorkflowRun(ctx context.Context, runID string) (*WorkflowRun, error) {
	raw, err := c.send(ctx, http.MethodGet, fmt.Sprintf(workflowDetailEndpoint, runID), nil, "")
	if err != nil {
		return nil, err
	}
	var data runData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, apperrors.Wrap(apperrors.GatewayError, "ワークフローの詳細を解釈できません", err)
	}
	return data.toRun()
}

// toRun は outputs が文字列化されたJSONの場合も展開します。
func (d runData) toRun() (*WorkflowRun, error) {
	run := &WorkflowRun{ID: d.ID, Status: d.Status}

	if len(d.Error) > 0 && string(d.Error) != "null" {
		var msg string
		if err := json.Unmarshal(d.Error, &msg); err != nil {
			msg = string(d.Error)
		}
		run.Error = msg
	}

	outputs := d.Outputs
	var s string
	if err := json.Unmarshal(outputs, &s); err == nil {
		outputs = json.RawMessage(s)
	}
	if len(outputs) > 0 && string(outputs) != "null" {
		dec := json.NewDecoder(bytes.NewReader(outputs))
		dec.UseNumber()
		if err := dec.Decode(&run.Outputs); err != nil {
			return nil, apperrors.Wrap(apperrors.GatewayError, "ワークフローの出力を解釈できません", err)
		}
	}
	return run, nil
}

func checkRun(run *WorkflowRun) error {
	switch run.Status {
	case "succeeded":
		return nil
	case "failed", "stopped":
		msg := run.Error
		if msg == "" {
			msg = run.Status
		}
		return apperrors.Newf(apperrors.GatewayError, "ワークフローの実行に失敗しました: %s", msg)
	default:
		return apperrors.Newf(apperrors.GatewayError, "ワークフローの状態が不明です: %q", run.Status)
	}
}
