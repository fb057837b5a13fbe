package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"purchases/apperrors"
)

const outputTextKey = "text"

var errTrailingText = errors.New("trailing text after JSON value")

// Extract は画像をアップロードしてワークフローを実行し、
// 取込パイプラインが受け付ける封筒形式 {"text": [...]} で結果を返します。
// 呼び出し元のキャンセルは伝播させず、タイムアウトだけで打ち切ります。
func (c *Client) Extract(ctx context.Context, name string, data []byte) (map[string]interface{}, error) {
	ctx = context.WithoutCancel(ctx)

	fileID, err := c.UploadFile(ctx, name, data)
	if err != nil {
		return nil, err
	}
	run, err := c.RunWorkflow(ctx, fileID)
	if err != nil {
		return nil, err
	}
	c.logger.Info("dify.extract.done", "file", name, "workflow_run_id", run.ID)

	text, ok := run.Outputs[outputTextKey]
	if !ok || text == nil {
		return nil, apperrors.New(apperrors.GatewayError, "ワークフローの出力に text がありません")
	}
	return Envelope(text), nil
}

// Envelope は出力の text を封筒形式に包みます。
// 文字列の場合はJSONとして読めればデコードし、読めなければ ```json ブロックを含む文字列として残します。
func Envelope(text interface{}) map[string]interface{} {
	if s, ok := text.(string); ok {
		if v, err := decodeText(s); err == nil {
			text = v
		}
	}

	var entries []interface{}
	switch t := text.(type) {
	case []interface{}:
		entries = t
	case map[string]interface{}:
		if inner, ok := t[outputTextKey].([]interface{}); ok {
			entries = inner
		} else {
			entries = []interface{}{t}
		}
	default:
		entries = []interface{}{t}
	}
	return map[string]interface{}{outputTextKey: entries}
}

func decodeText(s string) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(strings.TrimSpace(s))))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errTrailingText
	}
	return v, nil
}
