package database

import (
	"fmt"

	"purchases/model"
)

// GetImportSessions はセッションごとの最終作成日時を新しい順に返します。
func GetImportSessions(dbtx DBTX) ([]model.ImportSession, error) {
	const q = `
		SELECT
			import_session_id,
			COALESCE(MAX(created_at), '') AS created_at,
			MAX(id) AS last_header_id
		FROM basic_info
		GROUP BY import_session_id
		ORDER BY created_at DESC, last_header_id DESC
	`
	var sessions []model.ImportSession
	if err := dbtx.Select(&sessions, q); err != nil {
		return nil, fmt.Errorf("failed to get import sessions: %w", err)
	}
	return sessions, nil
}

// LatestSessionID は作成日時が最も新しいセッションを返します。
// 同じ日時の場合はヘッダーIDが大きい方を新しいとみなします。
func LatestSessionID(sessions []model.ImportSession) (string, bool) {
	if len(sessions) == 0 {
		return "", false
	}
	latest := sessions[0]
	for _, s := range sessions[1:] {
		if s.CreatedAt > latest.CreatedAt ||
			(s.CreatedAt == latest.CreatedAt && s.LastHeaderID > latest.LastHeaderID) {
			latest = s
		}
	}
	return latest.ID, true
}
