package database

import (
	"fmt"
	"log"
	"time"

	"purchases/apperrors"
	"purchases/model"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CreatedAtLayout は basic_info.created_at に書き込む日時の書式です。
// SQLite の CURRENT_TIMESTAMP と辞書順で比較できるよう UTC・同じ並びにしています。
const CreatedAtLayout = "2006-01-02 15:04:05.000000"

// ImportOptions はセッションIDと作成日時の生成元です。nil なら既定を使います。
type ImportOptions struct {
	NewSessionID func() string
	Now          func() time.Time
}

func (o ImportOptions) sessionID() string {
	if o.NewSessionID != nil {
		return o.NewSessionID()
	}
	return uuid.NewString()
}

func (o ImportOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// InsertImportBatch は型変換済みの行を1つのトランザクションで登録し、セッションIDを返します。
// 途中で1件でも失敗した場合はすべてロールバックします。
func InsertImportBatch(db *sqlx.DB, rows []model.ImportRow, opts ImportOptions) (result model.ImportResult, err error) {
	if len(rows) == 0 {
		return model.ImportResult{}, apperrors.New(apperrors.EmptyExtraction, "保存対象のデータがありません")
	}

	sessionID := opts.sessionID()
	createdAt := opts.now().UTC().Format(CreatedAtLayout)

	tx, err := db.Beginx()
	if err != nil {
		return model.ImportResult{}, apperrors.Wrap(apperrors.StorageError, "トランザクションの開始に失敗しました", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			log.Printf("Rolling back import session %s due to error: %v", sessionID, err)
			tx.Rollback()
		} else {
			if cerr := tx.Commit(); cerr != nil {
				err = apperrors.Wrap(apperrors.StorageError, "コミットに失敗しました", cerr)
				result = model.ImportResult{}
			}
		}
	}()

	partsCount := 0
	for i, row := range rows {
		header := row.Header
		header.ImportSessionID = sessionID
		header.CreatedAt = createdAt

		basicID, insErr := InsertBasicInfoInTx(tx, header)
		if insErr != nil {
			err = apperrors.Wrap(apperrors.StorageError, fmt.Sprintf("%d件目の基本情報の登録に失敗しました", i+1), insErr)
			return model.ImportResult{}, err
		}
		if insErr := InsertPartsInfoInTx(tx, basicID, row.Parts); insErr != nil {
			err = apperrors.Wrap(apperrors.StorageError, fmt.Sprintf("%d件目の部品情報の登録に失敗しました", i+1), insErr)
			return model.ImportResult{}, err
		}
		partsCount += len(row.Parts)
	}

	log.Printf("INFO: [Import] session %s: %d headers, %d parts", sessionID, len(rows), partsCount)
	return model.ImportResult{
		SessionID:   sessionID,
		HeaderCount: len(rows),
		PartsCount:  partsCount,
	}, nil
}
