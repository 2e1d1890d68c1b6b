package model

import "fmt"

// AuditError は監査処理の統一エラーフォーマットを表す。
// ログに出す原因カテゴリと対処方法を含む。
type AuditError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: source, schema, validation, system
	Action   string // 利用者向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *AuditError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSourceNotFound    = "SOURCE_NOT_FOUND"
	ErrCodeSchemaViolation   = "SCHEMA_VIOLATION"
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	ErrCodeInvalidThreshold  = "INVALID_THRESHOLD"
	ErrCodeSourceUnavailable = "SOURCE_UNAVAILABLE"
)

// NewSourceNotFoundError は入力ファイル/コレクションが存在しない場合のエラーを生成する。
func NewSourceNotFoundError(source string) *AuditError {
	return &AuditError{
		Code:     ErrCodeSourceNotFound,
		Message:  fmt.Sprintf("入力が見つかりません: %s", source),
		Category: "source",
		Action:   "ファイルパスまたはコレクション名を確認してください。",
	}
}

// NewSchemaViolationError は必須カラムが存在しない場合のエラーを生成する。
func NewSchemaViolationError(column, source string) *AuditError {
	return &AuditError{
		Code:     ErrCodeSchemaViolation,
		Message:  fmt.Sprintf("カラム '%s' が '%s' に見つかりません", column, source),
		Category: "schema",
		Action:   "ヘッダー行に指定したカラムが含まれているか確認してください。",
	}
}

// NewUnsupportedFormatError は対応していないファイル形式のエラーを生成する。
func NewUnsupportedFormatError(path string) *AuditError {
	return &AuditError{
		Code:     ErrCodeUnsupportedFormat,
		Message:  fmt.Sprintf("対応していないファイル形式です: %s", path),
		Category: "validation",
		Action:   ".xlsx または .csv のファイルを指定してください。",
	}
}

// NewInvalidThresholdError はしきい値日数が不正な場合のエラーを生成する。
func NewInvalidThresholdError(value string) *AuditError {
	return &AuditError{
		Code:     ErrCodeInvalidThreshold,
		Message:  fmt.Sprintf("無効なしきい値日数です: %s", value),
		Category: "validation",
		Action:   "0以上の整数を指定してください。",
	}
}

// NewSourceUnavailableError はイベントログソースに接続できない場合のエラーを生成する。
func NewSourceUnavailableError(reason string) *AuditError {
	return &AuditError{
		Code:     ErrCodeSourceUnavailable,
		Message:  fmt.Sprintf("イベントログソースに接続できません: %s", reason),
		Category: "system",
		Action:   "接続URLとネットワーク到達性を確認してください。",
	}
}
