package session

import (
	"errors"
	"fmt"
)

// Kind はゲートウェイが返すエラーの種類を表す。
// HTTP層はKindに応じてステータスコードを決定する。
type Kind int

const (
	// KindUnknown はゲートウェイ由来ではないエラーを表す。
	KindUnknown Kind = iota
	// KindValidation は入力値の不足・不正を表す。
	KindValidation
	// KindAuthentication は上流APIへのログイン失敗を表す。
	KindAuthentication
	// KindRequest は認証済みリクエストの転送失敗を表す。
	KindRequest
)

// String はKindの文字列表現を返す。
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindRequest:
		return "request"
	default:
		return "unknown"
	}
}

// Error はゲートウェイの操作が失敗したことを表す。
// Messageはそのままクライアントに返却される。
type Error struct {
	// Kind はエラーの種類。
	Kind Kind
	// Message はクライアント向けのメッセージ。
	Message string
	// Err は原因となったエラー。無い場合はnil。
	Err error
}

// Error はクライアント向けのメッセージを返す。
func (e *Error) Error() string {
	return e.Message
}

// Unwrap は原因となったエラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf はerrのKindを返す。*Errorを含まない場合はKindUnknownを返す。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// クライアントに返却する固定メッセージ。
const (
	msgCredentialsRequired   = "Username and password are required"
	msgActionFieldsRequired  = "Username, password, and action are required"
	msgInvalidAction         = "Invalid action"
	msgInvalidLoginResponse  = "Authentication failed: Invalid response from server"
	msgConnectionTimeout     = "Connection timeout"
	msgNoResponse            = "No response received from server"
	authenticationFailedStem = "Authentication failed: "
	requestFailedStem        = "Request failed: "
)

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func authenticationError(message string, cause error) *Error {
	return &Error{Kind: KindAuthentication, Message: message, Err: cause}
}

func requestError(cause error, format string, args ...any) *Error {
	return &Error{Kind: KindRequest, Message: requestFailedStem + fmt.Sprintf(format, args...), Err: cause}
}
