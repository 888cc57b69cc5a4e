package eventstream

import "fmt"

// CLIOutcome classifies an agent CLI exit code against the fixed
// exit-code table below.
type CLIOutcome struct {
	Kind        string
	UserMessage string
	Recoverable bool
}

// ClassifyExitCode maps a CLI exit code to its user-facing outcome. Exit
// code 0 returns a zero-value CLIOutcome with Kind ""; callers treat that
// as "emit done, not error".
func ClassifyExitCode(code int) CLIOutcome {
	switch code {
	case 0:
		return CLIOutcome{}
	case 1:
		return CLIOutcome{Kind: "CLI_GENERAL_ERROR", UserMessage: "生成中にエラーが発生しました", Recoverable: false}
	case 124:
		return CLIOutcome{Kind: "CLI_TIMEOUT", UserMessage: "生成に時間がかかりすぎました（5分制限）", Recoverable: true}
	case 137:
		return CLIOutcome{Kind: "CLI_KILLED", UserMessage: "生成がキャンセルされました", Recoverable: true}
	case 143:
		return CLIOutcome{Kind: "CLI_TERMINATED", UserMessage: "生成が中断されました", Recoverable: true}
	default:
		return CLIOutcome{
			Kind:        "CLI_UNKNOWN_ERROR",
			UserMessage: fmt.Sprintf("予期しないエラーが発生しました (コード: %d)", code),
			Recoverable: false,
		}
	}
}

// APIErrorKind is one of the transport/API-level error kinds, parallel to
// the CLI exit-code table.
type APIErrorKind string

const (
	NetworkError  APIErrorKind = "NETWORK_ERROR"
	AuthError     APIErrorKind = "AUTH_ERROR"
	RateLimit     APIErrorKind = "RATE_LIMIT"
	APITimeout    APIErrorKind = "API_TIMEOUT"
	SandboxError  APIErrorKind = "SANDBOX_ERROR"
	UnknownError  APIErrorKind = "UNKNOWN_ERROR"
)

var apiMessages = map[APIErrorKind]struct {
	message     string
	recoverable bool
}{
	NetworkError: {"ネットワークエラーが発生しました", true},
	AuthError:    {"認証エラーが発生しました", false},
	RateLimit:    {"リクエスト制限に達しました", true},
	APITimeout:   {"リクエストがタイムアウトしました", true},
	SandboxError: {"サンドボックスの準備に失敗しました", false},
	UnknownError: {"予期しないエラーが発生しました", false},
}

// ErrorEvent builds the single SSE `error` event for a given kind. Error
// details are logged server-side by the caller and never placed in the
// event.
func ErrorEvent(kind APIErrorKind, fallbackToCLI bool) Event {
	info, ok := apiMessages[kind]
	if !ok {
		info = apiMessages[UnknownError]
	}
	c := map[string]any{
		"type":        "error",
		"kind":        string(kind),
		"userMessage": info.message,
		"recoverable": info.recoverable,
	}
	if fallbackToCLI {
		c["fallback"] = "cli"
	}
	return Event{Constructed: c}
}

// CLIErrorEvent builds the single SSE `error` event for a CLI exit-code
// outcome.
func CLIErrorEvent(outcome CLIOutcome) Event {
	return Event{Constructed: map[string]any{
		"type":        "error",
		"code":        outcome.Kind,
		"userMessage": outcome.UserMessage,
		"recoverable": outcome.Recoverable,
	}}
}
