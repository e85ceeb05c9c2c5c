package remote

import (
	"bytes"
	"encoding/json"

	"github.com/BaSui01/twinchat/internal/textutil"
)

// ErrorKind 标记本地失败的类别
type ErrorKind string

const (
	InvalidArguments  ErrorKind = "InvalidArguments"
	TransportTimeout  ErrorKind = "TransportTimeout"
	TransportCanceled ErrorKind = "TransportCanceled"
	TransportFailure  ErrorKind = "TransportFailure"
	Unhandled         ErrorKind = "Unhandled"
)

// MaxErrorBodyLength 上游错误响应体保留的最大字符数
const MaxErrorBodyLength = 2000

// Envelope 是每次远程调用的统一结果，三种形态：
//
//	成功      {"ok":true,"status":200,"url":"…","total":"42","data":…} 或 "dataRaw":"…"
//	上游错误  {"ok":false,"status":404,"reason":"Not Found","url":"…","body":"…"}
//	本地失败  {"ok":false,"error":"TransportTimeout","message":"…","detail":"…"}
type Envelope struct {
	OK      bool            `json:"ok"`
	Status  int             `json:"status,omitempty"`
	Reason  *string         `json:"reason,omitempty"`
	URL     string          `json:"url,omitempty"`
	Total   string          `json:"total,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	DataRaw *string         `json:"dataRaw,omitempty"`
	Body    *string         `json:"body,omitempty"`
	Error   ErrorKind       `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
	Detail  string          `json:"detail,omitempty"`
}

func successEnvelope(url string, status int, total string, body []byte, isJSON bool) Envelope {
	env := Envelope{OK: true, Status: status, URL: url, Total: total}
	if isJSON {
		env.Data = json.RawMessage(body)
	} else {
		raw := string(body)
		env.DataRaw = &raw
	}
	return env
}

func upstreamErrorEnvelope(url string, status int, reason string, body []byte) Envelope {
	truncated := textutil.TruncateRunes(string(body), MaxErrorBodyLength, "")
	return Envelope{OK: false, Status: status, Reason: &reason, URL: url, Body: &truncated}
}

func failureEnvelope(kind ErrorKind, message string, err error) Envelope {
	env := Envelope{OK: false, Error: kind, Message: message}
	if err != nil {
		env.Detail = err.Error()
	}
	return env
}

// Failed 报告是否为本地失败或上游错误
func (e Envelope) Failed() bool { return !e.OK }

// String 返回紧凑 JSON 文本，作为工具结果交给模型
func (e Envelope) String() string {
	b, err := e.encode()
	if err != nil {
		// Data 不是合法 JSON 时退回 dataRaw
		raw := string(e.Data)
		e.Data, e.DataRaw = nil, &raw
		b, _ = e.encode()
	}
	return string(b)
}

func (e Envelope) encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
