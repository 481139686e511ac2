package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

// 中文说明：
// Oracle 调用流水单独落一份日志（请求/响应原文），与业务日志分流，
// 便于排查 Allocator/Forecaster 的返回异常。

var (
	oracleMu          sync.Mutex
	oracleLog         *log.Logger
	oracleDumpPayload bool
)

func SetOracleWriter(w io.Writer) {
	oracleMu.Lock()
	defer oracleMu.Unlock()
	if w == nil {
		oracleLog = nil
		return
	}
	oracleLog = log.New(w, "", log.LstdFlags)
}

func EnableOraclePayloadDump(enabled bool) {
	oracleMu.Lock()
	oracleDumpPayload = enabled
	oracleMu.Unlock()
}

type oracleSection struct {
	Title string
	Body  string
}

func logOracle(kind, oracle string, sections []oracleSection) {
	oracleMu.Lock()
	logger := oracleLog
	oracleMu.Unlock()
	if logger == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[ORACLE]")
	if kind != "" {
		b.WriteString("[")
		b.WriteString(kind)
		b.WriteString("]")
	}
	if oracle != "" {
		b.WriteString("[")
		b.WriteString(oracle)
		b.WriteString("]")
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(t)
		b.WriteString(" ---\n")
		body := sec.Body
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	logger.Print(b.String())
}

// LogOracleRequest 记录一次外呼的请求体；payload dump 开启时附完整 JSON。
func LogOracleRequest(oracle, url, payload string) {
	sections := []oracleSection{{Title: "URL", Body: url}}
	if oracleDumpPayload && strings.TrimSpace(payload) != "" {
		sections = append(sections, oracleSection{Title: "PAYLOAD", Body: payload})
	}
	logOracle("request", oracle, sections)
}

// LogOracleResponse 记录原始响应（含错误响应）。
func LogOracleResponse(oracle, raw string) {
	logOracle("response", oracle, []oracleSection{{Title: "RAW", Body: raw}})
}
