package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// 中文说明：
// Oracle 响应先过两道校验再反序列化：
// 1. gjson 形状探测（是否合法 JSON、根节点是否对象、success 字段是否存在）；
// 2. jsonschema 结构校验（字段类型/必填项）。
// 目的是把“Oracle 返回了奇怪的东西”从解码错误里区分出来，归为 ErrUnavailable。

const allocateResponseSchema = `{
  "type": "object",
  "required": ["success"],
  "properties": {
    "success": {"type": "boolean"},
    "algorithm": {"type": "string"},
    "error": {"type": "string"},
    "allocations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["variant_id", "recommended_budget"],
        "properties": {
          "variant_id": {"type": "string"},
          "recommended_budget": {"type": "number"}
        }
      }
    }
  }
}`

const forecastResponseSchema = `{
  "type": "object",
  "required": ["success"],
  "properties": {
    "success": {"type": "boolean"},
    "forecast_days": {"type": "integer"},
    "error": {"type": "string"},
    "forecast": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["date", "conversions"],
        "properties": {
          "date": {"type": "string"},
          "conversions": {"type": "number"},
          "lower": {"type": "number"},
          "upper": {"type": "number"}
        }
      }
    },
    "summary": {
      "type": "object",
      "properties": {
        "total_forecasted_conversions": {"type": "number"}
      }
    }
  }
}`

var (
	allocateSchema = mustCompileSchema("allocate_response.json", allocateResponseSchema)
	forecastSchema = mustCompileSchema("forecast_response.json", forecastResponseSchema)
)

func mustCompileSchema(name, raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(raw)); err != nil {
		panic(err)
	}
	return compiler.MustCompile(name)
}

// validateResponseBody 返回 nil 表示 body 可以安全反序列化为对应响应结构。
func validateResponseBody(schema *jsonschema.Schema, body []byte) error {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return fmt.Errorf("响应体为空")
	}
	if !gjson.Valid(raw) {
		return fmt.Errorf("响应不是合法 JSON")
	}
	parsed := gjson.Parse(raw)
	if !parsed.IsObject() {
		return fmt.Errorf("响应根节点必须是对象")
	}
	if !parsed.Get("success").Exists() {
		return fmt.Errorf("响应缺少 success 字段")
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("响应结构校验失败: %w", err)
	}
	return nil
}
