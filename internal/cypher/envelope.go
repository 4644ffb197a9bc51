package cypher

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strconv"
)

const payloadPrefix = "1:"

// ParseEnvelope 提取以 "1:" 开头的载荷行。缺少该行或 JSON 非法时返回 nil，
// 调用方按零值处理，不把解析失败上抛。
func ParseEnvelope(body []byte) json.RawMessage {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, []byte(payloadPrefix)) {
			continue
		}
		payload := bytes.TrimSpace(line[len(payloadPrefix):])
		if !json.Valid(payload) {
			return nil
		}
		return json.RawMessage(append([]byte(nil), payload...))
	}
	return nil
}

// intOrZero 将载荷解释为整数，数字字符串同样接受，其余情况返回 0。
func intOrZero(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0
		}
		number = json.Number(text)
	}
	if v, err := number.Int64(); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(number.String(), 64); err == nil {
		return int64(f)
	}
	return 0
}
