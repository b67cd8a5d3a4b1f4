package layout

import (
	"encoding/json"
	"io"
	"os"
)

// debugDocument 是调试 JSON 的顶层结构，附带页数与文档长度，便于人工核对。
type debugDocument struct {
	PageCount int     `json:"pageCount"`
	Length    int     `json:"length"`
	Result    *Result `json:"result"`
}

// WriteDebug 将分页结果以缩进 JSON 写入 w。
func WriteDebug(w io.Writer, res *Result) error {
	if res == nil {
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(debugDocument{PageCount: res.PageCount(), Length: res.DocumentLength(), Result: res})
}

// WriteDebugJSON 将分页结果输出到文件，便于调试或可视化。
func WriteDebugJSON(res *Result, path string) error {
	if res == nil {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteDebug(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
