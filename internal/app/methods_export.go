package app

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tiagocoutinho/qredis/internal/connection"
	"github.com/tiagocoutinho/qredis/internal/logger"
	"github.com/tiagocoutinho/qredis/internal/store"

	"github.com/xuri/excelize/v2"
)

var exportColumns = []string{"key", "type", "ttl", "value"}

var exportFormats = map[string]bool{"csv": true, "json": true, "md": true, "xlsx": true}

// exportRow is one exported key. Collections are serialized as JSON text.
type exportRow struct {
	Key   string      `json:"key"`
	Type  string      `json:"type"`
	TTL   int64       `json:"ttl"`
	Value interface{} `json:"value"`
}

func (r exportRow) record() []string {
	val := ""
	switch v := r.Value.(type) {
	case string:
		val = v
	default:
		b, _ := json.Marshal(v)
		val = string(b)
	}
	return []string{r.Key, r.Type, fmt.Sprint(r.TTL), val}
}

func collectRows(s *store.Store, pattern string) ([]exportRow, error) {
	keys, err := s.Keys(pattern)
	if err != nil {
		return nil, err
	}
	rows := make([]exportRow, 0, len(keys))
	for _, key := range keys {
		item, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		if item == nil {
			continue // expired while exporting
		}
		view := newItemView(item)
		rows = append(rows, exportRow{Key: view.Key, Type: view.Type, TTL: view.TTL, Value: view.Display})
	}
	return rows, nil
}

// RedisExportKeys writes every key matching pattern to filename.
// Supported formats: csv, json, md, xlsx.
func (a *App) RedisExportKeys(config connection.ConnectionConfig, pattern, filename, format string) connection.QueryResult {
	if filename == "" {
		return connection.QueryResult{Success: false, Message: "未指定导出文件"}
	}
	format = strings.ToLower(format)
	if !exportFormats[format] {
		return connection.QueryResult{Success: false, Message: fmt.Sprintf("Unsupported format: %s", format)}
	}
	s, err := a.getSession(config)
	if err != nil {
		return fail(err)
	}
	rows, err := collectRows(s.store, pattern)
	if err != nil {
		logger.Error(err, "RedisExportKeys 读取失败：pattern=%s", pattern)
		return fail(err)
	}

	if format == "xlsx" {
		err = writeXLSX(filename, rows)
	} else {
		err = writeFile(filename, func(w io.Writer) error { return writeRows(w, format, rows) })
	}
	if err != nil {
		logger.Error(err, "RedisExportKeys 写入失败：%s", filename)
		return fail(err)
	}
	logger.Infof("导出完成：%s 共 %d 个 key", filename, len(rows))
	return connection.QueryResult{Success: true, Message: "Export successful", Data: map[string]int{"keys": len(rows)}}
}

func writeFile(filename string, fn func(io.Writer) error) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		_ = os.Remove(filename)
		return err
	}
	return f.Close()
}

// writeRows renders csv, json or md.
func writeRows(w io.Writer, format string, rows []exportRow) error {
	switch format {
	case "csv":
		if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return err
		}
		cw := csv.NewWriter(w)
		if err := cw.Write(exportColumns); err != nil {
			return err
		}
		for _, r := range rows {
			if err := cw.Write(r.record()); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "md":
		seps := make([]string, len(exportColumns))
		for i := range seps {
			seps[i] = "---"
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(exportColumns, " | "))
		fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))
		for _, r := range rows {
			record := r.record()
			for i, s := range record {
				s = strings.ReplaceAll(s, "|", "\\|")
				record[i] = strings.ReplaceAll(s, "\n", "<br>")
			}
			if _, err := fmt.Fprintf(w, "| %s |\n", strings.Join(record, " | ")); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("Unsupported format: %s", format)
}

func writeXLSX(filename string, rows []exportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	header := make([]interface{}, len(exportColumns))
	for i, c := range exportColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		record := r.record()
		values := []interface{}{record[0], record[1], r.TTL, record[3]}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return f.SaveAs(filename)
}
