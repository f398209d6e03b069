package codec

import "testing"

func TestDecode_UTF8Unchanged(t *testing.T) {
	for _, s := range []string{"", "hello", "a:b:c", "多字节", "{\"json\":1}", "\x01\x02"} {
		text, format := Inspect([]byte(s))
		if text != s || format != FormatUTF8 {
			t.Fatalf("合法 UTF-8 应原样返回：输入=%q 实际=%q(%s)", s, text, format)
		}
	}
}

func TestDecode_Pickle(t *testing.T) {
	// protocol 2: BINUNICODE "hello", BINPUT 0, STOP
	text, format := Inspect([]byte("\x80\x02X\x05\x00\x00\x00helloq\x00."))
	if text != "hello" || format != FormatPickle {
		t.Fatalf("pickle 字符串解码失败：%q(%s)", text, format)
	}

	text, format = Inspect([]byte("\x80\x02K*."))
	if text != "42" || format != FormatPickle {
		t.Fatalf("pickle 整数解码失败：%q(%s)", text, format)
	}
}

func TestDecode_Msgpack(t *testing.T) {
	// array16 of 1, 2, uint8(255)
	text, format := Inspect([]byte{0xdc, 0x00, 0x03, 0x01, 0x02, 0xcc, 0xff})
	if text != "[1,2,255]" || format != FormatMsgpack {
		t.Fatalf("msgpack 数组解码失败：%q(%s)", text, format)
	}
}

func TestDecode_RawFallback(t *testing.T) {
	// 0xc1 is reserved in msgpack and not a pickle opcode
	text, format := Inspect([]byte{0xc1})
	if text != "0xc1" || format != FormatRaw {
		t.Fatalf("兜底应返回十六进制：%q(%s)", text, format)
	}
	if got := Decode([]byte{0xc1, 0xc1}); got != "0xc1c1" {
		t.Fatalf("兜底应返回十六进制：%q", got)
	}
}

func TestJSONSafe_NonStringKeys(t *testing.T) {
	v := jsonSafe(map[interface{}]interface{}{int8(1): []interface{}{[]byte{0xab}}})
	m, ok := v.(map[string]interface{})
	if !ok {
		t.Fatalf("期望 map[string]interface{}，实际=%T", v)
	}
	list, ok := m["1"].([]interface{})
	if !ok || len(list) != 1 || list[0] != "0xab" {
		t.Fatalf("嵌套值转换错误：%v", m)
	}
}
