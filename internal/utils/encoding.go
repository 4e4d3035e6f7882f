package utils

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"

	_const "swgconf/internal/const"
)

// EncodingType 编码类型枚举
type EncodingType int

const (
	EncodingUTF8 EncodingType = iota
	EncodingUTF16LE
	EncodingUTF16BE
	EncodingGBK
	EncodingGB2312
	EncodingLatin1
	EncodingUnknown
)

// String 返回编码类型的字符串表示
func (e EncodingType) String() string {
	switch e {
	case EncodingUTF8:
		return _const.EncodingUTF8
	case EncodingUTF16LE:
		return _const.EncodingUTF16LE
	case EncodingUTF16BE:
		return _const.EncodingUTF16BE
	case EncodingGBK:
		return _const.EncodingGBK
	case EncodingGB2312:
		return _const.EncodingGB2312
	case EncodingLatin1:
		return _const.EncodingLatin1
	default:
		return _const.EncodingUnknown
	}
}

// ParseEncoding 解析编码名称, 无法识别时返回 EncodingUnknown
func ParseEncoding(name string) EncodingType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "utf-8", "utf8":
		return EncodingUTF8
	case "utf-16le":
		return EncodingUTF16LE
	case "utf-16be":
		return EncodingUTF16BE
	case "gbk", "gb-18030", "gb18030":
		return EncodingGBK
	case "gb2312":
		return EncodingGB2312
	case "iso-8859-1", "latin1", "windows-1252":
		return EncodingLatin1
	default:
		return EncodingUnknown
	}
}

// DetectEncoding 检测文件内容的编码
// 先检查 BOM 和 UTF-8 有效性, 再交给 chardet 判断
func DetectEncoding(data []byte) EncodingType {
	if len(data) == 0 {
		return EncodingUTF8
	}

	// 检查UTF-16 BOM
	if len(data) >= _const.UTF16BOMSize {
		if data[0] == 0xFF && data[1] == 0xFE {
			return EncodingUTF16LE
		}
		if data[0] == 0xFE && data[1] == 0xFF {
			return EncodingUTF16BE
		}
	}

	if utf8.Valid(data) {
		// 无 BOM 的 UTF-16LE 也可能是合法 UTF-8, 靠 null 字节比例区分
		if bytes.Count(data, []byte{0}) > len(data)/_const.UTF16MinNullRatio {
			return EncodingUTF16LE
		}
		return EncodingUTF8
	}

	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result.Confidence < _const.MinDetectConfidence {
		return EncodingUnknown
	}
	if enc := ParseEncoding(result.Charset); enc != EncodingUnknown {
		return enc
	}
	return EncodingUnknown
}

func textEncoding(enc EncodingType) encoding.Encoding {
	switch enc {
	case EncodingUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case EncodingUTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	case EncodingGBK:
		return simplifiedchinese.GBK
	case EncodingGB2312:
		return simplifiedchinese.GB18030
	case EncodingLatin1:
		return charmap.Windows1252
	default:
		return nil
	}
}

// Decode 将指定编码的内容转换为 UTF-8 文本
// UTF-8 和未知编码按原样返回
func Decode(data []byte, enc EncodingType) (string, error) {
	e := textEncoding(enc)
	if e == nil {
		return string(data), nil
	}
	out, err := e.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("%s解码失败: %w", enc, err)
	}
	return string(out), nil
}

// Encode 将 UTF-8 文本转换回指定编码
func Encode(text string, enc EncodingType) ([]byte, error) {
	e := textEncoding(enc)
	if e == nil {
		return []byte(text), nil
	}
	out, err := e.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%s编码失败: %w", enc, err)
	}
	return out, nil
}

// ReadTextFile 读取文本文件并转换为 UTF-8, 同时返回检测到的编码
func ReadTextFile(path string) (string, EncodingType, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", EncodingUnknown, fmt.Errorf("failed to read file: %w", err)
	}
	enc := DetectEncoding(data)
	text, err := Decode(data, enc)
	if err != nil {
		return "", enc, err
	}
	return text, enc, nil
}

// WriteTextFile 以指定编码写入文本文件, 已存在的文件保留原有权限
func WriteTextFile(path, text string, enc EncodingType) error {
	data, err := Encode(text, enc)
	if err != nil {
		return err
	}

	perm := os.FileMode(_const.FilePerm)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// TruncateString 截断字符串到指定长度，添加省略号
func TruncateString(input string, maxLength int) string {
	if len(input) <= maxLength {
		return input
	}
	return input[:maxLength] + _const.TruncateSuffix
}
