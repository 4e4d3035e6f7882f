package _const

// 字符串编码相关常量
const (
	// 编码类型
	EncodingUTF8    = "UTF-8"
	EncodingUTF16LE = "UTF-16LE"
	EncodingUTF16BE = "UTF-16BE"
	EncodingGBK     = "GBK"
	EncodingGB2312  = "GB2312"
	EncodingLatin1  = "ISO-8859-1"
	EncodingUnknown = "Unknown"

	// 编码检测相关常量
	MinDetectConfidence = 50 // chardet 置信度下限, 低于此值按 UTF-8 处理
	UTF16BOMSize        = 2  // UTF-16 BOM大小
	UTF16MinNullRatio   = 3  // UTF-16字符串中null字符的最小比例（1/3）

	// 字符串处理相关常量
	TruncateSuffix = "..." // 截断后缀
)
