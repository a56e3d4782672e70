package config

// iso3To1 为 ISO 639-3 到 ISO 639-1 的映射，覆盖各引擎支持的语言。
var iso3To1 = map[string]string{
	"ara": "ar",
	"cat": "ca",
	"ces": "cs",
	"deu": "de",
	"ell": "el",
	"eng": "en",
	"fin": "fi",
	"fra": "fr",
	"hin": "hi",
	"hun": "hu",
	"ita": "it",
	"jpn": "ja",
	"kor": "ko",
	"nld": "nl",
	"pol": "pl",
	"por": "pt",
	"rus": "ru",
	"spa": "es",
	"swe": "sv",
	"tur": "tr",
	"ukr": "uk",
	"zho": "zh-cn",
}

// ISO1 返回 ISO 639-3 代码对应的 ISO 639-1 代码，未知时原样返回。
func ISO1(iso3 string) string {
	if v, ok := iso3To1[iso3]; ok {
		return v
	}
	return iso3
}
