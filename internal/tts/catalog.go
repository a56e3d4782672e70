package tts

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iabetor/narrator/internal/config"
	"gopkg.in/yaml.v3"
)

// Bucket 是 VITS 类检查点的一个语言分组，Name 会替换仓库模板中的 [xxx]。
type Bucket struct {
	Name      string   `yaml:"name"`
	Languages []string `yaml:"languages"`
}

// ModelSpec 描述一个引擎变体的模型来源。
type ModelSpec struct {
	// Repo 为仓库标识，可含 [lang]、[lang_iso1]、[xxx] 占位符。
	Repo string `yaml:"repo"`
	// Sub 为微调变体在仓库中的子目录。
	Sub     string   `yaml:"sub"`
	Buckets []Bucket `yaml:"buckets"`
	// Voice 为默认参考音色，相对路径基于 voices_dir。
	Voice      string `yaml:"voice"`
	SampleRate int    `yaml:"sample_rate"`
}

// Catalog 为所有引擎的模型目录。
type Catalog struct {
	Models map[string]map[string]ModelSpec `yaml:"models"`
	// VCModel 为零样本音色转换模型。
	VCModel string `yaml:"vc_model"`
	// XTTSVoices 将音色文件名映射到 XTTS 内置说话人。
	XTTSVoices map[string]string `yaml:"xtts_voices"`
	// XTTSLanguages 为 XTTS 支持的 ISO 639-3 语言。
	XTTSLanguages []string `yaml:"xtts_languages"`
	BarkVoice      string  `yaml:"bark_voice"`
	YourTTSSpeaker string  `yaml:"yourtts_speaker"`
}

// DefaultCatalog 返回内置模型目录。
func DefaultCatalog() *Catalog {
	return &Catalog{
		Models: map[string]map[string]ModelSpec{
			config.EngineXTTS: {
				"internal": {
					Repo:       "coqui/XTTS-v2",
					Voice:      "eng/adult/male/KumarDahl_24000.wav",
					SampleRate: 24000,
				},
				"AiExplained": {
					Repo:       "drewThomasson/fineTunedTTSModels",
					Sub:        "xtts-v2/eng/AiExplained",
					Voice:      "eng/adult/male/AiExplained_24000.wav",
					SampleRate: 24000,
				},
				"DavidAttenborough": {
					Repo:       "drewThomasson/fineTunedTTSModels",
					Sub:        "xtts-v2/eng/DavidAttenborough",
					Voice:      "eng/elder/male/DavidAttenborough_24000.wav",
					SampleRate: 24000,
				},
			},
			config.EngineBark: {
				"internal": {
					Repo:       "tts_models/multilingual/multi-dataset/bark",
					Voice:      "eng/adult/male/Jamie_24000.wav",
					SampleRate: 24000,
				},
			},
			config.EngineVITS: {
				"internal": {
					Repo: "tts_models/[lang_iso1]/[xxx]",
					Buckets: []Bucket{
						{Name: "css10/vits", Languages: []string{"es", "hu", "fi", "fr", "nl", "ru", "el"}},
						{Name: "custom/vits", Languages: []string{"ca", "fa", "bn"}},
						{Name: "cv/vits", Languages: []string{"bg", "cs", "da", "et", "ga", "hr", "lt", "lv", "mt", "pt", "ro", "sk", "sl", "sv"}},
						{Name: "mai_female/vits", Languages: []string{"pl"}},
						{Name: "mai_male/vits", Languages: []string{"uk"}},
						{Name: "openbible/vits", Languages: []string{"ewe", "hau", "lin", "tw_akuapem", "tw_asante", "yor"}},
						{Name: "thorsten/vits", Languages: []string{"de"}},
						{Name: "vctk/vits", Languages: []string{"en"}},
					},
					SampleRate: 22050,
				},
			},
			config.EngineFairseq: {
				"internal": {
					Repo:       "tts_models/[lang]/fairseq/vits",
					SampleRate: 16000,
				},
			},
			config.EngineYourTTS: {
				"internal": {
					Repo:       "tts_models/multilingual/multi-dataset/your_tts",
					SampleRate: 16000,
				},
			},
		},
		VCModel: "voice_conversion_models/multilingual/vctk/freevc24",
		XTTSVoices: map[string]string{
			"ClaribelDervla":   "Claribel Dervla",
			"DaisyStudious":    "Daisy Studious",
			"GracieWise":       "Gracie Wise",
			"TammieEma":        "Tammie Ema",
			"AlisonDietlinde":  "Alison Dietlinde",
			"AnaFlorence":      "Ana Florence",
			"AnnmarieNele":     "Annmarie Nele",
			"AsyaAnara":        "Asya Anara",
			"BrendaStern":      "Brenda Stern",
			"GittaNikolina":    "Gitta Nikolina",
			"HenrietteUsha":    "Henriette Usha",
			"SofiaHellen":      "Sofia Hellen",
			"TammyGrit":        "Tammy Grit",
			"TanjaAdelina":     "Tanja Adelina",
			"AndrewChipper":    "Andrew Chipper",
			"BadrOdhiambo":     "Badr Odhiambo",
			"DionisioSchuyler": "Dionisio Schuyler",
			"RoystonMin":       "Royston Min",
			"ViktorEka":        "Viktor Eka",
			"AbrahanMack":      "Abrahan Mack",
			"CraigGutsy":       "Craig Gutsy",
			"DamienBlack":      "Damien Black",
			"KumarDahl":        "Kumar Dahl",
			"LudvigMilivoj":    "Ludvig Milivoj",
		},
		XTTSLanguages: []string{
			"ara", "ces", "deu", "eng", "fra", "hin", "hun", "ita", "jpn",
			"kor", "nld", "pol", "por", "rus", "spa", "tur", "zho",
		},
		BarkVoice:      "eng/adult/male/Jamie_24000.wav",
		YourTTSSpeaker: "ElectroMale-2",
	}
}

// LoadCatalog 读取 YAML 覆盖文件并合并到内置目录，path 为空时返回内置目录。
func LoadCatalog(path string) (*Catalog, error) {
	cat := DefaultCatalog()
	if path == "" {
		return cat, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[tts] 读取模型目录 %s 失败: %w", path, err)
	}
	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("[tts] 解析模型目录 %s 失败: %w", path, err)
	}

	for engine, variants := range override.Models {
		if cat.Models[engine] == nil {
			cat.Models[engine] = make(map[string]ModelSpec)
		}
		for name, spec := range variants {
			cat.Models[engine][name] = spec
		}
	}
	for file, speaker := range override.XTTSVoices {
		cat.XTTSVoices[file] = speaker
	}
	if override.VCModel != "" {
		cat.VCModel = override.VCModel
	}
	if len(override.XTTSLanguages) > 0 {
		cat.XTTSLanguages = override.XTTSLanguages
	}
	if override.BarkVoice != "" {
		cat.BarkVoice = override.BarkVoice
	}
	if override.YourTTSSpeaker != "" {
		cat.YourTTSSpeaker = override.YourTTSSpeaker
	}
	return cat, nil
}

// Lookup 返回引擎变体的模型描述。
func (c *Catalog) Lookup(engine, variant string) (ModelSpec, error) {
	spec, ok := c.Models[engine][variant]
	if !ok {
		return ModelSpec{}, fmt.Errorf("[tts] 模型目录中没有 %s/%s: %w", engine, variant, ErrLoad)
	}
	return spec, nil
}

// IsXTTSBuiltin 判断 voice 是否为 XTTS 内置说话人名称。
func (c *Catalog) IsXTTSBuiltin(voice string) bool {
	for _, name := range c.XTTSVoices {
		if name == voice {
			return true
		}
	}
	return false
}

// SupportsXTTS 判断语言是否为 XTTS 支持的语言。
func (c *Catalog) SupportsXTTS(language string) bool {
	for _, l := range c.XTTSLanguages {
		if l == language {
			return true
		}
	}
	return false
}

// voicePath 将相对于 voices_dir 的路径转为绝对路径。
func voicePath(voicesDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(voicesDir, p)
}
