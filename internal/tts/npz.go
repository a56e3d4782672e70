package tts

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iabetor/narrator/internal/audio"
)

// writeNPZ 把参考音频写成声学提示档案，包含 audio 与 sample_rate 两个数组。
func writeNPZ(wavPath, npzPath string, sampleRate int) error {
	samples, _, err := audio.Load(wavPath)
	if err != nil {
		return fmt.Errorf("[tts] 读取参考音频失败: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(npzPath), 0755); err != nil {
		return fmt.Errorf("[tts] 创建档案目录失败: %w", err)
	}

	f, err := os.Create(npzPath)
	if err != nil {
		return fmt.Errorf("[tts] 创建档案失败: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = float64(s)
	}
	if err := writeNPY(zw, "audio.npy", "<f8", fmt.Sprintf("(%d,)", len(values)), values); err != nil {
		return err
	}
	if err := writeNPY(zw, "sample_rate.npy", "<i8", "()", []int64{int64(sampleRate)}); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("[tts] 写入档案失败: %w", err)
	}
	return f.Close()
}

// writeNPY 以 NPY 1.0 格式写入一个小端数组。
func writeNPY(zw *zip.Writer, name, descr, shape string, data interface{}) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("[tts] 写入 %s 失败: %w", name, err)
	}
	if _, err := w.Write(npyHeader(descr, shape)); err != nil {
		return fmt.Errorf("[tts] 写入 %s 失败: %w", name, err)
	}
	if err := binary.Write(w, binary.LittleEndian, data); err != nil {
		return fmt.Errorf("[tts] 写入 %s 失败: %w", name, err)
	}
	return nil
}

// npyHeader 构造魔数与字典头，总长度按 64 字节对齐。
func npyHeader(descr, shape string) []byte {
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shape)
	const prefix = 10
	total := prefix + len(dict) + 1
	pad := (64 - total%64) % 64
	headerLen := len(dict) + pad + 1

	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{1, 0})
	binary.Write(&buf, binary.LittleEndian, uint16(headerLen))
	buf.WriteString(dict)
	buf.Write(bytes.Repeat([]byte{' '}, pad))
	buf.WriteByte('\n')
	return buf.Bytes()
}
