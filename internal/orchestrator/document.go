package orchestrator

import (
	"context"
	"fmt"

	"github.com/iabetor/narrator/internal/document"
	"github.com/iabetor/narrator/internal/logger"
)

// Progress 记录每个输出名的转换状态，database.ProgressStore 实现了它。
type Progress interface {
	IsDone(name string) (bool, error)
	MarkDone(name string, seconds float64) error
	MarkFailed(name string, cause error) error
}

// Report 汇总一次 ConvertDocument 的结果。
type Report struct {
	Converted int
	Skipped   int
	// Failed 为中断转换的输出名，全部成功时为空。
	Failed string
}

// ConvertDocument 按顺序转换文档的全部分块，并把结果记入 progress。
// 只跳过开头连续已完成的分块；之后的分块即使标记为完成也重新转换。
// 遇到第一个失败的分块即停止并返回错误，字幕中的条目因此始终与句序一致。
func (o *Orchestrator) ConvertDocument(ctx context.Context, progress Progress, sentences []document.Sentence) (Report, error) {
	var rep Report
	prefix := true
	for _, sentence := range sentences {
		for i, chunk := range sentence.Chunks {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			name := ChunkName(sentence.Number, i, len(sentence.Chunks))
			if prefix {
				done, err := progress.IsDone(name)
				if err != nil {
					return rep, err
				}
				if done {
					rep.Skipped++
					continue
				}
				prefix = false
				if rep.Skipped > 0 {
					logger.Infof("[orchestrator] 跳过已完成的 %d 个分块，从 %s 继续", rep.Skipped, name)
				}
			}

			before := o.subtitles.Elapsed()
			if err := o.Convert(ctx, name, chunk); err != nil {
				if ctx.Err() != nil {
					return rep, err
				}
				rep.Failed = name
				if err := progress.MarkFailed(name, err); err != nil {
					return rep, err
				}
				return rep, fmt.Errorf("[orchestrator] %s 转换失败，已停止: %w", name, err)
			}
			rep.Converted++
			if err := progress.MarkDone(name, o.subtitles.Elapsed()-before); err != nil {
				return rep, err
			}
		}
	}
	return rep, nil
}
