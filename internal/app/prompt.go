package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"contact_harvest/internal/store"
)

// Prompter asks the operator for the input path and whether to resume.
type Prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewScanner(in), out: out}
}

// InputPath 反复提问直到得到非空路径；输入结束时返回 io.ErrUnexpectedEOF。
func (p *Prompter) InputPath() (string, error) {
	for {
		fmt.Fprint(p.out, "Input table path (CSV):\n: ")
		line, err := p.readLine()
		if err != nil {
			return "", err
		}
		if line = strings.Trim(line, "\"' \t"); line != "" {
			return line, nil
		}
	}
}

// ConfirmResume asks whether to resume after lastRow (0-based). Anything
// other than y/yes starts from the beginning.
func (p *Prompter) ConfirmResume(lastRow int) (bool, error) {
	fmt.Fprintf(p.out, "Previous session stopped at row %d. Resume from there? (y/n): ", lastRow+1)
	line, err := p.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (p *Prompter) readLine() (string, error) {
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return p.in.Text(), nil
}

// StartRow 查询 source 的当前检查点，存在时询问操作员是否续跑。
func StartRow(ctx context.Context, checkpoints store.CheckpointStore, source string, p *Prompter) (int, error) {
	cp, ok, err := checkpoints.Latest(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok {
		return 0, nil
	}
	resume, err := p.ConfirmResume(cp.LastAttemptedRow)
	if err != nil {
		return 0, err
	}
	if !resume {
		return 0, nil
	}
	return cp.ResumeRow(), nil
}
