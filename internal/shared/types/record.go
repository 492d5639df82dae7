package types

import (
	"fmt"
	"strings"
	"time"
)

const (
	PhoneSlots = 4
	EmailSlots = 3
)

// InputRow 是输入表格中的一行。Ordinal 为数据行的 0 起始序号，跨运行保持稳定。
type InputRow struct {
	Ordinal  int
	Name     string
	Locality string
	Fields   []string // 原始列值，导出时原样保留
}

// RemarksKind tags the terminal path a row took.
type RemarksKind int

const (
	RemarksNone RemarksKind = iota
	RemarksNoRecordFound
	RemarksResultSummary
	RemarksRecordFound
	RemarksFailedAfterRetries
)

var remarksKindNames = map[RemarksKind]string{
	RemarksNone:               "",
	RemarksNoRecordFound:      "no_record",
	RemarksResultSummary:      "summary",
	RemarksRecordFound:        "record",
	RemarksFailedAfterRetries: "failed",
}

func (k RemarksKind) String() string {
	return remarksKindNames[k]
}

// ParseRemarksKind is the inverse of RemarksKind.String.
func ParseRemarksKind(s string) (RemarksKind, error) {
	for k, name := range remarksKindNames {
		if name == s {
			return k, nil
		}
	}
	return RemarksNone, fmt.Errorf("unknown remarks kind %q", s)
}

// Remarks 是结果备注的带标签变体。Summary 只在 RemarksResultSummary 时有效，
// Attempts 只在 RemarksFailedAfterRetries 时有效。
type Remarks struct {
	Kind     RemarksKind
	Summary  string
	Attempts int
}

func NoRecordFound() Remarks { return Remarks{Kind: RemarksNoRecordFound} }
func RecordFound() Remarks { return Remarks{Kind: RemarksRecordFound} }
func ResultSummary(s string) Remarks { return Remarks{Kind: RemarksResultSummary, Summary: s} }
func FailedAfterRetries(n int) Remarks {
	return Remarks{Kind: RemarksFailedAfterRetries, Attempts: n}
}

// String renders the remarks as written to the export.
func (r Remarks) String() string {
	switch r.Kind {
	case RemarksNoRecordFound:
		return "No record found"
	case RemarksResultSummary:
		return r.Summary
	case RemarksRecordFound:
		return "Record found"
	case RemarksFailedAfterRetries:
		return fmt.Sprintf("Failed after %d retries", r.Attempts)
	default:
		return ""
	}
}

// Result 是一次抓取的结构化结果，字段形状固定。
type Result struct {
	VerifiedName    string
	VerifiedAddress string
	Phones          [PhoneSlots]string
	Emails          [EmailSlots]string
	Remarks         Remarks
	UsedEgress      string // 出口地址 host:port
}

// SetPhones left-packs values into the phone slots.
func (r *Result) SetPhones(values []string) {
	copy(r.Phones[:], LeftPack(values, PhoneSlots))
}

// SetEmails left-packs values into the email slots.
func (r *Result) SetEmails(values []string) {
	copy(r.Emails[:], LeftPack(values, EmailSlots))
}

// Normalize re-packs phones and emails so every empty slot follows every
// non-empty one. Stores call it before writing.
func (r *Result) Normalize() {
	r.SetPhones(r.Phones[:])
	r.SetEmails(r.Emails[:])
}

// LeftPack 过滤空值，保持顺序，截断到 slots 个并用空串补足。
func LeftPack(values []string, slots int) []string {
	out := make([]string, 0, slots)
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if len(out) == slots {
			break
		}
		out = append(out, v)
	}
	for len(out) < slots {
		out = append(out, "")
	}
	return out
}

// Checkpoint 是追加写入的进度记录。Final 为 false 表示该行的尝试尚未结束。
type Checkpoint struct {
	Source           string
	LastAttemptedRow int
	Attempt          int
	Final            bool
	RunID            string
	At               time.Time
}

// ResumeRow returns the first row ordinal a resumed run should attempt.
func (c Checkpoint) ResumeRow() int {
	if c.Final {
		return c.LastAttemptedRow + 1
	}
	return c.LastAttemptedRow
}

// StoredResult is a Result as kept by a result store.
type StoredResult struct {
	Source  string
	Ordinal int
	RunID   string
	Result  Result
	At      time.Time
}
