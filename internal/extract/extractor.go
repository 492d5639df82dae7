// Package extract turns rendered page text into a structured contact record.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"contact_harvest/internal/shared/types"
)

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// Field names reported in Extraction.Misses.
const (
	FieldName    = "name"
	FieldAddress = "address"
	FieldPhones  = "phones"
	FieldEmails  = "emails"
)

// Extraction 是一次文本抽取的结果。各规则相互独立，某条失败不影响其它字段。
type Extraction struct {
	Name    string
	Address string
	Phones  []string
	Emails  []string
	Misses  []string
}

// Missed reports whether field was not found.
func (e Extraction) Missed(field string) bool {
	for _, m := range e.Misses {
		if m == field {
			return true
		}
	}
	return false
}

// Apply copies the extracted fields into r, left-packing phones and emails.
func (e Extraction) Apply(r *types.Result) {
	r.VerifiedName = e.Name
	r.VerifiedAddress = e.Address
	r.SetPhones(e.Phones)
	r.SetEmails(e.Emails)
}

// Extractor applies the configured text rules.
type Extractor struct {
	rules   types.ExtractRules
	phoneRe *regexp.Regexp
	log     zerolog.Logger
}

func New(rules types.ExtractRules, log zerolog.Logger) (*Extractor, error) {
	if len(rules.PhoneLineTypes) == 0 {
		return nil, fmt.Errorf("at least one phone line type is required")
	}
	if rules.NameSeparator == "" {
		rules.NameSeparator = ","
	}
	quoted := make([]string, len(rules.PhoneLineTypes))
	for i, lt := range rules.PhoneLineTypes {
		quoted[i] = regexp.QuoteMeta(lt)
	}
	phoneRe, err := regexp.Compile(`\((\d{3})\)\s*(\d{3})-(\d{4})[\s\-\x{2013}\x{2014}]*(?:` + strings.Join(quoted, "|") + `)`)
	if err != nil {
		return nil, fmt.Errorf("compile phone pattern: %w", err)
	}
	return &Extractor{rules: rules, phoneRe: phoneRe, log: log}, nil
}

// Extract runs every rule against text. It never fails; misses are
// recorded in the result and logged.
func (x *Extractor) Extract(text string) Extraction {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out Extraction

	if name, ok := x.name(text); ok {
		out.Name = name
	} else {
		out.Misses = append(out.Misses, FieldName)
	}
	if addr, ok := x.address(text); ok {
		out.Address = addr
	} else {
		out.Misses = append(out.Misses, FieldAddress)
	}
	if phones := x.phones(text); len(phones) > 0 {
		out.Phones = phones
	} else {
		out.Misses = append(out.Misses, FieldPhones)
	}
	if emails := x.emails(text); len(emails) > 0 {
		out.Emails = emails
	} else {
		out.Misses = append(out.Misses, FieldEmails)
	}

	for _, field := range out.Misses {
		x.log.Warn().Err(types.ErrFieldMiss).Str("field", field).Msg("Extraction rule found nothing.")
	}
	return out
}

func (x *Extractor) name(text string) (string, bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.Index(line, x.rules.NameSeparator)
		if idx <= 0 {
			return "", false
		}
		name := strings.TrimSpace(line[:idx])
		return name, name != ""
	}
	return "", false
}

// address 取地址标记后的第一个非空文本块，直到下一个空行。
func (x *Extractor) address(text string) (string, bool) {
	body, ok := section(text, x.rules.Address)
	if !ok {
		return "", false
	}
	// the marker line itself is never part of the address
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		return "", false
	}

	var parts []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(parts) > 0 {
				break
			}
			continue
		}
		parts = append(parts, line)
	}
	addr := strings.Join(parts, ", ")
	if i := strings.IndexByte(addr, '$'); i >= 0 {
		addr = addr[:i]
	}
	addr = strings.TrimRight(strings.TrimSpace(addr), ", ")
	return addr, addr != ""
}

func (x *Extractor) phones(text string) []string {
	body, ok := section(text, x.rules.Phones)
	if !ok {
		return nil
	}
	var out []string
	for _, m := range x.phoneRe.FindAllStringSubmatch(body, -1) {
		out = append(out, fmt.Sprintf("(%s) %s-%s", m[1], m[2], m[3]))
		if len(out) == types.PhoneSlots {
			break
		}
	}
	return out
}

func (x *Extractor) emails(text string) []string {
	body, ok := section(text, x.rules.Emails)
	if !ok {
		return nil
	}
	return emailRe.FindAllString(body, types.EmailSlots)
}

// section 返回 Start（及可选 Intro）之后、最早的 End 标记之前的文本。
func section(text string, s types.Section) (string, bool) {
	if s.Start == "" {
		return "", false
	}
	i := strings.Index(text, s.Start)
	if i < 0 {
		return "", false
	}
	body := text[i+len(s.Start):]
	if s.Intro != "" {
		if j := strings.Index(body, s.Intro); j >= 0 {
			body = body[j+len(s.Intro):]
		}
	}
	end := len(body)
	for _, marker := range s.End {
		if marker == "" {
			continue
		}
		if k := strings.Index(body, marker); k >= 0 && k < end {
			end = k
		}
	}
	return body[:end], true
}
