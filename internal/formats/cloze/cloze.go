// Package cloze reads and writes banks as cloze text: one question per
// block, blocks separated by a line holding only "---". Each block is
// markup with embedded {GRADE:KIND:OPTIONS} answers.
package cloze

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mind-engage/mindengage-qbank/internal/bank"
	"github.com/mind-engage/mindengage-qbank/internal/formats"
	"github.com/mind-engage/mindengage-qbank/internal/richtext"
)

const Separator = "---"

func init() {
	formats.Register("cloze", New())
}

type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) ContentType() string { return "text/plain; charset=utf-8" }

func (a *Adapter) Import(ctx context.Context, r io.Reader, opt formats.Options) (*bank.Bank, error) {
	blocks, err := splitBlocks(r)
	if err != nil {
		return nil, err
	}
	b := &bank.Bank{Name: "cloze import"}
	for i, block := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := richtext.ParseCloze(block, richtext.WithMarkup(opt.MarkupOptions()...))
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		q := &bank.Question{
			ID:   fmt.Sprintf("q%d", i+1),
			Name: bank.NameFrom(doc, 40),
			Type: bank.TypeCloze,
			Text: doc,
		}
		if len(doc.Items()) == 0 {
			q.Type = bank.TypeDescription
		} else {
			q.Points = bank.ClozePoints(doc)
		}
		b.Questions = append(b.Questions, q)
	}
	return formats.Finish(ctx, b, opt)
}

func splitBlocks(r io.Reader) ([]string, error) {
	var blocks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			blocks = append(blocks, s)
		}
		cur.Reset()
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == Separator {
			flush()
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read cloze text: %w", err)
	}
	flush()
	return blocks, nil
}

// Export writes every question as cloze text. Questions of the simple
// graded types get their answers appended as one embedded item; files are
// always inlined because the format has no place for attachments.
func (a *Adapter) Export(ctx context.Context, w io.Writer, b *bank.Bank, opt formats.Options) error {
	opt.Embed = true
	bw := bufio.NewWriter(w)
	for i, q := range b.Questions {
		if i > 0 {
			fmt.Fprintf(bw, "\n%s\n", Separator)
		}
		text, err := questionText(ctx, q, b, opt)
		if err != nil {
			return fmt.Errorf("question %s: %w", q.ID, err)
		}
		bw.WriteString(text)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func questionText(ctx context.Context, q *bank.Question, b *bank.Bank, opt formats.Options) (string, error) {
	text, err := q.Text.Get(richtext.DialectCloze, opt.RenderOptions(ctx, b)...)
	if err != nil {
		return "", err
	}
	switch q.Type {
	case bank.TypeCloze, bank.TypeEssay, bank.TypeDescription:
		return text, nil
	}
	it, err := q.Item()
	if err != nil {
		return "", err
	}
	s, err := richtext.SerializeCloze(it)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(text, "\n") + " " + s, nil
}
