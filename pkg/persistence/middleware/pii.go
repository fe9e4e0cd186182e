package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/ragloop/pkg/domain"
	"github.com/aretw0/ragloop/pkg/ports"
)

// Mask replaces every redacted value.
const Mask = "***"

type piiMiddleware struct {
	next     ports.TraceSink
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks matches of the patterns in the
// question, the generation and document contents, and masks document metadata whose
// key matches a pattern.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.TraceSink) ports.TraceSink {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Publish(ctx context.Context, runID string, ev domain.Event) error {
	if len(m.patterns) == 0 {
		return m.next.Publish(ctx, runID, ev)
	}

	// Patches share their pointers with the running engine; copy before masking.
	p := ev.Patch
	if p.Question != nil {
		q := m.maskText(*p.Question)
		p.Question = &q
	}
	if p.Generation != nil {
		g := m.maskText(*p.Generation)
		p.Generation = &g
	}
	if p.Documents != nil {
		docs := make([]domain.Document, len(*p.Documents))
		for i, d := range *p.Documents {
			d = d.Clone()
			d.Content = m.maskText(d.Content)
			m.maskKeys(d.Metadata)
			docs[i] = d
		}
		p.Documents = &docs
	}
	ev.Patch = p

	return m.next.Publish(ctx, runID, ev)
}

func (m *piiMiddleware) maskText(s string) string {
	for _, p := range m.patterns {
		s = p.ReplaceAllString(s, Mask)
	}
	return s
}

func (m *piiMiddleware) maskKeys(meta map[string]string) {
	for k := range meta {
		for _, p := range m.patterns {
			if p.MatchString(k) {
				meta[k] = Mask
				break
			}
		}
	}
}
