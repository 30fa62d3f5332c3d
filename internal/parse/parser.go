// Package parse extracts structured fields from free-form capability bot
// replies. Parsing is best effort by contract: a parser never fails, it
// returns whatever its pattern rules matched, and the confidence scorer
// rates the outcome. Bot output formats drift; keep the pattern rules
// forgiving and test against recorded fixture texts.
package parse

import (
	"golang.org/x/text/unicode/norm"

	"github.com/tracewire/tracewire/internal/model"
)

// Parser extracts typed fields from concatenated reply text for one
// module. Implementations return a full-schema Fields map so that the
// scorer can rate completeness; absent values stay zero.
type Parser interface {
	Module() string
	Parse(text string) model.Fields
}

// Set dispatches reply text to the parser registered for a module,
// falling back to the generic parser for unknown modules.
type Set struct {
	parsers map[string]Parser
}

// NewSet returns a Set with all built-in module parsers registered.
func NewSet() *Set {
	s := &Set{parsers: make(map[string]Parser)}
	for _, p := range []Parser{
		identityParser{},
		socialParser{},
		paymentParser{},
		vehicleParser{},
		verificationParser{},
		breachParser{},
		linkedEmailsParser{},
		alternateNumbersParser{},
		bankParser{},
	} {
		s.parsers[p.Module()] = p
	}
	return s
}

// Parse normalizes the reply text and runs the module's parser. Bots
// decorate output with stylized unicode, so text is NFKC-folded first.
func (s *Set) Parse(module, text string) model.Fields {
	text = norm.NFKC.String(text)
	if p, ok := s.parsers[module]; ok {
		return p.Parse(text)
	}
	return genericParser{}.Parse(text)
}

// genericParser returns the raw text unparsed for unknown modules.
type genericParser struct{}

func (genericParser) Module() string { return "" }

func (genericParser) Parse(text string) model.Fields {
	return model.Fields{"raw_text": text}
}
