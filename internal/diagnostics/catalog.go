package diagnostics

import (
	"strconv"
	"strings"

	"github.com/maypok86/otter"
	"golang.org/x/text/language"
)

// templates maps problem IDs to message templates. Placeholders are {0},
// {1}, ... referring to Problem.Args.
var templates = map[language.Tag]map[int]string{
	language.English: {
		IDSyntaxError:     "Syntax error near {0}",
		IDUnresolvedType:  "{0} cannot be resolved to a type",
		IDDuplicateType:   "The type {0} is already defined",
		IDMissingAbstract: "The type {0} must implement the inherited abstract method {1}",
		IDUnresolvedSuper: "The supertype {1} of {0} cannot be resolved",
		IDTypeMismatch:    "Type mismatch: cannot convert from {0} to {1}",
		IDInternal:        "Internal compiler error: {0}",
	},
	language.German: {
		IDSyntaxError:     "Syntaxfehler bei {0}",
		IDUnresolvedType:  "{0} kann nicht in einen Typ aufgelöst werden",
		IDDuplicateType:   "Der Typ {0} ist bereits definiert",
		IDMissingAbstract: "Der Typ {0} muss die übernommene abstrakte Methode {1} implementieren",
		IDUnresolvedSuper: "Der Supertyp {1} von {0} kann nicht aufgelöst werden",
		IDTypeMismatch:    "Typabweichung: {0} kann nicht in {1} konvertiert werden",
		IDInternal:        "Interner Compilerfehler: {0}",
	},
	language.French: {
		IDSyntaxError:     "Erreur de syntaxe près de {0}",
		IDUnresolvedType:  "{0} ne peut pas être résolu en type",
		IDDuplicateType:   "Le type {0} est déjà défini",
		IDMissingAbstract: "Le type {0} doit implémenter la méthode abstraite héritée {1}",
		IDUnresolvedSuper: "Le supertype {1} de {0} ne peut pas être résolu",
		IDTypeMismatch:    "Non-concordance de types : impossible de convertir {0} en {1}",
		IDInternal:        "Erreur interne du compilateur : {0}",
	},
}

// segment is one piece of a parsed template: literal text or an argument
// reference.
type segment struct {
	text string
	arg  int // -1 for literal text
}

// Formatter renders problems for one locale from parsed templates.
type Formatter struct {
	tag    language.Tag
	parsed map[int][]segment
}

// Tag returns the locale this formatter renders.
func (f *Formatter) Tag() language.Tag { return f.tag }

// Format renders p, falling back to its raw message when the ID has no
// template.
func (f *Formatter) Format(p Problem) string {
	segs, ok := f.parsed[p.ID]
	if !ok {
		return p.Message
	}
	var b strings.Builder
	for _, s := range segs {
		switch {
		case s.arg < 0:
			b.WriteString(s.text)
		case s.arg < len(p.Args):
			b.WriteString(p.Args[s.arg])
		default:
			b.WriteString(s.text)
		}
	}
	return b.String()
}

// Catalog hands out one Formatter per supported locale. Formatters are
// built by NewCatalog and never change; requested locale strings are
// matched to a supported tag once and the match is cached. The catalog is
// safe for concurrent use.
type Catalog struct {
	matcher    language.Matcher
	supported  []language.Tag
	formatters map[language.Tag]*Formatter
	matches    otter.Cache[string, language.Tag]
}

// NewCatalog creates a catalog over the built-in templates.
func NewCatalog() *Catalog {
	supported := []language.Tag{language.English, language.German, language.French}
	matches, err := otter.MustBuilder[string, language.Tag](64).Build()
	if err != nil {
		// Only fails for a non-positive capacity.
		panic(err)
	}
	formatters := make(map[language.Tag]*Formatter, len(supported))
	for _, tag := range supported {
		formatters[tag] = &Formatter{tag: tag, parsed: parseAll(templates[tag])}
	}
	return &Catalog{
		matcher:    language.NewMatcher(supported),
		supported:  supported,
		formatters: formatters,
		matches:    matches,
	}
}

// Supported returns the locales with templates.
func (c *Catalog) Supported() []language.Tag {
	return append([]language.Tag(nil), c.supported...)
}

// Formatter returns the formatter best matching the requested locale, e.g.
// "de-CH" resolves to German. Unparseable or unknown locales get English.
func (c *Catalog) Formatter(locale string) *Formatter {
	if tag, ok := c.matches.Get(locale); ok {
		return c.formatters[tag]
	}
	tag := language.English
	if req, err := language.Parse(locale); err == nil {
		_, idx, _ := c.matcher.Match(req)
		tag = c.supported[idx]
	}
	c.matches.Set(locale, tag)
	return c.formatters[tag]
}

// Format renders p for locale.
func (c *Catalog) Format(p Problem, locale string) string {
	return c.Formatter(locale).Format(p)
}

func parseAll(src map[int]string) map[int][]segment {
	out := make(map[int][]segment, len(src))
	for id, tpl := range src {
		out[id] = parseTemplate(tpl)
	}
	return out
}

func parseTemplate(tpl string) []segment {
	var segs []segment
	for len(tpl) > 0 {
		open := strings.IndexByte(tpl, '{')
		if open < 0 {
			segs = append(segs, segment{text: tpl, arg: -1})
			break
		}
		end := strings.IndexByte(tpl[open:], '}')
		if end < 0 {
			segs = append(segs, segment{text: tpl, arg: -1})
			break
		}
		end += open
		n, err := strconv.Atoi(tpl[open+1 : end])
		if err != nil {
			segs = append(segs, segment{text: tpl[:end+1], arg: -1})
			tpl = tpl[end+1:]
			continue
		}
		if open > 0 {
			segs = append(segs, segment{text: tpl[:open], arg: -1})
		}
		segs = append(segs, segment{text: tpl[open : end+1], arg: n})
		tpl = tpl[end+1:]
	}
	return segs
}
