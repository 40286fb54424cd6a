// Package extract finds evaluation dates, weights and modalities in
// syllabus passages.
package extract

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"courserag/internal/domain"
	apperr "courserag/internal/errors"
	"courserag/internal/logger"
)

const (
	// DefaultTopK is the number of passages searched for evaluations.
	DefaultTopK = 5
	// DefaultWindow is the number of runes inspected on each side of a keyword.
	DefaultWindow = 100

	scheduleQuery = "cronograma de evaluaciones fechas examen parcial final práctica calificada"
)

var (
	sectionBreak = regexp.MustCompile(`\n\s*\n`)

	sectionKeyword = regexp.MustCompile(`(?i)evaluaci[oó]n|evaluaciones|examen|pr[aá]ctica|parcial|final|control|trabajo|proyecto|exposici[oó]n|quiz|tarea|laboratorio|cronograma`)

	weightPattern   = regexp.MustCompile(`(?:^|[^\d])(\d{1,2})\s*%`)
	modalityPattern = regexp.MustCompile(`(?i)\b(virtual|presencial|oral|escrit[oa])\b`)
)

// evaluationTypes lists each type head in match priority order with its
// canonical name. Plurals are accepted.
var evaluationTypes = []struct {
	pattern   string
	canonical string
}{
	{`ex[aá]men(?:es)?`, "Examen"},
	{`pr[aá]cticas?`, "Práctica"},
	{`evaluaci[oó]n(?:es)?`, "Evaluación"},
	{`control(?:es)?`, "Control"},
	{`trabajos?`, "Trabajo"},
	{`proyectos?`, "Proyecto"},
	{`exposici[oó]n(?:es)?`, "Exposición"},
	{`quiz(?:zes)?`, "Quiz"},
	{`tareas?`, "Tarea"},
	{`laboratorios?`, "Laboratorio"},
	{`parcial(?:es)?`, "Parcial"},
	{`final(?:es)?`, "Final"},
}

// typePattern captures one group per evaluation type. Trailing qualifiers
// such as "Parcial" or "Calificada" are consumed so they fold into the head;
// on their own "Parcial" and "Final" are types.
var typePattern = buildTypePattern()

func buildTypePattern() *regexp.Regexp {
	alts := make([]string, len(evaluationTypes))
	for i, t := range evaluationTypes {
		alts[i] = "(" + t.pattern + ")"
	}
	qualifiers := `(?:\s+(?:parcial(?:es)?|final(?:es)?|calificad[oa]s?|grupal(?:es)?|individual(?:es)?|continua))?`
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)` + qualifiers)
}

// Searcher is the read side of the index used to find syllabus passages.
type Searcher interface {
	SimilaritySearch(ctx context.Context, query string, k int) ([]domain.SearchResult, error)
}

// Options configures an Extractor.
type Options struct {
	TopK     int
	Window   int
	Location *time.Location
}

// Extractor turns syllabus passages into evaluation candidates.
type Extractor struct {
	index  Searcher
	topK   int
	window int
	loc    *time.Location
	log    *zap.Logger
}

// New creates an extractor.
func New(idx Searcher, opts Options, log *zap.Logger) *Extractor {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Extractor{
		index:  idx,
		topK:   opts.TopK,
		window: opts.Window,
		loc:    opts.Location,
		log:    logger.OrNop(log),
	}
}

// Extract searches the index for the course's evaluation schedule and
// returns every candidate with a parsed date, in passage order. Duplicates
// are kept; see Dedupe.
func (e *Extractor) Extract(ctx context.Context, course string) ([]domain.Candidate, error) {
	course = strings.TrimSpace(course)
	if course == "" {
		return nil, apperr.NewInvalidRequest("course name is required")
	}
	results, err := e.index.SimilaritySearch(ctx, scheduleQuery+" "+course, e.topK)
	if err != nil {
		return nil, err
	}
	var out []domain.Candidate
	for _, r := range results {
		out = append(out, e.ExtractText(course, r.Chunk.Text, r.Chunk.Source, r.Chunk.Page)...)
	}
	e.log.Info("extracted evaluation candidates",
		zap.String("course", course),
		zap.Int("passages", len(results)),
		zap.Int("candidates", len(out)),
	)
	return out, nil
}

// ExtractText scans one passage. Each evaluation keyword owns the text up
// to the next keyword; its date, weight and modality are looked for after
// the keyword first and then in the surrounding window. Keywords that share
// one date on a line fall back to the whole window on that line.
func (e *Extractor) ExtractText(course, text, source string, page int) []domain.Candidate {
	var out []domain.Candidate
	for _, section := range sectionBreak.Split(text, -1) {
		if !sectionKeyword.MatchString(section) {
			continue
		}
		runes := []rune(section)
		locs := typePattern.FindAllStringSubmatchIndex(section, -1)
		for i, loc := range locs {
			start := utf8.RuneCountInString(section[:loc[0]])
			lower := 0
			if i > 0 {
				lower = utf8.RuneCountInString(section[:locs[i-1][1]])
			}
			upper := len(runes)
			if i+1 < len(locs) {
				upper = utf8.RuneCountInString(section[:locs[i+1][0]])
			}
			forward := string(runes[start:min(start+e.window, upper)])
			around := string(runes[max(start-e.window, lower):min(start+e.window, upper)])
			scopes := []string{forward, around}

			typ := canonicalType(loc)
			date, ok := ParseDate(forward, e.loc)
			if !ok {
				date, ok = ParseDate(around, e.loc)
			}
			if !ok {
				first, last := lineBounds(runes, start, utf8.RuneCountInString(section[:loc[1]]))
				line := string(runes[max(start-e.window, first):min(start+e.window, last)])
				if date, ok = ParseDate(line, e.loc); ok {
					scopes = append(scopes, line)
				}
			}
			if !ok {
				if hasDateLike(around) {
					e.log.Debug("dropping candidate",
						zap.String("course", course),
						zap.String("source", source),
						zap.Error(apperr.NewExtraction(fmt.Sprintf("%s: unparsable date near %q", typ, around))),
					)
				}
				continue
			}

			c := domain.Candidate{
				Course: course,
				Type:   typ,
				Date:   &date,
				Source: source,
				Page:   page,
			}
			for _, scope := range scopes {
				if c.Modality == "" {
					c.Modality = modality(scope)
				}
				if c.Weight == nil {
					if w, ok := weight(scope); ok {
						c.Weight = &w
					}
				}
			}
			out = append(out, c)
		}
	}
	return out
}

// lineBounds returns the rune offsets of the line holding [start, end).
func lineBounds(runes []rune, start, end int) (int, int) {
	first := start
	for first > 0 && runes[first-1] != '\n' {
		first--
	}
	last := end
	for last < len(runes) && runes[last] != '\n' {
		last++
	}
	return first, last
}

func canonicalType(loc []int) string {
	for g := range evaluationTypes {
		if loc[2*(g+1)] >= 0 {
			return evaluationTypes[g].canonical
		}
	}
	return ""
}

func weight(s string) (int, bool) {
	m := weightPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func modality(s string) string {
	m := modalityPattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	v := strings.ToLower(m[1])
	if strings.HasPrefix(v, "escrit") {
		v = "escrito"
	}
	return cases.Title(language.Spanish).String(v)
}

// Dedupe collapses candidates with the same course, type and date, keeping
// the first occurrence.
func Dedupe(cands []domain.Candidate) []domain.Candidate {
	seen := make(map[string]struct{}, len(cands))
	out := make([]domain.Candidate, 0, len(cands))
	for _, c := range cands {
		date := ""
		if c.Date != nil {
			date = c.Date.Format("2006-01-02")
		}
		key := strings.ToLower(c.Course) + "|" + c.Type + "|" + date
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
