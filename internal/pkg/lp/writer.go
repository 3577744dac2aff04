package lp

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

const termsPerLine = 6

// WriteLP serialises the program in CPLEX LP format. Names are rewritten to
// the LP character set and made unique with a numeric suffix when needed.
func (p *Program) WriteLP(w io.Writer) error {
	bw := bufio.NewWriter(w)
	names := p.lpNames()

	fmt.Fprintf(bw, "\\ %s\n", p.name)
	bw.WriteString("Minimize\n obj:")
	obj := p.Objective()
	if len(obj) == 0 && len(p.vars) > 0 {
		obj = []Term{{Var: 0, Coef: 0}}
	}
	writeTerms(bw, obj, names)
	bw.WriteString("\n")

	bw.WriteString("Subject To\n")
	conNames := uniqueNames(len(p.constraints), func(i int) string { return p.constraints[i].Name }, "c")
	for i, c := range p.constraints {
		fmt.Fprintf(bw, " %s:", conNames[i])
		writeTerms(bw, c.Terms, names)
		fmt.Fprintf(bw, " %s %s\n", c.Sense, formatNumber(c.RHS))
	}

	bw.WriteString("Bounds\n")
	var binaries []string
	for _, v := range p.vars {
		if v.Kind == Binary {
			binaries = append(binaries, names[v.ID])
			continue
		}
		name := names[v.ID]
		switch {
		case math.IsInf(v.Lower, -1) && math.IsInf(v.Upper, 1):
			fmt.Fprintf(bw, " %s free\n", name)
		case math.IsInf(v.Upper, 1):
			fmt.Fprintf(bw, " %s >= %s\n", name, formatNumber(v.Lower))
		case math.IsInf(v.Lower, -1):
			fmt.Fprintf(bw, " -inf <= %s <= %s\n", name, formatNumber(v.Upper))
		default:
			fmt.Fprintf(bw, " %s <= %s <= %s\n", formatNumber(v.Lower), name, formatNumber(v.Upper))
		}
	}

	if len(binaries) > 0 {
		bw.WriteString("Binaries\n")
		for _, b := range binaries {
			fmt.Fprintf(bw, " %s\n", b)
		}
	}

	if len(p.sos) > 0 {
		bw.WriteString("SOS\n")
		sosNames := uniqueNames(len(p.sos), func(i int) string { return p.sos[i].Name }, "s")
		for i, s := range p.sos {
			fmt.Fprintf(bw, " %s: S2::", sosNames[i])
			for j, v := range s.Vars {
				fmt.Fprintf(bw, " %s:%s", names[v], formatNumber(s.Weights[j]))
			}
			bw.WriteString("\n")
		}
	}

	bw.WriteString("End\n")
	return bw.Flush()
}

func writeTerms(bw *bufio.Writer, terms []Term, names []string) {
	for i, t := range terms {
		if i > 0 && i%termsPerLine == 0 {
			bw.WriteString("\n  ")
		}
		sign := "+"
		coef := t.Coef
		if coef < 0 {
			sign = "-"
			coef = -coef
		}
		fmt.Fprintf(bw, " %s %s %s", sign, formatNumber(coef), names[t.Var])
	}
}

func formatNumber(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (p *Program) lpNames() []string {
	return uniqueNames(len(p.vars), func(i int) string { return p.vars[i].Name }, "x")
}

func uniqueNames(n int, name func(int) string, fallback string) []string {
	out := make([]string, n)
	used := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		s := sanitize(name(i))
		if s == "" {
			s = fallback
		}
		if used[s] {
			s = fmt.Sprintf("%s_%d", s, i)
		}
		used[s] = true
		out[i] = s
	}
	return out
}

// sanitize keeps characters CPLEX accepts in names. Names must not start
// with a digit or a period.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '.', r == '(', r == ')':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := b.String()
	if s != "" && (s[0] == '.' || (s[0] >= '0' && s[0] <= '9')) {
		s = "_" + s
	}
	if len(s) > 255 {
		s = s[:255]
	}
	return s
}
