package phone

// NumberList is an ordered list of E.164 numbers without duplicates.
// The first occurrence of a number keeps its position. The zero value is
// ready to use.
type NumberList struct {
	numbers []string
	seen    map[string]struct{}
}

func NewNumberList() *NumberList {
	return &NumberList{seen: map[string]struct{}{}}
}

// AppendOne formats p and adds it unless it is empty or already present.
func (l *NumberList) AppendOne(p string) {
	if p == "" {
		return
	}
	p = Format(p)
	if l.seen == nil {
		l.seen = map[string]struct{}{}
	}
	if _, ok := l.seen[p]; ok {
		return
	}
	l.seen[p] = struct{}{}
	l.numbers = append(l.numbers, p)
}

func (l *NumberList) Append(ps []string) {
	for _, p := range ps {
		l.AppendOne(p)
	}
}

// AppendNested flattens one level of grouping, e.g. per-shift staff of a week.
func (l *NumberList) AppendNested(groups [][]string) {
	for _, g := range groups {
		l.Append(g)
	}
}

func (l *NumberList) Len() int { return len(l.numbers) }

// Numbers returns a copy of the accumulated numbers.
func (l *NumberList) Numbers() []string {
	out := make([]string, len(l.numbers))
	copy(out, l.numbers)
	return out
}
