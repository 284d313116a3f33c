package boundary

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/redock/redock/dockpath"
)

// substituter maps each occurrence of a path-typed token to its container
// path, in command-line order. Repeated single-value flags all rewrite to
// the final (winning) value.
type substituter struct {
	flags       map[string]*tokenQueue
	positionals *tokenQueue
	posDeclared bool
}

type tokenQueue struct {
	vals []string
	idx  int
}

func (q *tokenQueue) next() (string, bool) {
	if len(q.vals) == 0 {
		return "", false
	}
	if q.idx < len(q.vals) {
		v := q.vals[q.idx]
		q.idx++
		return v, true
	}
	return q.vals[len(q.vals)-1], true
}

func newSubstituter(flags []*pathFlag, positionals []*dockpath.Path, posDeclared bool) (*substituter, error) {
	sub := &substituter{
		flags:       make(map[string]*tokenQueue, len(flags)),
		positionals: &tokenQueue{},
		posDeclared: posDeclared,
	}
	for _, pf := range flags {
		var vals []string
		if pf.value != nil && pf.value.Path() != nil {
			mp, err := pf.value.Path().MountPath()
			if err != nil {
				return nil, err
			}
			vals = []string{mp}
		}
		if pf.list != nil {
			for _, p := range pf.list.Paths() {
				mp, err := p.MountPath()
				if err != nil {
					return nil, err
				}
				vals = append(vals, mp)
			}
		}
		if len(vals) > 0 {
			sub.flags[pf.name] = &tokenQueue{vals: vals}
		}
	}
	for _, p := range positionals {
		mp, err := p.MountPath()
		if err != nil {
			return nil, err
		}
		sub.positionals.vals = append(sub.positionals.vals, mp)
	}
	return sub, nil
}

// flagValue returns the container path for the next occurrence of the named
// path flag, false for non-path flags.
func (s *substituter) flagValue(name string) (string, bool) {
	q, ok := s.flags[name]
	if !ok {
		return "", false
	}
	return q.next()
}

// positional rewrites a positional token, passing it through untouched when
// positionals were not declared as paths.
func (s *substituter) positional(tok string) string {
	if !s.posDeclared {
		return tok
	}
	if v, ok := s.positionals.next(); ok {
		return v
	}
	return tok
}

// rewriteArgs rewrites the original argv, substituting every path-typed
// token's value with its in-container path and leaving everything else
// verbatim. It mirrors pflag's token forms: "--flag value", "--flag=value",
// "-f value", "-f=value", "-fVALUE", clustered boolean shorthands, and the
// "--" terminator. argv must already have parsed cleanly against fs.
func rewriteArgs(fs *pflag.FlagSet, argv []string, sub *substituter) []string {
	out := make([]string, 0, len(argv))
	for i := 0; i < len(argv); {
		tok := argv[i]
		switch {
		case tok == "--":
			out = append(out, tok)
			for i++; i < len(argv); i++ {
				out = append(out, sub.positional(argv[i]))
			}
		case len(tok) > 2 && strings.HasPrefix(tok, "--"):
			i = rewriteLong(fs, argv, i, &out, sub)
		case len(tok) > 1 && tok[0] == '-' && tok != "-":
			i = rewriteShorthand(fs, argv, i, &out, sub)
		default:
			out = append(out, sub.positional(tok))
			i++
		}
	}
	return out
}

func rewriteLong(fs *pflag.FlagSet, argv []string, i int, out *[]string, sub *substituter) int {
	tok := argv[i]
	name := tok[2:]
	if eq := strings.Index(name, "="); eq >= 0 {
		bare := name[:eq]
		if flag := fs.Lookup(bare); flag != nil {
			if v, ok := sub.flagValue(flag.Name); ok {
				*out = append(*out, "--"+bare+"="+v)
				return i + 1
			}
		}
		*out = append(*out, tok)
		return i + 1
	}

	flag := fs.Lookup(name)
	if flag == nil || flag.NoOptDefVal != "" || i+1 >= len(argv) {
		// Unknown or value-less flag; the value, if any, is not separate.
		*out = append(*out, tok)
		return i + 1
	}
	val := argv[i+1]
	if v, ok := sub.flagValue(flag.Name); ok {
		val = v
	}
	*out = append(*out, tok, val)
	return i + 2
}

func rewriteShorthand(fs *pflag.FlagSet, argv []string, i int, out *[]string, sub *substituter) int {
	tok := argv[i]
	body := tok[1:]
	for j := 0; j < len(body); j++ {
		flag := fs.ShorthandLookup(string(body[j]))
		if flag == nil {
			break
		}
		if flag.NoOptDefVal != "" {
			// Value-less shorthand, may be clustered with further ones.
			continue
		}
		if rest := body[j+1:]; rest != "" {
			// "-f=value" or "-fvalue"
			sep := ""
			if strings.HasPrefix(rest, "=") {
				sep = "="
			}
			if v, ok := sub.flagValue(flag.Name); ok {
				*out = append(*out, "-"+body[:j+1]+sep+v)
			} else {
				*out = append(*out, tok)
			}
			return i + 1
		}
		if i+1 >= len(argv) {
			break
		}
		val := argv[i+1]
		if v, ok := sub.flagValue(flag.Name); ok {
			val = v
		}
		*out = append(*out, tok, val)
		return i + 2
	}
	*out = append(*out, tok)
	return i + 1
}
