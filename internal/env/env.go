// Package env composes the environment the managed runtime is started with.
package env

import (
	"os"
	"sort"
	"strings"
)

// PreserveAll in a preserve list copies the whole controller environment.
const PreserveAll = "*"

type Var map[string]string

// Env holds the preserved names and custom variables. The runtime gets only
// what is listed here plus the fixed admin settings passed to Merge.
type Env struct {
	Preserve []string
	Var      Var
	env      Var // cached base from OS environment
}

func New(preserve []string, custom map[string]string) *Env {
	e := &Env{Preserve: preserve, Var: make(Var, len(custom))}
	for k, v := range custom {
		e.Var[k] = v
	}
	return e
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.FromList(os.Environ())
}

// FromList caches kv pairs as the base instead of the OS environment.
func (e *Env) FromList(kvs []string) {
	base := make(Var)
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			base[kv[:i]] = kv[i+1:]
		}
	}
	e.env = base
}

func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

func (e *Env) Unset(k string) {
	if e.Var != nil {
		delete(e.Var, k)
	}
}

// Missing lists preserved names absent from the base environment.
func (e *Env) Missing() []string {
	if e.env == nil {
		e.FromOS()
	}
	var out []string
	for _, k := range e.Preserve {
		if k == PreserveAll {
			continue
		}
		if _, ok := e.env[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// Has reports whether k ends up in the merged environment before fixed
// values are applied.
func (e *Env) Has(k string) bool {
	if _, ok := e.Var[k]; ok {
		return true
	}
	if e.env == nil {
		e.FromOS()
	}
	for _, p := range e.Preserve {
		if p == PreserveAll || p == k {
			_, ok := e.env[k]
			return ok
		}
	}
	return false
}

// Merge composes the final environment list applying order:
// preserved variables from the base, then custom e.Var, then fixed
// ("K=V") entries. ${VAR} references are expanded once against the
// composed map. The result is sorted by key.
func (e *Env) Merge(fixed []string) []string {
	if e.env == nil {
		e.FromOS()
	}
	m := make(Var)
	for _, k := range e.Preserve {
		if k == PreserveAll {
			for bk, bv := range e.env {
				m[bk] = bv
			}
			continue
		}
		if v, ok := e.env[k]; ok {
			m[k] = v
		}
	}
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for _, kv := range fixed {
		if i := strings.IndexByte(kv, '='); i > 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
