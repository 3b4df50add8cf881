package transform

import (
	"fmt"
	"strings"
)

// MoveType is a parsed struct tag such as 0x1::coin::CoinStore<0x1::aptos_coin::AptosCoin>.
type MoveType struct {
	Address       string
	Module        string
	Name          string
	GenericParams []string
}

// ParseMoveType splits a struct tag into its parts. Generic parameters are
// kept as strings, split on top-level commas only.
func ParseMoveType(s string) (MoveType, error) {
	base, generics := s, ""
	if i := strings.IndexByte(s, '<'); i >= 0 {
		if !strings.HasSuffix(s, ">") {
			return MoveType{}, fmt.Errorf("move type %q: unbalanced generics", s)
		}
		base, generics = s[:i], s[i+1:len(s)-1]
	}
	parts := strings.Split(base, "::")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return MoveType{}, fmt.Errorf("move type %q: want address::module::name", s)
	}

	t := MoveType{Address: parts[0], Module: parts[1], Name: parts[2], GenericParams: []string{}}
	if generics == "" {
		return t, nil
	}

	depth, start := 0, 0
	for i, c := range generics {
		switch c {
		case '<':
			depth++
		case '>':
			depth--
			if depth < 0 {
				return MoveType{}, fmt.Errorf("move type %q: unbalanced generics", s)
			}
		case ',':
			if depth == 0 {
				t.GenericParams = append(t.GenericParams, strings.TrimSpace(generics[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return MoveType{}, fmt.Errorf("move type %q: unbalanced generics", s)
	}
	t.GenericParams = append(t.GenericParams, strings.TrimSpace(generics[start:]))
	return t, nil
}

// parseModuleID splits "0x1::coin" into address and module name.
func parseModuleID(s string) (string, string, error) {
	addr, name, ok := strings.Cut(s, "::")
	if !ok || addr == "" || name == "" || strings.Contains(name, "::") {
		return "", "", fmt.Errorf("module id %q: want address::name", s)
	}
	return addr, name, nil
}
