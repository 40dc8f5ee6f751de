package config

import (
	"fmt"
	"strconv"

	"github.com/cosiner/argv"

	"github.com/go-sigscan/sigscan/pkg/memsig"
)

// ParseOps parses a list of textual operations into a verification
// sequence. Each element is one operation.
func ParseOps(ops []string) ([]memsig.Instruction, error) {
	instrs := make([]memsig.Instruction, 0, len(ops))
	for _, op := range ops {
		in, err := ParseOp(op)
		if err != nil {
			return nil, err
		}
		instrs = append(instrs, in)
	}
	return instrs, nil
}

// ParseOp parses one textual operation. The verbs mirror the
// instruction constructors:
//
//	offset N
//	follow
//	advance [N]
//	strcmp "text"
//	wcscmp "text"
//	cmpi8 N | cmpi16 N | cmpi32 N | cmpi64 N
//	push
//	pop
//
// Numbers accept the 0x and 0 prefixes of strconv.ParseInt base 0.
// Quoting follows shell rules, so string payloads may contain spaces.
func ParseOp(op string) (memsig.Instruction, error) {
	v, err := argv.Argv(op,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in %q", s)
		},
		nil)
	if err != nil {
		return memsig.Instruction{}, fmt.Errorf("operation %q: %v", op, err)
	}
	if len(v) != 1 || len(v[0]) == 0 {
		return memsig.Instruction{}, fmt.Errorf("operation %q: expected a single command", op)
	}
	w := v[0]
	verb, args := w[0], w[1:]

	switch verb {
	case "offset":
		n, err := oneNumber(verb, args)
		if err != nil {
			return memsig.Instruction{}, err
		}
		return memsig.Offset(n), nil
	case "follow":
		if err := noArgs(verb, args); err != nil {
			return memsig.Instruction{}, err
		}
		return memsig.Follow(), nil
	case "advance":
		if len(args) == 0 {
			return memsig.AdvanceWildcardRun(1), nil
		}
		n, err := oneNumber(verb, args)
		if err != nil {
			return memsig.Instruction{}, err
		}
		return memsig.AdvanceWildcardRun(n), nil
	case "strcmp":
		s, err := oneString(verb, args)
		if err != nil {
			return memsig.Instruction{}, err
		}
		return memsig.StringEquals(s), nil
	case "wcscmp":
		s, err := oneString(verb, args)
		if err != nil {
			return memsig.Instruction{}, err
		}
		return memsig.WideStringEquals(s), nil
	case "cmpi8":
		n, err := oneNumber(verb, args)
		if err != nil {
			return memsig.Instruction{}, err
		}
		return memsig.CompareInt8(n), nil
	case "cmpi16":
		n, err := oneNumber(verb, args)
		if err != nil {
			return memsig.Instruction{}, err
		}
		return memsig.CompareInt16(n), nil
	case "cmpi32":
		n, err := oneNumber(verb, args)
		if err != nil {
			return memsig.Instruction{}, err
		}
		return memsig.CompareInt32(n), nil
	case "cmpi64":
		n, err := oneNumber(verb, args)
		if err != nil {
			return memsig.Instruction{}, err
		}
		return memsig.CompareInt64(n), nil
	case "push":
		if err := noArgs(verb, args); err != nil {
			return memsig.Instruction{}, err
		}
		return memsig.PushAddress(), nil
	case "pop":
		if err := noArgs(verb, args); err != nil {
			return memsig.Instruction{}, err
		}
		return memsig.PopAddress(), nil
	}
	return memsig.Instruction{}, fmt.Errorf("unknown operation %q", verb)
}

func noArgs(verb string, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("operation %q takes no argument", verb)
	}
	return nil
}

func oneNumber(verb string, args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("operation %q needs exactly one numeric argument", verb)
	}
	n, err := strconv.ParseInt(args[0], 0, 64)
	if err != nil {
		return 0, fmt.Errorf("operation %q: bad number %q", verb, args[0])
	}
	return n, nil
}

func oneString(verb string, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("operation %q needs exactly one string argument", verb)
	}
	return args[0], nil
}
