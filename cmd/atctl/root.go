package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"i4.energy/across/atgw/at"
)

// commandFlags describe the command to build. Shared by build and exec.
type commandFlags struct {
	kind       string
	name       string
	params     []string
	noPrefix   bool
	terminator string
}

func (f *commandFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.kind, "kind", "k", "execute", "Command kind: execute, test, query or set")
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "Command name, e.g. +CMGF")
	cmd.Flags().StringArrayVarP(&f.params, "param", "P", nil, "Set parameter, repeatable: i:<int>, s:<text>, r:<raw> or e for empty")
	cmd.Flags().BoolVar(&f.noPrefix, "no-prefix", false, "Omit the leading AT")
	cmd.Flags().StringVarP(&f.terminator, "terminator", "t", "cr", "Line terminator: cr or crlf")
}

// request turns the flags into an at.Request and its terminator.
func (f *commandFlags) request() (at.Request, string, error) {
	kind, err := at.ParseKind(f.kind)
	if err != nil {
		return at.Request{}, "", err
	}

	req := at.Request{Kind: kind, Name: f.name, NoPrefix: f.noPrefix}
	for _, p := range f.params {
		param, err := parseParam(p)
		if err != nil {
			return at.Request{}, "", err
		}
		req.Params = append(req.Params, param)
	}

	var terminator string
	switch strings.ToLower(f.terminator) {
	case "cr":
		terminator = at.CR
	case "crlf":
		terminator = at.CRLF
	default:
		return at.Request{}, "", fmt.Errorf("unknown terminator %q (use cr or crlf)", f.terminator)
	}
	return req, terminator, nil
}

// parseParam reads one --param value.
func parseParam(s string) (at.Param, error) {
	if s == "" || s == "e" {
		return at.Param{}, nil
	}
	tag, value, ok := strings.Cut(s, ":")
	if !ok {
		return at.Param{}, fmt.Errorf("parameter %q: want i:<int>, s:<text>, r:<raw> or e", s)
	}
	switch tag {
	case "i":
		v, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return at.Param{}, fmt.Errorf("parameter %q: %w", s, err)
		}
		return at.IntParam(int32(v)), nil
	case "s":
		return at.StringParam(value), nil
	case "r":
		return at.RawParam([]byte(value)), nil
	default:
		return at.Param{}, fmt.Errorf("parameter %q: unknown type %q", s, tag)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "atctl",
		Short: "AT command toolkit",
		Long: `atctl builds AT command lines and sends them to a cellular modem.

Parameters are typed: i:<int> is written as a decimal, s:<text> in double
quotes, r:<raw> verbatim and e as an empty (omitted) parameter.

  atctl build --kind set --name +CMGF --param i:1
  atctl exec --port /dev/ttyUSB0 --kind query --name +CSQ`,
		SilenceUsage: true,
	}
	root.AddCommand(newBuildCmd(), newExecCmd())
	return root
}
