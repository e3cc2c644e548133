package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"lukechampine.com/uint128"

	"github.com/wippyai/canister-outcall/candid"
	"github.com/wippyai/canister-outcall/cycles"
	"github.com/wippyai/canister-outcall/mgmt"
	"github.com/wippyai/canister-outcall/principal"
)

// headerList collects repeated -header name:value flags in order.
type headerList []mgmt.HttpHeader

func (h *headerList) String() string {
	parts := make([]string, len(*h))
	for i, hdr := range *h {
		parts[i] = hdr.Name + ":" + hdr.Value
	}
	return strings.Join(parts, ",")
}

func (h *headerList) Set(v string) error {
	name, value, ok := strings.Cut(v, ":")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("header %q: want name:value", v)
	}
	*h = append(*h, mgmt.HttpHeader{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	return nil
}

type requestFlags struct {
	url               string
	method            string
	maxBytes          string
	body              string
	transformCanister string
	transformMethod   string
	transformContext  string
	headers           headerList
}

func buildArgument(f requestFlags) (mgmt.CanisterHttpRequestArgument, error) {
	if f.url == "" {
		return mgmt.CanisterHttpRequestArgument{}, fmt.Errorf("url is required")
	}
	method, err := mgmt.ParseHttpMethod(f.method)
	if err != nil {
		return mgmt.CanisterHttpRequestArgument{}, err
	}

	arg := mgmt.CanisterHttpRequestArgument{
		URL:     f.url,
		Method:  method,
		Headers: f.headers,
	}

	if f.maxBytes != "" {
		n, err := strconv.ParseUint(f.maxBytes, 10, 64)
		if err != nil {
			return mgmt.CanisterHttpRequestArgument{}, fmt.Errorf("max bytes: %w", err)
		}
		arg.MaxResponseBytes = &n
	}

	if f.body != "" {
		body := []byte(f.body)
		arg.Body = &body
	}

	if f.transformCanister != "" || f.transformMethod != "" {
		target, err := principal.Decode(f.transformCanister)
		if err != nil {
			return mgmt.CanisterHttpRequestArgument{}, fmt.Errorf("transform canister: %w", err)
		}
		ctxBytes, err := parseBytes(f.transformContext)
		if err != nil {
			return mgmt.CanisterHttpRequestArgument{}, fmt.Errorf("transform context: %w", err)
		}
		arg.Transform = &mgmt.TransformContext{
			Function: mgmt.TransformFunc{Principal: target, Method: f.transformMethod},
			Context:  ctxBytes,
		}
	}

	return arg, nil
}

// parseBytes reads 0x-prefixed hex, or takes the text as is.
func parseBytes(s string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		return hex.DecodeString(rest)
	}
	return []byte(s), nil
}

type report struct {
	typ              candid.Type
	encoded          []byte
	maxResponseBytes uint64
	cycles           uint128.Uint128
}

func describe(arg mgmt.CanisterHttpRequestArgument) (report, error) {
	typ, err := candid.TypeOf(arg)
	if err != nil {
		return report{}, err
	}
	encoded, err := candid.Marshal(arg)
	if err != nil {
		return report{}, err
	}
	cost, err := mgmt.RequiredCycles(arg)
	if err != nil {
		return report{}, err
	}
	return report{
		typ:              typ,
		encoded:          encoded,
		maxResponseBytes: cycles.EffectiveMaxResponseBytes(arg.MaxResponseBytes),
		cycles:           cost,
	}, nil
}

func (r report) lines() []string {
	return []string{
		"Type:        " + r.typ.String(),
		"Encoded:     " + hex.EncodeToString(r.encoded),
		"Length:      " + strconv.Itoa(len(r.encoded)) + " bytes",
		"Max reply:   " + strconv.FormatUint(r.maxResponseBytes, 10) + " bytes",
		"Cycles:      " + r.cycles.String(),
	}
}
