package sched

import (
	"testing"

	"github.com/gmofishsauce/clarionc/internal/ir"
)

func TestBuildDispatcherFiltersExternalOnly(t *testing.T) {
	funcs := []*Function{
		{Name: "internalOnly", Label: "fn_internalOnly", External: false},
		{Name: "pub", Label: "fn_pub", External: true},
	}
	out := BuildDispatcher(funcs, func(name string) uint32 {
		if name == "pub" {
			return 1
		}
		return 0
	})
	var sawInternalJump, sawPubJump bool
	for _, in := range out {
		if in.Op == OpJump && in.Label == "fn_internalOnly" {
			sawInternalJump = true
		}
		if in.Op == OpJump && in.Label == "fn_pub" {
			sawPubJump = true
		}
	}
	if sawInternalJump {
		t.Error("expected no dispatch entry for the internal-only function")
	}
	if !sawPubJump {
		t.Error("expected a dispatch entry jumping to the external function")
	}
}

func TestBuildDispatcherOrdersBySelector(t *testing.T) {
	funcs := []*Function{
		{Name: "b", Label: "fn_b", External: true},
		{Name: "a", Label: "fn_a", External: true},
	}
	sels := map[string]uint32{"a": 5, "b": 1}
	out := BuildDispatcher(funcs, func(name string) uint32 { return sels[name] })

	var order []string
	for _, in := range out {
		if in.Op == OpJump && in.Label != "" && (in.Label == "fn_a" || in.Label == "fn_b") {
			order = append(order, in.Label)
		}
	}
	if len(order) != 2 || order[0] != "fn_b" || order[1] != "fn_a" {
		t.Errorf("expected dispatch chain ordered by ascending selector (fn_b then fn_a), got %v", order)
	}
}

func TestBuildDispatcherEndsWithRevert(t *testing.T) {
	funcs := []*Function{{Name: "f", Label: "fn_f", External: true}}
	out := BuildDispatcher(funcs, func(string) uint32 { return 1 })
	last := out[len(out)-1]
	if last.Op != OpIR || last.IR != ir.OpRevert {
		t.Fatalf("expected the dispatcher to end on an IR revert, got %+v", last)
	}
}
