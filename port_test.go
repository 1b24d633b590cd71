package coprocrt

import "testing"

func TestNewPortRegistersOnRuntimeAndOwner(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(testConfig(), host)
	owner := rt.NewRootProc(nil)

	port := rt.newPort(owner, 8)

	if rt.ports.Len() != 1 {
		t.Fatalf("rt.ports.Len() = %d, want 1", rt.ports.Len())
	}
	found := false
	owner.ports.each(func(p *Port) {
		if p == port {
			found = true
		}
	})
	if !found {
		t.Fatal("port not recorded on its owning proc's owned-port set")
	}
	if port.liveRefcnt != 1 {
		t.Fatalf("port.liveRefcnt = %d, want 1", port.liveRefcnt)
	}
}

func TestDelPortRequiresBothRefcountsZero(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(testConfig(), host)
	owner := rt.NewRootProc(nil)
	port := rt.newPort(owner, 8)

	port.weakRefcnt = 1
	port.liveRefcnt = 0
	rt.delPort(port)
	if rt.ports.Len() != 1 {
		t.Fatalf("port removed while weakRefcnt still nonzero: rt.ports.Len() = %d", rt.ports.Len())
	}

	port.weakRefcnt = 0
	rt.delPort(port)
	if rt.ports.Len() != 0 {
		t.Fatalf("port not removed once both refcounts reached zero: rt.ports.Len() = %d", rt.ports.Len())
	}
}

func TestDelPortRemovesFromOwnersSet(t *testing.T) {
	host := newFakeHost()
	rt := NewRuntime(testConfig(), host)
	owner := rt.NewRootProc(nil)
	port := rt.newPort(owner, 8)

	port.liveRefcnt = 0
	rt.delPort(port)

	found := false
	owner.ports.each(func(p *Port) {
		if p == port {
			found = true
		}
	})
	if found {
		t.Fatal("deleted port still present in owner's owned-port set")
	}
}
