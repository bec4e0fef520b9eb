package session

import (
	"testing"
	"time"
)

type fakeProvider struct {
	gateway  DeviceGateway
	released []string
}

func (f *fakeProvider) GatewayFor(sessionID string) DeviceGateway { return f.gateway }
func (f *fakeProvider) Release(sessionID string)                  { f.released = append(f.released, sessionID) }

func newTestManager(ttl time.Duration, maxPerUser int) (*Manager, *fakeProvider) {
	provider := &fakeProvider{gateway: &fakeGateway{}}
	m := NewManager(provider, &fakeAnalyzer{result: testResult()}, &fakeHistorian{}, []string{"General"}, ttl, maxPerUser, testLogger())
	return m, provider
}

func TestManagerOwnership(t *testing.T) {
	m, _ := newTestManager(time.Hour, 0)

	ctrl, err := m.Create("user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, ok := m.Get(ctrl.ID(), "user-1"); !ok {
		t.Errorf("owner must see their session")
	}
	if _, ok := m.Get(ctrl.ID(), "user-2"); ok {
		t.Errorf("foreign session must look missing")
	}
	if _, ok := m.Get(ctrl.ID(), ""); ok {
		t.Errorf("anonymous caller must not see an owned session")
	}
}

func TestManagerSessionLimit(t *testing.T) {
	m, _ := newTestManager(time.Hour, 2)

	for i := 0; i < 2; i++ {
		if _, err := m.Create("user-1"); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}
	if _, err := m.Create("user-1"); err != ErrSessionLimit {
		t.Fatalf("expected session limit, got %v", err)
	}

	// Other owners are unaffected.
	if _, err := m.Create("user-2"); err != nil {
		t.Fatalf("Create for other user: %v", err)
	}
}

func TestManagerCloseReleasesGateway(t *testing.T) {
	m, provider := newTestManager(time.Hour, 0)

	ctrl, err := m.Create("user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !m.Close(ctrl.ID(), "user-1") {
		t.Fatalf("Close should succeed for the owner")
	}
	if m.Close(ctrl.ID(), "user-1") {
		t.Errorf("second close must report missing")
	}

	if len(provider.released) != 1 || provider.released[0] != ctrl.ID() {
		t.Errorf("device channel must be released on close, got %v", provider.released)
	}
	if _, ok := m.Get(ctrl.ID(), "user-1"); ok {
		t.Errorf("closed session must be gone")
	}
}

func TestManagerReapsIdleSessions(t *testing.T) {
	m, provider := newTestManager(20*time.Millisecond, 0)

	if _, err := m.Create("user-1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	fresh, err := m.Create("user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	m.ReapIdle()

	if m.Count() != 1 {
		t.Fatalf("expected only the fresh session to survive, got %d", m.Count())
	}
	if _, ok := m.Get(fresh.ID(), "user-1"); !ok {
		t.Errorf("fresh session must survive the reap")
	}
	if len(provider.released) != 1 {
		t.Errorf("reaped session must release its device channel")
	}
}
