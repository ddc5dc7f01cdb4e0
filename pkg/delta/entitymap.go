package delta

import "github.com/solstice-phys/islands/pkg/handle"

// EntityMap bijects a coordinator-side handle and a worker-side handle
// for one link. Each worker owns one EntityMap for its link with the
// coordinator, used in both directions (Local on import, Remote on
// export); the coordinator owns one per worker.
type EntityMap struct {
	remoteToLocal map[handle.Handle]handle.Handle
	localToRemote map[handle.Handle]handle.Handle
}

func NewEntityMap() *EntityMap {
	return &EntityMap{
		remoteToLocal: make(map[handle.Handle]handle.Handle),
		localToRemote: make(map[handle.Handle]handle.Handle),
	}
}

func (m *EntityMap) Insert(remote, local handle.Handle) {
	m.remoteToLocal[remote] = local
	m.localToRemote[local] = remote
}

func (m *EntityMap) Local(remote handle.Handle) (handle.Handle, bool) {
	l, ok := m.remoteToLocal[remote]
	return l, ok
}

func (m *EntityMap) Remote(local handle.Handle) (handle.Handle, bool) {
	r, ok := m.localToRemote[local]
	return r, ok
}

func (m *EntityMap) Remove(remote handle.Handle) {
	if local, ok := m.remoteToLocal[remote]; ok {
		delete(m.localToRemote, local)
	}
	delete(m.remoteToLocal, remote)
}

func (m *EntityMap) Len() int { return len(m.remoteToLocal) }
