package consensus

import (
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

type snapshot struct {
	Validators  []*Validator                   `msgpack:"v"`
	Epoch       uint64                         `msgpack:"e"`
	EpochBlocks map[uint64]map[string][]string `msgpack:"b"`
}

// Snapshot serializes the registry and the open epoch books so a restarted
// node keeps validator statistics.
func (m *Manager) Snapshot() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := &snapshot{
		Validators:  make([]*Validator, 0, len(m.validators)),
		Epoch:       m.epoch,
		EpochBlocks: m.epochBlocks,
	}
	for _, v := range m.validators {
		s.Validators = append(s.Validators, v)
	}

	d, err := msgpack.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling registry snapshot")
	}

	return d, nil
}

// Restore replaces the registry with a previously snapshotted one.
func (m *Manager) Restore(d []byte) error {
	s := &snapshot{}
	if err := msgpack.Unmarshal(d, s); err != nil {
		return errors.Wrap(err, "unmarshaling registry snapshot")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.validators = make(map[string]*Validator, len(s.Validators))
	for _, v := range s.Validators {
		m.validators[v.Address] = v
	}

	m.epoch = s.Epoch
	m.epochBlocks = s.EpochBlocks
	if m.epochBlocks == nil {
		m.epochBlocks = make(map[uint64]map[string][]string)
	}

	return nil
}
